package middleware

import (
	"net/http"

	"github.com/MrEthical07/campusauth"
)

// RequireRole admits requests whose verified token carries exactly role. It
// must run after Guard; without a stored AuthResult it answers 401.
func RequireRole(role campusauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				Unauthorized(w)
				return
			}
			if !campusauth.CanAccess(&res.Identity, role) {
				Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
