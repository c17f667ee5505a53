package middleware

import (
	"net/http"

	"github.com/MrEthical07/campusauth"
)

// RequireStrict checks the session record on every request so a logout
// takes effect before the access token expires.
func RequireStrict(v Validator) func(http.Handler) http.Handler {
	return Guard(v, campusauth.ModeStrict)
}
