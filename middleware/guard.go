package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/campusauth"
)

// Validator is satisfied by *campusauth.Engine.
type Validator interface {
	Validate(ctx context.Context, token string, routeMode campusauth.RouteMode) (*campusauth.AuthResult, error)
}

type authResultContextKey struct{}

// Every token failure gets these exact bytes so callers cannot tell a
// malformed token from an expired or revoked one.
var (
	unauthorizedBody = []byte(`{"success":false,"message":"unauthorized"}` + "\n")
	forbiddenBody    = []byte(`{"success":false,"message":"forbidden"}` + "\n")
	unavailableBody  = []byte(`{"success":false,"message":"service unavailable"}` + "\n")
	internalBody     = []byte(`{"success":false,"message":"internal error"}` + "\n")
)

// AuthResultFromContext returns the result stored by Guard.
func AuthResultFromContext(ctx context.Context) (*campusauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*campusauth.AuthResult)
	return res, ok && res != nil
}

// WithAuthResult stores res in ctx the way Guard does.
func WithAuthResult(ctx context.Context, res *campusauth.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard requires a valid bearer access token. Token failures answer 401 with
// one fixed body; a session backend outage in strict mode answers 503.
func Guard(v Validator, routeMode campusauth.RouteMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				Unauthorized(w)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				Unauthorized(w)
				return
			}

			res, err := v.Validate(r.Context(), token, routeMode)
			if err != nil {
				switch {
				case errors.Is(err, campusauth.ErrUnauthorized):
					Unauthorized(w)
				case errors.Is(err, campusauth.ErrBackendUnavailable):
					write(w, http.StatusServiceUnavailable, unavailableBody)
				default:
					write(w, http.StatusInternalServerError, internalBody)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// Unauthorized writes the shared 401 response.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="campusauth"`)
	write(w, http.StatusUnauthorized, unauthorizedBody)
}

// Forbidden writes the shared 403 response.
func Forbidden(w http.ResponseWriter) {
	write(w, http.StatusForbidden, forbiddenBody)
}

func write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
