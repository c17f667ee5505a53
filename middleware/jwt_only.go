package middleware

import (
	"net/http"

	"github.com/MrEthical07/campusauth"
)

// RequireJWTOnly returns middleware that overrides the validation mode to
// [campusauth.ModeJWTOnly] for the wrapped handler, skipping Redis entirely.
func RequireJWTOnly(v Validator) func(http.Handler) http.Handler {
	return Guard(v, campusauth.ModeJWTOnly)
}
