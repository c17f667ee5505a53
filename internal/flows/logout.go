package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/campusauth/jwt"
)

type LogoutSessionStore interface {
	Delete(ctx context.Context, sessionID string) error
}

// LogoutDeps wires session termination.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.Claims, error)
	SessionStore LogoutSessionStore
}

// TokenError marks a logout that never reached the store because the access
// token did not verify.
type TokenError struct{ Err error }

func (e *TokenError) Error() string { return "logout: " + e.Err.Error() }
func (e *TokenError) Unwrap() error { return e.Err }

// RunLogout deletes one session. Missing sessions are not an error.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	return deps.SessionStore.Delete(ctx, sessionID)
}

// RunLogoutByAccessToken deletes the session named by a verified access
// token and returns its ID. A token that fails to verify yields *TokenError.
func RunLogoutByAccessToken(ctx context.Context, token string, deps LogoutDeps) (string, error) {
	claims, err := deps.ParseAccess(token)
	if err != nil {
		return "", &TokenError{Err: err}
	}
	return claims.SID, RunLogout(ctx, claims.SID, deps)
}

// IsTokenError reports whether err came from verifying the access token.
func IsTokenError(err error) bool {
	var te *TokenError
	return errors.As(err, &te)
}
