package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureExpired
	ValidateFailureRevoked
	ValidateFailureBackend
)

// ValidateResult carries the verified claims, plus the session in strict mode.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
	Session *session.Session
}

type ValidateSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
}

// ValidateDeps wires access-token validation.
type ValidateDeps struct {
	ParseAccess      func(string) (*jwt.Claims, error)
	SessionStore     ValidateSessionStore
	TokenExpired     error
	RedisUnavailable error
}

// RunValidate checks an access token's signature and expiry. With strict set
// it also requires the session to still exist and belong to the token's
// subject, so logout and reuse revocation take effect at once.
func RunValidate(ctx context.Context, token string, strict bool, deps ValidateDeps) ValidateResult {
	fail := func(kind ValidateFailureKind, err error) ValidateResult {
		return ValidateResult{Failure: kind, Err: err}
	}

	claims, err := deps.ParseAccess(token)
	switch {
	case err == nil:
	case deps.TokenExpired != nil && errors.Is(err, deps.TokenExpired):
		return fail(ValidateFailureExpired, err)
	default:
		return fail(ValidateFailureMalformed, err)
	}
	if !strict {
		return ValidateResult{Claims: claims}
	}

	sess, err := deps.SessionStore.Get(ctx, claims.SID)
	switch {
	case err == nil:
	case deps.RedisUnavailable != nil && errors.Is(err, deps.RedisUnavailable):
		return fail(ValidateFailureBackend, err)
	default:
		return fail(ValidateFailureRevoked, err)
	}
	if sess.UserID != claims.Subject {
		return fail(ValidateFailureRevoked, errors.New("session belongs to another user"))
	}
	return ValidateResult{Claims: claims, Session: sess}
}
