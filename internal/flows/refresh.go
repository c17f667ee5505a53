package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMalformed
	RefreshFailureExpired
	RefreshFailureRateLimited
	RefreshFailureRevoked
	RefreshFailureReuse
	RefreshFailureBackend
	RefreshFailureNextSecret
	RefreshFailureIssueAccess
	RefreshFailureIssueRefresh
)

// RefreshResult carries either the new tokens or failure metadata.
// RefreshToken is empty unless the refresh token was rotated.
type RefreshResult struct {
	Failure         RefreshFailureKind
	Err             error
	SessionID       string
	UserID          string
	Role            string
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, sessionID string) error
}

type RefreshSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	RotateRefreshHash(
		ctx context.Context,
		sessionID string,
		providedHash [32]byte,
		nextHash [32]byte,
		revokeOnMismatch bool,
	) (*session.Session, error)
	TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) (int64, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh      func(string) (*jwt.Claims, error)
	DecodeRefreshID   func(string) ([32]byte, error)
	NewRefreshSecret  func() ([32]byte, error)
	HashRefreshSecret func([32]byte) [32]byte
	EncodeRefreshID   func([32]byte) string
	CreateAccess      func(jwt.Principal) (string, time.Time, error)
	CreateRefresh     func(jwt.Principal, string, time.Time) (string, error)

	Rotate               bool
	RevokeOnReuse        bool
	EnableReplayTracking bool
	ReplayWindow         time.Duration

	RateLimiter  RefreshRateLimiter
	SessionStore RefreshSessionStore
	Warn         func(string, ...any)

	TokenExpired     error
	RateLimited      error
	RedisUnavailable error
	RefreshMismatch  error
}

// RunRefresh verifies a refresh token against its session and mints a new
// access token. The role is taken from the refresh token's own claims.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		if deps.TokenExpired != nil && errors.Is(err, deps.TokenExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureMalformed, Err: err}
	}

	principal := claims.Principal()
	base := RefreshResult{
		SessionID: principal.SessionID,
		UserID:    principal.UserID,
		Role:      principal.Role,
	}
	fail := func(kind RefreshFailureKind, err error) RefreshResult {
		r := base
		r.Failure = kind
		r.Err = err
		return r
	}

	providedSecret, err := deps.DecodeRefreshID(claims.ID)
	if err != nil {
		return fail(RefreshFailureMalformed, err)
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, principal.SessionID); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return fail(RefreshFailureRateLimited, err)
			}
			deps.Warn("refresh limiter unavailable, continuing unthrottled", "error", err)
		}
	}

	providedHash := deps.HashRefreshSecret(providedSecret)

	var nextSecret [32]byte
	if deps.Rotate {
		nextSecret, err = deps.NewRefreshSecret()
		if err != nil {
			return fail(RefreshFailureNextSecret, err)
		}

		sess, err := deps.SessionStore.RotateRefreshHash(
			ctx,
			principal.SessionID,
			providedHash,
			deps.HashRefreshSecret(nextSecret),
			deps.RevokeOnReuse,
		)
		if err != nil {
			switch {
			case deps.RefreshMismatch != nil && errors.Is(err, deps.RefreshMismatch):
				if deps.EnableReplayTracking {
					if _, trackErr := deps.SessionStore.TrackReplayAnomaly(ctx, principal.SessionID, deps.ReplayWindow); trackErr != nil {
						deps.Warn("replay anomaly tracking failed", "error", trackErr)
					}
				}
				return fail(RefreshFailureReuse, err)
			case deps.RedisUnavailable != nil && errors.Is(err, deps.RedisUnavailable):
				return fail(RefreshFailureBackend, err)
			default:
				return fail(RefreshFailureRevoked, err)
			}
		}
		if sess.UserID != principal.UserID {
			return fail(RefreshFailureRevoked, errors.New("session subject mismatch"))
		}
	} else {
		sess, err := deps.SessionStore.Get(ctx, principal.SessionID)
		if err != nil {
			if deps.RedisUnavailable != nil && errors.Is(err, deps.RedisUnavailable) {
				return fail(RefreshFailureBackend, err)
			}
			return fail(RefreshFailureRevoked, err)
		}
		if sess.UserID != principal.UserID ||
			subtle.ConstantTimeCompare(sess.RefreshHash[:], providedHash[:]) != 1 {
			return fail(RefreshFailureRevoked, errors.New("refresh token superseded"))
		}
	}

	access, accessExpiresAt, err := deps.CreateAccess(principal)
	if err != nil {
		return fail(RefreshFailureIssueAccess, err)
	}

	result := base
	result.AccessToken = access
	result.AccessExpiresAt = accessExpiresAt

	if deps.Rotate {
		refresh, err := deps.CreateRefresh(principal, deps.EncodeRefreshID(nextSecret), claims.ExpiresAt.Time)
		if err != nil {
			return fail(RefreshFailureIssueRefresh, err)
		}
		result.RefreshToken = refresh
	}

	return result
}
