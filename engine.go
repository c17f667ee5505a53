package campusauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/campusauth/internal/flows"
	"github.com/MrEthical07/campusauth/internal/rate"
	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/password"
	"github.com/MrEthical07/campusauth/session"
)

// Engine issues, verifies, refreshes and revokes campus session tokens.
//
// Engine is safe for concurrent use once built.
type Engine struct {
	config       Config
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	metrics      *Metrics
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	credentials  CredentialStore
	logger       *slog.Logger
	now          func() time.Time
	dummyHash    string
	flow         flows.Service
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

// Issue records a session for id and returns a fresh access/refresh pair.
//
// The identity must carry an id, a well-formed email and a known role;
// anything else fails with ErrIdentityInvalid before any state is written.
func (e *Engine) Issue(ctx context.Context, id Identity) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if !id.validForIssue() {
		return TokenPair{}, ErrIdentityInvalid
	}

	res := e.flow.Issue(ctx, flows.IssueSubject{
		UserID:      id.ID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Role:        string(id.Role),
	})
	if res.Failure != flows.IssueFailureNone {
		e.metricInc(MetricSessionCreateFailure)
		return TokenPair{}, errors.Join(ErrSessionCreationFailed, res.Err)
	}

	e.metricInc(MetricSessionCreated)
	return tokenPairFromIssue(res), nil
}

func tokenPairFromIssue(res flows.IssueResult) TokenPair {
	return TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		SessionID:        res.SessionID,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
}

// Verify validates an access token using the engine-wide ValidationMode.
func (e *Engine) Verify(ctx context.Context, token string) (*AuthResult, error) {
	return e.Validate(ctx, token, ModeInherit)
}

// Validate checks signature, then expiry, then (in strict mode) that the
// session still exists. Every token rejection wraps ErrUnauthorized.
func (e *Engine) Validate(ctx context.Context, token string, routeMode RouteMode) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	mode, err := e.resolveRouteMode(routeMode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := e.flow.Validate(ctx, token, mode == ModeStrict)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricVerifySuccess)
		return authResultFromClaims(res.Claims), nil
	case flows.ValidateFailureExpired:
		err = ErrExpired
	case flows.ValidateFailureRevoked:
		err = ErrRevoked
	case flows.ValidateFailureBackend:
		return nil, backendError(res.Err)
	default:
		err = ErrMalformed
	}

	e.metricInc(MetricVerifyRejected)
	return nil, err
}

func authResultFromClaims(claims *jwt.Claims) *AuthResult {
	p := claims.Principal()
	result := &AuthResult{
		Identity: Identity{
			ID:          p.UserID,
			Email:       p.Email,
			Role:        Role(p.Role),
			DisplayName: p.Name,
		},
		SessionID: p.SessionID,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result
}

// Refresh exchanges a refresh token for a new access token.
//
// The new access token carries the role embedded in the refresh token. With
// rotation enabled the refresh token is replaced as well and the presented
// one stops working; presenting it again fails with ErrRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if !e.ready() {
		return RefreshResult{}, ErrEngineNotReady
	}

	res := e.flow.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		return RefreshResult{
			AccessToken:     res.AccessToken,
			RefreshToken:    res.RefreshToken,
			AccessExpiresAt: res.AccessExpiresAt,
		}, nil
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		return RefreshResult{}, ErrRefreshRateLimited
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricRefreshFailure)
		if e.config.Security.EnableReplayTracking {
			e.metricInc(MetricReplayDetected)
		}
		e.logger.Warn("refresh token reuse detected", "session_id", res.SessionID, "user_id", res.UserID)
		return RefreshResult{}, ErrRevoked
	}

	e.metricInc(MetricRefreshFailure)
	switch res.Failure {
	case flows.RefreshFailureExpired:
		return RefreshResult{}, ErrExpired
	case flows.RefreshFailureRevoked:
		return RefreshResult{}, ErrRevoked
	case flows.RefreshFailureBackend:
		return RefreshResult{}, backendError(res.Err)
	case flows.RefreshFailureNextSecret, flows.RefreshFailureIssueAccess, flows.RefreshFailureIssueRefresh:
		return RefreshResult{}, errors.Join(ErrSessionCreationFailed, res.Err)
	default:
		return RefreshResult{}, ErrMalformed
	}
}

// Logout deletes the session record. The paired refresh token stops working
// immediately; access tokens stop working immediately only in strict mode.
// Deleting a session that does not exist is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrMalformed
	}
	if err := e.flow.Logout(ctx, sessionID); err != nil {
		return backendError(err)
	}
	e.metricInc(MetricLogout)
	return nil
}

// LogoutByAccessToken resolves the session from a signed access token and deletes it.
func (e *Engine) LogoutByAccessToken(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	_, err := e.flow.LogoutByAccessToken(ctx, token)
	switch {
	case err == nil:
	case flows.IsTokenError(err) && errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case flows.IsTokenError(err):
		return ErrMalformed
	default:
		return backendError(err)
	}
	e.metricInc(MetricLogout)
	return nil
}

// Health pings Redis and reports the live session count.
func (e *Engine) Health(ctx context.Context) (HealthStatus, error) {
	if !e.ready() {
		return HealthStatus{}, ErrEngineNotReady
	}
	status, err := e.flow.Health(ctx)
	out := HealthStatus{
		RedisAvailable: status.RedisAvailable,
		RedisLatency:   status.RedisLatency,
		ActiveSessions: status.ActiveSessions,
	}
	if err != nil {
		return out, backendError(err)
	}
	return out, nil
}
