package campusauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusauth/internal"
	"github.com/MrEthical07/campusauth/internal/flows"
	"github.com/MrEthical07/campusauth/internal/rate"
	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/password"
	"github.com/MrEthical07/campusauth/session"
)

// initFlowDeps wires the flow runners once at build time.
func (e *Engine) initFlowDeps() {
	cfg := e.config

	issue := flows.IssueDeps{
		Now:               e.now,
		RefreshTTL:        cfg.JWT.RefreshTTL,
		NewSessionID:      internal.NewSessionID,
		NewRefreshSecret:  internal.NewRefreshSecret,
		HashRefreshSecret: internal.HashRefreshSecret,
		EncodeRefreshID:   internal.EncodeRefreshID,
		CreateAccess:      e.jwtManager.CreateAccess,
		CreateRefresh:     e.jwtManager.CreateRefresh,
		SessionStore:      e.sessionStore,
	}

	deps := flows.Deps{
		Issue: issue,
		Refresh: flows.RefreshDeps{
			ParseRefresh:         e.jwtManager.ParseRefresh,
			DecodeRefreshID:      internal.DecodeRefreshID,
			NewRefreshSecret:     internal.NewRefreshSecret,
			HashRefreshSecret:    internal.HashRefreshSecret,
			EncodeRefreshID:      internal.EncodeRefreshID,
			CreateAccess:         e.jwtManager.CreateAccess,
			CreateRefresh:        e.jwtManager.CreateRefresh,
			Rotate:               cfg.Security.EnableRefreshRotation,
			RevokeOnReuse:        cfg.Security.RevokeSessionOnReuse,
			EnableReplayTracking: cfg.Security.EnableReplayTracking,
			ReplayWindow:         cfg.Session.ReplayWindow,
			RateLimiter:          e.rateLimiter,
			SessionStore:         e.sessionStore,
			Warn:                 e.logger.Warn,
			TokenExpired:         jwt.ErrTokenExpired,
			RateLimited:          rate.ErrRateLimited,
			RedisUnavailable:     session.ErrRedisUnavailable,
			RefreshMismatch:      session.ErrRefreshHashMismatch,
		},
		Validate: flows.ValidateDeps{
			ParseAccess:      e.jwtManager.ParseAccess,
			SessionStore:     e.sessionStore,
			TokenExpired:     jwt.ErrTokenExpired,
			RedisUnavailable: session.ErrRedisUnavailable,
		},
		Logout: flows.LogoutDeps{
			ParseAccess:  e.jwtManager.ParseAccess,
			SessionStore: e.sessionStore,
		},
		Login: flows.LoginDeps{
			PasswordUpgradeOnLogin: cfg.Password.UpgradeOnLogin,
			ClientIPFromContext:    ClientIP,
			CheckLoginRate:         e.rateLimiter.CheckLogin,
			IncrementLoginRate:     e.rateLimiter.IncrementLogin,
			ResetLoginRate:         e.rateLimiter.ResetLogin,
			GetUserByEmail: func(ctx context.Context, email string) (flows.LoginUserRecord, error) {
				user, err := e.credentials.GetUserByEmail(ctx, email)
				if err != nil {
					return flows.LoginUserRecord{}, err
				}
				return toFlowLoginUser(user), nil
			},
			UpdatePasswordHash:   e.credentials.UpdatePasswordHash,
			VerifyPassword:       e.passwordHash.Verify,
			PasswordNeedsUpgrade: e.passwordHash.NeedsUpgrade,
			HashPassword:         e.passwordHash.Hash,
			DummyHash:            e.dummyHash,
			IssueTokens: func(ctx context.Context, user flows.LoginUserRecord) flows.IssueResult {
				res := flows.RunIssue(ctx, flows.IssueSubject{
					UserID:      user.UserID,
					Email:       user.Email,
					DisplayName: user.DisplayName,
					Role:        user.Role,
				}, issue)
				if res.Failure == flows.IssueFailureNone {
					e.metricInc(MetricSessionCreated)
				} else {
					e.metricInc(MetricSessionCreateFailure)
				}
				return res
			},
			MetricInc: e.flowMetricInc,
			Warn:      e.logger.Warn,
			Metrics: flows.LoginMetrics{
				LoginSuccess:     int(MetricLoginSuccess),
				LoginFailure:     int(MetricLoginFailure),
				LoginRateLimited: int(MetricLoginRateLimited),
			},
			Errors: flows.LoginErrors{
				EngineNotReady:        ErrEngineNotReady,
				InvalidCredentials:    ErrInvalidCredentials,
				LoginRateLimited:      ErrLoginRateLimited,
				UserNotFound:          ErrUserNotFound,
				BackendUnavailable:    ErrBackendUnavailable,
				SessionCreationFailed: ErrSessionCreationFailed,
				LimiterRateLimited:    rate.ErrRateLimited,
			},
		},
		Account: flows.AccountDeps{
			DefaultRole:  string(RoleStudent),
			RoleExists:   func(r string) bool { return Role(r).Valid() },
			ValidEmail:   ValidEmail,
			HashPassword: e.passwordHash.Hash,
			CreateUser: func(ctx context.Context, in flows.AccountCreateUserInput) (flows.AccountUserRecord, error) {
				user, err := e.credentials.CreateUser(ctx, CreateUserInput{
					Email:        in.Email,
					DisplayName:  in.DisplayName,
					Role:         Role(in.Role),
					PasswordHash: in.PasswordHash,
				})
				if err != nil {
					return flows.AccountUserRecord{}, err
				}
				return flows.AccountUserRecord{
					UserID:      user.ID,
					Email:       user.Email,
					DisplayName: user.DisplayName,
					Role:        string(user.Role),
				}, nil
			},
			MetricInc: e.flowMetricInc,
			Metrics: flows.AccountMetrics{
				AccountCreationSuccess:   int(MetricAccountCreationSuccess),
				AccountCreationDuplicate: int(MetricAccountCreationDuplicate),
				AccountCreationInvalid:   int(MetricAccountCreationInvalid),
			},
			Errors: flows.AccountErrors{
				EngineNotReady:              ErrEngineNotReady,
				AccountCreationInvalid:      ErrAccountInvalid,
				AccountCreationUnavailable:  ErrBackendUnavailable,
				AccountRoleInvalid:          ErrRoleInvalid,
				PasswordPolicy:              ErrPasswordPolicy,
				AccountExists:               ErrAccountExists,
				ProviderDuplicateIdentifier: ErrDuplicateEmail,
				PasswordTooShort:            password.ErrPasswordTooShort,
				PasswordTooLong:             password.ErrPasswordTooLong,
			},
		},
		Introspection: flows.IntrospectionDeps{
			SessionStore:      e.sessionStore,
			EngineNotReadyErr: ErrEngineNotReady,
		},
	}

	e.flow = flows.New(deps)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

// resolveRouteMode maps a route override onto the mode to enforce.
// ModeInherit takes the engine default.
func (e *Engine) resolveRouteMode(routeMode RouteMode) (ValidationMode, error) {
	if routeMode == ModeInherit {
		routeMode = e.config.ValidationMode
	}
	switch routeMode {
	case ModeJWTOnly, ModeStrict:
		return routeMode, nil
	}
	return 0, ErrInvalidRouteMode
}

func toFlowLoginUser(user UserRecord) flows.LoginUserRecord {
	return flows.LoginUserRecord{
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Role:         string(user.Role),
		PasswordHash: user.PasswordHash,
	}
}

// backendError folds store-level outage sentinels into ErrBackendUnavailable.
func backendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrRedisUnavailable) || errors.Is(err, rate.ErrRedisUnavailable) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return err
}
