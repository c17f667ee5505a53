package flows

import (
	"context"
	"errors"
	"strings"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	User  LoginUserRecord
	Issue IssueResult
}

// LoginUserRecord is a flow-local user model used by the login flow.
type LoginUserRecord struct {
	UserID       string
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady        error
	InvalidCredentials    error
	LoginRateLimited      error
	UserNotFound          error
	BackendUnavailable    error
	SessionCreationFailed error
	LimiterRateLimited    error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error

	GetUserByEmail     func(context.Context, string) (LoginUserRecord, error)
	UpdatePasswordHash func(context.Context, string, string) error

	VerifyPassword       func(string, string) (bool, error)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)
	// DummyHash is verified against when the account does not exist so an
	// unknown email costs the same as a wrong password.
	DummyHash string

	IssueTokens func(context.Context, LoginUserRecord) IssueResult

	MetricInc func(int)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Errors  LoginErrors
}

// RunLogin checks throttling, verifies the password and issues a token pair.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			if deps.Errors.LimiterRateLimited != nil && errors.Is(err, deps.Errors.LimiterRateLimited) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				return nil, deps.Errors.LoginRateLimited
			}
			deps.Warn("login limiter unavailable, continuing unthrottled", "error", err)
		}
	}

	failed := func() error {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, email, ip); err != nil {
				if deps.Errors.LimiterRateLimited != nil && errors.Is(err, deps.Errors.LimiterRateLimited) {
					deps.MetricInc(deps.Metrics.LoginRateLimited)
					return deps.Errors.LoginRateLimited
				}
				deps.Warn("login limiter unavailable, failure not recorded", "error", err)
			}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		return deps.Errors.InvalidCredentials
	}

	if email == "" || password == "" {
		return nil, failed()
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.Errors.UserNotFound != nil && !errors.Is(err, deps.Errors.UserNotFound) {
			return nil, errors.Join(deps.Errors.BackendUnavailable, err)
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		return nil, failed()
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, failed()
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					deps.Warn("password hash upgrade update failed", "user_id", user.UserID)
				}
			} else {
				deps.Warn("password hash upgrade generation failed", "user_id", user.UserID)
			}
		}
	}

	issued := deps.IssueTokens(ctx, user)
	if issued.Failure != IssueFailureNone {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, errors.Join(deps.Errors.SessionCreationFailed, issued.Err)
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Warn("login limiter reset failed", "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	return &LoginResult{User: user, Issue: issued}, nil
}
