package flows

import (
	"context"
	"errors"
	"strings"
)

type AccountCreateRequest struct {
	Email       string
	Password    string
	Role        string
	DisplayName string
}

type AccountUserRecord struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
}

type AccountCreateUserInput struct {
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
}

type AccountMetrics struct {
	AccountCreationSuccess   int
	AccountCreationDuplicate int
	AccountCreationInvalid   int
}

type AccountErrors struct {
	EngineNotReady              error
	AccountCreationInvalid      error
	AccountCreationUnavailable  error
	AccountRoleInvalid          error
	PasswordPolicy              error
	AccountExists               error
	ProviderDuplicateIdentifier error
	PasswordTooShort            error
	PasswordTooLong             error
}

type AccountDeps struct {
	DefaultRole string
	RoleExists  func(string) bool
	ValidEmail  func(string) bool

	HashPassword func(string) (string, error)
	CreateUser   func(context.Context, AccountCreateUserInput) (AccountUserRecord, error)

	MetricInc func(int)

	Metrics AccountMetrics
	Errors  AccountErrors
}

// RunCreateAccount validates a registration request, hashes the password and
// stores the account. It does not log the new user in.
func RunCreateAccount(ctx context.Context, req AccountCreateRequest, deps AccountDeps) (*AccountUserRecord, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.HashPassword == nil || deps.CreateUser == nil || deps.RoleExists == nil || deps.ValidEmail == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !deps.ValidEmail(email) {
		deps.MetricInc(deps.Metrics.AccountCreationInvalid)
		return nil, deps.Errors.AccountCreationInvalid
	}

	role := req.Role
	if role == "" {
		role = deps.DefaultRole
	}
	if !deps.RoleExists(role) {
		deps.MetricInc(deps.Metrics.AccountCreationInvalid)
		return nil, deps.Errors.AccountRoleInvalid
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		if (deps.Errors.PasswordTooShort != nil && errors.Is(err, deps.Errors.PasswordTooShort)) ||
			(deps.Errors.PasswordTooLong != nil && errors.Is(err, deps.Errors.PasswordTooLong)) {
			deps.MetricInc(deps.Metrics.AccountCreationInvalid)
			return nil, errors.Join(deps.Errors.PasswordPolicy, err)
		}
		return nil, errors.Join(deps.Errors.AccountCreationUnavailable, err)
	}

	user, err := deps.CreateUser(ctx, AccountCreateUserInput{
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if deps.Errors.ProviderDuplicateIdentifier != nil && errors.Is(err, deps.Errors.ProviderDuplicateIdentifier) {
			deps.MetricInc(deps.Metrics.AccountCreationDuplicate)
			return nil, deps.Errors.AccountExists
		}
		return nil, errors.Join(deps.Errors.AccountCreationUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.AccountCreationSuccess)
	return &user, nil
}
