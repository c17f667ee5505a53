package campusauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/campusauth/internal/flows"
)

// Register creates an account. It does not log the new user in.
//
// Role defaults to student. Whether the caller may request an elevated role
// is decided by the transport layer, not here.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}

	user, err := e.flow.CreateAccount(ctx, flows.AccountCreateRequest{
		Email:       req.Email,
		Password:    req.Password,
		Role:        string(req.Role),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			e.logger.Warn("account creation backend failure", "error", err)
		}
		return Identity{}, err
	}

	return Identity{
		ID:          user.UserID,
		Email:       user.Email,
		Role:        Role(user.Role),
		DisplayName: user.DisplayName,
	}, nil
}

// Login verifies credentials and issues a token pair.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
// Attempts are budgeted per email and per client IP (see WithClientIP).
func (e *Engine) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res, err := e.flow.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrSessionCreationFailed) {
			e.logger.Warn("login backend failure", "error", err)
		}
		return TokenPair{}, err
	}
	return tokenPairFromIssue(res.Issue), nil
}

// Me loads the current account record for userID. A deleted account is
// reported as ErrRevoked so callers treat it like any other dead session.
func (e *Engine) Me(ctx context.Context, userID string) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}

	user, err := e.credentials.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrRevoked
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return user.Identity(), nil
}

// ListUsers returns every account holding role. An empty role lists all accounts.
func (e *Engine) ListUsers(ctx context.Context, role Role) ([]Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if role != "" && !role.Valid() {
		return nil, ErrRoleInvalid
	}

	users, err := e.credentials.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]Identity, 0, len(users))
	for _, u := range users {
		out = append(out, u.Identity())
	}
	return out, nil
}
