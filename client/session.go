package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/MrEthical07/campusauth"
)

// RegisterInput is the body of a registration. Role is optional; anything
// other than student needs an admin session.
type RegisterInput struct {
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	Role        campusauth.Role `json:"role,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
}

// Login authenticates, stores both tokens and then records the identity
// from /me. If the profile fetch fails the manager stays logged in and the
// error is returned.
func (m *Manager) Login(ctx context.Context, email, password string) (*campusauth.Identity, error) {
	body, err := encodeBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	// Login bypasses Call: a 401 here means bad credentials, not a stale token.
	resp, err := m.send(ctx, &Request{Method: http.MethodPost, Path: "/api/auth/login"}, body, "")
	if err != nil {
		return nil, err
	}

	var pair campusauth.TokenPair
	if err := resp.Decode(&pair); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, errors.New("client: login response missing tokens")
	}

	m.mu.Lock()
	m.storeLocked(Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	m.mu.Unlock()

	id, err := m.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: fetch profile: %w", err)
	}
	return id, nil
}

// Register creates an account. The current session, if any, is attached so
// an admin can create faculty and admin accounts.
func (m *Manager) Register(ctx context.Context, in RegisterInput) error {
	resp, err := m.Post(ctx, "/api/auth/register", in)
	if err != nil {
		return err
	}
	return resp.Decode(nil)
}

// Me fetches the current identity and records it in the session.
func (m *Manager) Me(ctx context.Context) (*campusauth.Identity, error) {
	resp, err := m.Get(ctx, "/api/auth/me")
	if err != nil {
		return nil, err
	}

	var id campusauth.Identity
	if err := resp.Decode(&id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if cur := m.session.Load(); cur != nil {
		next := cloneSession(*cur)
		snapshot := id
		next.Identity = &snapshot
		m.storeLocked(next)
	}
	m.mu.Unlock()

	return &id, nil
}

// Logout tells the server to end the session and clears local state even
// when the server call fails.
func (m *Manager) Logout(ctx context.Context) error {
	if m.session.Load() == nil {
		m.clear()
		return nil
	}

	resp, err := m.Post(ctx, "/api/auth/logout", nil)
	m.clear()

	switch {
	case errors.Is(err, ErrUnauthorized):
		return nil
	case err != nil:
		return err
	case resp.Status == http.StatusUnauthorized:
		return nil
	}
	return resp.Decode(nil)
}

// ListUsers returns accounts with role, or everyone for an empty role.
// The server only answers admins.
func (m *Manager) ListUsers(ctx context.Context, role campusauth.Role) ([]campusauth.Identity, error) {
	req := &Request{Method: http.MethodGet, Path: "/api/auth/users"}
	if role != "" {
		req.Query = url.Values{"role": {string(role)}}
	}
	resp, err := m.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	var users []campusauth.Identity
	if err := resp.Decode(&users); err != nil {
		return nil, err
	}
	return users, nil
}

// Session returns a copy of the current session, or nil when logged out.
func (m *Manager) Session() *Session {
	cur := m.session.Load()
	if cur == nil {
		return nil
	}
	s := cloneSession(*cur)
	return &s
}

// Identity returns the last recorded identity, or nil.
func (m *Manager) Identity() *campusauth.Identity {
	s := m.Session()
	if s == nil {
		return nil
	}
	return s.Identity
}

// Authenticated reports whether both tokens are held.
func (m *Manager) Authenticated() bool {
	cur := m.session.Load()
	return cur != nil && cur.complete()
}

// CanAccess applies the role gate to the recorded identity. It is advisory;
// the server enforces roles itself.
func (m *Manager) CanAccess(required campusauth.Role) bool {
	return campusauth.CanAccess(m.Identity(), required)
}
