package campusauth

import (
	"context"
	"regexp"
	"time"
)

// Role is the flat authorization tier carried by every identity and token.
// There is no hierarchy between roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	default:
		return false
	}
}

// Roles lists every known role in a stable order.
func Roles() []Role {
	return []Role{RoleStudent, RoleFaculty, RoleAdmin}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Identity is a registered user as seen by the rest of the application.
//
// Identity is created at registration and is immutable except for Role.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
}

func (i Identity) validForIssue() bool {
	return i.ID != "" && ValidEmail(i.Email) && i.Role.Valid()
}

// TokenPair is returned by [Engine.Issue] and [Engine.Login].
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	SessionID        string    `json:"-"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// AuthResult is returned by [Engine.Verify] and [Engine.Validate] for a token
// that passed every check.
type AuthResult struct {
	Identity  Identity
	SessionID string
	ExpiresAt time.Time
}

// RefreshResult carries a renewed access token. RefreshToken is empty unless
// the engine rotated the refresh token.
type RefreshResult struct {
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken,omitempty"`
	AccessExpiresAt time.Time `json:"-"`
}

// RegisterRequest is the input to [Engine.Register]. Empty Role selects the
// student role; empty DisplayName falls back to the local part of Email.
type RegisterRequest struct {
	Email       string
	Password    string
	Role        Role
	DisplayName string
}

// UserRecord is a stored account including its password hash.
type UserRecord struct {
	ID           string
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Identity strips the credential from the record.
func (u UserRecord) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role, DisplayName: u.DisplayName}
}

// CreateUserInput is handed to [CredentialStore.CreateUser] with the password
// already hashed.
type CreateUserInput struct {
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
}

// CredentialStore is the account persistence the engine authenticates against.
//
// Lookups that match nothing return [ErrUserNotFound]; CreateUser returns
// [ErrDuplicateEmail] for an email that is already registered. Any other
// error is treated as a backend outage.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	ListUsersByRole(ctx context.Context, role Role) ([]UserRecord, error)
}

// HealthStatus is reported by [Engine.Health].
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	ActiveSessions int
}
