package campusauth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is the umbrella for every rejected token. Callers that
	// only need an allow/deny answer should test with errors.Is against it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformed covers bad signatures, wrong token type and unparsable input.
	ErrMalformed = fmt.Errorf("%w: token malformed", ErrUnauthorized)
	// ErrExpired is returned for a correctly signed token past its exp claim.
	ErrExpired = fmt.Errorf("%w: token expired", ErrUnauthorized)
	// ErrRevoked is returned when the backing session is gone or superseded.
	ErrRevoked = fmt.Errorf("%w: token revoked", ErrUnauthorized)

	// ErrIdentityInvalid is returned by Issue for an identity missing an id, a valid email or a valid role.
	ErrIdentityInvalid = errors.New("identity invalid")
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by a CredentialStore lookup that matches nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by a CredentialStore when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrAccountExists is returned by Register for an email that is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountInvalid is returned by Register for a malformed email.
	ErrAccountInvalid = errors.New("invalid account request")
	// ErrRoleInvalid is returned for a role outside student, faculty and admin.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrPasswordPolicy is returned by Register for a password outside the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrLoginRateLimited is returned once the per-email or per-IP login budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned once the per-session refresh budget is spent.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrBackendUnavailable is returned when Redis or the credential store cannot be reached.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrSessionCreationFailed is returned when a session record or its tokens could not be produced.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidRouteMode is returned by Validate for an unknown RouteMode.
	ErrInvalidRouteMode = errors.New("invalid route validation mode")
)
