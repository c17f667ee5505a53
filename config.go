package campusauth

import (
	"errors"
	"strings"
	"time"
)

// Config is the full engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	Password       PasswordConfig
	Security       SecurityConfig
	Metrics        MetricsConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token lifetimes and signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration // clock skew allowed on iat/nbf only, never on exp
	MaxFutureIAT  time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session records that back refresh tokens.
type SessionConfig struct {
	RedisPrefix string
	// ReplayWindow is how long refresh reuse anomalies are counted per session.
	ReplayWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the registration length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// MetricsConfig toggles the in-process counters behind [Engine.MetricsSnapshot].
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds throttling and refresh-token policy.
type SecurityConfig struct {
	ProductionMode          bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration

	// EnableRefreshRotation replaces the refresh token on every refresh. Off,
	// a refresh token stays valid until its session is deleted or expires.
	EnableRefreshRotation bool
	// RevokeSessionOnReuse deletes the session when a superseded refresh
	// token is presented, which also kills the successor token held by the
	// legitimate client. Only meaningful with rotation enabled.
	RevokeSessionOnReuse bool
	EnableReplayTracking bool
}

// ValidationMode selects how much work [Engine.Validate] does per request.
type ValidationMode int

const (
	// ModeInherit defers to the engine-wide ValidationMode. Route-level only.
	ModeInherit ValidationMode = -1

	// ModeJWTOnly checks signature and expiry only. No Redis round trip.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict additionally requires the session record to exist, which makes
	// logout revoke access tokens immediately.
	ModeStrict
)

// RouteMode is the per-route override mode for Engine.Validate.
// It reuses the ValidationMode constants.
type RouteMode = ValidationMode

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			MaxFutureIAT:  time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:  "ca",
			ReplayWindow: time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      6,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableIPThrottle:        true,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
			EnableRefreshRotation:   false,
			RevokeSessionOnReuse:    false,
			EnableReplayTracking:    true,
		},
		ValidationMode: ModeJWTOnly,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// rule is one configuration constraint; broken reports a violation.
type rule struct {
	broken bool
	msg    string
}

// Validate reports every invalid or unsafe setting in c, joined.
func (c *Config) Validate() error {
	j, sess, pw, sec := c.JWT, c.Session, c.Password, c.Security
	prod := sec.ProductionMode

	rules := []rule{
		{j.AccessTTL <= 0, "jwt: AccessTTL must be > 0"},
		{j.RefreshTTL <= j.AccessTTL, "jwt: RefreshTTL must exceed AccessTTL"},
		{j.Leeway < 0 || j.Leeway > 2*time.Minute, "jwt: Leeway must be within [0, 2m]"},
		{j.MaxFutureIAT < 0, "jwt: MaxFutureIAT must be >= 0"},
		{j.Issuer != "" && strings.TrimSpace(j.Issuer) == "", "jwt: Issuer must not be blank"},
		{len(j.PrivateKey) == 0, "jwt: PrivateKey is required"},

		{strings.TrimSpace(sess.RedisPrefix) == "", "session: RedisPrefix must not be empty"},
		{sec.EnableReplayTracking && sess.ReplayWindow <= 0, "session: ReplayWindow must be > 0 with replay tracking"},

		{pw.Memory < 8*1024, "password: Memory must be >= 8192 KiB"},
		{prod && pw.Memory < 64*1024, "password: Memory must be >= 65536 KiB in production"},
		{pw.Time < 1, "password: Time must be >= 1"},
		{pw.Parallelism < 1, "password: Parallelism must be >= 1"},
		{pw.SaltLength < 16, "password: SaltLength must be >= 16"},
		{pw.KeyLength < 16, "password: KeyLength must be >= 16"},
		{pw.MinLength < 1, "password: MinLength must be >= 1"},
		{pw.MaxLength < pw.MinLength, "password: MaxLength must be >= MinLength"},

		{sec.MaxLoginAttempts <= 0, "security: MaxLoginAttempts must be > 0"},
		{sec.LoginCooldownDuration <= 0, "security: LoginCooldownDuration must be > 0"},
		{sec.EnableRefreshThrottle && sec.MaxRefreshAttempts <= 0, "security: MaxRefreshAttempts must be > 0 with refresh throttle"},
		{sec.EnableRefreshThrottle && sec.RefreshCooldownDuration <= 0, "security: RefreshCooldownDuration must be > 0 with refresh throttle"},

		{c.ValidationMode != ModeJWTOnly && c.ValidationMode != ModeStrict, "ValidationMode must be ModeJWTOnly or ModeStrict"},
	}

	switch j.SigningMethod {
	case "ed25519":
		rules = append(rules, rule{len(j.PublicKey) == 0, "jwt: ed25519 requires PublicKey"})
	case "hs256":
		rules = append(rules, rule{prod && len(j.PrivateKey) < 32, "jwt: hs256 PrivateKey must be >= 32 bytes in production"})
	default:
		rules = append(rules, rule{true, "jwt: unsupported SigningMethod " + j.SigningMethod})
	}

	var errs []error
	for _, r := range rules {
		if r.broken {
			errs = append(errs, errors.New(r.msg))
		}
	}
	return errors.Join(errs...)
}
