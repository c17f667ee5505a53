// Package config loads the campusauthd daemon configuration from YAML with
// CAMPUSAUTH_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/campusauth"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string          `yaml:"addr"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes"`
	CORSOrigins     []string        `yaml:"cors_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is the per-IP token bucket applied to /api/auth.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// RedisConfig locates the session store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig locates the SQLite account database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig is the subset of engine settings exposed to operators.
type AuthConfig struct {
	SigningMethod      string        `yaml:"signing_method"`
	Secret             string        `yaml:"secret"`
	PrivateKeyFile     string        `yaml:"private_key_file"`
	PublicKeyFile      string        `yaml:"public_key_file"`
	Issuer             string        `yaml:"issuer"`
	AccessTTL          time.Duration `yaml:"access_ttl"`
	RefreshTTL         time.Duration `yaml:"refresh_ttl"`
	ValidationMode     string        `yaml:"validation_mode"`
	RefreshRotation    bool          `yaml:"refresh_rotation"`
	ProductionMode     bool          `yaml:"production_mode"`
	MaxLoginAttempts   int           `yaml:"max_login_attempts"`
	LoginCooldown      time.Duration `yaml:"login_cooldown"`
	PasswordMinLength  int           `yaml:"password_min_length"`
	PasswordMemoryKiB  uint32        `yaml:"password_memory_kib"`
	PasswordIterations uint32        `yaml:"password_iterations"`
}

// Load reads path (an empty path uses defaults only), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "ca",
		},
		Database: DatabaseConfig{
			Path: "./data/campusauth.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			SigningMethod:      "hs256",
			Issuer:             "campusauth",
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         7 * 24 * time.Hour,
			ValidationMode:     "jwt-only",
			MaxLoginAttempts:   5,
			LoginCooldown:      15 * time.Minute,
			PasswordMinLength:  6,
			PasswordMemoryKiB:  64 * 1024,
			PasswordIterations: 3,
		},
	}
}

// applyEnvOverrides applies CAMPUSAUTH_SECTION_KEY variables.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CAMPUSAUTH_SERVER_ADDR":          &cfg.Server.Addr,
		"CAMPUSAUTH_REDIS_ADDR":           &cfg.Redis.Addr,
		"CAMPUSAUTH_REDIS_USERNAME":       &cfg.Redis.Username,
		"CAMPUSAUTH_REDIS_PASSWORD":       &cfg.Redis.Password,
		"CAMPUSAUTH_REDIS_PREFIX":         &cfg.Redis.Prefix,
		"CAMPUSAUTH_DATABASE_PATH":        &cfg.Database.Path,
		"CAMPUSAUTH_LOG_LEVEL":            &cfg.Logging.Level,
		"CAMPUSAUTH_LOG_FORMAT":           &cfg.Logging.Format,
		"CAMPUSAUTH_JWT_SIGNING_METHOD":   &cfg.Auth.SigningMethod,
		"CAMPUSAUTH_JWT_SECRET":           &cfg.Auth.Secret,
		"CAMPUSAUTH_JWT_PRIVATE_KEY":      &cfg.Auth.PrivateKeyFile,
		"CAMPUSAUTH_JWT_PUBLIC_KEY":       &cfg.Auth.PublicKeyFile,
		"CAMPUSAUTH_AUTH_VALIDATION_MODE": &cfg.Auth.ValidationMode,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("CAMPUSAUTH_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAMPUSAUTH_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	if v := os.Getenv("CAMPUSAUTH_AUTH_REFRESH_ROTATION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CAMPUSAUTH_AUTH_REFRESH_ROTATION: %w", err)
		}
		cfg.Auth.RefreshRotation = b
	}
	if v := os.Getenv("CAMPUSAUTH_AUTH_PRODUCTION_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CAMPUSAUTH_AUTH_PRODUCTION_MODE: %w", err)
		}
		cfg.Auth.ProductionMode = b
	}
	return nil
}

// Validate checks the daemon-level settings. Engine settings are checked
// again by [campusauth.Config.Validate] when the engine is built.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.max_body_bytes must be > 0")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerSecond <= 0 || c.Server.RateLimit.Burst <= 0) {
		errs = append(errs, "server.rate_limit requires requests_per_second and burst > 0")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, "database.path is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	switch strings.ToLower(c.Auth.SigningMethod) {
	case "hs256":
		if c.Auth.Secret == "" {
			errs = append(errs, "auth.secret is required for hs256 (set CAMPUSAUTH_JWT_SECRET)")
		} else if len(c.Auth.Secret) < 32 {
			errs = append(errs, "auth.secret must be at least 32 characters")
		}
	case "ed25519":
		if c.Auth.PrivateKeyFile == "" || c.Auth.PublicKeyFile == "" {
			errs = append(errs, "auth.private_key_file and auth.public_key_file are required for ed25519")
		}
	default:
		errs = append(errs, "auth.signing_method must be hs256 or ed25519")
	}
	if _, err := parseValidationMode(c.Auth.ValidationMode); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseValidationMode(s string) (campusauth.ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jwt-only", "jwt_only":
		return campusauth.ModeJWTOnly, nil
	case "strict":
		return campusauth.ModeStrict, nil
	}
	return 0, fmt.Errorf("auth.validation_mode %q must be jwt-only or strict", s)
}

// EngineConfig maps the auth section onto the engine defaults, reading key
// files for ed25519.
func (c *Config) EngineConfig() (campusauth.Config, error) {
	ec := campusauth.DefaultConfig()

	ec.JWT.SigningMethod = strings.ToLower(c.Auth.SigningMethod)
	ec.JWT.Issuer = c.Auth.Issuer
	ec.JWT.AccessTTL = c.Auth.AccessTTL
	ec.JWT.RefreshTTL = c.Auth.RefreshTTL

	switch ec.JWT.SigningMethod {
	case "hs256":
		ec.JWT.PrivateKey = []byte(c.Auth.Secret)
	case "ed25519":
		priv, err := os.ReadFile(c.Auth.PrivateKeyFile)
		if err != nil {
			return campusauth.Config{}, fmt.Errorf("reading private key: %w", err)
		}
		pub, err := os.ReadFile(c.Auth.PublicKeyFile)
		if err != nil {
			return campusauth.Config{}, fmt.Errorf("reading public key: %w", err)
		}
		ec.JWT.PrivateKey = priv
		ec.JWT.PublicKey = pub
	}

	mode, err := parseValidationMode(c.Auth.ValidationMode)
	if err != nil {
		return campusauth.Config{}, err
	}
	ec.ValidationMode = mode

	ec.Session.RedisPrefix = c.Redis.Prefix
	ec.Security.ProductionMode = c.Auth.ProductionMode
	ec.Security.EnableRefreshRotation = c.Auth.RefreshRotation
	if c.Auth.MaxLoginAttempts > 0 {
		ec.Security.MaxLoginAttempts = c.Auth.MaxLoginAttempts
	}
	if c.Auth.LoginCooldown > 0 {
		ec.Security.LoginCooldownDuration = c.Auth.LoginCooldown
	}
	if c.Auth.PasswordMinLength > 0 {
		ec.Password.MinLength = c.Auth.PasswordMinLength
	}
	if c.Auth.PasswordMemoryKiB > 0 {
		ec.Password.Memory = c.Auth.PasswordMemoryKiB
	}
	if c.Auth.PasswordIterations > 0 {
		ec.Password.Time = c.Auth.PasswordIterations
	}

	if err := ec.Validate(); err != nil {
		return campusauth.Config{}, fmt.Errorf("engine config: %w", err)
	}
	return ec, nil
}
