package config

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/stretchr/testify/require"
)

const testSecret = "config-test-secret-0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campusauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9090"
  cors_origins: ["https://portal.campus.edu"]
  rate_limit:
    enabled: true
    requests_per_second: 2.5
    burst: 4
redis:
  addr: "redis:6379"
  db: 2
database:
  path: "/var/lib/campusauth/users.db"
logging:
  level: debug
  format: text
auth:
  secret: "`+testSecret+`"
  access_ttl: 5m
  refresh_ttl: 48h
  validation_mode: strict
  refresh_rotation: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	require.Equal(t, []string{"https://portal.campus.edu"}, cfg.Server.CORSOrigins)
	require.Equal(t, 2.5, cfg.Server.RateLimit.RequestsPerSecond)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	require.Equal(t, 48*time.Hour, cfg.Auth.RefreshTTL)
	// Unset keys keep their defaults.
	require.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, "ca", cfg.Redis.Prefix)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	require.Equal(t, campusauth.ModeStrict, ec.ValidationMode)
	require.True(t, ec.Security.EnableRefreshRotation)
	require.Equal(t, 5*time.Minute, ec.JWT.AccessTTL)
	require.Equal(t, []byte(testSecret), ec.JWT.PrivateKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	require.ErrorContains(t, err, "parsing config file")
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load("")
	require.ErrorContains(t, err, "auth.secret is required")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMPUSAUTH_JWT_SECRET", testSecret)
	t.Setenv("CAMPUSAUTH_REDIS_ADDR", "cache:6380")
	t.Setenv("CAMPUSAUTH_REDIS_DB", "3")
	t.Setenv("CAMPUSAUTH_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("CAMPUSAUTH_AUTH_REFRESH_ROTATION", "true")
	t.Setenv("CAMPUSAUTH_LOG_LEVEL", "warn")

	path := writeConfig(t, "redis:\n  addr: \"file:6379\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "cache:6380", cfg.Redis.Addr)
	require.Equal(t, 3, cfg.Redis.DB)
	require.Equal(t, "/tmp/override.db", cfg.Database.Path)
	require.True(t, cfg.Auth.RefreshRotation)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvOverrideRejectsBadNumber(t *testing.T) {
	t.Setenv("CAMPUSAUTH_JWT_SECRET", testSecret)
	t.Setenv("CAMPUSAUTH_REDIS_DB", "two")

	_, err := Load("")
	require.ErrorContains(t, err, "CAMPUSAUTH_REDIS_DB")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, "at least 32"},
		{"bad signing method", func(c *Config) { c.Auth.SigningMethod = "rs256" }, "signing_method"},
		{"ed25519 without keys", func(c *Config) { c.Auth.SigningMethod = "ed25519" }, "private_key_file"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad validation mode", func(c *Config) { c.Auth.ValidationMode = "paranoid" }, "validation_mode"},
		{"empty database path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"rate limit without burst", func(c *Config) { c.Server.RateLimit.Burst = 0 }, "rate_limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Auth.Secret = testSecret
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestEngineConfigEd25519ReadsPEM(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	cfg := defaultConfig()
	cfg.Auth.SigningMethod = "ed25519"
	cfg.Auth.PrivateKeyFile = privPath
	cfg.Auth.PublicKeyFile = pubPath
	require.NoError(t, cfg.Validate())

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	require.Equal(t, "ed25519", ec.JWT.SigningMethod)
	require.NotEmpty(t, ec.JWT.PrivateKey)
}
