package password

import (
	"errors"
	"strings"
	"testing"
)

func mustHasher(t *testing.T, mutate func(*Config)) *Argon2 {
	t.Helper()
	cfg := Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func mustHash(t *testing.T, h *Argon2, pw string) string {
	t.Helper()
	encoded, err := h.Hash(pw)
	if err != nil {
		t.Fatalf("Hash(%q): %v", pw, err)
	}
	return encoded
}

func TestRoundTrip(t *testing.T) {
	h := mustHasher(t, nil)
	encoded := mustHash(t, h, "campus-Pass-42")

	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if strings.Count(encoded, "$") != 5 {
		t.Fatalf("expected five separators in %q", encoded)
	}

	for _, tc := range []struct {
		pw   string
		want bool
	}{
		{"campus-Pass-42", true},
		{"campus-pass-42", false},
		{"", false},
	} {
		ok, err := h.Verify(tc.pw, encoded)
		if err != nil {
			t.Fatalf("Verify(%q): %v", tc.pw, err)
		}
		if ok != tc.want {
			t.Fatalf("Verify(%q) = %v, want %v", tc.pw, ok, tc.want)
		}
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := mustHasher(t, nil)
	if mustHash(t, h, "same-input") == mustHash(t, h, "same-input") {
		t.Fatal("two hashes of one password must differ")
	}
}

func TestVerifyAcceptsPaddedEncoding(t *testing.T) {
	h := mustHasher(t, nil)
	encoded := mustHash(t, h, "legacy-pass")
	parts := strings.Split(encoded, "$")
	// 16-byte salt and 32-byte key both need padding in StdEncoding.
	parts[4] += "=="
	parts[5] += "="
	ok, err := h.Verify("legacy-pass", strings.Join(parts, "$"))
	if err != nil || !ok {
		t.Fatalf("padded hash: ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsUnusableHashes(t *testing.T) {
	h := mustHasher(t, nil)
	good := mustHash(t, h, "corrupt-me")

	cases := map[string]string{
		"not phc":       "not-a-phc-hash",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"old version":   strings.Replace(good, "$v=19$", "$v=16$", 1),
		"extra field":   good + "$extra",
		"spaced params": strings.Replace(good, "m=65536,", "m=65536, ", 1),
		"weak memory":   strings.Replace(good, "m=65536", "m=1024", 1),
		"zero time":     strings.Replace(good, "t=3", "t=0", 1),
		"bad salt":      strings.Replace(good, "$argon2id$v=19$m=65536,t=3,p=2$", "$argon2id$v=19$m=65536,t=3,p=2$!!", 1),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := h.Verify("corrupt-me", encoded)
			if !errors.Is(err, ErrInvalidHash) {
				t.Fatalf("expected ErrInvalidHash, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	current := mustHasher(t, nil)

	cases := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"same", nil, false},
		{"less memory", func(c *Config) { c.Memory = 32 * 1024 }, true},
		{"fewer passes", func(c *Config) { c.Time = 2 }, true},
		{"fewer lanes", func(c *Config) { c.Parallelism = 1 }, true},
		{"longer key", func(c *Config) { c.KeyLength = 64 }, true},
		{"stronger", func(c *Config) { c.Time = 4 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := mustHash(t, mustHasher(t, tc.mutate), "upgrade-me")
			got, err := current.NeedsUpgrade(encoded)
			if err != nil {
				t.Fatalf("NeedsUpgrade: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := current.NeedsUpgrade("garbage"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for garbage, got %v", err)
	}
}

func TestLengthBounds(t *testing.T) {
	h := mustHasher(t, func(c *Config) { c.MaxPasswordBytes = 64 })
	if h.MinPasswordBytes() != DefaultMinPasswordBytes {
		t.Fatalf("MinPasswordBytes = %d, want %d", h.MinPasswordBytes(), DefaultMinPasswordBytes)
	}

	for _, pw := range []string{"", "five5"} {
		if _, err := h.Hash(pw); !errors.Is(err, ErrPasswordTooShort) {
			t.Fatalf("Hash(%q): expected ErrPasswordTooShort, got %v", pw, err)
		}
	}
	mustHash(t, h, "sixsix")

	atMax := strings.Repeat("m", 64)
	encoded := mustHash(t, h, atMax)
	if ok, err := h.Verify(atMax, encoded); err != nil || !ok {
		t.Fatalf("Verify at max length: ok=%v err=%v", ok, err)
	}

	overMax := atMax + "x"
	if _, err := h.Hash(overMax); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Hash over max: expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := h.Verify(overMax, encoded); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Verify over max: expected ErrPasswordTooLong, got %v", err)
	}
}

func TestDefaultMaxApplied(t *testing.T) {
	h := mustHasher(t, nil)
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong above default max, got %v", err)
	}
	mustHash(t, h, strings.Repeat("d", DefaultMaxPasswordBytes))
}

func TestCustomMinimum(t *testing.T) {
	h := mustHasher(t, func(c *Config) { c.MinPasswordBytes = 12 })
	if h.MinPasswordBytes() != 12 {
		t.Fatalf("MinPasswordBytes = %d", h.MinPasswordBytes())
	}
	if _, err := h.Hash("eleven-char"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	base := Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
	cases := map[string]func(*Config){
		"memory":         func(c *Config) { c.Memory = 4096 },
		"time":           func(c *Config) { c.Time = 0 },
		"parallelism":    func(c *Config) { c.Parallelism = 0 },
		"salt":           func(c *Config) { c.SaltLength = 8 },
		"key":            func(c *Config) { c.KeyLength = 8 },
		"negative min":   func(c *Config) { c.MinPasswordBytes = -1 },
		"inverted range": func(c *Config) { c.MinPasswordBytes = 32; c.MaxPasswordBytes = 16 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if _, err := NewArgon2(cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}
