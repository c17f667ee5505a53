package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// DefaultMinPasswordBytes matches the registration rule of the campus portal.
	DefaultMinPasswordBytes = 6
	// DefaultMaxPasswordBytes bounds the work an attacker can force per hash.
	DefaultMaxPasswordBytes = 1024

	phcPrefix = "$argon2id$"
)

// Lower bounds for both configuration and stored hashes. A stored hash below
// them is treated as corrupt rather than verified cheaply.
var floor = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLength: 16}

const minSaltLength = 16

var (
	// ErrPasswordTooShort is returned by Hash when the password is below MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned when the password exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrInvalidHash is returned for a stored hash that cannot be parsed or
	// falls below the accepted cost floor.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Params are the Argon2id cost settings recorded in every hash.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

func (p Params) below(min Params) string {
	switch {
	case p.Memory < min.Memory:
		return fmt.Sprintf("memory must be >= %d KiB", min.Memory)
	case p.Time < min.Time:
		return fmt.Sprintf("time must be >= %d", min.Time)
	case p.Parallelism < min.Parallelism:
		return fmt.Sprintf("parallelism must be >= %d", min.Parallelism)
	case p.KeyLength < min.KeyLength:
		return fmt.Sprintf("key length must be >= %d", min.KeyLength)
	}
	return ""
}

// Config holds Argon2id cost parameters and the accepted password length range.
//
// Zero MinPasswordBytes and MaxPasswordBytes select the package defaults.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

func (c Config) params() Params {
	return Params{Memory: c.Memory, Time: c.Time, Parallelism: c.Parallelism, KeyLength: c.KeyLength}
}

// Argon2 hashes and verifies passwords as PHC strings. It is immutable and
// safe for concurrent use.
type Argon2 struct {
	params     Params
	saltLength uint32
	minBytes   int
	maxBytes   int
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MinPasswordBytes == 0 {
		cfg.MinPasswordBytes = DefaultMinPasswordBytes
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}

	if msg := cfg.params().below(floor); msg != "" {
		return nil, errors.New("password " + msg)
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("password salt length must be >= %d", minSaltLength)
	}
	if cfg.MinPasswordBytes < 1 {
		return nil, errors.New("password minimum length must be >= 1")
	}
	if cfg.MaxPasswordBytes < cfg.MinPasswordBytes {
		return nil, errors.New("password maximum length must be >= minimum length")
	}

	return &Argon2{
		params:     cfg.params(),
		saltLength: cfg.SaltLength,
		minBytes:   cfg.MinPasswordBytes,
		maxBytes:   cfg.MaxPasswordBytes,
	}, nil
}

// MinPasswordBytes reports the effective minimum length enforced by Hash.
func (a *Argon2) MinPasswordBytes() int {
	return a.minBytes
}

// Hash derives a fresh salted Argon2id hash of password. Bytes are hashed
// as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < a.minBytes {
		return "", fmt.Errorf("%w: must be at least %d bytes", ErrPasswordTooShort, a.minBytes)
	}
	if len(password) > a.maxBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := derive(password, salt, a.params)
	return encode(a.params, salt, key), nil
}

// Verify reports whether password matches encoded in constant time. An
// error means the stored hash itself is unusable.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.maxBytes {
		return false, ErrPasswordTooLong
	}

	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(derive(password, salt, p), key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration, or a different key length.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, _, _, err := decode(encoded)
	if err != nil {
		return false, err
	}
	weaker := p.below(a.params) != ""
	return weaker || p.KeyLength != a.params.KeyLength, nil
}

func derive(password string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
}

// encode renders $argon2id$v=19$m=<mem>,t=<time>,p=<par>$<salt>$<key>.
func encode(p Params, salt, key []byte) string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, p.Memory, p.Time, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key))
}

func decode(encoded string) (Params, []byte, []byte, error) {
	invalid := func(reason string) (Params, []byte, []byte, error) {
		return Params{}, nil, nil, fmt.Errorf("%w: %s", ErrInvalidHash, reason)
	}

	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return invalid("not an argon2id PHC string")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return invalid("wrong number of fields")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return invalid("missing version")
	}
	if version != argon2.Version {
		return invalid(fmt.Sprintf("unsupported version %d", version))
	}

	var (
		p   Params
		par uint32
	)
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &par)
	if err != nil || n != 3 || par > 255 || fields[1] != fmt.Sprintf("m=%d,t=%d,p=%d", p.Memory, p.Time, par) {
		return invalid("malformed parameters")
	}
	p.Parallelism = uint8(par)

	salt, err := decodeB64(fields[2])
	if err != nil || len(salt) < minSaltLength {
		return invalid("bad salt")
	}
	key, err := decodeB64(fields[3])
	if err != nil || len(key) == 0 {
		return invalid("bad key")
	}
	p.KeyLength = uint32(len(key))

	if msg := p.below(floor); msg != "" {
		return invalid(msg)
	}
	return p, salt, key, nil
}

// decodeB64 accepts both the unpadded PHC encoding and the padded form
// written by earlier releases.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
