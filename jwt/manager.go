package jwt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// SigningMethod selects the JWT algorithm used for both token types.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over per-purpose keys derived from one secret.
	MethodHS256 SigningMethod = "hs256"
)

const (
	// AudienceAccess is the aud claim carried by access tokens.
	AudienceAccess = "campusauth:access"
	// AudienceRefresh is the aud claim carried by refresh tokens.
	AudienceRefresh = "campusauth:refresh"

	// TypeAccess is the typ header of access tokens.
	TypeAccess = "at+jwt"
	// TypeRefresh is the typ header of refresh tokens.
	TypeRefresh = "rt+jwt"
)

var (
	// ErrTokenMalformed covers every signature, shape, type, audience and issuer failure.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned for a correctly signed token past its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// Config defines signing and validation parameters for the [Manager].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration // applies to iat and nbf; exp is always exact
	MaxFutureIAT  time.Duration
	KeyID         string

	// Now overrides the clock used for minting and expiry checks.
	Now func() time.Time
}

// Principal is the identity a token is bound to.
type Principal struct {
	UserID    string
	Email     string
	Name      string
	Role      string
	SessionID string
}

// Claims is the payload shared by access and refresh tokens. The two are
// told apart by audience and typ header, never by payload shape.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

// Principal returns the identity carried by the claims.
func (c *Claims) Principal() Principal {
	return Principal{
		UserID:    c.RegisteredClaims.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		SessionID: c.SID,
	}
}

type purpose struct {
	audience string
	typ      string
	label    string
}

var (
	purposeAccess  = purpose{audience: AudienceAccess, typ: TypeAccess, label: "access"}
	purposeRefresh = purpose{audience: AudienceRefresh, typ: TypeRefresh, label: "refresh"}
)

// Manager mints and parses access and refresh tokens.
//
// Manager instances are intended to be configured during initialization and then treated as immutable.
type Manager struct {
	config Config

	accessKey  []byte
	refreshKey []byte
	edPrivate  ed25519.PrivateKey
	edPublic   ed25519.PublicKey
}

// NewManager validates cfg and prepares signing keys.
//
// Under HS256 the access and refresh keys are derived from PrivateKey with
// HKDF-SHA256, so a token of one kind never verifies as the other.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		var err error
		if m.accessKey, err = deriveKey(cfg.PrivateKey, purposeAccess.label); err != nil {
			return nil, err
		}
		if m.refreshKey, err = deriveKey(cfg.PrivateKey, purposeRefresh.label); err != nil {
			return nil, err
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.edPrivate = priv
			m.edPublic = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.edPublic = pub
		}
		if m.edPublic == nil {
			return nil, errors.New("ed25519 requires public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// AccessTTL reports the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess mints an access token for sub expiring AccessTTL from now.
func (j *Manager) CreateAccess(sub Principal) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.config.AccessTTL)
	token, err := j.sign(purposeAccess, sub, "", now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// CreateRefresh mints a refresh token for sub with the given jti. The
// expiry is supplied by the caller so rotated tokens keep the original
// absolute session lifetime.
func (j *Manager) CreateRefresh(sub Principal, tokenID string, expiresAt time.Time) (string, error) {
	if tokenID == "" {
		return "", errors.New("refresh token id required")
	}
	return j.sign(purposeRefresh, sub, tokenID, j.now(), expiresAt)
}

// ParseAccess verifies an access token. Errors wrap [ErrTokenMalformed] or
// [ErrTokenExpired]; signature is always checked before expiry.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, purposeAccess)
}

// ParseRefresh verifies a refresh token with the same rules as
// [Manager.ParseAccess] against the refresh audience and key.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr, purposeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrTokenMalformed)
	}
	return claims, nil
}

func (j *Manager) sign(p purpose, sub Principal, tokenID string, issuedAt, expiresAt time.Time) (string, error) {
	if sub.UserID == "" || sub.SessionID == "" {
		return "", errors.New("subject requires user and session id")
	}

	claims := Claims{
		Role:  sub.Role,
		Email: sub.Email,
		Name:  sub.Name,
		SID:   sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			Audience:  jwt.ClaimStrings{p.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    j.config.Issuer,
			ID:        tokenID,
		},
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	token.Header["typ"] = p.typ
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey(p)
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

func (j *Manager) parse(tokenStr string, p purpose) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if typ, _ := t.Header["typ"].(string); typ != p.typ {
			return nil, fmt.Errorf("unexpected token type %q", typ)
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.getVerifyKey(p)
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.RegisteredClaims.Subject == "" || claims.SID == "" {
		return nil, fmt.Errorf("%w: missing subject or session", ErrTokenMalformed)
	}
	// Leeway only relaxes iat and nbf. Expiry is exact.
	if !j.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: token is expired", ErrTokenExpired)
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenMalformed)
		}
	}

	return claims, nil
}

// classify folds library errors into the two outcomes callers act on. A
// token is only reported as expired when nothing but its lifetime is wrong.
func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenInvalidAudience) &&
		!errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
		!errors.Is(err, jwt.ErrTokenUsedBeforeIssued) {
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
}

func (j *Manager) now() time.Time {
	if j.config.Now != nil {
		return j.config.Now()
	}
	return time.Now()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey(p purpose) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.hmacKey(p), nil
	default:
		if j.edPrivate == nil {
			return nil, errors.New("ed25519 private key not configured")
		}
		return j.edPrivate, nil
	}
}

func (j *Manager) getVerifyKey(p purpose) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.hmacKey(p), nil
	default:
		return j.edPublic, nil
	}
}

func (j *Manager) hmacKey(p purpose) []byte {
	if p == purposeRefresh {
		return j.refreshKey
	}
	return j.accessKey
}

func deriveKey(secret []byte, label string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("campusauth/jwt/"+label))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", label, err)
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
