package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

var idEncoding = base64.RawURLEncoding

// NewSessionID returns 128 random bits as unpadded base64url. It is the Redis
// key suffix of a session and the sid claim of both tokens.
func NewSessionID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return idEncoding.EncodeToString(raw[:]), nil
}

// NewRefreshSecret draws the per-session secret carried in the refresh
// token's jti. Only its hash is persisted.
func NewRefreshSecret() ([32]byte, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, fmt.Errorf("refresh secret: %w", err)
	}
	return secret, nil
}

// HashRefreshSecret is the value stored in the session and compared on refresh.
func HashRefreshSecret(secret [32]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshID renders a refresh secret as the jti claim of a refresh token.
func EncodeRefreshID(secret [32]byte) string {
	return idEncoding.EncodeToString(secret[:])
}

// DecodeRefreshID recovers the refresh secret from a jti claim. Only the
// canonical encoding of exactly 32 bytes is accepted.
func DecodeRefreshID(jti string) ([32]byte, error) {
	var secret [32]byte
	raw, err := idEncoding.Strict().DecodeString(jti)
	if err != nil {
		return secret, fmt.Errorf("refresh id: %w", err)
	}
	if len(raw) != len(secret) || idEncoding.EncodeToString(raw) != jti {
		return secret, fmt.Errorf("refresh id: want %d canonical bytes", len(secret))
	}
	copy(secret[:], raw)
	return secret, nil
}
