package session

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is the leading byte of every encoded session.
const CurrentSchemaVersion = 2

// Fixed header offsets. The rotation script reads expiresAt and the refresh
// hash at these positions without decoding the strings that follow.
const (
	offExpiresAt   = 1
	offCreatedAt   = offExpiresAt + 8
	offRefreshHash = offCreatedAt + 8
	headerLen      = offRefreshHash + 32
)

const maxFieldLen = 255

var errTruncated = errors.New("session blob truncated")

// Encode serializes s into the binary layout stored in Redis:
//
//	version | expiresAt | createdAt | refreshHash[32] | len+userID | len+email | len+displayName | len+role
//
// Timestamps are big-endian unix seconds. SessionID is the Redis key and is
// not encoded.
func Encode(s *Session) ([]byte, error) {
	fields := [...]string{s.UserID, s.Email, s.DisplayName, s.Role}
	size := headerLen
	for i, f := range fields {
		if len(f) > maxFieldLen {
			return nil, fmt.Errorf("session field %d exceeds %d bytes", i, maxFieldLen)
		}
		size += 1 + len(f)
	}

	out := make([]byte, 0, size)
	out = append(out, CurrentSchemaVersion)
	out = binary.BigEndian.AppendUint64(out, uint64(s.ExpiresAt))
	out = binary.BigEndian.AppendUint64(out, uint64(s.CreatedAt))
	out = append(out, s.RefreshHash[:]...)
	for _, f := range fields {
		out = append(out, byte(len(f)))
		out = append(out, f...)
	}
	return out, nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Session, error) {
	if len(data) == 0 {
		return nil, errTruncated
	}
	if data[0] != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", data[0])
	}
	if len(data) < headerLen {
		return nil, errTruncated
	}

	s := &Session{
		ExpiresAt: int64(binary.BigEndian.Uint64(data[offExpiresAt:])),
		CreatedAt: int64(binary.BigEndian.Uint64(data[offCreatedAt:])),
	}
	copy(s.RefreshHash[:], data[offRefreshHash:headerLen])

	rest := data[headerLen:]
	for _, dst := range []*string{&s.UserID, &s.Email, &s.DisplayName, &s.Role} {
		if len(rest) == 0 || len(rest) < 1+int(rest[0]) {
			return nil, errTruncated
		}
		n := int(rest[0])
		*dst = string(rest[1 : 1+n])
		rest = rest[1+n:]
	}
	if len(rest) != 0 {
		return nil, errors.New("trailing bytes after session")
	}
	return s, nil
}
