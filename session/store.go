package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every transport-level Redis failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound means no live session exists under the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired means the stored session is past ExpiresAt.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionCorrupt means the stored blob does not decode.
	ErrSessionCorrupt = errors.New("session corrupt")
	// ErrRefreshHashMismatch means the presented refresh secret is not the
	// one currently stored.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
)

// Rotation script outcomes.
const (
	rotateNotFound int64 = iota
	rotateExpired
	rotateMismatch
	rotateOK
	rotateCorrupt
)

// luaDrop deletes a session key and keeps the live-session counter in step.
const luaDrop = `
local function drop(key, count_key)
  if redis.call("DEL", key) == 1 then
    if redis.call("DECR", count_key) <= 0 then
      redis.call("DEL", count_key)
    end
    return 1
  end
  return 0
end
`

var deleteLua = redis.NewScript(luaDrop + `return drop(KEYS[1], KEYS[2])`)

// rotateLua compares the presented refresh hash with the stored one and
// swaps in the next hash, keeping the remaining TTL. Header offsets come from
// encoder.go.
var rotateLua = redis.NewScript(luaDrop + fmt.Sprintf(`
local data = redis.call("GET", KEYS[1])
if not data then
  return {%[1]d}
end
if #data < %[6]d or string.byte(data, 1) ~= %[7]d then
  return {%[5]d}
end

local expires_at = 0
for i = %[8]d, %[8]d + 7 do
  expires_at = expires_at * 256 + string.byte(data, i)
end
if expires_at <= tonumber(ARGV[3]) then
  drop(KEYS[1], KEYS[2])
  return {%[2]d}
end

local hash_at = %[9]d
if string.sub(data, hash_at, hash_at + 31) ~= ARGV[1] then
  if ARGV[4] == "1" then
    drop(KEYS[1], KEYS[2])
  end
  return {%[3]d}
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  drop(KEYS[1], KEYS[2])
  return {%[2]d}
end

local updated = string.sub(data, 1, hash_at - 1) .. ARGV[2] .. string.sub(data, hash_at + 32)
redis.call("SET", KEYS[1], updated, "PX", ttl)
return {%[4]d, updated}
`, rotateNotFound, rotateExpired, rotateMismatch, rotateOK, rotateCorrupt,
	headerLen, CurrentSchemaVersion, offExpiresAt+1, offRefreshHash+1))

// Store is a Redis-backed session store with atomic refresh rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix namespaces every key. A nil now selects time.Now.
func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) countKey() string {
	return s.prefix + ":count"
}

func (s *Store) replayKey(sessionID string) string {
	return s.prefix + ":replay:" + sessionID
}

// Save persists sess until its ExpiresAt.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.Incr(ctx, s.countKey())
		return nil
	})
	if err != nil {
		return unavailable(err)
	}

	return nil
}

// Get loads a live session. Sessions past ExpiresAt are deleted and reported
// as ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	blob, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, unavailable(err)
	}

	sess, err := s.decode(sessionID, blob)
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt > s.now().Unix() {
		return sess, nil
	}
	if err := s.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	return nil, ErrSessionNotFound
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := deleteLua.Run(ctx, s.redis, []string{s.key(sessionID), s.countKey()}).Result()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ActiveSessionCount returns the tracked number of live sessions.
func (s *Store) ActiveSessionCount(ctx context.Context) (int, error) {
	n, err := s.redis.Get(ctx, s.countKey()).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	}
	return max(int(n), 0), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

// TrackReplayAnomaly counts refresh reuse attempts against a session id and
// returns the running total within ttl.
func (s *Store) TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	key := s.replayKey(sessionID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return count, nil
}

// RotateRefreshHash atomically replaces the refresh hash of a session when
// providedHash matches the stored one. On mismatch it returns
// ErrRefreshHashMismatch, deleting the session first if revokeOnMismatch is set.
func (s *Store) RotateRefreshHash(ctx context.Context, sessionID string, providedHash, nextHash [32]byte, revokeOnMismatch bool) (*Session, error) {
	revoke := "0"
	if revokeOnMismatch {
		revoke = "1"
	}
	keys := []string{s.key(sessionID), s.countKey()}
	reply, err := rotateLua.Run(ctx, s.redis, keys, providedHash[:], nextHash[:], s.now().Unix(), revoke).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(reply) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", ErrRedisUnavailable)
	}

	code, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: rotate reply %v", ErrRedisUnavailable, reply[0])
	}
	switch code {
	case rotateOK:
	case rotateNotFound:
		return nil, ErrSessionNotFound
	case rotateExpired:
		return nil, ErrSessionExpired
	case rotateMismatch:
		return nil, ErrRefreshHashMismatch
	case rotateCorrupt:
		return nil, ErrSessionCorrupt
	default:
		return nil, fmt.Errorf("%w: rotate reply %v", ErrRedisUnavailable, reply[0])
	}

	blob, ok := reply[len(reply)-1].(string)
	if len(reply) != 2 || !ok {
		return nil, fmt.Errorf("%w: rotate reply without session", ErrRedisUnavailable)
	}
	return s.decode(sessionID, []byte(blob))
}

func (s *Store) decode(sessionID string, blob []byte) (*Session, error) {
	sess, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID
	return sess, nil
}

func unavailable(err error) error {
	return unavailable(err)
}
