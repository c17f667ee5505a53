package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/internal/api"
	"github.com/MrEthical07/campusauth/internal/config"
	"github.com/MrEthical07/campusauth/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stackClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stackClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stackClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newStack(t *testing.T) (*httptest.Server, *campusauth.Engine, *stackClock, *pathHits) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := campusauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("client-stack-secret-0123456789abc")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	clock := &stackClock{now: time.Now().Truncate(time.Second)}
	engine, err := campusauth.New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(db).WithClock(clock.Now).Build()
	require.NoError(t, err)

	srv, err := api.New(api.Deps{Config: config.ServerConfig{MaxBodyBytes: 1 << 16}, Engine: engine})
	require.NoError(t, err)

	hits := &pathHits{}
	ts := httptest.NewServer(hits.counting(srv.Handler()))
	t.Cleanup(ts.Close)
	return ts, engine, clock, hits
}

func TestManagerAgainstServer(t *testing.T) {
	ctx := context.Background()
	ts, engine, clock, hits := newStack(t)

	_, err := engine.Register(ctx, campusauth.RegisterRequest{Email: "ada@campus.edu", Password: "secret1", DisplayName: "Ada"})
	require.NoError(t, err)

	tokens := NewMemoryStore(Session{})
	m, err := New(Config{BaseURL: ts.URL}, tokens)
	require.NoError(t, err)

	id, err := m.Login(ctx, "ada@campus.edu", "secret1")
	require.NoError(t, err)
	require.Equal(t, "Ada", id.DisplayName)
	require.True(t, m.CanAccess(campusauth.RoleStudent))

	_, err = m.ListUsers(ctx, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)

	// Past access expiry the next call refreshes transparently.
	before := m.Session().AccessToken
	clock.Advance(20 * time.Minute)
	meBefore := hits.count("/api/auth/me")
	_, err = m.Me(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before, m.Session().AccessToken)
	require.Equal(t, 1, hits.count("/api/auth/refresh"))
	require.Equal(t, meBefore+2, hits.count("/api/auth/me"), "one dispatch plus exactly one replay")

	require.NoError(t, m.Logout(ctx))
	require.False(t, m.Authenticated())

	_, err = m.Me(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestManagerRefreshExpiredIsTerminal(t *testing.T) {
	ctx := context.Background()
	ts, engine, clock, hits := newStack(t)

	_, err := engine.Register(ctx, campusauth.RegisterRequest{Email: "ada@campus.edu", Password: "secret1"})
	require.NoError(t, err)

	tokens := NewMemoryStore(Session{})
	m, err := New(Config{BaseURL: ts.URL}, tokens)
	require.NoError(t, err)
	_, err = m.Login(ctx, "ada@campus.edu", "secret1")
	require.NoError(t, err)

	meBefore := hits.count("/api/auth/me")
	clock.Advance(8 * 24 * time.Hour)
	_, err = m.Me(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.False(t, m.Authenticated())
	require.Equal(t, 1, hits.count("/api/auth/refresh"))
	require.Equal(t, meBefore+1, hits.count("/api/auth/me"), "an expired refresh token is never replayed")

	stored, err := tokens.Load()
	require.NoError(t, err)
	require.Equal(t, Session{}, stored)
}
