package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/stretchr/testify/require"
)

// pathHits counts requests per URL path.
type pathHits struct {
	mu     sync.Mutex
	byPath map[string]int
}

func (h *pathHits) hit(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byPath == nil {
		h.byPath = map[string]int{}
	}
	h.byPath[path]++
}

func (h *pathHits) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byPath[path]
}

// counting wraps next so every dispatch is recorded in h.
func (h *pathHits) counting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hit(r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// fakeAPI mimics the campusauth HTTP surface with opaque tokens.
type fakeAPI struct {
	pathHits

	mu           sync.Mutex
	access       map[string]bool
	refresh      map[string]bool
	seq          int
	rotate       bool
	refreshCode  int
	refreshHook  func()
	rejectHook   func()
	refreshCalls atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{access: map[string]bool{}, refresh: map[string]bool{}}
}

func (f *fakeAPI) grant(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if access != "" {
		f.access[access] = true
	}
	if refresh != "" {
		f.refresh[refresh] = true
	}
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access[token]
}

func writeEnv(w http.ResponseWriter, status int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status < 300,
		"data":    data,
		"message": msg,
	})
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hit(r.URL.Path)
	switch r.URL.Path {
	case "/api/auth/login":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ada@campus.edu" || body["password"] != "secret1" {
			writeEnv(w, http.StatusUnauthorized, nil, "invalid credentials")
			return
		}
		f.grant("a1", "r1")
		writeEnv(w, http.StatusOK, map[string]string{"accessToken": "a1", "refreshToken": "r1"}, "")

	case "/api/auth/refresh":
		f.refreshCalls.Add(1)
		if f.refreshHook != nil {
			f.refreshHook()
		}
		if f.refreshCode != 0 {
			writeEnv(w, f.refreshCode, nil, "refresh failed")
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		if !f.refresh[body["refreshToken"]] {
			f.mu.Unlock()
			if f.rejectHook != nil {
				f.rejectHook()
			}
			writeEnv(w, http.StatusUnauthorized, nil, "unauthorized")
			return
		}
		f.seq++
		out := map[string]string{"accessToken": fmt.Sprintf("a%d", f.seq+1)}
		f.access[out["accessToken"]] = true
		if f.rotate {
			delete(f.refresh, body["refreshToken"])
			out["refreshToken"] = fmt.Sprintf("r%d", f.seq+1)
			f.refresh[out["refreshToken"]] = true
		}
		f.mu.Unlock()
		writeEnv(w, http.StatusOK, out, "")

	case "/api/auth/logout":
		writeEnv(w, http.StatusOK, nil, "")

	case "/api/auth/me", "/api/data":
		if !f.authorized(r) {
			writeEnv(w, http.StatusUnauthorized, nil, "unauthorized")
			return
		}
		writeEnv(w, http.StatusOK, campusauth.Identity{ID: "u1", Email: "ada@campus.edu", Role: campusauth.RoleStudent}, "")

	case "/api/always401":
		writeEnv(w, http.StatusUnauthorized, nil, "unauthorized")

	case "/api/slow":
		select {
		case <-time.After(2 * time.Second):
			writeEnv(w, http.StatusOK, nil, "")
		case <-r.Context().Done():
		}

	default:
		writeEnv(w, http.StatusNotFound, nil, "not found")
	}
}

func newManager(t *testing.T, api http.Handler, store TokenStore, cfg Config) *Manager {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	m, err := New(cfg, store)
	require.NoError(t, err)
	return m
}

func TestCallAttachesAccessToken(t *testing.T) {
	api := newFakeAPI()
	api.grant("a1", "r1")
	m := newManager(t, api, NewMemoryStore(Session{AccessToken: "a1", RefreshToken: "r1"}), Config{})

	resp, err := m.Get(context.Background(), "/api/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Zero(t, api.refreshCalls.Load())
}

func TestCallRefreshesOnceAndReplays(t *testing.T) {
	api := newFakeAPI()
	api.grant("", "r1")
	store := NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "r1"})
	m := newManager(t, api, store, Config{})

	resp, err := m.Get(context.Background(), "/api/data")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.EqualValues(t, 1, api.refreshCalls.Load())
	require.Equal(t, 1, api.count(refreshPath))
	require.Equal(t, 2, api.count("/api/data"), "one dispatch plus exactly one replay")

	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "a2", stored.AccessToken)
	require.Equal(t, "r1", stored.RefreshToken, "refresh token kept without rotation")
	require.Equal(t, "a2", m.Session().AccessToken)
}

func TestRotatedRefreshTokenPersisted(t *testing.T) {
	api := newFakeAPI()
	api.rotate = true
	api.grant("", "r1")
	store := NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "r1"})
	m := newManager(t, api, store, Config{})

	_, err := m.Get(context.Background(), "/api/data")
	require.NoError(t, err)

	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "r2", stored.RefreshToken)
}

func TestRefreshRejectedClearsSession(t *testing.T) {
	api := newFakeAPI()
	store := NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "revoked"})
	m := newManager(t, api, store, Config{})

	_, err := m.Get(context.Background(), "/api/data")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.False(t, m.Authenticated())
	require.Nil(t, m.Session())
	require.Equal(t, 1, api.count("/api/data"), "a rejected refresh is never replayed")

	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Session{}, stored)
}

func TestNoRefreshTokenIsUnauthorized(t *testing.T) {
	api := newFakeAPI()
	m := newManager(t, api, NewMemoryStore(Session{}), Config{})

	_, err := m.Get(context.Background(), "/api/data")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Zero(t, api.refreshCalls.Load())
}

func TestReplayUnauthorizedIsFinal(t *testing.T) {
	api := newFakeAPI()
	api.grant("a1", "r1")
	m := newManager(t, api, NewMemoryStore(Session{AccessToken: "a1", RefreshToken: "r1"}), Config{})

	resp, err := m.Get(context.Background(), "/api/always401")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.EqualValues(t, 1, api.refreshCalls.Load())
	require.True(t, m.Authenticated(), "a 401 on replay does not end the session")
}

func TestTimeoutDoesNotRefresh(t *testing.T) {
	api := newFakeAPI()
	api.grant("a1", "r1")
	m := newManager(t, api, NewMemoryStore(Session{AccessToken: "a1", RefreshToken: "r1"}), Config{Timeout: 50 * time.Millisecond})

	_, err := m.Get(context.Background(), "/api/slow")
	require.Error(t, err)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected a timeout, got %v", err)
	require.NotErrorIs(t, err, ErrUnauthorized)

	require.Zero(t, api.refreshCalls.Load())
	require.True(t, m.Authenticated())
}

func TestCallerDeadlineDoesNotRefresh(t *testing.T) {
	api := newFakeAPI()
	api.grant("a1", "r1")
	m := newManager(t, api, NewMemoryStore(Session{AccessToken: "a1", RefreshToken: "r1"}), Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.Get(ctx, "/api/slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Zero(t, api.refreshCalls.Load())
	require.True(t, m.Authenticated())
}

func TestRefreshServerErrorKeepsSession(t *testing.T) {
	api := newFakeAPI()
	api.refreshCode = http.StatusServiceUnavailable
	m := newManager(t, api, NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "r1"}), Config{})

	_, err := m.Get(context.Background(), "/api/data")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.True(t, m.Authenticated())
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	api := newFakeAPI()
	api.grant("", "r1")
	started := make(chan struct{})
	release := make(chan struct{})
	api.refreshHook = func() {
		close(started)
		<-release
	}
	store := NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "r1"})
	m := newManager(t, api, store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := m.Get(ctx, "/api/data")
		done <- result{resp, err}
	}()

	<-started
	cancel()
	close(release)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, http.StatusOK, res.resp.Status)

	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "a2", stored.AccessToken)
}

func TestLogoutDuringRefreshIsNotUndone(t *testing.T) {
	api := newFakeAPI()
	api.grant("", "r1")
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api.refreshHook = func() {
		once.Do(func() { close(started) })
		<-release
	}
	store := NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "r1"})
	m := newManager(t, api, store, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Get(context.Background(), "/api/data")
		done <- err
	}()

	<-started
	require.NoError(t, m.Logout(context.Background()))
	close(release)
	require.ErrorIs(t, <-done, ErrUnauthorized)
	require.Equal(t, 1, api.count("/api/data"), "no authenticated request after logout")

	require.Nil(t, m.Session())
	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Session{}, stored)
}

func TestRotationRaceLoserIsUnauthorized(t *testing.T) {
	api := newFakeAPI()
	api.rotate = true
	api.grant("", "r1")

	// Both refreshes reach the server before either is answered.
	var arrived sync.WaitGroup
	arrived.Add(2)
	api.refreshHook = func() {
		arrived.Done()
		arrived.Wait()
	}

	// The loser answers only after the winner stored r2 and replayed.
	replayed := make(chan struct{})
	var replayOnce sync.Once
	api.rejectHook = func() {
		select {
		case <-replayed:
		case <-time.After(5 * time.Second):
		}
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.ServeHTTP(w, r)
		if r.URL.Path == "/api/data" && r.Header.Get("Authorization") == "Bearer a2" {
			replayOnce.Do(func() { close(replayed) })
		}
	})

	store := NewMemoryStore(Session{AccessToken: "a1", RefreshToken: "r1"})
	m := newManager(t, handler, store, Config{})

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			resp, err := m.Get(context.Background(), "/api/data")
			if err == nil && resp.Status != http.StatusOK {
				err = fmt.Errorf("status %d", resp.Status)
			}
			errs <- err
		}()
	}

	var ok, unauthorized int
	for range 2 {
		switch err := <-errs; {
		case err == nil:
			ok++
		case errors.Is(err, ErrUnauthorized):
			unauthorized++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, unauthorized)
	require.EqualValues(t, 2, api.refreshCalls.Load())
	require.Equal(t, 3, api.count("/api/data"), "only the winner replays")

	// The winner's rotated session survives the loser's rejection.
	require.True(t, m.Authenticated())
	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "r2", stored.RefreshToken)
}

func TestConcurrentCallsAllRecover(t *testing.T) {
	api := newFakeAPI()
	api.grant("", "r1")
	m := newManager(t, api, NewMemoryStore(Session{AccessToken: "stale", RefreshToken: "r1"}), Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := m.Get(context.Background(), "/api/data")
			if err == nil && resp.Status != http.StatusOK {
				err = fmt.Errorf("status %d", resp.Status)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, api.refreshCalls.Load(), int32(16))
	require.True(t, m.Authenticated())
}

func TestLoginStoresTokensAndIdentity(t *testing.T) {
	api := newFakeAPI()
	store := NewMemoryStore(Session{})
	m := newManager(t, api, store, Config{})

	id, err := m.Login(context.Background(), "ada@campus.edu", "secret1")
	require.NoError(t, err)
	require.Equal(t, "u1", id.ID)
	require.True(t, m.Authenticated())

	require.True(t, m.CanAccess(""))
	require.True(t, m.CanAccess(campusauth.RoleStudent))
	require.False(t, m.CanAccess(campusauth.RoleAdmin))

	stored, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "a1", stored.AccessToken)
	require.Equal(t, "r1", stored.RefreshToken)
	require.NotNil(t, stored.Identity)
	require.Equal(t, campusauth.RoleStudent, stored.Identity.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	api := newFakeAPI()
	m := newManager(t, api, NewMemoryStore(Session{}), Config{})

	_, err := m.Login(context.Background(), "ada@campus.edu", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.False(t, m.Authenticated())
	require.False(t, m.CanAccess(campusauth.RoleStudent))
	require.Zero(t, api.refreshCalls.Load())
}

func TestRestoreRequiresBothTokens(t *testing.T) {
	api := newFakeAPI()
	path := filepath.Join(t.TempDir(), "session.json")
	fs := NewFileStore(path)
	require.NoError(t, fs.Save(Session{AccessToken: "a1"}))

	m := newManager(t, api, fs, Config{})
	require.False(t, m.Authenticated())
	require.Nil(t, m.Session())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "half-populated session file should be removed")

	require.NoError(t, fs.Save(Session{AccessToken: "a1", RefreshToken: "r1"}))
	m = newManager(t, api, fs, Config{})
	require.True(t, m.Authenticated())
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, NewMemoryStore(Session{}))
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	require.Error(t, err)
}

func TestResponseDecode(t *testing.T) {
	ok := &Response{Status: 200, Body: []byte(`{"success":true,"data":{"id":"u1"}}`)}
	var id campusauth.Identity
	require.NoError(t, ok.Decode(&id))
	require.Equal(t, "u1", id.ID)

	failed := &Response{Status: 200, Body: []byte(`{"success":false,"message":"nope"}`)}
	var apiErr *APIError
	require.ErrorAs(t, failed.Decode(nil), &apiErr)
	require.Equal(t, "nope", apiErr.Message)

	forbidden := &Response{Status: 403, Body: []byte(`{"success":false,"message":"forbidden"}`)}
	require.ErrorAs(t, forbidden.Decode(nil), &apiErr)
	require.Equal(t, 403, apiErr.Status)
}
