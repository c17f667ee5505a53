package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/campusauth"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	maxResponseBytes      = 8 << 20

	refreshPath = "/api/auth/refresh"
)

// Config configures a Manager.
type Config struct {
	// BaseURL is the server root, for example http://127.0.0.1:8080.
	BaseURL string
	// Timeout bounds each dispatched request. Ignored when HTTPClient is set.
	Timeout time.Duration
	// RefreshTimeout bounds the refresh call and the replay that follows it.
	RefreshTimeout time.Duration
	HTTPClient     *http.Client
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for degraded paths such as a failed
// token store write.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager owns one user's session against the campusauth API. It attaches
// the access token to each call and, on a 401, performs at most one refresh
// followed by at most one replay.
//
// Manager is safe for concurrent use. Session writes are serialized; reads
// take an atomic snapshot.
type Manager struct {
	base           *url.URL
	http           *http.Client
	refreshTimeout time.Duration
	store          TokenStore
	logger         *slog.Logger

	mu      sync.Mutex
	session atomic.Pointer[Session]
}

// New builds a Manager and restores the stored session. A stored session
// missing either token is discarded and cleared from the store.
func New(cfg Config, store TokenStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("client: token store is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	m := &Manager{
		base:           base,
		http:           hc,
		refreshTimeout: cfg.RefreshTimeout,
		store:          store,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	stored, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("client: restore session: %w", err)
	}
	switch {
	case stored.complete():
		m.session.Store(&stored)
	case !stored.empty():
		if err := store.Clear(); err != nil {
			return nil, fmt.Errorf("client: clear partial session: %w", err)
		}
	}
	return m, nil
}

// Request describes one API call. Body, when non-nil, is sent as JSON.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Response is a fully read API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (r *Response) envelope() (envelope, error) {
	var env envelope
	if len(r.Body) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return env, fmt.Errorf("client: decode response: %w", err)
	}
	return env, nil
}

// Decode unmarshals the envelope's data into v. A non-2xx status or a
// success:false body returns an *APIError.
func (r *Response) Decode(v any) error {
	env, err := r.envelope()
	if r.Status < 200 || r.Status > 299 || (err == nil && !env.Success) {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(r.Status)
		}
		return &APIError{Status: r.Status, Message: msg}
	}
	if err != nil {
		return err
	}
	if v == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("client: decode data: %w", err)
	}
	return nil
}

// Call dispatches req with the current access token and recovers from one
// 401 by refreshing and replaying.
//
// Transport errors and timeouts on the first dispatch are returned as is
// and never trigger a refresh. The refresh and replay run detached from
// ctx cancellation, bounded by Config.RefreshTimeout, so a token the server
// already rotated is always stored.
func (m *Manager) Call(ctx context.Context, req *Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	used := m.session.Load()
	resp, err := m.send(ctx, req, body, accessToken(used))
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return resp, nil
	}

	cur := m.session.Load()
	if cur == nil || cur.RefreshToken == "" {
		m.clear()
		return nil, ErrUnauthorized
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()

	// A concurrent call may already have refreshed; reuse its token.
	access := cur.AccessToken
	if used != nil && used.AccessToken == cur.AccessToken {
		access, err = m.refresh(detached, cur)
		if err != nil {
			return nil, err
		}
	}

	// The replay's answer is final, including a second 401.
	return m.send(detached, req, body, access)
}

// refresh exchanges s.RefreshToken for a new access token and stores the
// result only if s is still the current session.
func (m *Manager) refresh(ctx context.Context, s *Session) (string, error) {
	body, err := encodeBody(map[string]string{"refreshToken": s.RefreshToken})
	if err != nil {
		return "", err
	}

	resp, err := m.send(ctx, &Request{Method: http.MethodPost, Path: refreshPath}, body, "")
	if err != nil {
		return "", err
	}

	var out campusauth.RefreshResult
	derr := resp.Decode(&out)
	switch {
	case resp.Status >= 500 || resp.Status == http.StatusTooManyRequests:
		// The server could not answer; the refresh token may still be good.
		return "", derr
	case derr != nil || out.AccessToken == "":
		// Losing a rotation race still ends this call; the winner's
		// session is left in place for later calls.
		m.clearIfCurrent(s.RefreshToken)
		return "", ErrUnauthorized
	}

	if !m.persistRefreshed(s.RefreshToken, out.AccessToken, out.RefreshToken) {
		return "", ErrUnauthorized
	}
	return out.AccessToken, nil
}

// persistRefreshed is a compare-and-set on the refresh token: a logout or
// terminal clear that raced the refresh is never undone, and false tells
// the caller not to replay.
func (m *Manager) persistRefreshed(usedRefresh, access, rotated string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.session.Load()
	if cur == nil || cur.RefreshToken != usedRefresh {
		return false
	}

	next := cloneSession(*cur)
	next.AccessToken = access
	if rotated != "" {
		next.RefreshToken = rotated
	}
	m.storeLocked(next)
	return true
}

// storeLocked publishes s and writes it through. A failed write keeps the
// in-memory session so the process stays logged in.
func (m *Manager) storeLocked(s Session) {
	m.session.Store(&s)
	if err := m.store.Save(s); err != nil {
		m.logger.Warn("campusauth client: persist session failed", "error", err)
	}
}

func (m *Manager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Store(nil)
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("campusauth client: clear session failed", "error", err)
	}
}

// clearIfCurrent clears the session if it still holds usedRefresh. A
// session a concurrent refresh already replaced is left alone.
func (m *Manager) clearIfCurrent(usedRefresh string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.session.Load(); cur != nil && cur.RefreshToken != usedRefresh {
		return
	}
	m.session.Store(nil)
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("campusauth client: clear session failed", "error", err)
	}
}

func (m *Manager) send(ctx context.Context, req *Request, body []byte, access string) (*Response, error) {
	u := *m.base
	u.Path = m.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		hreq.Header.Set("Authorization", "Bearer "+access)
	}

	hresp, err := m.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	return &Response{Status: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("client: encode body: %w", err)
	}
	return b, nil
}

func accessToken(s *Session) string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// Get calls GET path.
func (m *Manager) Get(ctx context.Context, path string) (*Response, error) {
	return m.Call(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post calls POST path with a JSON body.
func (m *Manager) Post(ctx context.Context, path string, body any) (*Response, error) {
	return m.Call(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put calls PUT path with a JSON body.
func (m *Manager) Put(ctx context.Context, path string, body any) (*Response, error) {
	return m.Call(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete calls DELETE path.
func (m *Manager) Delete(ctx context.Context, path string) (*Response, error) {
	return m.Call(ctx, &Request{Method: http.MethodDelete, Path: path})
}
