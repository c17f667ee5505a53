package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/internal/config"
)

// Deps holds what the server needs.
type Deps struct {
	Config  config.ServerConfig
	Engine  *campusauth.Engine
	Metrics http.Handler // optional; /metrics answers 404 without it
	Logger  *slog.Logger
	Version string
}

// Server is the campusauth HTTP API.
type Server struct {
	cfg     config.ServerConfig
	engine  *campusauth.Engine
	metrics http.Handler
	logger  *slog.Logger
	version string
	limiter *ipLimiter

	handlerOnce sync.Once
	handler     http.Handler

	server   *http.Server
	listener net.Listener
}

// New validates deps. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.MaxBodyBytes <= 0 {
		deps.Config.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		cfg:     deps.Config,
		engine:  deps.Engine,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "api"),
		version: deps.Version,
	}
	if rl := deps.Config.RateLimit; rl.Enabled {
		s.limiter = newIPLimiter(rl.RequestsPerSecond, rl.Burst)
	}
	return s, nil
}

// Handler returns the routed handler, building it on first use.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.buildRouter()
	})
	return s.handler
}

// Start binds the listen address and serves in the background. Bind errors
// are returned directly.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close drains in-flight requests for up to the configured shutdown timeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
