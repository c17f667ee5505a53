package api

import (
	"net/http"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/middleware"
	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine, campusauth.ModeInherit))

			r.Get("/me", s.handleMe)
			r.Post("/logout", s.handleLogout)

			r.With(middleware.RequireRole(campusauth.RoleAdmin)).Get("/users", s.handleListUsers)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
