package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/middleware"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// writeError maps an engine error to its status. This is the only place that
// decides which error text reaches a caller.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	switch {
	case errors.Is(err, campusauth.ErrUnauthorized):
		middleware.Unauthorized(w)
	case errors.Is(err, campusauth.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, campusauth.ErrAccountExists), errors.Is(err, campusauth.ErrDuplicateEmail):
		writeMessage(w, http.StatusConflict, "account already exists")
	case errors.Is(err, campusauth.ErrRoleInvalid):
		writeMessage(w, http.StatusBadRequest, "invalid role")
	case errors.Is(err, campusauth.ErrPasswordPolicy):
		writeMessage(w, http.StatusBadRequest, "password does not meet policy")
	case errors.Is(err, campusauth.ErrAccountInvalid), errors.Is(err, campusauth.ErrIdentityInvalid):
		writeMessage(w, http.StatusBadRequest, "invalid email")
	case errors.Is(err, campusauth.ErrLoginRateLimited), errors.Is(err, campusauth.ErrRefreshRateLimited):
		w.Header().Set("Retry-After", "60")
		writeMessage(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, campusauth.ErrBackendUnavailable):
		logger.Warn("auth backend unavailable", "path", r.URL.Path, "request_id", requestID(r), "error", err)
		writeMessage(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		logger.Error("request failed", "path", r.URL.Path, "request_id", requestID(r), "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a JSON request body into v. It reports false after
// writing the 400 or 413 itself.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
