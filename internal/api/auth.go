package api

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/middleware"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	RedisLatencyMS int64  `json:"redisLatencyMs"`
	ActiveSessions int    `json:"activeSessions"`
}

// handleRegister creates an account. Anyone may register a student; any
// other role needs a bearer token belonging to an admin.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	role := campusauth.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role != "" && role != campusauth.RoleStudent {
		if !role.Valid() {
			writeMessage(w, http.StatusBadRequest, "invalid role")
			return
		}
		if !s.callerIsAdmin(r) {
			middleware.Forbidden(w)
			return
		}
	}

	id, err := s.engine.Register(r.Context(), campusauth.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}

	s.logger.Info("account registered", "user_id", id.ID, "role", id.Role, "request_id", requestID(r))
	writeData(w, http.StatusCreated, id)
}

func (s *Server) callerIsAdmin(r *http.Request) bool {
	token, ok := middleware.BearerToken(r)
	if !ok {
		return false
	}
	res, err := s.engine.Verify(r.Context(), token)
	if err != nil {
		return false
	}
	return campusauth.CanAccess(&res.Identity, campusauth.RoleAdmin)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := campusauth.WithClientIP(r.Context(), clientIP(r))
	pair, err := s.engine.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, pair)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		middleware.Unauthorized(w)
		return
	}

	id, err := s.engine.Me(r.Context(), res.Identity.ID)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, id)
}

// handleRefresh exchanges a refresh token for a new access token. Every
// rejection shares the guard's 401 body.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		middleware.Unauthorized(w)
		return
	}

	res, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		middleware.Unauthorized(w)
		return
	}

	if err := s.engine.Logout(r.Context(), res.SessionID); err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := campusauth.Role(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role"))))

	users, err := s.engine.ListUsers(r.Context(), role)
	if err != nil {
		writeError(w, s.logger, r, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Health(r.Context())
	body := healthResponse{
		Status:         "ok",
		Version:        s.version,
		RedisLatencyMS: status.RedisLatency.Milliseconds(),
		ActiveSessions: status.ActiveSessions,
	}
	if err != nil || !status.RedisAvailable {
		body.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Data: body, Message: "service unavailable"})
		return
	}
	writeData(w, http.StatusOK, body)
}
