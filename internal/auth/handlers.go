package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rdvm/jukebox/internal/repository"
)

// Routes registers the identity surface: initial-setup check, first-admin
// creation, login, and admin-only registration.
func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/check-init", s.handleCheckInit)
	mux.HandleFunc("POST /api/auth/setup", s.handleSetup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
}

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
}

type tokenResp struct {
	Token string   `json:"token"`
	User  userResp `json:"user"`
}

type userResp struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Service) handleCheckInit(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"needsSetup": count == 0})
}

// handleSetup creates the first admin. Once any user exists the endpoint is
// permanently closed.
func (s *Service) handleSetup(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if count > 0 {
		writeError(w, http.StatusForbidden, "already configured")
		return
	}

	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := s.createUser(r, req, repository.RoleAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	s.respondWithToken(w, user)
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if user == nil || !checkPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusBadRequest, "invalid username or password")
		return
	}
	s.respondWithToken(w, user)
}

// handleRegister creates a regular user; only an admin bearer token may call it.
func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	claims, err := s.bearerClaims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if claims.Role != repository.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}

	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	if _, err := s.createUser(r, req, repository.RoleUser); err != nil {
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Service) createUser(r *http.Request, req credentialsReq, role string) (*repository.User, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &repository.User{
		Username:     req.Username,
		PasswordHash: hash,
		Name:         req.Name,
		Lastname:     req.Lastname,
		Role:         role,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) respondWithToken(w http.ResponseWriter, user *repository.User) {
	token, err := s.Issue(user)
	if err != nil {
		slog.Error("issue token", "err", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResp{
		Token: token,
		User:  userResp{Name: user.Name, Role: user.Role},
	})
}

func (s *Service) bearerClaims(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, ErrInvalidCredential
	}
	return s.Verify(token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
