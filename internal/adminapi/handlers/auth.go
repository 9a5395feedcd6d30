package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/smbconn/internal/adminapi/auth"
	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/identity"
)

// AuthHandler handles POST /api/v1/auth/login.
type AuthHandler struct {
	users      map[string]string // username -> bcrypt hash
	jwtService *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler for the configured admin users.
func NewAuthHandler(users []config.AdminUser, jwtService *auth.JWTService) *AuthHandler {
	m := make(map[string]string, len(users))
	for _, u := range users {
		m[u.Username] = u.PasswordHash
	}
	return &AuthHandler{users: m, jwtService: jwtService}
}

// LoginRequest is the request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /api/v1/auth/login.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login authenticates an admin user and returns an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		BadRequest(w, "Username and password are required")
		return
	}

	hash, ok := h.users[req.Username]
	if !ok || !identity.VerifyPassword(req.Password, hash) {
		logger.WarnCtx(r.Context(), "Admin login failed", logger.Username(req.Username))
		Unauthorized(w, "Invalid username or password")
		return
	}

	tok, err := h.jwtService.GenerateToken(req.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	logger.InfoCtx(r.Context(), "Admin login", logger.Username(req.Username))
	WriteJSONOK(w, LoginResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
		ExpiresAt:   tok.ExpiresAt,
	})
}
