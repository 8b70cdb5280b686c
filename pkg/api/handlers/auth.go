// Package handlers implements the gateway's control endpoints.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/api/middleware"
	"github.com/termgate/termgate/pkg/auth"
	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/store"
)

// AuthHandler handles registration, login, token verification, and user
// preferences.
type AuthHandler struct {
	auth  *auth.Service
	store *store.GORMStore
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *auth.Service, s *store.GORMStore) *AuthHandler {
	return &AuthHandler{auth: authSvc, store: s}
}

// RegisterRequest is the request body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the payload for successful register and login calls.
type AuthResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// PreferencesRequest is the request body for PUT /api/auth/preferences.
type PreferencesRequest struct {
	Preferences models.JSONMap `json:"preferences"`
}

// Register handles POST /api/auth/register.
// Creates an account and returns the user with a fresh bearer token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		BadRequest(w, "A valid email is required")
		return
	}
	if req.Password == "" {
		BadRequest(w, "Password is required")
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			Conflict(w, "User already exists")
			return
		}
		if isPasswordPolicyError(err) {
			BadRequest(w, err.Error())
			return
		}
		logger.ErrorCtx(r.Context(), "registration failed", "error", err)
		InternalServerError(w, "Registration failed")
		return
	}

	WriteData(w, http.StatusCreated, AuthResponse{
		User:      result.User,
		Token:     result.Token.Token,
		ExpiresAt: result.Token.ExpiresAt,
	})
}

// Login handles POST /api/auth/login.
// Verifies credentials and returns the user with a fresh bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		BadRequest(w, "Email and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			Unauthorized(w, "Invalid email or password")
			return
		}
		logger.ErrorCtx(r.Context(), "login failed", "error", err)
		InternalServerError(w, "Login failed")
		return
	}

	WriteData(w, http.StatusOK, AuthResponse{
		User:      result.User,
		Token:     result.Token.Token,
		ExpiresAt: result.Token.ExpiresAt,
	})
}

// Verify handles GET /api/auth/verify.
// Returns the authenticated user; the JWTAuth middleware has already
// validated the token and loaded the user.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"user": user})
}

// UpdatePreferences handles PUT /api/auth/preferences.
// Replaces the user's preferences blob.
func (h *AuthHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req PreferencesRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	updated, err := h.store.UpdatePreferences(r.Context(), user.ID, req.Preferences)
	if err != nil {
		logger.ErrorCtx(r.Context(), "preferences update failed", "user_id", user.ID, "error", err)
		InternalServerError(w, "Failed to update preferences")
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"user": updated})
}

// isPasswordPolicyError reports whether err is one of the password policy
// violations, whose text is safe to return to clients.
func isPasswordPolicyError(err error) bool {
	for _, policy := range []error{
		auth.ErrPasswordTooShort,
		auth.ErrPasswordTooLong,
		auth.ErrPasswordNoUpper,
		auth.ErrPasswordNoLower,
		auth.ErrPasswordNoDigit,
	} {
		if errors.Is(err, policy) {
			return true
		}
	}
	return false
}
