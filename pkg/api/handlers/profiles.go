package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/api/middleware"
	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/store"
	"github.com/termgate/termgate/pkg/vault"
)

// ProfileHandler handles SSH profile CRUD. Credentials are sealed before
// they hit the store and never appear in any response.
type ProfileHandler struct {
	store *store.GORMStore
	vault *vault.Vault
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(s *store.GORMStore, v *vault.Vault) *ProfileHandler {
	return &ProfileHandler{store: s, vault: v}
}

// ProfileInput is the profile portion of a create request.
type ProfileInput struct {
	Name       string            `json:"name"`
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	Username   string            `json:"username"`
	AuthMethod models.AuthMethod `json:"authMethod"`
}

// CreateProfileRequest is the request body for POST /api/profiles.
type CreateProfileRequest struct {
	Profile     ProfileInput        `json:"profile"`
	Credentials *models.Credentials `json:"credentials"`
}

// UpdateProfileRequest is the request body for PUT /api/profiles/{id}.
// Nil fields are left unchanged. Supplying credentials re-seals them.
type UpdateProfileRequest struct {
	Name        *string             `json:"name"`
	Host        *string             `json:"host"`
	Port        *int                `json:"port"`
	Username    *string             `json:"username"`
	AuthMethod  *models.AuthMethod  `json:"authMethod"`
	Credentials *models.Credentials `json:"credentials"`
}

// List handles GET /api/profiles.
// Returns the user's active profiles, most recently used first.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	profiles, err := h.store.ListProfiles(r.Context(), user.ID)
	if err != nil {
		logger.ErrorCtx(r.Context(), "profile list failed", "user_id", user.ID, "error", err)
		InternalServerError(w, "Failed to list profiles")
		return
	}

	WriteData(w, http.StatusOK, profiles)
}

// Create handles POST /api/profiles.
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req CreateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	defer req.Credentials.Scrub()

	if req.Profile.Port == 0 {
		req.Profile.Port = 22
	}

	profile := &models.SSHProfile{
		UserID:     user.ID,
		Name:       req.Profile.Name,
		Host:       req.Profile.Host,
		Port:       req.Profile.Port,
		Username:   req.Profile.Username,
		AuthMethod: req.Profile.AuthMethod,
	}
	if err := profile.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := req.Credentials.ValidateFor(profile.AuthMethod); err != nil {
		BadRequest(w, err.Error())
		return
	}

	sealed, err := h.vault.SealCredentials(req.Credentials)
	if err != nil {
		logger.ErrorCtx(r.Context(), "credential sealing failed", "user_id", user.ID, "error", err)
		InternalServerError(w, "Failed to store credentials")
		return
	}
	profile.EncryptedCredentials = sealed

	if _, err := h.store.CreateProfile(r.Context(), profile); err != nil {
		if errors.Is(err, models.ErrProfileNameConflict) {
			Conflict(w, "A profile with this name already exists")
			return
		}
		logger.ErrorCtx(r.Context(), "profile create failed", "user_id", user.ID, "error", err)
		InternalServerError(w, "Failed to create profile")
		return
	}

	WriteData(w, http.StatusCreated, profile)
}

// Update handles PUT /api/profiles/{id}.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Authentication required")
		return
	}
	profileID := chi.URLParam(r, "id")

	var req UpdateProfileRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	defer req.Credentials.Scrub()

	if req.Name == nil && req.Host == nil && req.Port == nil &&
		req.Username == nil && req.AuthMethod == nil && req.Credentials.Empty() {
		BadRequest(w, "No updatable fields supplied")
		return
	}

	update := &store.ProfileUpdate{
		Name:       req.Name,
		Host:       req.Host,
		Port:       req.Port,
		Username:   req.Username,
		AuthMethod: req.AuthMethod,
	}

	if !req.Credentials.Empty() {
		method := models.AuthMethodPassword
		if req.AuthMethod != nil {
			method = *req.AuthMethod
		} else if current, err := h.store.GetProfile(r.Context(), user.ID, profileID); err == nil {
			method = current.AuthMethod
		}
		if err := req.Credentials.ValidateFor(method); err != nil {
			BadRequest(w, err.Error())
			return
		}

		sealed, err := h.vault.SealCredentials(req.Credentials)
		if err != nil {
			logger.ErrorCtx(r.Context(), "credential sealing failed", "user_id", user.ID, "error", err)
			InternalServerError(w, "Failed to store credentials")
			return
		}
		update.EncryptedCredentials = &sealed
	}

	profile, err := h.store.UpdateProfile(r.Context(), user.ID, profileID, update)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrProfileNotFound):
			NotFound(w, "Profile not found")
		case errors.Is(err, models.ErrProfileNameConflict):
			Conflict(w, "A profile with this name already exists")
		case errors.Is(err, models.ErrValidation):
			BadRequest(w, err.Error())
		default:
			logger.ErrorCtx(r.Context(), "profile update failed", "user_id", user.ID, "error", err)
			InternalServerError(w, "Failed to update profile")
		}
		return
	}

	WriteData(w, http.StatusOK, profile)
}

// Delete handles DELETE /api/profiles/{id}.
// Profiles are soft-deleted; the row survives for session history.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Authentication required")
		return
	}
	profileID := chi.URLParam(r, "id")

	if err := h.store.DeleteProfile(r.Context(), user.ID, profileID); err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			NotFound(w, "Profile not found")
			return
		}
		logger.ErrorCtx(r.Context(), "profile delete failed", "user_id", user.ID, "error", err)
		InternalServerError(w, "Failed to delete profile")
		return
	}

	WriteData(w, http.StatusOK, map[string]bool{"ok": true})
}
