package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"edumod/internal/apperrors"
	"edumod/internal/auth"
	"edumod/internal/middleware"
	"edumod/internal/roles"
	"edumod/internal/service"
	"edumod/pkg/validator"
)

// ModeratorHandler handles moderator records and session tokens
type ModeratorHandler struct {
	moderators  *service.ModeratorService
	authService *auth.Service
	expiration  time.Duration
}

// NewModeratorHandler creates a new moderator handler
func NewModeratorHandler(moderators *service.ModeratorService, authService *auth.Service, expiration time.Duration) *ModeratorHandler {
	return &ModeratorHandler{
		moderators:  moderators,
		authService: authService,
		expiration:  expiration,
	}
}

// RegisterModeratorRequest creates or updates a moderator
type RegisterModeratorRequest struct {
	ID   string     `json:"id" validate:"required,max=64"`
	Name string     `json:"name" validate:"required,max=128"`
	Tier roles.Tier `json:"tier" validate:"required"`
}

// SetActiveRequest toggles a moderator
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// TokenResponse is a freshly issued session token
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Me returns the current moderator with lifetime statistics
// @Summary Current moderator
// @Tags Moderators
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Moderator
// @Failure 401 {object} ErrorResponse
// @Router /moderators/me [get]
func (h *ModeratorHandler) Me(w http.ResponseWriter, r *http.Request) {
	mod, ok := middleware.GetModerator(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	// reload for the freshest statistics
	fresh, err := h.moderators.Get(r.Context(), mod.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, fresh)
}

// List returns every moderator
// @Summary List moderators
// @Tags Moderators
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Moderator
// @Failure 403 {object} ErrorResponse
// @Router /moderators [get]
func (h *ModeratorHandler) List(w http.ResponseWriter, r *http.Request) {
	mods, err := h.moderators.List(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, mods)
}

// Register creates or updates a moderator. Limits follow the tier.
// @Summary Register a moderator
// @Tags Moderators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterModeratorRequest true "Moderator"
// @Success 200 {object} models.Moderator
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /moderators [post]
func (h *ModeratorHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterModeratorRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	mod, err := h.moderators.Register(r.Context(), req.ID, validator.SanitizeString(req.Name), req.Tier)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if caller, ok := middleware.GetModerator(r); ok {
		slog.Info("Moderator registered", "moderator_id", mod.ID, "tier", mod.Tier.String(), "by", caller.ID)
	}
	respondWithJSON(w, http.StatusOK, mod)
}

// SetActive activates or deactivates a moderator
// @Summary Activate or deactivate a moderator
// @Tags Moderators
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Moderator ID"
// @Param request body SetActiveRequest true "Active flag"
// @Success 200 {object} models.Moderator
// @Failure 404 {object} ErrorResponse
// @Router /moderators/{id}/active [post]
func (h *ModeratorHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if caller, ok := middleware.GetModerator(r); ok && caller.ID == id && !*req.Active {
		respondWithAppError(w, r, fmt.Errorf("moderators cannot deactivate themselves: %w", apperrors.ErrInvalidInput))
		return
	}

	mod, err := h.moderators.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, mod)
}

// IssueToken mints a session token for an active moderator
// @Summary Issue a moderator token
// @Tags Moderators
// @Produce json
// @Security BearerAuth
// @Param id path string true "Moderator ID"
// @Success 200 {object} TokenResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /moderators/{id}/token [post]
func (h *ModeratorHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	mod, err := h.moderators.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if !mod.Active {
		respondWithAppError(w, r, fmt.Errorf("moderator %s is inactive: %w", mod.ID, apperrors.ErrInsufficientPermission))
		return
	}

	token, jti, err := h.authService.GenerateToken(mod.ID, mod.Tier)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	slog.Info("Moderator token issued", "moderator_id", mod.ID, "jti", jti)
	respondWithJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.expiration.Seconds()),
	})
}
