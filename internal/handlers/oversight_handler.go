package handlers

import (
	"net/http"

	"edumod/internal/models"
	"edumod/internal/service"
)

// OversightHandler handles professional oversight of escalated items
type OversightHandler struct {
	queue *service.QueueService
}

// NewOversightHandler creates a new oversight handler
func NewOversightHandler(queue *service.QueueService) *OversightHandler {
	return &OversightHandler{queue: queue}
}

// ResolveRequest is the final outcome chosen by oversight
type ResolveRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approved|flagged|edit_suggested|rejected"`
	Notes   string `json:"notes" validate:"max=2000"`
}

// OriginalResponse carries an unredacted body
type OriginalResponse struct {
	ItemID   string `json:"item_id"`
	Original string `json:"original"`
}

// Resolve records the oversight outcome for an escalated item
// @Summary Resolve an escalation
// @Tags Oversight
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param request body ResolveRequest true "Outcome"
// @Success 200 {object} models.ModerationItem
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /oversight/{id}/resolve [post]
func (h *OversightHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	mod, id, ok := itemRequest(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	item, err := h.queue.OversightResolve(r.Context(), id, mod.ID, models.Status(req.Outcome), req.Notes)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

// RevealOriginal returns the sealed unredacted body. The reveal is audited.
// @Summary Reveal the original content
// @Tags Oversight
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} OriginalResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /oversight/{id}/original [get]
func (h *OversightHandler) RevealOriginal(w http.ResponseWriter, r *http.Request) {
	mod, id, ok := itemRequest(w, r)
	if !ok {
		return
	}
	original, err := h.queue.RevealOriginal(r.Context(), id, mod.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, OriginalResponse{ItemID: id.String(), Original: original})
}
