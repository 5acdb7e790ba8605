package handlers

import (
	"net/http"

	"edumod/internal/events"
	"edumod/internal/middleware"
)

// StreamHandler pushes escalations to connected professionals
type StreamHandler struct {
	hub *events.Hub
}

// NewStreamHandler creates a websocket stream handler
func NewStreamHandler(hub *events.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Escalations upgrades to a websocket carrying EscalationRaised events.
// Browsers pass the session token in the access_token query parameter.
func (h *StreamHandler) Escalations(w http.ResponseWriter, r *http.Request) {
	mod, ok := middleware.GetModerator(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	h.hub.Serve(w, r, mod.ID)
}
