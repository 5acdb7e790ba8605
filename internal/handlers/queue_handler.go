package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"edumod/internal/apperrors"
	"edumod/internal/middleware"
	"edumod/internal/models"
	"edumod/internal/patterns"
	"edumod/internal/service"

	"github.com/google/uuid"
)

// QueueHandler handles moderator work on the review queue
type QueueHandler struct {
	queue *service.QueueService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// ItemPage is one page of the queue
type ItemPage struct {
	Items    []*models.ModerationItem `json:"items"`
	Total    int                      `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

// ItemDetail is an item with its audit history
type ItemDetail struct {
	Item    *models.ModerationItem    `json:"item"`
	History []models.ModerationAction `json:"history"`
}

// NotesRequest carries optional reviewer notes
type NotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// FlagRequest is the body of a flag action
type FlagRequest struct {
	Reason   string `json:"reason" validate:"required,max=64"`
	Severity string `json:"severity" validate:"oneof=low|medium|high|critical"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// SuggestEditRequest is the body of a suggest-edit action
type SuggestEditRequest struct {
	Edit  string `json:"edit" validate:"required,max=50000"`
	Notes string `json:"notes" validate:"max=2000"`
}

// RejectRequest is the body of a reject action
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=64"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// EscalateRequest is the body of a manual escalation
type EscalateRequest struct {
	Reason  string `json:"reason" validate:"required,max=64"`
	Urgency string `json:"urgency" validate:"oneof=normal|urgent"`
}

// List returns the queue visible to the current moderator
// @Summary List the review queue
// @Description Items within the moderator's risk ceiling, most urgent first
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20)
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} ItemPage
// @Header 200 {integer} X-Total-Count "Total matching items"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /queue [get]
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	mod, ok := middleware.GetModerator(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	query := r.URL.Query()
	page, err := intParam(query.Get("page"), defaultPage)
	if err != nil || page < 1 {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidQuery+": page")
		return
	}
	pageSize, err := intParam(query.Get("page_size"), defaultPageSize)
	if err != nil || pageSize < 1 {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidQuery+": page_size")
		return
	}
	pageSize = min(pageSize, maxPageSize)

	var statuses []models.Status
	for _, raw := range query["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				statuses = append(statuses, models.Status(st))
			}
		}
	}

	items, total, err := h.queue.List(r.Context(), mod.ID, service.ListQuery{
		Statuses: statuses,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	respondWithJSON(w, http.StatusOK, ItemPage{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// Stats returns queue counts
// @Summary Queue statistics
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.QueueStats
// @Router /queue/stats [get]
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// Get returns one item with its history
// @Summary Get a queue item
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} ItemDetail
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /queue/{id} [get]
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	mod, id, ok := itemRequest(w, r)
	if !ok {
		return
	}
	item, history, err := h.queue.Get(r.Context(), id, mod.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ItemDetail{Item: item, History: history})
}

// Claim assigns the item to the current moderator
// @Summary Claim an item
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} models.ModerationItem
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/claim [post]
func (h *QueueHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.Claim(ctx, id, modID)
	})
}

// Release returns a claimed item to the queue
// @Summary Release an item
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} models.ModerationItem
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/release [post]
func (h *QueueHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.Release(ctx, id, modID)
	})
}

// Approve approves a claimed item
// @Summary Approve an item
// @Tags Queue
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param request body NotesRequest false "Reviewer notes"
// @Success 200 {object} models.ModerationItem
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/approve [post]
func (h *QueueHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.Approve(ctx, id, modID, req.Notes)
	})
}

// Flag marks a claimed item as problematic
// @Summary Flag an item
// @Description High and critical severities send the item to oversight
// @Tags Queue
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param request body FlagRequest true "Flag details"
// @Success 200 {object} models.ModerationItem
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/flag [post]
func (h *QueueHandler) Flag(w http.ResponseWriter, r *http.Request) {
	var req FlagRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.Flag(ctx, id, modID, service.FlagInput{
			Reason:   req.Reason,
			Severity: patterns.Severity(req.Severity),
			Notes:    req.Notes,
		})
	})
}

// SuggestEdit returns a claimed item to its author with a rewrite
// @Summary Suggest an edit
// @Tags Queue
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param request body SuggestEditRequest true "Suggested rewrite"
// @Success 200 {object} models.ModerationItem
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/suggest-edit [post]
func (h *QueueHandler) SuggestEdit(w http.ResponseWriter, r *http.Request) {
	var req SuggestEditRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.SuggestEdit(ctx, id, modID, req.Edit, req.Notes)
	})
}

// Reject blocks a claimed item
// @Summary Reject an item
// @Tags Queue
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} models.ModerationItem
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/reject [post]
func (h *QueueHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.Reject(ctx, id, modID, req.Reason, req.Notes)
	})
}

// Escalate raises an item to oversight
// @Summary Escalate an item
// @Tags Queue
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param request body EscalateRequest true "Escalation details"
// @Success 200 {object} models.ModerationItem
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /queue/{id}/escalate [post]
func (h *QueueHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req EscalateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, modID string) (*models.ModerationItem, error) {
		return h.queue.Escalate(ctx, id, modID, req.Reason, models.Urgency(req.Urgency))
	})
}

type transitionFunc func(ctx context.Context, id uuid.UUID, moderatorID string) (*models.ModerationItem, error)

func (h *QueueHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	mod, id, ok := itemRequest(w, r)
	if !ok {
		return
	}
	item, err := fn(r.Context(), id, mod.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

// itemRequest resolves the caller and the {id} path value, writing the
// error response itself when either is missing
func itemRequest(w http.ResponseWriter, r *http.Request) (*models.Moderator, uuid.UUID, bool) {
	mod, ok := middleware.GetModerator(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return nil, uuid.Nil, false
	}
	id, err := pathID(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return nil, uuid.Nil, false
	}
	return mod, id, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", ErrMsgInvalidQuery, apperrors.ErrInvalidInput)
	}
	return n, nil
}
