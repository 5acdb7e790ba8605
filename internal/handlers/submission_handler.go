package handlers

import (
	"net/http"

	"edumod/internal/service"
	"edumod/pkg/validator"
)

// SubmissionHandler handles content submitted by authors
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// SubmitRequest is the body of a content submission
type SubmitRequest struct {
	Body        string `json:"body" validate:"required"`
	ContentType string `json:"content_type" validate:"max=32"`
	Category    string `json:"category" validate:"max=64"`
	AuthorRef   string `json:"author_ref" validate:"max=128"`
}

func (req SubmitRequest) submission() service.Submission {
	return service.Submission{
		Body:        req.Body,
		ContentType: validator.SanitizeString(req.ContentType),
		Category:    validator.SanitizeString(req.Category),
		AuthorRef:   validator.SanitizeString(req.AuthorRef),
	}
}

// Submit analyzes content and queues it for review when needed
// @Summary Submit content
// @Description Analyze a body, apply the decision policy and queue it for human review when required
// @Tags Submissions
// @Accept json
// @Produce json
// @Param request body SubmitRequest true "Content to moderate"
// @Success 200 {object} service.SubmitResult
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.submissions.Submit(r.Context(), req.submission())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Preview runs analysis and policy without side effects
// @Summary Preview a submission
// @Description Dry run of analysis and decision. Nothing is stored or published.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param request body SubmitRequest true "Content to analyze"
// @Success 200 {object} service.SubmitResult
// @Failure 400 {object} ErrorResponse
// @Router /submissions/preview [post]
func (h *SubmissionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.submissions.Preview(r.Context(), req.submission())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Resubmit sends a revised body for an item that received a suggested edit
// @Summary Resubmit after a suggested edit
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param request body SubmitRequest true "Revised content"
// @Success 200 {object} service.SubmitResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /submissions/{id}/resubmit [post]
func (h *SubmissionHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	var req SubmitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	result, err := h.submissions.Resubmit(r.Context(), id, req.submission())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
