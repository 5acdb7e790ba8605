package handlers

import (
	"net/http"

	"edumod/internal/middleware"
	"edumod/internal/roles"
)

// API groups the handlers and the middleware guarding them
type API struct {
	Submissions *SubmissionHandler
	Queue       *QueueHandler
	Oversight   *OversightHandler
	Moderators  *ModeratorHandler
	Health      *HealthHandler
	// Stream is optional; nil disables the websocket route
	Stream *StreamHandler

	Auth    *middleware.AuthMiddleware
	RBAC    *middleware.RBACMiddleware
	Limiter *middleware.RateLimiter
}

// Register mounts every API route on mux
func (a *API) Register(mux *http.ServeMux) {
	limited := func(h http.HandlerFunc) http.Handler {
		return a.Limiter.Limit(h)
	}
	moderator := func(h http.HandlerFunc) http.Handler {
		return a.Auth.Authenticate(a.RBAC.RequireTier(roles.Junior)(h))
	}
	professional := func(h http.HandlerFunc) http.Handler {
		return a.Auth.Authenticate(a.RBAC.RequireTier(roles.Professional)(h))
	}

	// Health check
	mux.HandleFunc("GET /health", a.Health.Health)

	// Submissions are anonymous and rate limited
	mux.Handle("POST /api/v1/submissions", limited(a.Submissions.Submit))
	mux.Handle("POST /api/v1/submissions/preview", limited(a.Submissions.Preview))
	mux.Handle("POST /api/v1/submissions/{id}/resubmit", limited(a.Submissions.Resubmit))

	// Queue
	mux.Handle("GET /api/v1/queue", moderator(a.Queue.List))
	mux.Handle("GET /api/v1/queue/stats", moderator(a.Queue.Stats))
	mux.Handle("GET /api/v1/queue/{id}", moderator(a.Queue.Get))
	mux.Handle("POST /api/v1/queue/{id}/claim", moderator(a.Queue.Claim))
	mux.Handle("POST /api/v1/queue/{id}/release", moderator(a.Queue.Release))
	mux.Handle("POST /api/v1/queue/{id}/approve", moderator(a.Queue.Approve))
	mux.Handle("POST /api/v1/queue/{id}/flag", moderator(a.Queue.Flag))
	mux.Handle("POST /api/v1/queue/{id}/suggest-edit", moderator(a.Queue.SuggestEdit))
	mux.Handle("POST /api/v1/queue/{id}/reject", moderator(a.Queue.Reject))
	mux.Handle("POST /api/v1/queue/{id}/escalate", moderator(a.Queue.Escalate))

	// Oversight
	mux.Handle("POST /api/v1/oversight/{id}/resolve", professional(a.Oversight.Resolve))
	mux.Handle("GET /api/v1/oversight/{id}/original", a.Auth.Authenticate(
		a.RBAC.RequirePermission(roles.PermRevealOriginal)(http.HandlerFunc(a.Oversight.RevealOriginal))))

	// Moderators
	mux.Handle("GET /api/v1/moderators/me", moderator(a.Moderators.Me))
	mux.Handle("GET /api/v1/moderators", professional(a.Moderators.List))
	mux.Handle("POST /api/v1/moderators", professional(a.Moderators.Register))
	mux.Handle("POST /api/v1/moderators/{id}/active", professional(a.Moderators.SetActive))
	mux.Handle("POST /api/v1/moderators/{id}/token", professional(a.Moderators.IssueToken))

	if a.Stream != nil {
		mux.Handle("GET /ws/escalations", professional(a.Stream.Escalations))
	}
}
