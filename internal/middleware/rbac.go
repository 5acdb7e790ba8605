package middleware

import (
	"net/http"

	"edumod/internal/roles"
)

// RBACMiddleware checks tier capabilities of the authenticated moderator
type RBACMiddleware struct {
	registry *roles.Registry
}

// NewRBACMiddleware creates a new RBAC middleware
func NewRBACMiddleware(registry *roles.Registry) *RBACMiddleware {
	return &RBACMiddleware{registry: registry}
}

// RequireTier checks that the moderator is at least the given tier
func (m *RBACMiddleware) RequireTier(minimum roles.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mod, ok := GetModerator(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Moderator not authenticated")
				return
			}
			if mod.Tier < minimum {
				respondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission checks if the moderator's tier grants the permission
func (m *RBACMiddleware) RequirePermission(perm roles.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mod, ok := GetModerator(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Moderator not authenticated")
				return
			}
			if !m.registry.Can(mod.Tier, perm) {
				respondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
