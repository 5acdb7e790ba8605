package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"edumod/internal/apperrors"
	"edumod/internal/auth"
	"edumod/internal/models"
)

type contextKey string

const (
	ModeratorKey contextKey = "moderator"
	SessionIDKey contextKey = "session_id"
)

// ModeratorLoader resolves the moderator behind a session token
type ModeratorLoader interface {
	Get(ctx context.Context, id string) (*models.Moderator, error)
}

// AuthMiddleware validates moderator session tokens
type AuthMiddleware struct {
	authService *auth.Service
	moderators  ModeratorLoader
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService *auth.Service, moderators ModeratorLoader) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		moderators:  moderators,
	}
}

// Authenticate validates the JWT token, reloads the moderator and adds it to
// the request context. The tier in the token is never trusted on its own.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Missing or malformed authorization header")
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		mod, err := m.moderators.Get(r.Context(), claims.ModeratorID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			respondWithError(w, http.StatusUnauthorized, "Unknown moderator")
			return
		case err != nil:
			slog.Error("Failed to load moderator", "error", err, "moderator_id", claims.ModeratorID)
			respondWithError(w, http.StatusServiceUnavailable, "Moderator lookup failed")
			return
		case !mod.Active:
			respondWithError(w, http.StatusForbidden, "Moderator is deactivated")
			return
		}

		ctx := context.WithValue(r.Context(), ModeratorKey, mod)
		ctx = context.WithValue(ctx, SessionIDKey, claims.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket upgrades, so those may pass the token as a query parameter.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			token := r.URL.Query().Get("access_token")
			return token, token != ""
		}
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetModerator retrieves the authenticated moderator from the request context
func GetModerator(r *http.Request) (*models.Moderator, bool) {
	mod, ok := r.Context().Value(ModeratorKey).(*models.Moderator)
	return mod, ok && mod != nil
}

// WithModerator returns a context carrying mod, for handlers invoked without
// the middleware
func WithModerator(ctx context.Context, mod *models.Moderator) context.Context {
	return context.WithValue(ctx, ModeratorKey, mod)
}

// Helper function to respond with JSON error
func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
