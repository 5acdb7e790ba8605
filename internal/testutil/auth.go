package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edumod/internal/auth"
	"edumod/internal/config"
	"edumod/internal/models"
)

// AuthHelper issues moderator tokens for tests
type AuthHelper struct {
	Config  config.JWTConfig
	Service *auth.Service
}

// NewAuthHelper creates a new auth helper
func NewAuthHelper() *AuthHelper {
	cfg := config.JWTConfig{
		Secret:     JWTSecret,
		Issuer:     "edumod-test",
		Expiration: time.Hour,
	}
	return &AuthHelper{Config: cfg, Service: auth.NewService(&cfg)}
}

// Token signs a session token for a moderator
func (h *AuthHelper) Token(t *testing.T, mod *models.Moderator) string {
	t.Helper()

	token, _, err := h.Service.GenerateToken(mod.ID, mod.Tier)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// AddAuthHeader adds an authorization header to the request
func (h *AuthHelper) AddAuthHeader(t *testing.T, req *http.Request, mod *models.Moderator) {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+h.Token(t, mod))
}

// CreateAuthenticatedRequest creates a request with auth header
func (h *AuthHelper) CreateAuthenticatedRequest(t *testing.T, method, url string, body io.Reader, mod *models.Moderator) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	h.AddAuthHeader(t, req, mod)
	return req
}

// TestResponse holds response data for assertions
type TestResponse struct {
	*httptest.ResponseRecorder
}

// NewTestResponse creates a new test response recorder
func NewTestResponse() *TestResponse {
	return &TestResponse{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

// AssertStatus asserts the HTTP status code
func (r *TestResponse) AssertStatus(t *testing.T, expected int) {
	t.Helper()

	if r.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, r.Code, r.Body.String())
	}
}
