package auth

import (
	"errors"
	"testing"
	"time"

	"edumod/internal/config"
	"edumod/internal/roles"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(expiration time.Duration) *Service {
	return NewService(&config.JWTConfig{
		Secret:     "test-secret",
		Issuer:     "edumod-test",
		Expiration: expiration,
	})
}

func TestGenerateToken(t *testing.T) {
	svc := newTestService(time.Hour)

	token, jti, err := svc.GenerateToken("mod-1", roles.Senior)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Token should not be empty")
	}
	if jti == "" {
		t.Error("JTI should not be empty")
	}

	if _, _, err := svc.GenerateToken("", roles.Senior); err == nil {
		t.Error("Should refuse an empty moderator id")
	}
}

func TestValidateToken(t *testing.T) {
	svc := newTestService(time.Hour)

	token, jti, err := svc.GenerateToken("mod-1", roles.Professional)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.ModeratorID != "mod-1" {
		t.Errorf("Expected moderator mod-1, got %s", claims.ModeratorID)
	}
	if claims.Tier != "professional" {
		t.Errorf("Expected tier professional, got %s", claims.Tier)
	}
	if claims.ID != jti {
		t.Errorf("Expected jti %s, got %s", jti, claims.ID)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newTestService(-time.Hour)

	token, _, err := svc.GenerateToken("mod-1", roles.Junior)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateTokenRejectsForeignSignatures(t *testing.T) {
	svc := newTestService(time.Hour)
	other := NewService(&config.JWTConfig{Secret: "other", Issuer: "edumod-test", Expiration: time.Hour})

	token, _, err := other.GenerateToken("mod-1", roles.Junior)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, ModeratorClaims{ModeratorID: "mod-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to build unsigned token: %v", err)
	}
	if _, err := svc.ValidateToken(unsigned); err == nil {
		t.Error("Should reject unsigned token")
	}
}
