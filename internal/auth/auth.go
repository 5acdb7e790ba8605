package auth

import (
	"errors"
	"fmt"
	"time"

	"edumod/internal/config"
	"edumod/internal/roles"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// ModeratorClaims identifies a moderator session. The tier is carried for
// display only; authorization always reloads the moderator record.
type ModeratorClaims struct {
	ModeratorID string `json:"moderator_id"`
	Tier        string `json:"tier"`
	jwt.RegisteredClaims
}

// Service issues and validates moderator session tokens
type Service struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewService creates a new authentication service
func NewService(cfg *config.JWTConfig) *Service {
	return &Service{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.Expiration,
	}
}

// GenerateToken signs a session token for a moderator and returns it with its JTI
func (s *Service) GenerateToken(moderatorID string, tier roles.Tier) (string, string, error) {
	if moderatorID == "" {
		return "", "", fmt.Errorf("moderator id is required")
	}
	jti := uuid.NewString()
	now := time.Now()
	claims := ModeratorClaims{
		ModeratorID: moderatorID,
		Tier:        tier.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   moderatorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, jti, nil
}

// ValidateToken validates a token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*ModeratorClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &ModeratorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ModeratorClaims)
	if !ok || !token.Valid || claims.ModeratorID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
