package service

import (
	"context"

	"edumod/internal/vault"
)

// Sealer encrypts unredacted originals so only oversight can read them
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, sealed string) (string, error)
}

// VaultSealer seals with the Vault transit key
type VaultSealer struct {
	client *vault.Client
}

// NewVaultSealer creates a sealer backed by Vault
func NewVaultSealer(client *vault.Client) *VaultSealer {
	return &VaultSealer{client: client}
}

// Seal encrypts plaintext
func (s *VaultSealer) Seal(ctx context.Context, plaintext string) (string, error) {
	return s.client.Encrypt(ctx, []byte(plaintext))
}

// Open decrypts a sealed original
func (s *VaultSealer) Open(ctx context.Context, sealed string) (string, error) {
	plaintext, err := s.client.Decrypt(ctx, sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
