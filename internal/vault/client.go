package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
)

// ErrDisabled is returned by a nil client
var ErrDisabled = errors.New("vault is not configured")

// Client wraps the Vault transit engine for one named key
type Client struct {
	client       *api.Client
	transitMount string
	keyName      string
}

// Config holds Vault configuration
type Config struct {
	Address      string
	Token        string
	TransitMount string
	KeyName      string
}

// NewClient creates a Vault client, mounting the transit engine and creating
// the key when they do not exist yet
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.KeyName == "" {
		return nil, fmt.Errorf("vault transit key name is required")
	}
	mount := cfg.TransitMount
	if mount == "" {
		mount = "transit"
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	vaultClient := &Client{
		client:       client,
		transitMount: mount,
		keyName:      cfg.KeyName,
	}

	if err := vaultClient.initTransitEngine(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize transit engine: %w", err)
	}
	if err := vaultClient.ensureKey(ctx); err != nil {
		return nil, err
	}

	return vaultClient, nil
}

// initTransitEngine enables the transit secrets engine if not already enabled
func (c *Client) initTransitEngine(ctx context.Context) error {
	mounts, err := c.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}

	if _, exists := mounts[c.transitMount+"/"]; exists {
		return nil
	}

	err = c.client.Sys().MountWithContext(ctx, c.transitMount, &api.MountInput{
		Type:        "transit",
		Description: "Sealed originals of moderated submissions",
	})
	if err != nil {
		return fmt.Errorf("failed to mount transit engine: %w", err)
	}
	return nil
}

// ensureKey creates the transit key; Vault treats an existing key as success
func (c *Client) ensureKey(ctx context.Context) error {
	path := fmt.Sprintf("%s/keys/%s", c.transitMount, c.keyName)
	data := map[string]interface{}{
		"type":       "aes256-gcm96",
		"exportable": false,
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, path, data); err != nil {
		return fmt.Errorf("failed to create key %s: %w", c.keyName, err)
	}
	return nil
}

// Encrypt seals plaintext with the configured transit key
func (c *Client) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	path := fmt.Sprintf("%s/encrypt/%s", c.transitMount, c.keyName)
	data := map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}

	secret, err := c.client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("empty encrypt response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("invalid ciphertext response")
	}
	return ciphertext, nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (c *Client) Decrypt(ctx context.Context, ciphertext string) ([]byte, error) {
	if c == nil {
		return nil, ErrDisabled
	}
	path := fmt.Sprintf("%s/decrypt/%s", c.transitMount, c.keyName)
	data := map[string]interface{}{
		"ciphertext": ciphertext,
	}

	secret, err := c.client.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("empty decrypt response")
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid plaintext response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// Health checks Vault health status
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return fmt.Errorf("vault is not initialized")
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
