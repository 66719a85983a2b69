// Package vault loads application secrets (JWT signing key, payment webhook
// secret) from HashiCorp Vault, with a plain passthrough when Vault is
// disabled for local development.
package vault

import (
	"context"
	"fmt"
	"sync"

	"crypto-trading-saas/config"

	"github.com/hashicorp/vault/api"
)

// AppSecrets are the secrets this service pulls at startup.
type AppSecrets struct {
	JWTSecret     string `json:"jwt_secret"`
	WebhookSecret string `json:"webhook_secret"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *AppSecrets
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// LoadAppSecrets fetches the application secrets from the configured KV
// path. When Vault is disabled the provided fallbacks (from env/config) are
// returned untouched, so local development needs no Vault at all.
func (c *Client) LoadAppSecrets(ctx context.Context, fallback AppSecrets) (AppSecrets, error) {
	if !c.config.Enabled {
		return fallback, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		cached := *c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return AppSecrets{}, fmt.Errorf("failed to read app secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return AppSecrets{}, fmt.Errorf("app secrets not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return AppSecrets{}, fmt.Errorf("invalid secret format")
	}

	secrets := AppSecrets{
		JWTSecret:     getString(data, "jwt_secret"),
		WebhookSecret: getString(data, "webhook_secret"),
	}
	if secrets.JWTSecret == "" {
		secrets.JWTSecret = fallback.JWTSecret
	}
	if secrets.WebhookSecret == "" {
		secrets.WebhookSecret = fallback.WebhookSecret
	}

	c.mu.Lock()
	c.cached = &secrets
	c.mu.Unlock()

	return secrets, nil
}

// StoreAppSecrets writes the application secrets, used by ops tooling.
func (c *Client) StoreAppSecrets(ctx context.Context, secrets AppSecrets) error {
	if !c.config.Enabled {
		return fmt.Errorf("vault is disabled")
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"jwt_secret":     secrets.JWTSecret,
			"webhook_secret": secrets.WebhookSecret,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store app secrets in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &secrets
	c.mu.Unlock()

	return nil
}

// ClearCache drops the cached secrets so the next load re-reads Vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
