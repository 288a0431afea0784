package vault

import (
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/logging"
)

// Secrets holds the credentials the bot pulls from Vault. Any field
// may be empty when the corresponding secret is not stored.
type Secrets struct {
	LLMAPIKey     string
	TelegramToken string
	TelegramChat  string
}

// Client wraps the HashiCorp Vault KV v2 client for secret lookup.
type Client struct {
	client *api.Client
	cfg    config.VaultConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a Vault client. When Vault is disabled in config
// the client is a no-op and FetchSecrets returns empty secrets.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		logger: logging.Component("vault"),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client

	return c, nil
}

// FetchSecrets reads the bot secrets from the configured KV path.
// Results are cached for the lifetime of the process.
func (c *Client) FetchSecrets() (*Secrets, error) {
	if !c.cfg.Enabled || c.client == nil {
		return &Secrets{}, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	path := fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
	secret, err := c.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault path %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return &Secrets{}, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return &Secrets{}, nil
	}

	s := &Secrets{
		LLMAPIKey:     stringField(data, "llm_api_key"),
		TelegramToken: stringField(data, "telegram_token"),
		TelegramChat:  stringField(data, "telegram_chat_id"),
	}

	c.mu.Lock()
	c.cached = s
	c.mu.Unlock()

	c.logger.Info().Str("path", path).Msg("Loaded secrets from Vault")
	return s, nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
