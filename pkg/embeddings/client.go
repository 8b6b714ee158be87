package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// fragmentSeparator joins multi-line input into one request body.
const fragmentSeparator = "\n\n"

// Factory builds the provider-specific Embedder for a configuration.
type Factory func(cfg ProviderConfig, creds Credentials) (Embedder, error)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Provider is the initial provider configuration.
	Provider ProviderConfig

	// Factory builds provider embedders. Required.
	Factory Factory

	// Lookup resolves credentials. Defaults to EnvLookup.
	Lookup CredentialLookup

	// RequestsPerSecond caps provider calls. Zero disables limiting.
	RequestsPerSecond float64

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Client embeds text with the currently configured provider. It owns the
// active configuration and a per-provider embedder cache which is dropped
// wholesale on every UpdateConfig.
type Client struct {
	mu      sync.RWMutex
	config  ProviderConfig
	clients map[string]Embedder

	factory Factory
	lookup  CredentialLookup
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a new embedding client.
func NewClient(c ClientConfig) (*Client, error) {
	if c.Factory == nil {
		return nil, fmt.Errorf("embedding factory is required")
	}

	lookup := c.Lookup
	if lookup == nil {
		lookup = EnvLookup
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if c.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1)
	}

	return &Client{
		config:  c.Provider.WithDefaults(),
		clients: make(map[string]Embedder),
		factory: c.Factory,
		lookup:  lookup,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Config returns the active provider configuration.
func (c *Client) Config() ProviderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// EffectiveDimension is the vector width of the active configuration.
func (c *Client) EffectiveDimension() int {
	return c.Config().EffectiveDimension()
}

// Available reports whether the active provider has usable credentials.
// It never performs a network call.
func (c *Client) Available() bool {
	return IsConfigured(c.Config().ProviderID, c.lookup)
}

// UpdateConfig swaps the active configuration and drops every cached
// provider embedder under one exclusive section. It returns the previous
// configuration.
func (c *Client) UpdateConfig(next ProviderConfig) ProviderConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.config
	c.config = next.WithDefaults()

	for id, e := range c.clients {
		if err := e.Close(); err != nil {
			c.logger.Warn("closing cached embedder", zap.String("provider", id), zap.Error(err))
		}
	}
	c.clients = make(map[string]Embedder)

	c.logger.Info("embedding configuration updated",
		zap.String("provider", c.config.ProviderID),
		zap.String("model", c.config.Model),
		zap.Int("dimension", c.config.EffectiveDimension()),
	)

	return previous
}

// CreateEmbedding embeds input as a single vector. Fragments are joined with
// a blank line so that whitespace-only fragments alongside real content
// still produce a non-empty request.
func (c *Client) CreateEmbedding(ctx context.Context, input []string) ([]float32, error) {
	if !c.Available() {
		return nil, fmt.Errorf("%w: provider %q has no credentials configured",
			ErrEmbeddingUnavailable, c.Config().ProviderID)
	}

	text := strings.TrimSpace(strings.Join(input, fragmentSeparator))
	if text == "" {
		return nil, ErrEmptyEmbeddingPayload
	}

	embedder, err := c.embedder()
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limiter: %v", ErrEmbedding, err)
		}
	}

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", ErrEmbedding)
	}
	return vec, nil
}

// embedder returns the cached embedder for the active provider, building it
// on first use.
func (c *Client) embedder() (Embedder, error) {
	c.mu.RLock()
	cfg := c.config
	e, ok := c.clients[cfg.ProviderID]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Config may have been swapped while the read lock was released.
	cfg = c.config
	if e, ok := c.clients[cfg.ProviderID]; ok {
		return e, nil
	}

	e, err := c.factory(cfg, resolveCredentials(cfg.ProviderID, c.lookup))
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.ProviderID, err)
	}
	c.clients[cfg.ProviderID] = e

	c.logger.Debug("embedder created",
		zap.String("provider", cfg.ProviderID),
		zap.String("model", cfg.Model),
	)
	return e, nil
}

// Close releases every cached embedder.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, e := range c.clients {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.clients = make(map[string]Embedder)
	return firstErr
}
