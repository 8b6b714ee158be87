// Package ollama is the local embedding provider backed by Ollama's /api/embed.
// Ollama is self-hosted and needs no credentials, so it is always available.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
)

const (
	// DefaultEmbeddingModel is used when no model is configured.
	DefaultEmbeddingModel = "nomic-embed-text"

	// DefaultBaseURL is a local Ollama daemon.
	DefaultBaseURL = "http://localhost:11434"

	embedPath = "/api/embed"

	// maxErrorBody caps how much of a failed response ends up in the error.
	maxErrorBody = 4 << 10
)

// Embedder calls Ollama for one embedding per text.
type Embedder struct {
	baseURL    string
	model      string
	dimensions int
	keepAlive  string
	httpClient *http.Client
}

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Model defaults to DefaultEmbeddingModel.
	Model string

	// Dimensions asks the model for a shortened vector. Zero keeps the
	// model's native size.
	Dimensions int

	// KeepAlive controls how long Ollama keeps the model loaded after the
	// request, e.g. "5m". Empty leaves the daemon default.
	KeepAlive string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Truncate   bool   `json:"truncate"`
	Dimensions int    `json:"dimensions,omitempty"`
	KeepAlive  string `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbedder returns an Embedder for cfg.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("ollama dimensions must not be negative: %d", cfg.Dimensions)
	}

	e := &Embedder{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		keepAlive:  cfg.KeepAlive,
		httpClient: cfg.HTTPClient,
	}
	if e.baseURL == "" {
		e.baseURL = DefaultBaseURL
	}
	if e.model == "" {
		e.model = DefaultEmbeddingModel
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return e, nil
}

// Embed returns the embedding for text. Over-long input is truncated to the
// model's context window by Ollama rather than rejected.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embeddings.ErrEmptyEmbeddingPayload
	}

	resp, err := e.post(ctx, embedRequest{
		Model:      e.model,
		Input:      text,
		Truncate:   true,
		Dimensions: e.dimensions,
		KeepAlive:  e.keepAlive,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: ollama model %s returned no embeddings", embeddings.ErrEmbedding, e.model)
	}
	vec := resp.Embeddings[0]
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("%w: ollama model %s returned %d dimensions, want %d",
			embeddings.ErrEmbedding, e.model, len(vec), e.dimensions)
	}
	return vec, nil
}

func (e *Embedder) post(ctx context.Context, body embedRequest) (*embedResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+embedPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama at %s: %v", embeddings.ErrEmbedding, e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s",
			embeddings.ErrEmbedding, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrEmbedding, err)
	}
	return &out, nil
}

// Close is a no-op; the HTTP client holds no per-embedder resources.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
