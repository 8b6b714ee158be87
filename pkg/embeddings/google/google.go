// Package google implements an Embedder for the Gemini embedContent API.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
)

// DefaultBaseURL is the Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Embedder wraps the Gemini embedding API.
type Embedder struct {
	baseURL              string
	apiKey               string
	model                string
	outputDimensionality int
	httpClient           *http.Client
}

// EmbedderConfig holds configuration for the Gemini embedder.
type EmbedderConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// OutputDimensionality truncates the returned vector. Zero leaves the model default.
	OutputDimensionality int

	HTTPClient *http.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type embedContentRequest struct {
	Content              content `json:"content"`
	OutputDimensionality int     `json:"outputDimensionality,omitempty"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewEmbedder creates a new Gemini embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Embedder{
		baseURL:              baseURL,
		apiKey:               cfg.APIKey,
		model:                cfg.Model,
		outputDimensionality: cfg.OutputDimensionality,
		httpClient:           httpClient,
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonBody, err := json.Marshal(embedContentRequest{
		Content:              content{Parts: []part{{Text: text}}},
		OutputDimensionality: e.outputDimensionality,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent", e.baseURL, url.PathEscape(e.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", embeddings.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", embeddings.ErrEmbedding, err)
	}

	var embResp embedContentResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response (status %d): %v", embeddings.ErrEmbedding, resp.StatusCode, err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("%w: gemini error %d: %s", embeddings.ErrEmbedding, embResp.Error.Code, embResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gemini returned status %d", embeddings.ErrEmbedding, resp.StatusCode)
	}
	if len(embResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrEmbedding)
	}

	return embResp.Embedding.Values, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
