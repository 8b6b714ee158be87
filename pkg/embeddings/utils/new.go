// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/embeddings/bedrock"
	"github.com/papercomputeco/vecindex/pkg/embeddings/google"
	"github.com/papercomputeco/vecindex/pkg/embeddings/ollama"
	"github.com/papercomputeco/vecindex/pkg/embeddings/openai"
)

// NewEmbedder builds the provider embedder for cfg. Its signature matches
// embeddings.Factory.
func NewEmbedder(cfg embeddings.ProviderConfig, creds embeddings.Credentials) (embeddings.Embedder, error) {
	switch cfg.ProviderID {
	case embeddings.ProviderOllama:
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.OutputDimensionality,
		})
	case embeddings.ProviderOpenAI:
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     creds["OPENAI_API_KEY"],
			Model:      cfg.Model,
			Dimensions: cfg.OutputDimensionality,
		})
	case embeddings.ProviderMistral:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openai.MistralBaseURL
		}
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL: baseURL,
			APIKey:  creds["MISTRAL_API_KEY"],
			Model:   cfg.Model,
		})
	case embeddings.ProviderGoogle:
		return google.NewEmbedder(google.EmbedderConfig{
			BaseURL:              cfg.BaseURL,
			APIKey:               creds["GOOGLE_GENERATIVE_AI_API_KEY"],
			Model:                cfg.Model,
			OutputDimensionality: cfg.OutputDimensionality,
		})
	case embeddings.ProviderBedrock:
		return bedrock.NewEmbedder(bedrock.EmbedderConfig{
			AccessKeyID:     creds["AWS_ACCESS_KEY_ID"],
			SecretAccessKey: creds["AWS_SECRET_ACCESS_KEY"],
			SessionToken:    creds["AWS_SESSION_TOKEN"],
			Region:          creds["AWS_REGION"],
			Model:           cfg.Model,
			Dimensions:      cfg.OutputDimensionality,
		})
	default:
		return nil, fmt.Errorf("%w: %s", embeddings.ErrUnsupportedProvider, cfg.ProviderID)
	}
}

var _ embeddings.Factory = NewEmbedder
