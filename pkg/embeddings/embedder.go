// Package embeddings turns text into embedding vectors through a pluggable,
// credential-gated set of providers.
package embeddings

import "context"

// Embedder provides text embedding capabilities for a single provider and model.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
