package embeddings

import "errors"

var (
	// ErrEmbedding is returned when a provider call fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmbeddingUnavailable is returned when the configured provider has no
	// usable credential. Callers should surface this as "search/indexing
	// temporarily disabled" rather than a hard failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrEmptyEmbeddingPayload is returned when the text to embed is empty
	// after joining and trimming. No provider call is made.
	ErrEmptyEmbeddingPayload = errors.New("empty embedding payload")

	// ErrUnsupportedProvider is returned for provider ids without an implementation.
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
)
