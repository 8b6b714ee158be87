package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// MockEmbedder is a test embedder that returns predictable embeddings and
// counts how often it is called.
type MockEmbedder struct {
	mu         sync.Mutex
	Embeddings map[string][]float32

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	// Dimensions is the width of generated vectors. Defaults to 4.
	Dimensions int

	calls  atomic.Int64
	inputs []string
	closed atomic.Bool
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dimensions: 4,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)

	m.mu.Lock()
	m.inputs = append(m.inputs, text)
	emb, ok := m.Embeddings[text]
	m.mu.Unlock()

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}
	if ok {
		return emb, nil
	}
	return HashVector(text, m.Dimensions), nil
}

func (m *MockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}

// Inputs returns every text passed to Embed, in order.
func (m *MockEmbedder) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

// Closed reports whether Close was called.
func (m *MockEmbedder) Closed() bool {
	return m.closed.Load()
}

// HashVector derives a deterministic, non-zero vector from text so that
// different texts get different embeddings.
func HashVector(text string, dims int) []float32 {
	if dims <= 0 {
		dims = 4
	}
	v := make([]float32, dims)
	for i := range v {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		v[i] = float32(h.Sum32()%1000)/1000 + 0.001
	}
	return v
}
