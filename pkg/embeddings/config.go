package embeddings

import "time"

// Provider ids.
const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderMistral = "mistral"
	ProviderGoogle  = "google"
	ProviderBedrock = "bedrock"
)

// ProviderConfig is the active embedding provider configuration. It decides
// the width of every vector written to the store.
type ProviderConfig struct {
	ProviderID string `json:"provider_id" toml:"provider_id"`
	Model      string `json:"model" toml:"model"`
	Dimension  int    `json:"dimension" toml:"dimension"`

	// OutputDimensionality truncates the provider output for models that
	// support it. Zero means unset.
	OutputDimensionality int `json:"output_dimensionality,omitempty" toml:"output_dimensionality,omitempty"`

	BaseURL   string    `json:"base_url,omitempty" toml:"base_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at" toml:"updated_at"`
}

// EffectiveDimension is the vector length the provider actually produces.
func (c ProviderConfig) EffectiveDimension() int {
	if c.OutputDimensionality > 0 {
		return c.OutputDimensionality
	}
	return c.Dimension
}

type providerDefaults struct {
	model     string
	dimension int
}

var defaultsByProvider = map[string]providerDefaults{
	ProviderOllama:  {model: "nomic-embed-text", dimension: 768},
	ProviderOpenAI:  {model: "text-embedding-3-small", dimension: 1536},
	ProviderMistral: {model: "mistral-embed", dimension: 1024},
	ProviderGoogle:  {model: "text-embedding-004", dimension: 768},
	ProviderBedrock: {model: "amazon.titan-embed-text-v2:0", dimension: 1024},
}

// WithDefaults fills an empty model or dimension from the provider's defaults.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	d, ok := defaultsByProvider[c.ProviderID]
	if !ok {
		return c
	}
	if c.Model == "" {
		c.Model = d.model
	}
	if c.Dimension == 0 {
		c.Dimension = d.dimension
	}
	return c
}

// SupportedProviders returns every provider id with an implementation.
func SupportedProviders() []string {
	return []string{ProviderOllama, ProviderOpenAI, ProviderMistral, ProviderGoogle, ProviderBedrock}
}
