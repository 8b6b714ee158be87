// Package bedrock implements an Embedder for Amazon Titan text embedding
// models served through Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Invoker is the subset of the bedrockruntime client the embedder calls.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Embedder wraps the Bedrock InvokeModel API for Titan embeddings.
type Embedder struct {
	client     Invoker
	model      string
	dimensions int
}

// EmbedderConfig holds configuration for the Bedrock embedder.
type EmbedderConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Model           string

	// Dimensions selects the Titan v2 output width. Zero leaves the model default.
	Dimensions int

	// Client overrides the Bedrock runtime client. Used by tests.
	Client Invoker
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewEmbedder creates a new Bedrock embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	client := cfg.Client
	if client == nil {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("access key id and secret access key are required")
		}

		region := cfg.Region
		if region == "" {
			region = DefaultRegion
		}

		client = bedrockruntime.New(bedrockruntime.Options{
			Region: region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
			),
		})
	}

	return &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{
		InputText:  text,
		Dimensions: e.dimensions,
		Normalize:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invoking model: %v", embeddings.ErrEmbedding, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrEmbedding, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", embeddings.ErrEmbedding)
	}

	return resp.Embedding, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
