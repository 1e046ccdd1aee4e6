package embed

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI defaults.
const (
	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultOpenAIDimensions = 1536
)

// OpenAIConfig configures the OpenAI-compatible embedder.
// BaseURL supports any provider speaking the OpenAI embeddings API.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible endpoint.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Embed returns the embedding for a single text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in API-sized batches, preserving input order.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	o.mu.RLock()
	if o.closed {
		o.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	o.mu.RUnlock()

	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += o.config.BatchSize {
		end := start + o.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(o.config.Model),
			Dimensions: o.config.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs",
				len(resp.Data), end-start)
		}

		for _, item := range resp.Data {
			if len(item.Embedding) != o.config.Dimensions {
				return nil, fmt.Errorf("openai returned %d-dim embedding, expected %d",
					len(item.Embedding), o.config.Dimensions)
			}
			out = append(out, item.Embedding)
		}
	}

	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (o *OpenAIEmbedder) Dimensions() int { return o.config.Dimensions }

// ModelName returns the model identifier.
func (o *OpenAIEmbedder) ModelName() string { return "openai/" + o.config.Model }

// Close marks the embedder closed.
func (o *OpenAIEmbedder) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}
