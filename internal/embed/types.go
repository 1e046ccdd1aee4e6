// Package embed provides the embedding capability behind the vector
// signal: local Ollama, OpenAI-compatible APIs, and a deterministic
// static fallback, with LRU caching for repeated query embeddings.
package embed

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch size to prevent memory exhaustion.
	MaxBatchSize = 256

	// DefaultTimeout is the per-request timeout for embedding calls.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultBatchConcurrency bounds concurrent batch requests.
	DefaultBatchConcurrency = 4
)

// Embedder converts text into dense vectors.
//
// Implementations must be safe for concurrent use: the search pipeline
// embeds queries from arbitrary goroutines.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier for index compatibility checks.
	ModelName() string

	// Close releases resources.
	Close() error
}
