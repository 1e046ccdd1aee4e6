package embed

import (
	"fmt"
	"log/slog"
	"time"
)

// Backend names accepted by the factory.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendStatic = "static"
	BackendNone   = "none"
)

// Config selects and configures an embedding backend.
type Config struct {
	Backend    string
	Model      string
	Dimensions int
	Host       string // Ollama host or OpenAI-compatible base URL
	APIKey     string
	Timeout    time.Duration
	CacheSize  int
}

// New creates the configured embedder wrapped in an LRU cache.
// Returns (nil, nil) for the "none" backend: the vector signal is
// simply skipped. Unknown backends fall back to the static embedder
// with a warning rather than failing search outright.
func New(cfg Config) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendOllama, "":
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case BackendOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
	case BackendStatic:
		inner = NewStaticEmbedder()
	default:
		slog.Warn("unknown embedding backend, falling back to static",
			slog.String("backend", cfg.Backend))
		inner = NewStaticEmbedder()
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
