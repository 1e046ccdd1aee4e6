// Package config loads CodeAtlas configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	atlaserr "github.com/Aman-CERP/codeatlas/internal/errors"
)

// ConfigFileName is the per-project config file.
const ConfigFileName = ".codeatlas.yaml"

// Config is the complete CodeAtlas configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IndexConfig locates the on-disk index.
type IndexConfig struct {
	// Dir is the index directory. Empty resolves to
	// ~/.codeatlas/<project-name> at open time.
	Dir string `yaml:"dir"`
}

// SearchConfig holds the retrieval pipeline knobs.
type SearchConfig struct {
	// GraphDepth is the k-hop expansion depth (0-5).
	GraphDepth int `yaml:"graph_depth"`

	// GraphFanout bounds neighbors expanded per node.
	GraphFanout int `yaml:"graph_fanout"`

	// ScoreGapRatio cuts the result tail where a score falls below
	// this fraction of its predecessor.
	ScoreGapRatio float64 `yaml:"score_gap_ratio"`

	// ScoreGapMinKeep is the minimum result count kept regardless of gaps.
	ScoreGapMinKeep int `yaml:"score_gap_min_keep"`

	// RerankPoolSize is the candidate pool handed to a reranker.
	RerankPoolSize int `yaml:"rerank_pool_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Backend selects the provider: ollama, openai, static, none.
	Backend string `yaml:"backend"`

	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Host       string        `yaml:"host"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			GraphDepth:      2,
			GraphFanout:     50,
			ScoreGapRatio:   0.4,
			ScoreGapMinKeep: 3,
			RerankPoolSize:  50,
		},
		Embeddings: EmbeddingsConfig{
			Backend:    "ollama",
			Dimensions: 768,
			Timeout:    60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, atlaserr.Wrap(atlaserr.ErrCodeConfigNotFound, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, atlaserr.New(atlaserr.ErrCodeConfigInvalid,
				fmt.Sprintf("parse %s: %v", path, err), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadProject loads the project config from root/.codeatlas.yaml.
func LoadProject(root string) (*Config, error) {
	return Load(filepath.Join(root, ConfigFileName))
}

// applyEnv applies CODEATLAS_* environment overrides on top of the
// file values. Env vars win so operators can tune without editing
// checked-in config.
func (c *Config) applyEnv() {
	if v := os.Getenv("CODEATLAS_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("CODEATLAS_EMBED_BACKEND"); v != "" {
		c.Embeddings.Backend = v
	}
	if v := os.Getenv("CODEATLAS_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEATLAS_EMBED_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("CODEATLAS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("CODEATLAS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODEATLAS_GRAPH_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.GraphDepth = n
		}
	}
}

// Validate checks value ranges, clamping where a hard cap exists.
func (c *Config) Validate() error {
	if c.Search.GraphDepth < 0 || c.Search.GraphDepth > 5 {
		return atlaserr.New(atlaserr.ErrCodeConfigInvalid,
			fmt.Sprintf("graph_depth must be in [0, 5], got %d", c.Search.GraphDepth), nil)
	}
	if c.Search.GraphFanout <= 0 {
		c.Search.GraphFanout = 50
	}
	if c.Search.ScoreGapRatio <= 0 || c.Search.ScoreGapRatio >= 1 {
		return atlaserr.New(atlaserr.ErrCodeConfigInvalid,
			fmt.Sprintf("score_gap_ratio must be in (0, 1), got %g", c.Search.ScoreGapRatio), nil)
	}
	if c.Search.ScoreGapMinKeep <= 0 {
		c.Search.ScoreGapMinKeep = 3
	}
	if c.Search.RerankPoolSize <= 0 {
		c.Search.RerankPoolSize = 50
	}
	if c.Search.RerankPoolSize > 100 {
		c.Search.RerankPoolSize = 100
	}
	if c.Embeddings.Dimensions <= 0 {
		return atlaserr.New(atlaserr.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	return nil
}

// IndexDir resolves the index directory for a project root.
func (c *Config) IndexDir(projectRoot string) (string, error) {
	if c.Index.Dir != "" {
		return c.Index.Dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", atlaserr.Wrap(atlaserr.ErrCodeConfigInvalid, err)
	}
	return filepath.Join(home, ".codeatlas", filepath.Base(projectRoot)), nil
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return atlaserr.Wrap(atlaserr.ErrCodeConfigInvalid, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return atlaserr.Wrap(atlaserr.ErrCodeConfigInvalid, err)
	}
	return os.WriteFile(path, data, 0o644)
}
