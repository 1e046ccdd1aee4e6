package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"regexp"
	"strings"
)

// StaticDimensions is the embedding dimension of the static embedder.
const StaticDimensions = 256

// staticModelName identifies the static embedder in index metadata.
const staticModelName = "static-hash-v1"

var staticTokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// StaticEmbedder produces deterministic hash-based embeddings with no
// model and no network. Quality is far below a learned model; it exists
// as the offline fallback and as a test double that keeps the vector
// signal exercised end-to-end.
type StaticEmbedder struct{}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed hashes each token into a dimension bucket and normalizes the
// accumulated vector to unit length. Identical text always yields an
// identical vector.
func (s *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, StaticDimensions)

	for _, token := range staticTokenRegex.FindAllString(strings.ToLower(text), -1) {
		h := sha256.Sum256([]byte(token))
		idx := binary.LittleEndian.Uint32(h[0:4]) % StaticDimensions
		sign := float32(1)
		if h[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		inv := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text independently.
func (s *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the static embedding dimension.
func (s *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the static model identifier.
func (s *StaticEmbedder) ModelName() string { return staticModelName }

// Close is a no-op.
func (s *StaticEmbedder) Close() error { return nil }
