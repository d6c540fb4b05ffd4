// Package embedder turns text into dense vectors for similarity search.
//
// The Provider wraps a real model backend behind a one-time lazy load and
// falls back to a deterministic hash embedding whenever that backend is
// missing or misbehaves, so callers always get a vector of the configured
// dimension.
package embedder

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a backend produces a vector of the
// wrong length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// KnownDimensions maps embedding model names to their output dimension.
var KnownDimensions = map[string]int{
	"all-minilm":             384,
	"all-MiniLM-L6-v2":       384,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"snowflake-arctic-embed": 1024,
}

// DimensionFor returns the known dimension for a model, or fallback if the
// model is not listed.
func DimensionFor(model string, fallback int) int {
	if d, ok := KnownDimensions[model]; ok {
		return d
	}
	return fallback
}
