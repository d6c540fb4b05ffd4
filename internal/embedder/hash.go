package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashModelName is reported by HashEmbedder.
const HashModelName = "sha256-fallback"

// HashEmbedder produces deterministic pseudo-embeddings from a SHA-256
// stream over the input. Output has exactly the configured dimension, each
// component in [-1, 1], and unit L2 norm. It never fails.
//
// The vectors carry no semantic meaning; they only keep the pipeline
// running when the real model is unavailable.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a fallback embedder of the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Vector returns the fallback embedding for text.
func (h *HashEmbedder) Vector(text string) []float32 {
	out := make([]float32, h.dimension)

	// Each SHA-256 block yields eight 32-bit words; the block counter is
	// prefixed to the input so blocks differ.
	const wordsPerBlock = sha256.Size / 4
	buf := make([]byte, 4+len(text))
	copy(buf[4:], text)

	var block [sha256.Size]byte
	var sumSquares float64
	for i := range out {
		if i%wordsPerBlock == 0 {
			binary.BigEndian.PutUint32(buf[:4], uint32(i/wordsPerBlock))
			block = sha256.Sum256(buf)
		}
		word := binary.BigEndian.Uint32(block[(i%wordsPerBlock)*4:])
		v := float64(word)/math.MaxUint32*2 - 1
		out[i] = float32(v)
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		out[0] = 1
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return h.Vector(text), nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// ModelName returns HashModelName.
func (h *HashEmbedder) ModelName() string {
	return HashModelName
}

var _ Embedder = (*HashEmbedder)(nil)
