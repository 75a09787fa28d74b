// Package embedding turns text into fixed-length vectors via an
// external embedding API.
package embedding

import "context"

// Embedder generates fixed-dimension embedding vectors.
type Embedder interface {
	// Embed returns one vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the vector length this embedder produces.
	Dimension() int
}
