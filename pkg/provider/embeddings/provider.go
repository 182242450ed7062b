// Package embeddings defines the interface for text-embedding backends used
// by the transcript archive for similarity search.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Embed is called with blank input.
var ErrEmptyText = errors.New("embeddings: empty text")

// Provider maps text to a dense vector. Every vector returned by one
// Provider has length Dimensions(); vectors from different models must not
// be compared.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one request. The i-th vector belongs to
	// texts[i]. On error no partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length, or 0 when not yet known.
	Dimensions() int

	// ModelID names the embedding model.
	ModelID() string
}
