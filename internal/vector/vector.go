// Package vector defines the similarity index the retrieval layer loads
// chunks into.
package vector

import "context"

type Chunk struct {
	ID        string
	Position  int
	Text      string
	Embedding []float32
}

// Result is one search hit. Higher scores are more similar.
type Result struct {
	ID       string
	Position int
	Text     string
	Score    float64
}

// Store holds the chunks of exactly one index build. Drop releases it; a
// dropped store must not be used again.
type Store interface {
	Insert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Size() int
	Drop(ctx context.Context) error
}

// Provider creates an empty Store per build, so a new build never touches
// chunks a live index is still serving.
type Provider interface {
	Create(ctx context.Context, name string, dimensions int) (Store, error)
}
