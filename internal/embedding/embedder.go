// Package embedding turns chunk and query text into dense vectors.
package embedding

import "context"

// Embedder produces vector embeddings for text. The same embedder must be
// used for indexing and for queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
