// Package retrieval chunks enriched articles and answers nearest-neighbour
// queries over them.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/embedding"
	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/internal/vector"
	"github.com/newsgraph/backend/pkg/logger"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 8

	embedBatchSize = 32
)

var ErrNothingToIndex = errors.New("no text to index")

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type Indexer struct {
	embedder embedding.Embedder
	stores   vector.Provider
	cfg      Config
}

func NewIndexer(embedder embedding.Embedder, stores vector.Provider, cfg Config) *Indexer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Indexer{embedder: embedder, stores: stores, cfg: cfg}
}

// Build renders, chunks and embeds articles into a new store owned by the
// returned Index. Indexes built earlier are not affected.
func (ix *Indexer) Build(ctx context.Context, articles []models.EnrichedArticle) (*Index, error) {
	start := time.Now()

	texts := Split(RenderAll(articles), ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if len(texts) == 0 {
		return nil, ErrNothingToIndex
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := ix.embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), end-i)
		}
		vectors = append(vectors, batch...)
	}

	buildID := uuid.NewString()
	store, err := ix.stores.Create(ctx, strings.ReplaceAll(buildID, "-", ""), len(vectors[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	chunks := make([]vector.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = vector.Chunk{
			ID:        uuid.NewString(),
			Position:  i,
			Text:      text,
			Embedding: vectors[i],
		}
	}
	if err := store.Insert(ctx, chunks); err != nil {
		if dropErr := store.Drop(context.WithoutCancel(ctx)); dropErr != nil {
			logger.Warn("Failed to drop partial vector store", zap.Error(dropErr))
		}
		return nil, fmt.Errorf("failed to load vector store: %w", err)
	}

	metrics.ChunksIndexed.Add(float64(len(chunks)))

	logger.Info("Retrieval index built",
		zap.Int("articles", len(articles)),
		zap.Int("chunks", len(chunks)),
		zap.String("build_id", buildID),
		zap.Duration("duration", time.Since(start)),
	)

	return &Index{
		embedder: ix.embedder,
		store:    store,
		topK:     ix.cfg.TopK,
		chunks:   len(chunks),
	}, nil
}

// Index is a read-only handle on one built topic. It owns its store until
// Release.
type Index struct {
	embedder embedding.Embedder
	store    vector.Store
	topK     int
	chunks   int
}

// Release drops the underlying store. The Index must not be searched
// afterwards.
func (i *Index) Release(ctx context.Context) error {
	return i.store.Drop(ctx)
}

func (i *Index) Chunks() int {
	return i.chunks
}

// TopK returns at most k chunks, most similar first. k <= 0 uses the
// configured default.
func (i *Index) TopK(ctx context.Context, query []float32, k int) ([]vector.Result, error) {
	if k <= 0 {
		k = i.topK
	}
	return i.store.Search(ctx, query, k)
}

// Search embeds text with the same embedder used at build time and runs TopK.
func (i *Index) Search(ctx context.Context, text string, k int) ([]vector.Result, error) {
	vec, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return i.TopK(ctx, vec, k)
}

// Context joins result texts in rank order with blank lines.
func Context(results []vector.Result) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, "\n\n")
}
