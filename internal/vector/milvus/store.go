// Package milvus stores retrieval chunks in Milvus (or Zilliz Cloud)
// collections.
package milvus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/vector"
	"github.com/newsgraph/backend/pkg/logger"
)

const (
	fieldID        = "chunk_id"
	fieldPosition  = "position"
	fieldText      = "text"
	fieldEmbedding = "embedding"

	maxTextLength = 16384
)

// Client creates one collection per index build, named after a shared
// prefix.
type Client struct {
	client client.Client
	prefix string
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionPrefix string) (*Client, error) {
	cfg := client.Config{Address: endpoint}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.EnableTLSAuth = true
	}

	c, err := client.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection_prefix", collectionPrefix),
	)

	return &Client{
		client: c,
		prefix: collectionPrefix,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Create makes an empty, indexed and loaded collection for one build.
func (c *Client) Create(ctx context.Context, name string, dimensions int) (vector.Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	collection := collectionName(c.prefix, name)

	has, err := c.client.HasCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		if err := c.client.DropCollection(ctx, collection); err != nil {
			return nil, fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	err = c.client.CreateCollection(ctx, schema(collection, dimensions), entity.DefaultShardNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	s := &Store{client: c.client, collectionName: collection, vectorDim: dimensions}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
	if err != nil {
		s.dropQuietly(ctx)
		return nil, fmt.Errorf("failed to build index params: %w", err)
	}
	if err := c.client.CreateIndex(ctx, collection, fieldEmbedding, idx, false); err != nil {
		s.dropQuietly(ctx)
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if err := c.client.LoadCollection(ctx, collection, false); err != nil {
		s.dropQuietly(ctx)
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded",
		zap.String("collection", collection),
		zap.Int("dimensions", dimensions),
	)

	return s, nil
}

// collectionName keeps only characters Milvus accepts in collection names.
func collectionName(prefix, name string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Store is one build's collection.
type Store struct {
	client         client.Client
	collectionName string
	vectorDim      int

	mu   sync.RWMutex
	size int
}

func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Drop(ctx context.Context) error {
	if err := s.client.DropCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	s.mu.Lock()
	s.size = 0
	s.mu.Unlock()
	logger.Info("Collection dropped", zap.String("collection", s.collectionName))
	return nil
}

func (s *Store) dropQuietly(ctx context.Context) {
	if err := s.Drop(ctx); err != nil {
		logger.Warn("Failed to drop partial collection", zap.String("collection", s.collectionName), zap.Error(err))
	}
}

func (s *Store) Insert(ctx context.Context, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := s.vectorDim

	ids, positions, texts, embeddings, err := columns(chunks, dim)
	if err != nil {
		return err
	}

	_, err = s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnInt64(fieldPosition, positions),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnFloatVector(fieldEmbedding, dim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = s.client.Flush(ctx, s.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	s.mu.Lock()
	s.size += len(chunks)
	s.mu.Unlock()

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vector.Result, error) {
	if k <= 0 {
		return nil, nil
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		"",
		[]string{fieldID, fieldPosition, fieldText},
		[]entity.Vector{entity.FloatVector(query)},
		fieldEmbedding,
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.Result, 0, k)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn(fieldID)
		posCol := sr.Fields.GetColumn(fieldPosition)
		textCol := sr.Fields.GetColumn(fieldText)
		if idCol == nil || posCol == nil || textCol == nil {
			return nil, fmt.Errorf("search result is missing output fields")
		}

		for i := 0; i < sr.ResultCount; i++ {
			id, err := idCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", fieldID, err)
			}
			pos, err := posCol.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", fieldPosition, err)
			}
			text, err := textCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", fieldText, err)
			}

			results = append(results, vector.Result{
				ID:       id,
				Position: int(pos),
				Text:     text,
				Score:    float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func schema(name string, dimensions int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "Enriched news article chunks",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldPosition,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldText,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": fmt.Sprintf("%d", maxTextLength),
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", dimensions),
				},
			},
		},
	}
}

func columns(chunks []vector.Chunk, dim int) ([]string, []int64, []string, [][]float32, error) {
	ids := make([]string, len(chunks))
	positions := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))

	for i, chunk := range chunks {
		if len(chunk.Embedding) != dim {
			return nil, nil, nil, nil, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(chunk.Embedding), dim)
		}
		if len(chunk.Text) > maxTextLength {
			return nil, nil, nil, nil, fmt.Errorf("chunk %s exceeds %d bytes", chunk.ID, maxTextLength)
		}
		ids[i] = chunk.ID
		positions[i] = int64(chunk.Position)
		texts[i] = chunk.Text
		embeddings[i] = chunk.Embedding
	}
	return ids, positions, texts, embeddings, nil
}
