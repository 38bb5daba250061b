// Package memory is a brute-force cosine similarity store.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/newsgraph/backend/internal/vector"
)

// Provider hands out independent in-process stores.
type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Create(ctx context.Context, name string, dimensions int) (vector.Store, error) {
	return NewStore(dimensions)
}

type Store struct {
	dimensions int
	chunks     []vector.Chunk
	norms      []float64
	mu         sync.RWMutex
}

func NewStore(dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &Store{dimensions: dimensions}, nil
}

func (s *Store) Insert(ctx context.Context, chunks []vector.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(c.Embedding), s.dimensions)
		}
		vec := make([]float32, s.dimensions)
		copy(vec, c.Embedding)
		c.Embedding = vec
		s.chunks = append(s.chunks, c)
		s.norms = append(s.norms, l2Norm(vec))
	}
	return nil
}

// Search ranks by cosine similarity. Equal scores keep insertion order.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vector.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions)
	}
	if k <= 0 || len(s.chunks) == 0 {
		return nil, nil
	}

	qNorm := l2Norm(query)
	results := make([]vector.Result, len(s.chunks))
	for i, c := range s.chunks {
		var dot float64
		for j := range query {
			dot += float64(query[j] * c.Embedding[j])
		}
		score := 0.0
		if qNorm > 0 && s.norms[i] > 0 {
			score = dot / (qNorm * s.norms[i])
		}
		results[i] = vector.Result{ID: c.ID, Position: c.Position, Text: c.Text, Score: score}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Store) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.norms = nil
	return nil
}

func l2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}
