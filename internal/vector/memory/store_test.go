package memory

import (
	"context"
	"testing"

	"github.com/newsgraph/backend/internal/vector"
)

func load(t *testing.T, vecs ...[]float32) *Store {
	t.Helper()
	s, err := NewStore(len(vecs[0]))
	if err != nil {
		t.Fatal(err)
	}
	chunks := make([]vector.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = vector.Chunk{ID: string(rune('a' + i)), Position: i, Text: string(rune('a' + i)), Embedding: v}
	}
	if err := s.Insert(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearch_IdenticalVectorRanksFirst(t *testing.T) {
	s := load(t, []float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0.6, 0.8, 0})

	got, err := s.Search(context.Background(), []float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSearch_NeverReturnsMoreThanK(t *testing.T) {
	s := load(t, []float32{1, 0}, []float32{0, 1})

	got, _ := s.Search(context.Background(), []float32{1, 1}, 8)
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("ties should keep insertion order, got %s first", got[0].ID)
	}

	none, _ := s.Search(context.Background(), []float32{1, 1}, 0)
	if len(none) != 0 {
		t.Error("k=0 should return nothing")
	}
}

func TestStore_ValidatesDimensions(t *testing.T) {
	s := load(t, []float32{1, 0})
	if err := s.Insert(context.Background(), []vector.Chunk{{Embedding: []float32{1}}}); err == nil {
		t.Error("expected dimension mismatch")
	}
	if _, err := s.Search(context.Background(), []float32{1, 0, 0}, 1); err == nil {
		t.Error("expected query dimension mismatch")
	}
	if _, err := NewStore(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
}

func TestDrop_Clears(t *testing.T) {
	s := load(t, []float32{1, 0})
	if err := s.Drop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 0 {
		t.Errorf("size after drop = %d", s.Size())
	}
}

func TestProvider_StoresAreIndependent(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	a, err := p.Create(ctx, "a", 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Create(ctx, "b", 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Insert(ctx, []vector.Chunk{{ID: "x", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	if a.Size() != 1 || b.Size() != 0 {
		t.Errorf("sizes = %d, %d", a.Size(), b.Size())
	}
}
