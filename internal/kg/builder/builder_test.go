package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/kg/memgraph"
	"github.com/newsgraph/backend/internal/storage/models"
)

func article(title, entities, sentiment, relationship string) models.EnrichedArticle {
	return models.EnrichedArticle{
		Title:        title,
		Source:       "Reuters",
		URL:          "https://example.com/" + title,
		PublishedAt:  "2024-05-01 10:00:00",
		Entities:     entities,
		Sentiment:    sentiment,
		Relationship: relationship,
	}
}

func TestUpsert_IsIdempotent(t *testing.T) {
	store := memgraph.New()
	b := NewBuilder(store, graph.ScopeGlobal)
	batch := []models.EnrichedArticle{
		article("Solar boom", "Tesla (ORG); Elon Musk (PER)", "positive", "Tesla expands solar"),
	}

	for i := 0; i < 2; i++ {
		if _, err := b.Upsert(context.Background(), batch); err != nil {
			t.Fatal(err)
		}
	}

	nodes, edges := store.Counts()
	want := map[string]int{
		graph.LabelArticle:      1,
		graph.LabelEntity:       2,
		graph.LabelSentiment:    1,
		graph.LabelRelationship: 1,
	}
	for label, n := range want {
		if nodes[label] != n {
			t.Errorf("%s nodes = %d, want %d", label, nodes[label], n)
		}
	}
	if edges[graph.EdgeMentions] != 2 || edges[graph.EdgeHasSentiment] != 1 || edges[graph.EdgeDescribes] != 1 {
		t.Errorf("edges = %v", edges)
	}
}

func TestUpsert_SharedEntityHasTwoMentions(t *testing.T) {
	store := memgraph.New()
	b := NewBuilder(store, graph.ScopeGlobal)

	stats, err := b.Upsert(context.Background(), []models.EnrichedArticle{
		article("A", "OpenAI (ORG)", "neutral", ""),
		article("B", "OpenAI (ORG)", "neutral", ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Articles != 2 {
		t.Errorf("stats = %+v", stats)
	}

	nodes, edges := store.Counts()
	if nodes[graph.LabelEntity] != 1 {
		t.Errorf("entity nodes = %d, want 1", nodes[graph.LabelEntity])
	}
	if edges[graph.EdgeMentions] != 2 {
		t.Errorf("MENTIONS = %d, want 2", edges[graph.EdgeMentions])
	}
	if nodes[graph.LabelSentiment] != 1 || edges[graph.EdgeHasSentiment] != 2 {
		t.Errorf("global sentiment should be shared: nodes=%v edges=%v", nodes, edges)
	}
}

func TestUpsert_UnknownSentimentAndEmptyRelationshipAddNothing(t *testing.T) {
	store := memgraph.New()
	b := NewBuilder(store, graph.ScopeGlobal)

	if _, err := b.Upsert(context.Background(), []models.EnrichedArticle{
		article("Quiet day", "", models.SentimentUnknown, ""),
	}); err != nil {
		t.Fatal(err)
	}

	nodes, edges := store.Counts()
	if nodes[graph.LabelArticle] != 1 || len(edges) != 0 {
		t.Errorf("nodes=%v edges=%v", nodes, edges)
	}
}

func TestUpsert_MalformedEntitySkipsArticleButKeepsBatch(t *testing.T) {
	store := memgraph.New()
	b := NewBuilder(store, graph.ScopeArticle)

	stats, err := b.Upsert(context.Background(), []models.EnrichedArticle{
		article("Broken", "Apple (ORG); no tag here", "positive", "x"),
		article("Fine", "Beta (ORG)", "positive", "y"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 || stats.Articles != 1 {
		t.Errorf("stats = %+v", stats)
	}

	nodes, edges := store.Counts()
	// The broken article keeps the writes made before the bad entity.
	if nodes[graph.LabelArticle] != 2 || edges[graph.EdgeMentions] != 2 {
		t.Errorf("nodes=%v edges=%v", nodes, edges)
	}
	if edges[graph.EdgeDescribes] != 1 {
		t.Errorf("DESCRIBES = %d, want 1", edges[graph.EdgeDescribes])
	}
}

type failingStore struct{ graph.Store }

func (failingStore) Batch(context.Context, func(graph.Writer) error) error {
	return errors.New("connection refused")
}

func TestUpsert_StoreUnavailable(t *testing.T) {
	b := NewBuilder(failingStore{}, "")
	if _, err := b.Upsert(context.Background(), []models.EnrichedArticle{article("A", "", "", "")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPaths(t *testing.T) {
	store := memgraph.New()
	b := NewBuilder(store, graph.ScopeGlobal)
	_, _ = b.Upsert(context.Background(), []models.EnrichedArticle{
		article("A", "", "negative", "merger talks"),
	})

	data, err := b.Paths(context.Background(), graph.EdgeHasSentiment, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Edges) != 1 || len(data.Nodes) != 2 {
		t.Fatalf("data = %+v", data)
	}
	if data.Nodes[1].Caption() != "negative" {
		t.Errorf("caption = %q", data.Nodes[1].Caption())
	}
}
