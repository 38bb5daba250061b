package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/newsgraph/backend/internal/embedding"
	"github.com/newsgraph/backend/internal/enrichment"
	"github.com/newsgraph/backend/internal/kg/builder"
	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/kg/memgraph"
	"github.com/newsgraph/backend/internal/news"
	"github.com/newsgraph/backend/internal/retrieval"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/internal/vector/memory"
)

func strPtr(s string) *string { return &s }

type fakeFetcher struct {
	articles []models.RawArticle
	err      error
	query    string
}

func (f *fakeFetcher) Fetch(_ context.Context, query string, page, pageSize int) ([]models.RawArticle, error) {
	f.query = query
	return f.articles, f.err
}

type keywordNER struct{}

func (keywordNER) RecognizeEntities(_ context.Context, text string) ([]models.Entity, error) {
	var out []models.Entity
	for _, name := range []string{"Tesla", "Vestas", "OpenAI"} {
		if strings.Contains(text, name) {
			out = append(out, models.Entity{Name: name, Type: "ORG"})
		}
	}
	return out, nil
}

type fixedSentiment string

func (f fixedSentiment) ClassifySentiment(context.Context, string) (string, error) {
	return string(f), nil
}

type firstSentence struct{}

func (firstSentence) Answer(_ context.Context, _, passage string) (string, error) {
	if i := strings.Index(passage, "."); i > 0 {
		return passage[:i], nil
	}
	return "", nil
}

type memRecorder struct {
	topics   []*models.Topic
	articles int
}

func (m *memRecorder) InsertTopic(t *models.Topic) error {
	m.topics = append(m.topics, t)
	return nil
}

func (m *memRecorder) InsertArticles(_ string, a []models.EnrichedArticle) error {
	m.articles += len(a)
	return nil
}

type brokenGraph struct{}

func (brokenGraph) Upsert(context.Context, []models.EnrichedArticle) (builder.Stats, error) {
	return builder.Stats{}, errors.New("neo4j unreachable")
}

func renewableArticles() []models.RawArticle {
	return []models.RawArticle{
		{
			Title:       strPtr("Tesla expands solar"),
			Content:     strPtr("<p>Tesla expands its solar business. Shares rose.</p>"),
			PublishedAt: strPtr("2024-03-01T10:00:00Z"),
			Source:      &models.ArticleSource{Name: strPtr("Reuters")},
			URL:         strPtr("https://example.com/tesla"),
		},
		{
			Title:   strPtr("Vestas wins wind order"),
			Content: strPtr("Vestas wins a large wind turbine order. Analysts cheered."),
			Source:  &models.ArticleSource{Name: strPtr("Bloomberg")},
		},
		{
			Title:       strPtr("Broken timestamp"),
			PublishedAt: strPtr("yesterday"),
		},
	}
}

func newPipeline(f news.Fetcher, g GraphUpserter, rec Recorder) *Pipeline {
	enricher := enrichment.NewEnricher(keywordNER{}, fixedSentiment("positive"), firstSentence{}, "")
	indexer := retrieval.NewIndexer(embedding.NewHashEmbedder(128), memory.NewProvider(), retrieval.Config{ChunkSize: 200, ChunkOverlap: 40})
	return New(f, enricher, g, indexer, rec, Config{PageSize: 30})
}

func TestRun_RenewableEnergy(t *testing.T) {
	store := memgraph.New()
	rec := &memRecorder{}
	fetcher := &fakeFetcher{articles: renewableArticles()}
	p := newPipeline(fetcher, builder.NewBuilder(store, graph.ScopeGlobal), rec)

	res, err := p.Run(context.Background(), "  renewable energy ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.query != "renewable energy" {
		t.Errorf("query = %q", fetcher.query)
	}
	if len(res.Articles) != 2 {
		t.Fatalf("articles = %d, want 2 (bad timestamp dropped)", len(res.Articles))
	}
	if res.Articles[0].Relationship != "Tesla expands its solar business" {
		t.Errorf("relationship = %q", res.Articles[0].Relationship)
	}
	if res.GraphStats.Articles != 2 || res.GraphErr != nil {
		t.Errorf("graph stats = %+v, err = %v", res.GraphStats, res.GraphErr)
	}

	nodes, edges := store.Counts()
	if nodes[graph.LabelSentiment] != 1 || edges[graph.EdgeHasSentiment] != 2 {
		t.Errorf("nodes=%v edges=%v", nodes, edges)
	}

	hits, err := res.Index.Search(context.Background(), "Vestas wind", 1)
	if err != nil || len(hits) != 1 || !strings.Contains(hits[0].Text, "Vestas") {
		t.Errorf("hits = %+v, err = %v", hits, err)
	}

	if len(rec.topics) != 1 || rec.topics[0].ArticleCount != 2 || rec.articles != 2 {
		t.Errorf("recorded topics=%+v articles=%d", rec.topics, rec.articles)
	}
}

func TestRun_FetchFailureIsFatal(t *testing.T) {
	apiErr := &news.APIError{StatusCode: 401, Message: "apiKeyInvalid"}
	p := newPipeline(&fakeFetcher{err: apiErr}, nil, nil)

	_, err := p.Run(context.Background(), "topic")
	var got *news.APIError
	if !errors.As(err, &got) || got.StatusCode != 401 {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_NoArticles(t *testing.T) {
	p := newPipeline(&fakeFetcher{}, nil, nil)
	if _, err := p.Run(context.Background(), "topic"); !errors.Is(err, ErrNoArticles) {
		t.Errorf("err = %v, want ErrNoArticles", err)
	}
}

func TestRun_GraphFailureDoesNotStopIndexing(t *testing.T) {
	p := newPipeline(&fakeFetcher{articles: renewableArticles()}, brokenGraph{}, nil)

	res, err := p.Run(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.GraphErr == nil || res.Index == nil {
		t.Errorf("GraphErr = %v, Index = %v", res.GraphErr, res.Index)
	}
}

func TestRun_EmptyTopic(t *testing.T) {
	p := newPipeline(&fakeFetcher{}, nil, nil)
	if _, err := p.Run(context.Background(), "   "); err == nil {
		t.Error("expected error")
	}
}

type suffixExpander struct{ calls int }

func (e *suffixExpander) ExpandAll(_ context.Context, articles []models.EnrichedArticle) []models.EnrichedArticle {
	e.calls++
	out := make([]models.EnrichedArticle, len(articles))
	for i, a := range articles {
		a.Content += " Vestas joined later."
		out[i] = a
	}
	return out
}

func TestRun_ExpanderRunsBeforeEnrichment(t *testing.T) {
	f := &fakeFetcher{articles: []models.RawArticle{{
		Title:   strPtr("Tesla update"),
		Content: strPtr("Tesla grew."),
		Source:  &models.ArticleSource{Name: strPtr("Wire")},
	}}}
	exp := &suffixExpander{}

	p := newPipeline(f, nil, nil)
	p.SetExpander(exp)

	result, err := p.Run(context.Background(), "tesla")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exp.calls != 1 {
		t.Errorf("expander calls = %d, want 1", exp.calls)
	}
	if !strings.Contains(result.Articles[0].Entities, "Vestas (ORG)") {
		t.Errorf("entities = %q, want expanded text to be enriched", result.Articles[0].Entities)
	}
}
