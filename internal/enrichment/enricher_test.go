package enrichment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/newsgraph/backend/internal/storage/models"
)

type fakeNER struct {
	calls int
	err   error
}

func (f *fakeNER) RecognizeEntities(ctx context.Context, text string) ([]models.Entity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if strings.Contains(text, "explode") {
		return nil, errors.New("model crashed")
	}
	return []models.Entity{{Name: "Apple", Type: "ORG"}, {Name: "Tim Cook", Type: "PER"}}, nil
}

type fakeSentiment struct{ label string }

func (f fakeSentiment) ClassifySentiment(ctx context.Context, text string) (string, error) {
	return f.label, nil
}

type fakeQA struct{ question string }

func (f *fakeQA) Answer(ctx context.Context, question, passage string) (string, error) {
	f.question = question
	return "Apple acquired a startup", nil
}

func TestEnrich_PopulatesFields(t *testing.T) {
	qa := &fakeQA{}
	e := NewEnricher(&fakeNER{}, fakeSentiment{label: "positive"}, qa, "")

	got, err := e.Enrich(context.Background(), models.EnrichedArticle{Title: "t", Content: "Apple bought a startup."})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	if got.Entities != "Apple (ORG); Tim Cook (PER)" {
		t.Errorf("Entities = %q", got.Entities)
	}
	if got.Sentiment != "positive" {
		t.Errorf("Sentiment = %q", got.Sentiment)
	}
	if got.Relationship != "Apple acquired a startup" {
		t.Errorf("Relationship = %q", got.Relationship)
	}
	if qa.question != DefaultQuestion {
		t.Errorf("question = %q", qa.question)
	}
	if got.Title != "t" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestEnrich_NoSentimentResultIsUnknown(t *testing.T) {
	e := NewEnricher(&fakeNER{}, fakeSentiment{}, &fakeQA{}, "")

	got, err := e.Enrich(context.Background(), models.EnrichedArticle{Content: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Sentiment != models.SentimentUnknown {
		t.Errorf("Sentiment = %q, want unknown", got.Sentiment)
	}
}

func TestEnrich_EmptyContentSkipsModels(t *testing.T) {
	ner := &fakeNER{}
	e := NewEnricher(ner, fakeSentiment{label: "positive"}, &fakeQA{}, "")

	got, err := e.Enrich(context.Background(), models.EnrichedArticle{Content: "  "})
	if err != nil {
		t.Fatal(err)
	}
	if got.Entities != "" || got.Relationship != "" || got.Sentiment != models.SentimentUnknown {
		t.Errorf("got %+v", got)
	}
	if ner.calls != 0 {
		t.Errorf("NER called %d times for empty input", ner.calls)
	}
}

func TestEnrichAll_SkipsFailingArticle(t *testing.T) {
	e := NewEnricher(&fakeNER{}, fakeSentiment{label: "neutral"}, &fakeQA{}, "")

	articles := []models.EnrichedArticle{
		{Title: "first", Content: "fine"},
		{Title: "broken", Content: "this will explode"},
		{Title: "third", Content: "also fine"},
	}

	got := e.EnrichAll(context.Background(), articles)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "first" || got[1].Title != "third" {
		t.Errorf("titles = %q, %q", got[0].Title, got[1].Title)
	}
}

func TestEnrich_PropagatesError(t *testing.T) {
	sentinel := errors.New("ner down")
	e := NewEnricher(&fakeNER{err: sentinel}, fakeSentiment{}, &fakeQA{}, "")

	_, err := e.Enrich(context.Background(), models.EnrichedArticle{Content: "text"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}
