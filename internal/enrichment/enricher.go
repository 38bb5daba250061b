// Package enrichment derives entities, sentiment and a relationship phrase
// from each cleaned article through swappable model ports.
package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

// DefaultQuestion is asked of every article to extract its relationship claim.
const DefaultQuestion = "What is the relationship described in this text?"

// EntityRecognizer performs token classification over text.
type EntityRecognizer interface {
	RecognizeEntities(ctx context.Context, text string) ([]models.Entity, error)
}

// SentimentClassifier returns the top label for text, or "" when the model
// produced no result.
type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (string, error)
}

// QuestionAnswerer returns a verbatim span of passage answering question,
// or "" when there is none.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question, passage string) (string, error)
}

type Enricher struct {
	entities  EntityRecognizer
	sentiment SentimentClassifier
	answerer  QuestionAnswerer
	question  string
}

func NewEnricher(entities EntityRecognizer, sentiment SentimentClassifier, answerer QuestionAnswerer, question string) *Enricher {
	if question == "" {
		question = DefaultQuestion
	}
	return &Enricher{
		entities:  entities,
		sentiment: sentiment,
		answerer:  answerer,
		question:  question,
	}
}

// Enrich runs the three extractions over the article content. Any model
// error is returned unchanged in meaning; there are no retries here.
func (e *Enricher) Enrich(ctx context.Context, article models.EnrichedArticle) (models.EnrichedArticle, error) {
	text := article.Content

	entities, err := e.extractEntities(ctx, text)
	if err != nil {
		return models.EnrichedArticle{}, fmt.Errorf("entity extraction: %w", err)
	}

	sentiment, err := e.classifySentiment(ctx, text)
	if err != nil {
		return models.EnrichedArticle{}, fmt.Errorf("sentiment classification: %w", err)
	}

	relationship, err := e.extractRelationship(ctx, text)
	if err != nil {
		return models.EnrichedArticle{}, fmt.Errorf("relationship extraction: %w", err)
	}

	article.Entities = entities
	article.Sentiment = sentiment
	article.Relationship = relationship

	return article, nil
}

// EnrichAll enriches articles one at a time. An article whose extraction
// fails is logged and skipped; the batch always completes.
func (e *Enricher) EnrichAll(ctx context.Context, articles []models.EnrichedArticle) []models.EnrichedArticle {
	enriched := make([]models.EnrichedArticle, 0, len(articles))

	for _, article := range articles {
		if ctx.Err() != nil {
			logger.Warn("Enrichment interrupted", zap.Error(ctx.Err()))
			break
		}

		result, err := e.Enrich(ctx, article)
		if err != nil {
			logger.Error("Skipping article after enrichment failure",
				zap.String("title", article.Title),
				zap.Error(err),
			)
			metrics.ArticlesDropped.WithLabelValues("enrich").Inc()
			continue
		}

		metrics.ArticlesEnriched.Inc()
		enriched = append(enriched, result)
	}

	logger.Info("Articles enriched",
		zap.Int("received", len(articles)),
		zap.Int("enriched", len(enriched)),
	)

	return enriched
}

func (e *Enricher) extractEntities(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	defer observe("entities", time.Now())

	entities, err := e.entities.RecognizeEntities(ctx, text)
	if err != nil {
		return "", err
	}
	return models.FormatEntities(entities), nil
}

func (e *Enricher) classifySentiment(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return models.SentimentUnknown, nil
	}
	defer observe("sentiment", time.Now())

	label, err := e.sentiment.ClassifySentiment(ctx, text)
	if err != nil {
		return "", err
	}
	if label == "" {
		return models.SentimentUnknown, nil
	}
	return label, nil
}

func (e *Enricher) extractRelationship(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	defer observe("relationship", time.Now())

	return e.answerer.Answer(ctx, e.question, text)
}

func observe(kind string, start time.Time) {
	metrics.ExtractionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
