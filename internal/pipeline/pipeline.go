// Package pipeline runs one topic through fetch, clean, enrich, graph
// upsert and index build.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/ingestion"
	"github.com/newsgraph/backend/internal/kg/builder"
	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/news"
	"github.com/newsgraph/backend/internal/retrieval"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

// ErrNoArticles means nothing survived cleaning and enrichment, so there
// is nothing to answer questions about.
var ErrNoArticles = errors.New("no articles to process")

type Enricher interface {
	EnrichAll(ctx context.Context, articles []models.EnrichedArticle) []models.EnrichedArticle
}

type GraphUpserter interface {
	Upsert(ctx context.Context, articles []models.EnrichedArticle) (builder.Stats, error)
}

type IndexBuilder interface {
	Build(ctx context.Context, articles []models.EnrichedArticle) (*retrieval.Index, error)
}

// Expander replaces truncated article content before enrichment.
type Expander interface {
	ExpandAll(ctx context.Context, articles []models.EnrichedArticle) []models.EnrichedArticle
}

// Recorder persists topic runs. Failures are logged only.
type Recorder interface {
	InsertTopic(topic *models.Topic) error
	InsertArticles(topicID string, articles []models.EnrichedArticle) error
}

type Config struct {
	Page     int
	PageSize int
}

type Pipeline struct {
	fetcher  news.Fetcher
	enricher Enricher
	graph    GraphUpserter
	indexer  IndexBuilder
	recorder Recorder
	expander Expander
	cfg      Config
}

type Result struct {
	TopicID    string
	Topic      string
	Articles   []models.EnrichedArticle
	Index      *retrieval.Index
	GraphStats builder.Stats
	// GraphErr is set when the graph store could not be written at all.
	GraphErr error
}

// New wires the stages. graph and recorder may be nil.
func New(fetcher news.Fetcher, enricher Enricher, graph GraphUpserter, indexer IndexBuilder, recorder Recorder, cfg Config) *Pipeline {
	if cfg.Page <= 0 {
		cfg.Page = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	return &Pipeline{
		fetcher:  fetcher,
		enricher: enricher,
		graph:    graph,
		indexer:  indexer,
		recorder: recorder,
		cfg:      cfg,
	}
}

// SetExpander enables full-text expansion of truncated articles.
func (p *Pipeline) SetExpander(e Expander) {
	p.expander = e
}

func (p *Pipeline) Run(ctx context.Context, topic string) (*Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	start := time.Now()
	result := &Result{TopicID: uuid.New().String(), Topic: topic}

	logger.Info("Pipeline started", zap.String("topic_id", result.TopicID), zap.String("topic", topic))

	raws, err := p.fetcher.Fetch(ctx, topic, p.cfg.Page, p.cfg.PageSize)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("fetch_failed").Inc()
		return nil, fmt.Errorf("failed to fetch articles: %w", err)
	}
	metrics.ArticlesFetched.Add(float64(len(raws)))

	cleaned := ingestion.CleanAll(raws)
	if p.expander != nil {
		cleaned = p.expander.ExpandAll(ctx, cleaned)
	}
	enriched := p.enricher.EnrichAll(ctx, cleaned)
	if len(enriched) == 0 {
		metrics.PipelineRuns.WithLabelValues("empty").Inc()
		return nil, ErrNoArticles
	}
	result.Articles = enriched

	if p.graph != nil {
		stats, err := p.graph.Upsert(ctx, enriched)
		result.GraphStats = stats
		if err != nil {
			logger.Error("Knowledge graph update failed", zap.Error(err))
			result.GraphErr = err
		}
	}

	index, err := p.indexer.Build(ctx, enriched)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("index_failed").Inc()
		return nil, fmt.Errorf("failed to build retrieval index: %w", err)
	}
	result.Index = index

	p.record(result)

	metrics.PipelineRuns.WithLabelValues("success").Inc()
	logger.Info("Pipeline completed",
		zap.String("topic_id", result.TopicID),
		zap.Int("fetched", len(raws)),
		zap.Int("cleaned", len(cleaned)),
		zap.Int("enriched", len(enriched)),
		zap.Int("chunks", index.Chunks()),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (p *Pipeline) record(r *Result) {
	if p.recorder == nil {
		return
	}

	err := p.recorder.InsertTopic(&models.Topic{
		ID:           r.TopicID,
		Query:        r.Topic,
		ArticleCount: len(r.Articles),
		ChunkCount:   r.Index.Chunks(),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record topic", zap.Error(err))
		return
	}

	if err := p.recorder.InsertArticles(r.TopicID, r.Articles); err != nil {
		logger.Warn("Failed to record topic articles", zap.Error(err))
	}
}
