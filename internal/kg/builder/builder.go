// Package builder upserts enriched articles into the knowledge graph.
package builder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

type Builder struct {
	store graph.Store
	scope graph.SentimentScope
}

// Stats counts what one Upsert call merged. Merged nodes that already
// existed are counted again.
type Stats struct {
	Articles      int `json:"articles"`
	Failed        int `json:"failed"`
	Entities      int `json:"entities"`
	Sentiments    int `json:"sentiments"`
	Relationships int `json:"relationships"`
}

func NewBuilder(store graph.Store, scope graph.SentimentScope) *Builder {
	if scope == "" {
		scope = graph.ScopeGlobal
	}
	return &Builder{store: store, scope: scope}
}

// Upsert merges every article inside one store session. A failing article
// is logged and counted; writes made for it before the failure stay. The
// returned error is only set when the session itself could not be used.
func (b *Builder) Upsert(ctx context.Context, articles []models.EnrichedArticle) (Stats, error) {
	var stats Stats

	err := b.store.Batch(ctx, func(w graph.Writer) error {
		for _, article := range articles {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := b.upsertArticle(ctx, w, article, &stats); err != nil {
				logger.Error("Error creating nodes or relationships for article",
					zap.String("title", article.Title),
					zap.Error(err),
				)
				metrics.GraphUpserts.WithLabelValues("failed").Inc()
				stats.Failed++
				continue
			}

			metrics.GraphUpserts.WithLabelValues("ok").Inc()
			stats.Articles++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("graph batch failed: %w", err)
	}

	logger.Info("Knowledge graph updated",
		zap.Int("articles", stats.Articles),
		zap.Int("failed", stats.Failed),
		zap.Int("entities", stats.Entities),
		zap.Int("sentiments", stats.Sentiments),
		zap.Int("relationships", stats.Relationships),
	)

	return stats, nil
}

func (b *Builder) upsertArticle(ctx context.Context, w graph.Writer, article models.EnrichedArticle, stats *Stats) error {
	key := graph.ArticleKey{Title: article.Title, Source: article.Source}

	if err := w.MergeArticle(ctx, key, article.URL, article.PublishedAt); err != nil {
		return fmt.Errorf("merge article: %w", err)
	}

	for _, item := range models.SplitEntities(article.Entities) {
		entity, err := models.ParseEntity(item)
		if err != nil {
			return err
		}
		if err := w.MergeEntity(ctx, key, entity); err != nil {
			return fmt.Errorf("merge entity %q: %w", entity.Name, err)
		}
		stats.Entities++
	}

	if hasSentiment(article.Sentiment) {
		if err := w.MergeSentiment(ctx, key, article.Sentiment, b.scope); err != nil {
			return fmt.Errorf("merge sentiment: %w", err)
		}
		stats.Sentiments++
	}

	if article.Relationship != "" {
		if err := w.MergeRelationship(ctx, key, article.Relationship); err != nil {
			return fmt.Errorf("merge relationship: %w", err)
		}
		stats.Relationships++
	}

	return nil
}

// Paths reads single-edge paths of one type for visualization.
func (b *Builder) Paths(ctx context.Context, edge graph.EdgeType, limit int) (*graph.Data, error) {
	return b.store.Paths(ctx, edge, limit)
}

func hasSentiment(label string) bool {
	return label != "" && label != models.SentimentUnknown
}
