package news

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

type Fetcher interface {
	Fetch(ctx context.Context, query string, page, pageSize int) ([]models.RawArticle, error)
}

type ArticleCache interface {
	GetArticles(ctx context.Context, query string, page, pageSize int) ([]models.RawArticle, bool, error)
	SetArticles(ctx context.Context, query string, page, pageSize int, articles []models.RawArticle, ttl time.Duration) error
}

// CachedFetcher serves repeated topic searches from a cache. Cache errors
// are logged and fall through to the wrapped fetcher.
type CachedFetcher struct {
	next  Fetcher
	cache ArticleCache
	ttl   time.Duration
}

func NewCachedFetcher(next Fetcher, cache ArticleCache, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}
}

func (f *CachedFetcher) Fetch(ctx context.Context, query string, page, pageSize int) ([]models.RawArticle, error) {
	articles, ok, err := f.cache.GetArticles(ctx, query, page, pageSize)
	if err != nil {
		logger.Warn("Articles cache read failed", zap.Error(err))
	}
	if ok {
		metrics.CacheHits.WithLabelValues("articles").Inc()
		return articles, nil
	}
	metrics.CacheMisses.WithLabelValues("articles").Inc()

	articles, err = f.next.Fetch(ctx, query, page, pageSize)
	if err != nil {
		return nil, err
	}

	if err := f.cache.SetArticles(ctx, query, page, pageSize, articles, f.ttl); err != nil {
		logger.Warn("Articles cache write failed", zap.Error(err))
	}
	return articles, nil
}
