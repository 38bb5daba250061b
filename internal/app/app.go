// Package app assembles the ingestion pipeline, knowledge graph, retrieval
// index and chat session from configuration. Both the HTTP server and the
// interactive CLI are built on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/cache/redis"
	"github.com/newsgraph/backend/internal/chat"
	"github.com/newsgraph/backend/internal/embedding"
	"github.com/newsgraph/backend/internal/kg/builder"
	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/llm"
	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/news"
	"github.com/newsgraph/backend/internal/pipeline"
	"github.com/newsgraph/backend/internal/retrieval"
	"github.com/newsgraph/backend/internal/search/web"
	"github.com/newsgraph/backend/internal/storage/sqlite"
	"github.com/newsgraph/backend/pkg/config"
	"github.com/newsgraph/backend/pkg/logger"
)

type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Session  *chat.Session
	Graph    *builder.Builder
	// Store is nil when SQLite persistence is disabled.
	Store *sqlite.Client

	checks  map[string]func(ctx context.Context) error
	closers []func() error

	mu     sync.Mutex
	active *retrieval.Index
}

// New builds every component. Remote backends are dialed here, so an
// unreachable Neo4j, Milvus or Redis fails startup.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	metrics.Init()

	a := &App{
		Config: cfg,
		checks: make(map[string]func(ctx context.Context) error),
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	chatLLM := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		MaxRetries:  cfg.LLM.MaxRetries,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var cache *redis.Client
	if cfg.Redis.Enabled {
		c, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		cache = c
		a.closers = append(a.closers, c.Close)
		a.checks["redis"] = c.Ping
	}

	var fetcher news.Fetcher = news.NewClient(news.Config{
		BaseURL:  cfg.News.BaseURL,
		APIKey:   cfg.News.APIKey,
		Language: cfg.News.Language,
		SortBy:   cfg.News.SortBy,
		Timeout:  time.Duration(cfg.News.TimeoutSec) * time.Second,
		Retries:  cfg.News.MaxRetries,
	})
	if cache != nil {
		fetcher = news.NewCachedFetcher(fetcher, cache, time.Duration(cfg.Redis.ArticlesTTL)*time.Second)
	}

	enricher, err := newEnricher(cfg, chatLLM)
	if err != nil {
		return err
	}

	embedder, model, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		embedder = embedding.NewCachedEmbedder(embedder, cache, model, time.Duration(cfg.Embedding.CacheTTL)*time.Second)
	}

	gb, err := newGraphStore(ctx, cfg)
	if err != nil {
		return err
	}
	if gb.close != nil {
		a.closers = append(a.closers, gb.close)
	}
	if gb.ping != nil {
		a.checks["graph"] = gb.ping
	}
	a.Graph = builder.NewBuilder(gb.store, sentimentScope(cfg.Graph.SentimentScope))

	vb, err := newVectorStore(ctx, cfg)
	if err != nil {
		return err
	}
	if vb.close != nil {
		a.closers = append(a.closers, vb.close)
	}
	a.closers = append(a.closers, a.releaseActive)

	indexer := retrieval.NewIndexer(embedder, vb.stores, retrieval.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		TopK:         cfg.Retrieval.TopK,
	})

	// Typed nils must not reach the pipeline or session as non-nil interfaces.
	var topicRecorder pipeline.Recorder
	var turnRecorder chat.Recorder
	if cfg.SQLite.Enabled {
		store, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		if err := store.InitSchema(); err != nil {
			return err
		}
		a.Store = store
		a.checks["sqlite"] = func(context.Context) error { return store.Ping() }
		topicRecorder = store
		turnRecorder = store
	}

	a.Pipeline = pipeline.New(fetcher, enricher, a.Graph, indexer, topicRecorder, pipeline.Config{
		Page:     cfg.News.Page,
		PageSize: cfg.News.PageSize,
	})

	if cfg.News.FullText {
		a.Pipeline.SetExpander(web.NewScraper(web.Config{
			Timeout:     time.Duration(cfg.News.ScrapeTimeoutSec) * time.Second,
			MaxChars:    cfg.News.ScrapeMaxChars,
			Concurrency: cfg.News.ScrapeConcurrency,
		}))
	}

	a.Session = chat.NewSession(chatLLM, turnRecorder, chat.Config{
		ExitKeyword:     cfg.Chat.ExitKeyword,
		MaxHistoryTurns: cfg.Chat.MaxHistoryTurns,
		TopK:            cfg.Retrieval.TopK,
	})

	logger.Info("Application assembled",
		zap.String("graph_backend", cfg.Graph.Backend),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("sqlite", cfg.SQLite.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("full_text", cfg.News.FullText),
	)
	return nil
}

// StartTopic runs ingestion for topic and, on success, points the chat
// session at the new index with an empty history and releases the index it
// replaced. A failed run leaves the previous session untouched.
func (a *App) StartTopic(ctx context.Context, topic string) (*pipeline.Result, error) {
	result, err := a.Pipeline.Run(ctx, topic)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.Session.Activate(result.TopicID, result.Topic, result.Index)
	prev := a.active
	a.active = result.Index
	a.mu.Unlock()

	if prev != nil {
		if err := prev.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to release previous index", zap.Error(err))
		}
	}
	return result, nil
}

func (a *App) releaseActive() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return nil
	}
	err := a.active.Release(context.Background())
	a.active = nil
	return err
}

// Paths returns the subgraph for one edge type using the configured limit.
func (a *App) Paths(ctx context.Context, edge graph.EdgeType) (*graph.Data, error) {
	return a.Graph.Paths(ctx, edge, a.Config.Graph.QueryLimit)
}

// Check pings every remote dependency and returns the failures by name.
func (a *App) Check(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to close app: %w", errors.Join(errs...))
	}
	return nil
}
