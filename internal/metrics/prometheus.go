package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ArticlesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsgraph_articles_fetched_total",
			Help: "Raw articles returned by the news source",
		},
	)

	ArticlesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_articles_dropped_total",
			Help: "Articles skipped because a per-article stage failed",
		},
		[]string{"stage"},
	)

	ArticlesExpanded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_articles_expanded_total",
			Help: "Truncated articles by full-text outcome",
		},
		[]string{"outcome"},
	)

	ArticlesEnriched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsgraph_articles_enriched_total",
			Help: "Articles that completed enrichment",
		},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsgraph_extraction_duration_seconds",
			Help:    "Duration of a single NLP extraction call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	GraphUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_graph_upserts_total",
			Help: "Per-article graph upserts by outcome",
		},
		[]string{"status"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsgraph_chunks_indexed_total",
			Help: "Chunks embedded into the retrieval index",
		},
	)

	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_pipeline_runs_total",
			Help: "Topic ingestion runs by outcome",
		},
		[]string{"status"},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsgraph_query_duration_seconds",
			Help:    "Conversational query duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_query_total",
			Help: "Conversational queries by outcome",
		},
		[]string{"status"},
	)

	HistoryTurns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsgraph_history_turns",
			Help: "Turns currently carried in the conversation history",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsgraph_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsgraph_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ArticlesFetched,
			ArticlesDropped,
			ArticlesExpanded,
			ArticlesEnriched,
			ExtractionDuration,
			GraphUpserts,
			ChunksIndexed,
			PipelineRuns,
			QueryDuration,
			QueryTotal,
			HistoryTurns,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			RateLimited,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
