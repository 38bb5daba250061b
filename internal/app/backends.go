package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/embedding"
	"github.com/newsgraph/backend/internal/enrichment"
	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/kg/memgraph"
	"github.com/newsgraph/backend/internal/kg/neo4j"
	"github.com/newsgraph/backend/internal/llm"
	"github.com/newsgraph/backend/internal/nlp/huggingface"
	"github.com/newsgraph/backend/internal/nlp/prose"
	"github.com/newsgraph/backend/internal/vector"
	"github.com/newsgraph/backend/internal/vector/memory"
	"github.com/newsgraph/backend/internal/vector/milvus"
	"github.com/newsgraph/backend/pkg/config"
	"github.com/newsgraph/backend/pkg/logger"
)

const (
	backendHuggingFace = "huggingface"
	backendProse       = "prose"
	backendLLM         = "llm"
	backendOpenAI      = "openai"
	backendHash        = "hash"
	backendNeo4j       = "neo4j"
	backendMemory      = "memory"
	backendMilvus      = "milvus"
)

func newHuggingFace(cfg *config.Config) *huggingface.Client {
	hf := cfg.NLP.HuggingFace
	return huggingface.NewClient(huggingface.Config{
		BaseURL:        hf.BaseURL,
		APIToken:       hf.APIToken,
		NERModel:       hf.NERModel,
		SentimentModel: hf.SentimentModel,
		QAModel:        hf.QAModel,
		EmbeddingModel: hf.EmbeddingModel,
		Timeout:        time.Duration(hf.TimeoutSec) * time.Second,
	})
}

// newEnricher resolves each extraction port to its configured backend. The
// Hugging Face client is built lazily and shared between ports.
func newEnricher(cfg *config.Config, chatLLM *llm.Client) (*enrichment.Enricher, error) {
	var hf *huggingface.Client
	hfClient := func() *huggingface.Client {
		if hf == nil {
			hf = newHuggingFace(cfg)
		}
		return hf
	}

	var entities enrichment.EntityRecognizer
	switch cfg.NLP.Entities {
	case backendHuggingFace:
		entities = hfClient()
	case backendProse:
		entities = prose.NewRecognizer()
	default:
		return nil, fmt.Errorf("unsupported entity backend %q", cfg.NLP.Entities)
	}

	var sentiment enrichment.SentimentClassifier
	switch cfg.NLP.Sentiment {
	case backendHuggingFace:
		sentiment = hfClient()
	case backendLLM:
		sentiment = chatLLM
	default:
		return nil, fmt.Errorf("unsupported sentiment backend %q", cfg.NLP.Sentiment)
	}

	var answerer enrichment.QuestionAnswerer
	switch cfg.NLP.Relationship {
	case backendHuggingFace:
		answerer = hfClient()
	case backendLLM:
		answerer = chatLLM
	default:
		return nil, fmt.Errorf("unsupported relationship backend %q", cfg.NLP.Relationship)
	}

	logger.Info("Enrichment backends selected",
		zap.String("entities", cfg.NLP.Entities),
		zap.String("sentiment", cfg.NLP.Sentiment),
		zap.String("relationship", cfg.NLP.Relationship),
	)

	return enrichment.NewEnricher(entities, sentiment, answerer, cfg.NLP.Question), nil
}

// newEmbedder returns the embedder and the model name used as cache key.
func newEmbedder(cfg *config.Config) (embedding.Embedder, string, error) {
	switch cfg.Embedding.Provider {
	case backendOpenAI:
		client := llm.NewClient(llm.Config{
			BaseURL:        cfg.Embedding.BaseURL,
			APIKey:         cfg.Embedding.APIKey,
			EmbeddingModel: cfg.Embedding.Model,
			MaxRetries:     cfg.LLM.MaxRetries,
			Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
		return client, cfg.Embedding.Model, nil
	case backendHuggingFace:
		return newHuggingFace(cfg), cfg.NLP.HuggingFace.EmbeddingModel, nil
	case backendHash:
		return embedding.NewHashEmbedder(cfg.Embedding.Dimensions), fmt.Sprintf("hash-%d", cfg.Embedding.Dimensions), nil
	default:
		return nil, "", fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

type graphBackend struct {
	store graph.Store
	ping  func(ctx context.Context) error
	close func() error
}

func newGraphStore(ctx context.Context, cfg *config.Config) (*graphBackend, error) {
	switch cfg.Graph.Backend {
	case backendNeo4j:
		client, err := neo4j.NewClient(ctx,
			cfg.Graph.URI,
			cfg.Graph.Username,
			cfg.Graph.Password,
			cfg.Graph.Database,
			time.Duration(cfg.Graph.TimeoutSec)*time.Second,
		)
		if err != nil {
			return nil, err
		}
		return &graphBackend{
			store: client,
			ping:  client.Ping,
			close: func() error { return client.Close(context.Background()) },
		}, nil
	case backendMemory:
		return &graphBackend{store: memgraph.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported graph backend %q", cfg.Graph.Backend)
	}
}

type vectorBackend struct {
	stores vector.Provider
	close  func() error
}

func newVectorStore(ctx context.Context, cfg *config.Config) (*vectorBackend, error) {
	switch cfg.Vector.Backend {
	case backendMemory:
		return &vectorBackend{stores: memory.NewProvider()}, nil
	case backendMilvus:
		client, err := milvus.NewClient(ctx, cfg.Vector.Endpoint, cfg.Vector.APIKey, cfg.Vector.CollectionName)
		if err != nil {
			return nil, err
		}
		return &vectorBackend{stores: client, close: client.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Vector.Backend)
	}
}

func sentimentScope(s string) graph.SentimentScope {
	if s == "article" {
		return graph.ScopeArticle
	}
	return graph.ScopeGlobal
}
