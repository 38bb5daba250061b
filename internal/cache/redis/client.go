package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/utils"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func embeddingKey(model, text string) string {
	return fmt.Sprintf("embedding:%s:%s", model, utils.HashString(text))
}

func articlesKey(query string, page, pageSize int) string {
	return fmt.Sprintf("articles:%s:%d:%d", utils.HashString(query), page, pageSize)
}

func (c *Client) SetEmbedding(ctx context.Context, model, text string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, embeddingKey(model, text), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingKey(model, text)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	return embedding, true, nil
}

// SetArticles caches one page of news search results for a topic.
func (c *Client) SetArticles(ctx context.Context, query string, page, pageSize int, articles []models.RawArticle, ttl time.Duration) error {
	data, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("failed to marshal articles: %w", err)
	}

	err = c.client.Set(ctx, articlesKey(query, page, pageSize), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set articles cache: %w", err)
	}

	logger.Debug("Articles cached", zap.String("query", query), zap.Int("count", len(articles)), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetArticles(ctx context.Context, query string, page, pageSize int) ([]models.RawArticle, bool, error) {
	data, err := c.client.Get(ctx, articlesKey(query, page, pageSize)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get articles cache: %w", err)
	}

	var articles []models.RawArticle
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal articles: %w", err)
	}

	logger.Debug("Articles cache hit", zap.String("query", query))
	return articles, true, nil
}
