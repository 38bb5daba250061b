package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/circuitbreaker"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/retry"
)

// APIError is a non-success response from the news source.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("news api returned status %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL  string
	APIKey   string
	Language string
	SortBy   string
	Timeout  time.Duration
	Retries  int
}

type Client struct {
	baseURL     string
	apiKey      string
	language    string
	sortBy      string
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type searchResponse struct {
	Status       string              `json:"status"`
	TotalResults int                 `json:"totalResults"`
	Articles     []models.RawArticle `json:"articles"`
	Code         string              `json:"code"`
	Message      string              `json:"message"`
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.SortBy == "" {
		cfg.SortBy = "relevancy"
	}

	cb := circuitbreaker.NewCircuitBreaker("news", circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       4 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}.WithRetries(cfg.Retries)

	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		language:    cfg.Language,
		sortBy:      cfg.SortBy,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// Fetch returns one page of articles for query. A non-2xx response yields an
// *APIError and is not retried; transport failures are.
func (c *Client) Fetch(ctx context.Context, query string, page, pageSize int) ([]models.RawArticle, error) {
	logger.Info("Fetching news articles",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Int("page_size", pageSize),
	)

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", c.language)
	params.Set("sortBy", c.sortBy)
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))

	var articles []models.RawArticle

	err := c.cb.Execute(ctx, func() error {
		var err error
		articles, err = retry.DoWithResult(ctx, c.retryConfig, func() ([]models.RawArticle, error) {
			result, err := c.doFetch(ctx, params)
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return nil, retry.Permanent(err)
			}
			return result, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("News fetch completed", zap.Int("articles", len(articles)))

	return articles, nil
}

func (c *Client) doFetch(ctx context.Context, params url.Values) ([]models.RawArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return parsed.Articles, nil
}

// errorMessage prefers the API's JSON message and falls back to the raw body.
func errorMessage(body []byte) string {
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}
