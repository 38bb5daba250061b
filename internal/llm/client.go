package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/pkg/circuitbreaker"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/retry"
)

// Config describes an OpenAI-compatible endpoint. BaseURL may point at any
// compatible provider such as Groq.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	MaxRetries     int
	Timeout        time.Duration
}

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

var sentimentLabels = map[string]bool{
	"positive": true,
	"negative": true,
	"neutral":  true,
}

func NewClient(cfg Config) *Client {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}.WithRetries(cfg.MaxRetries)

	logger.Info("LLM client initialized",
		zap.String("base_url", oaCfg.BaseURL),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	return &Client{
		client:         openai.NewClientWithConfig(oaCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// requestTemperature keeps a zero temperature on the wire. The request
// field is omitempty, and providers substitute their own default for a
// missing value.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: requestTemperature(c.temperature),
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				err = fmt.Errorf("failed to create completion: %w", err)
				if isClientError(err) {
					return retry.Permanent(err)
				}
				return err
			}
			if len(resp.Choices) == 0 {
				return errors.New("completion returned no choices")
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Generate returns the assistant text for one system and user message pair.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{SystemPrompt: system, UserPrompt: user})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ClassifySentiment asks the model for a single label. Anything outside
// positive/negative/neutral comes back as "".
func (c *Client) ClassifySentiment(ctx context.Context, text string) (string, error) {
	systemPrompt := `You classify the sentiment of news articles.
Answer with exactly one word: positive, negative or neutral.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   text,
		MaxTokens:    5,
	})
	if err != nil {
		return "", fmt.Errorf("failed to classify sentiment: %w", err)
	}

	label := strings.ToLower(strings.Trim(strings.TrimSpace(resp.Content), ".!\"'"))
	if !sentimentLabels[label] {
		logger.Debug("Discarding sentiment label", zap.String("label", label))
		return "", nil
	}
	return label, nil
}

// Answer asks for a span copied from passage. Replies that are not a
// verbatim substring of passage are discarded.
func (c *Client) Answer(ctx context.Context, question, passage string) (string, error) {
	systemPrompt := `You answer questions by copying the shortest span of the given context that answers it.
Copy the span exactly. Do not paraphrase. If nothing in the context answers the question, reply with nothing.`

	userPrompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", question, passage)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to answer question: %w", err)
	}

	span := strings.Trim(strings.TrimSpace(resp.Content), "\"")
	if span == "" || !strings.Contains(passage, span) {
		return "", nil
	}
	return span, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("embedding response was empty")
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		var vectors [][]float32
		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)
				if err != nil {
					err = fmt.Errorf("failed to generate batch embeddings: %w", err)
					if isClientError(err) {
						return retry.Permanent(err)
					}
					return err
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
				}

				vectors = make([][]float32, len(resp.Data))
				for _, data := range resp.Data {
					if data.Index < 0 || data.Index >= len(vectors) {
						return fmt.Errorf("embedding index %d out of range", data.Index)
					}
					vectors[data.Index] = data.Embedding
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}

		embeddings = append(embeddings, vectors...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// isClientError reports 4xx responses other than rate limiting.
func isClientError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 &&
			reqErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}
