// Package huggingface calls hosted transformer pipelines over the Hugging
// Face Inference API: token classification, text classification, extractive
// question answering and feature extraction.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/circuitbreaker"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/retry"
)

type Config struct {
	BaseURL        string
	APIToken       string
	NERModel       string
	SentimentModel string
	QAModel        string
	EmbeddingModel string
	Timeout        time.Duration
}

type APIError struct {
	Model      string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("huggingface %s returned status %d: %s", e.Model, e.StatusCode, e.Message)
}

type Client struct {
	cfg         Config
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type tokenClassification struct {
	Entity      string  `json:"entity"`
	EntityGroup string  `json:"entity_group"`
	Word        string  `json:"word"`
	Score       float64 `json:"score"`
}

type classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type answer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	cb := circuitbreaker.NewCircuitBreaker("huggingface", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Hugging Face client initialized",
		zap.String("ner_model", cfg.NERModel),
		zap.String("sentiment_model", cfg.SentimentModel),
		zap.String("qa_model", cfg.QAModel),
	)

	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// RecognizeEntities runs token classification and returns (word, tag) pairs
// in model order.
func (c *Client) RecognizeEntities(ctx context.Context, text string) ([]models.Entity, error) {
	var tokens []tokenClassification
	if err := c.infer(ctx, singleAttempt, c.cfg.NERModel, map[string]any{"inputs": text}, &tokens); err != nil {
		return nil, err
	}

	entities := make([]models.Entity, 0, len(tokens))
	for _, tok := range tokens {
		tag := tok.Entity
		if tag == "" {
			tag = tok.EntityGroup
		}
		word := strings.TrimSpace(tok.Word)
		if word == "" || tag == "" {
			continue
		}
		entities = append(entities, models.Entity{Name: word, Type: tag})
	}

	logger.Debug("Entities recognized", zap.Int("count", len(entities)))
	return entities, nil
}

// ClassifySentiment returns the highest scoring label, or "" if the model
// returned none.
func (c *Client) ClassifySentiment(ctx context.Context, text string) (string, error) {
	var raw json.RawMessage
	if err := c.infer(ctx, singleAttempt, c.cfg.SentimentModel, map[string]any{"inputs": text}, &raw); err != nil {
		return "", err
	}

	labels, err := decodeClassifications(raw)
	if err != nil {
		return "", err
	}

	best := ""
	bestScore := -1.0
	for _, l := range labels {
		if l.Score > bestScore {
			best, bestScore = l.Label, l.Score
		}
	}
	return best, nil
}

// Answer runs extractive question answering over passage.
func (c *Client) Answer(ctx context.Context, question, passage string) (string, error) {
	payload := map[string]any{
		"inputs": map[string]string{
			"question": question,
			"context":  passage,
		},
	}

	var ans answer
	if err := c.infer(ctx, singleAttempt, c.cfg.QAModel, payload, &ans); err != nil {
		return "", err
	}
	return strings.TrimSpace(ans.Answer), nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch runs feature extraction. Sentence-level models return one
// vector per input; token-level output is mean pooled.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var raw json.RawMessage
	if err := c.infer(ctx, c.retryConfig, c.cfg.EmbeddingModel, map[string]any{"inputs": texts}, &raw); err != nil {
		return nil, err
	}

	vectors, err := decodeEmbeddings(raw)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(texts))
	}
	return vectors, nil
}

// singleAttempt is used by the extraction calls. Enrichment treats their
// failures as a skipped article, so they are not retried here.
var singleAttempt = retry.Config{MaxAttempts: 1}

func (c *Client) infer(ctx context.Context, rc retry.Config, model string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, rc, func() error {
			err := c.post(ctx, model, body, out)
			var apiErr *APIError
			// 503 means the model is still loading.
			if errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusServiceUnavailable && apiErr.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		})
	})
}

func (c *Client) post(ctx context.Context, model string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wait-For-Model", "true")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Model: model, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", model, err)
	}
	return nil
}

// decodeClassifications accepts both [{...}] and [[{...}]].
func decodeClassifications(raw json.RawMessage) ([]classification, error) {
	var nested [][]classification
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, nil
		}
		return nested[0], nil
	}

	var flat []classification
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("unexpected classification response: %w", err)
	}
	return flat, nil
}

func decodeEmbeddings(raw json.RawMessage) ([][]float32, error) {
	var sentences [][]float32
	if err := json.Unmarshal(raw, &sentences); err == nil {
		return sentences, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("unexpected embedding response: %w", err)
	}

	pooled := make([][]float32, len(tokens))
	for i, seq := range tokens {
		pooled[i] = meanPool(seq)
	}
	return pooled, nil
}

func meanPool(seq [][]float32) []float32 {
	if len(seq) == 0 {
		return nil
	}
	out := make([]float32, len(seq[0]))
	for _, tok := range seq {
		for j := range out {
			if j < len(tok) {
				out[j] += tok[j]
			}
		}
	}
	for j := range out {
		out[j] /= float32(len(seq))
	}
	return out
}
