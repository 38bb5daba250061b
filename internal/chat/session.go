// Package chat runs the retrieval-augmented conversation over one topic.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/retrieval"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/internal/vector"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/utils"
)

var (
	// ErrExit is returned when the query is the exit keyword. The session
	// is back in StateIdle and the model was not called.
	ErrExit = errors.New("conversation ended")
	// ErrIdle is returned by Ask before a topic has been activated.
	ErrIdle = errors.New("no active topic")
)

const DefaultExitKeyword = "exit"

type State int

const (
	StateIdle State = iota
	StateAnswering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnswering:
		return "answering"
	default:
		return "unknown"
	}
}

type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

type Retriever interface {
	Search(ctx context.Context, text string, k int) ([]vector.Result, error)
}

// Recorder persists turns. Failures are logged and do not affect the answer.
type Recorder interface {
	InsertChatTurn(turn *models.ChatTurn) error
}

type Config struct {
	ExitKeyword string
	// MaxHistoryTurns keeps only the most recent turns in the prompt. Zero
	// keeps everything.
	MaxHistoryTurns int
	TopK            int
}

type Answer struct {
	ID        string `json:"id"`
	TopicID   string `json:"topic_id"`
	Query     string `json:"query"`
	Response  string `json:"response"`
	Chunks    int    `json:"chunks"`
	LatencyMS int    `json:"latency_ms"`
}

type Session struct {
	mu        sync.Mutex
	generator Generator
	recorder  Recorder
	cfg       Config

	state   State
	topicID string
	topic   string
	index   Retriever
	history []Turn
}

func NewSession(generator Generator, recorder Recorder, cfg Config) *Session {
	if cfg.ExitKeyword == "" {
		cfg.ExitKeyword = DefaultExitKeyword
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Session{
		generator: generator,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// Activate switches the session to a freshly built topic index and clears
// the history. Once it returns, no Ask is still reading the previous index.
func (s *Session) Activate(topicID, topic string, index Retriever) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateAnswering
	s.topicID = topicID
	s.topic = topic
	s.index = index
	s.history = nil
	metrics.HistoryTurns.Set(0)

	logger.Info("Chat session activated", zap.String("topic", topic), zap.String("topic_id", topicID))
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Topic() (id, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topicID, s.topic
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) IsExit(query string) bool {
	return strings.EqualFold(strings.TrimSpace(query), s.cfg.ExitKeyword)
}

// Ask answers one query. Calls are serialized. On a generation error the
// history is left unchanged and the session stays in StateAnswering.
func (s *Session) Ask(ctx context.Context, query string) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnswering {
		return nil, ErrIdle
	}

	if s.IsExit(query) {
		s.state = StateIdle
		logger.Info("Chat session ended", zap.String("topic", s.topic), zap.Int("turns", len(s.history)))
		return nil, ErrExit
	}

	start := time.Now()
	id := uuid.New().String()

	logger.Info("Processing query", zap.String("query_id", id), zap.String("query", utils.Truncate(query, 200)))

	results, err := s.index.Search(ctx, query, s.cfg.TopK)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt := BuildPrompt(s.history, retrieval.Context(results), query)

	response, err := s.generator.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	s.history = append(s.history, Turn{Query: query, Response: response})
	if limit := s.cfg.MaxHistoryTurns; limit > 0 && len(s.history) > limit {
		s.history = append([]Turn(nil), s.history[len(s.history)-limit:]...)
	}
	metrics.HistoryTurns.Set(float64(len(s.history)))

	latency := time.Since(start)
	metrics.QueryDuration.Observe(latency.Seconds())
	metrics.QueryTotal.WithLabelValues("success").Inc()

	answer := &Answer{
		ID:        id,
		TopicID:   s.topicID,
		Query:     query,
		Response:  response,
		Chunks:    len(results),
		LatencyMS: int(latency.Milliseconds()),
	}

	s.record(answer)

	logger.Info("Query answered",
		zap.String("query_id", id),
		zap.Int("chunks", len(results)),
		zap.Int("history_turns", len(s.history)),
		zap.Int("latency_ms", answer.LatencyMS),
	)

	return answer, nil
}

func (s *Session) record(a *Answer) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.InsertChatTurn(&models.ChatTurn{
		ID:        a.ID,
		TopicID:   a.TopicID,
		Query:     a.Query,
		Response:  a.Response,
		LatencyMS: a.LatencyMS,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record chat turn", zap.Error(err))
	}
}
