// Package handlers exposes topic ingestion, chat and graph views over HTTP
// and WebSocket.
package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/newsgraph/backend/internal/chat"
	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/news"
	"github.com/newsgraph/backend/internal/pipeline"
	"github.com/newsgraph/backend/internal/storage/models"
)

type TopicStarter interface {
	StartTopic(ctx context.Context, topic string) (*pipeline.Result, error)
}

type Conversation interface {
	Ask(ctx context.Context, query string) (*chat.Answer, error)
	History() []chat.Turn
	Topic() (id, topic string)
	State() chat.State
}

type GraphReader interface {
	Paths(ctx context.Context, edge graph.EdgeType) (*graph.Data, error)
}

// TurnStore serves persisted history for past topics.
type TurnStore interface {
	GetChatTurns(topicID string, limit int) ([]models.ChatTurn, error)
}

// TopicArchive serves past topic runs and their enriched articles.
type TopicArchive interface {
	ListTopics(limit int) ([]models.Topic, error)
	GetTopic(id string) (*models.Topic, error)
	GetArticles(topicID string) ([]models.EnrichedArticle, error)
}

// topicStatus maps a pipeline failure to an HTTP status and client message.
func topicStatus(err error) (int, string) {
	var apiErr *news.APIError
	switch {
	case errors.Is(err, pipeline.ErrNoArticles):
		return fiber.StatusNotFound, "No articles could be processed for this topic"
	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway, "News source error: " + apiErr.Message
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Topic processing timed out"
	default:
		return fiber.StatusInternalServerError, "Failed to process topic"
	}
}

func chatStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrIdle):
		return fiber.StatusConflict, "Submit a topic before asking questions"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Query timed out"
	default:
		return fiber.StatusInternalServerError, "Failed to process query"
	}
}

func historyStrings(turns []chat.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.String()
	}
	return out
}
