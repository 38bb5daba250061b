package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/chat"
	"github.com/newsgraph/backend/pkg/logger"
)

const defaultHistoryLimit = 100

type ChatHandler struct {
	session Conversation
	// turns may be nil when persistence is disabled.
	turns TurnStore
}

func NewChatHandler(session Conversation, turns TurnStore) *ChatHandler {
	return &ChatHandler{
		session: session,
		turns:   turns,
	}
}

func (h *ChatHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	answer, err := h.session.Ask(c.UserContext(), req.Query)
	if errors.Is(err, chat.ErrExit) {
		return c.JSON(fiber.Map{
			"message": "Conversation ended",
			"state":   chat.StateIdle.String(),
		})
	}
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		status, msg := chatStatus(err)
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	return c.JSON(answer)
}

// GetHistory returns the live session history, or the persisted turns of
// another topic when topic_id names one.
func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	activeID, topic := h.session.Topic()
	topicID := c.Query("topic_id")

	if topicID == "" || topicID == activeID {
		return c.JSON(fiber.Map{
			"topic_id": activeID,
			"topic":    topic,
			"state":    h.session.State().String(),
			"history":  h.session.History(),
		})
	}

	if h.turns == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Chat history persistence is disabled",
		})
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	stored, err := h.turns.GetChatTurns(topicID, limit)
	if err != nil {
		logger.Error("Failed to load chat history", zap.String("topic_id", topicID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	history := make([]chat.Turn, len(stored))
	for i, t := range stored {
		history[i] = chat.Turn{Query: t.Query, Response: t.Response}
	}

	return c.JSON(fiber.Map{
		"topic_id": topicID,
		"history":  history,
	})
}
