package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/chat"
	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/kg/visual"
	"github.com/newsgraph/backend/pkg/logger"
)

const conversationEnded = "Conversation ended. Submit a new topic to start again."

// LegacyHandler serves the unversioned routes used by the browser client:
// /initial_query, /conversational_query, /chat_history and /show_graph.
type LegacyHandler struct {
	starter TopicStarter
	session Conversation
	reader  GraphReader
}

func NewLegacyHandler(starter TopicStarter, session Conversation, reader GraphReader) *LegacyHandler {
	return &LegacyHandler{
		starter: starter,
		session: session,
		reader:  reader,
	}
}

type legacyQuery struct {
	Query string `json:"query"`
}

func (h *LegacyHandler) InitialQuery(c *fiber.Ctx) error {
	var req legacyQuery
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	if _, err := h.starter.StartTopic(c.UserContext(), req.Query); err != nil {
		logger.Error("Failed to process initial query", zap.Error(err))
		status, msg := topicStatus(err)
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	return c.JSON(fiber.Map{
		"message": "Initial query processed successfully",
	})
}

func (h *LegacyHandler) ConversationalQuery(c *fiber.Ctx) error {
	var req legacyQuery
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	answer, err := h.session.Ask(c.UserContext(), req.Query)
	if errors.Is(err, chat.ErrExit) {
		return c.JSON(fiber.Map{
			"response": conversationEnded,
		})
	}
	if err != nil {
		logger.Error("Failed to process conversational query", zap.Error(err))
		status, msg := chatStatus(err)
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	return c.JSON(fiber.Map{
		"response": answer.Response,
	})
}

func (h *LegacyHandler) ChatHistory(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"chat_history": historyStrings(h.session.History()),
	})
}

func (h *LegacyHandler) ShowGraph(c *fiber.Ctx) error {
	sentiment, err := h.page(c, graph.EdgeHasSentiment, "Sentiment graph")
	if err != nil {
		return h.graphError(c, err)
	}
	relationship, err := h.page(c, graph.EdgeDescribes, "Relationship graph")
	if err != nil {
		return h.graphError(c, err)
	}

	return c.JSON(fiber.Map{
		"sentiment_html":    sentiment,
		"relationship_html": relationship,
	})
}

func (h *LegacyHandler) page(c *fiber.Ctx, edge graph.EdgeType, title string) (string, error) {
	data, err := h.reader.Paths(c.UserContext(), edge)
	if err != nil {
		return "", err
	}
	return visual.RenderString(title, data)
}

func (h *LegacyHandler) graphError(c *fiber.Ctx, err error) error {
	logger.Error("Failed to build graph pages", zap.Error(err))
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "Failed to query knowledge graph",
	})
}
