package handlers

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/pipeline"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/utils"
)

const defaultTopicLimit = 50

type TopicHandler struct {
	starter TopicStarter
	// archive may be nil when persistence is disabled.
	archive TopicArchive
}

func NewTopicHandler(starter TopicStarter, archive TopicArchive) *TopicHandler {
	return &TopicHandler{
		starter: starter,
		archive: archive,
	}
}

func (h *TopicHandler) CreateTopic(c *fiber.Ctx) error {
	var req struct {
		Topic string `json:"topic"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.Topic) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Topic is required",
		})
	}

	result, err := h.starter.StartTopic(c.UserContext(), req.Topic)
	if err != nil {
		logger.Error("Failed to process topic", zap.String("topic", utils.Truncate(req.Topic, 200)), zap.Error(err))
		status, msg := topicStatus(err)
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(topicResponse(result))
}

func topicResponse(r *pipeline.Result) fiber.Map {
	resp := fiber.Map{
		"topic_id": r.TopicID,
		"topic":    r.Topic,
		"articles": len(r.Articles),
		"chunks":   r.Index.Chunks(),
		"graph":    r.GraphStats,
	}
	if r.GraphErr != nil {
		resp["graph_error"] = "Knowledge graph could not be updated"
	}
	return resp
}

func (h *TopicHandler) ListTopics(c *fiber.Ctx) error {
	if h.archive == nil {
		return archiveDisabled(c)
	}

	limit := c.QueryInt("limit", defaultTopicLimit)
	if limit <= 0 {
		limit = defaultTopicLimit
	}

	topics, err := h.archive.ListTopics(limit)
	if err != nil {
		logger.Error("Failed to list topics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list topics",
		})
	}
	if topics == nil {
		topics = []models.Topic{}
	}

	return c.JSON(fiber.Map{
		"topics": topics,
	})
}

func (h *TopicHandler) GetTopic(c *fiber.Ctx) error {
	if h.archive == nil {
		return archiveDisabled(c)
	}

	topic, err := h.archive.GetTopic(c.Params("id"))
	if err != nil {
		return archiveError(c, err)
	}
	return c.JSON(topic)
}

// GetArticles returns the enriched articles recorded for one topic run.
func (h *TopicHandler) GetArticles(c *fiber.Ctx) error {
	if h.archive == nil {
		return archiveDisabled(c)
	}

	id := c.Params("id")
	if _, err := h.archive.GetTopic(id); err != nil {
		return archiveError(c, err)
	}

	articles, err := h.archive.GetArticles(id)
	if err != nil {
		return archiveError(c, err)
	}
	if articles == nil {
		articles = []models.EnrichedArticle{}
	}

	return c.JSON(fiber.Map{
		"topic_id": id,
		"articles": articles,
	})
}

func archiveDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Topic persistence is disabled",
	})
}

func archiveError(c *fiber.Ctx, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Topic not found",
		})
	}
	logger.Error("Failed to read topic archive", zap.String("topic_id", c.Params("id")), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to read topic",
	})
}
