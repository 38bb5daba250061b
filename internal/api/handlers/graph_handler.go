package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/kg/visual"
	"github.com/newsgraph/backend/pkg/logger"
)

type GraphHandler struct {
	reader GraphReader
}

func NewGraphHandler(reader GraphReader) *GraphHandler {
	return &GraphHandler{
		reader: reader,
	}
}

// GetGraph returns the nodes and edges reachable over one edge type.
func (h *GraphHandler) GetGraph(c *fiber.Ctx) error {
	data, ok := h.load(c)
	if !ok {
		return nil
	}
	return c.JSON(data)
}

// GetGraphPage renders the same subgraph as a standalone vis.js page.
func (h *GraphHandler) GetGraphPage(c *fiber.Ctx) error {
	data, ok := h.load(c)
	if !ok {
		return nil
	}

	page, err := visual.RenderString(c.Params("edge")+" graph", data)
	if err != nil {
		logger.Error("Failed to render graph", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render graph",
		})
	}

	c.Type("html")
	return c.SendString(page)
}

// load writes the error response itself and reports false on failure.
func (h *GraphHandler) load(c *fiber.Ctx) (*graph.Data, bool) {
	edge, err := graph.ParseEdgeType(c.Params("edge"))
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown edge type; use MENTIONS, HAS_SENTIMENT or DESCRIBES",
		})
		return nil, false
	}

	data, err := h.reader.Paths(c.UserContext(), edge)
	if err != nil {
		logger.Error("Failed to query graph", zap.String("edge", string(edge)), zap.Error(err))
		_ = c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to query knowledge graph",
		})
		return nil, false
	}
	return data, true
}
