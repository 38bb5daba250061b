package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/pkg/logger"
)

var defaultFields = map[string]string{
	"/api/v1/topics":        "topic",
	"/api/v1/chat":          "query",
	"/initial_query":        "query",
	"/conversational_query": "query",
}

type Config struct {
	MaxQueryLength int
	// Fields maps a POST path to the JSON string field it must carry.
	Fields              map[string]string
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects unsupported content types and validates the one text
// field of each POST route. Valid values are stored trimmed in Locals under
// the field name.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 2000
	}
	if cfg.Fields == nil {
		cfg.Fields = defaultFields
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		field, ok := cfg.Fields[strings.TrimRight(c.Path(), "/")]
		if !ok {
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		value, ok := req[field].(string)
		value = sanitizeString(value)
		if !ok || value == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": field + " is required and must be a string",
			})
		}

		if utf8.RuneCountInString(value) > cfg.MaxQueryLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": field + " exceeds maximum length",
			})
		}

		if containsMarkup(value) {
			cfg.Logger.Warn("Rejected markup in request",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid " + field + " content",
			})
		}

		c.Locals(field, value)
		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

// Answers and topics are echoed into HTML by the browser client.
func containsMarkup(input string) bool {
	lower := strings.ToLower(input)
	for _, needle := range []string{"<script", "<iframe", "javascript:", "onerror=", "onload="} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
