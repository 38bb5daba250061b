// Package api assembles the Fiber application: middleware, versioned
// routes, the WebSocket endpoint and the routes used by the browser client.
package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/newsgraph/backend/internal/api/handlers"
	"github.com/newsgraph/backend/internal/app"
	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/middleware/ratelimit"
	"github.com/newsgraph/backend/internal/middleware/security"
	"github.com/newsgraph/backend/internal/middleware/validation"
	"github.com/newsgraph/backend/pkg/config"
	"github.com/newsgraph/backend/pkg/logger"
)

type Deps struct {
	Topics  handlers.TopicStarter
	Session handlers.Conversation
	Graph   handlers.GraphReader
	// Turns and Archive may be nil.
	Turns   handlers.TurnStore
	Archive handlers.TopicArchive
	Check   func(ctx context.Context) map[string]error
}

func DepsFromApp(a *app.App) Deps {
	deps := Deps{
		Topics:  a,
		Session: a.Session,
		Graph:   a,
		Check:   a.Check,
	}
	if a.Store != nil {
		deps.Turns = a.Store
		deps.Archive = a.Store
	}
	return deps
}

// NewRouter returns the app and a function releasing the rate limiter.
func NewRouter(cfg config.ServerConfig, deps Deps) (*fiber.App, func()) {
	server := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		BodyLimit:    cfg.BodyLimit,
	})

	server.Use(recover.New())
	server.Use(fiberlogger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(cfg.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	server.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
		Logger:               logger.GetLogger(),
	})
	validate := validation.Middleware(validation.Config{
		MaxQueryLength: cfg.MaxQueryLength,
		Logger:         logger.GetLogger(),
	})

	topicHandler := handlers.NewTopicHandler(deps.Topics, deps.Archive)
	chatHandler := handlers.NewChatHandler(deps.Session, deps.Turns)
	graphHandler := handlers.NewGraphHandler(deps.Graph)
	legacyHandler := handlers.NewLegacyHandler(deps.Topics, deps.Session, deps.Graph)
	wsHandler := handlers.NewWebSocketHandler(deps.Topics, deps.Session)

	server.Get("/metrics", metrics.MetricsHandler())

	api := server.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		failed := map[string]error{}
		if deps.Check != nil {
			failed = deps.Check(c.UserContext())
		}
		if len(failed) > 0 {
			reasons := make(fiber.Map, len(failed))
			for name, err := range failed {
				reasons[name] = err.Error()
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"failed": reasons,
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	limit := limiter.Middleware()

	api.Post("/topics", limit, validate, topicHandler.CreateTopic)
	api.Get("/topics", limit, topicHandler.ListTopics)
	api.Get("/topics/:id", limit, topicHandler.GetTopic)
	api.Get("/topics/:id/articles", limit, topicHandler.GetArticles)
	api.Post("/chat", limit, validate, chatHandler.HandleQuery)
	api.Get("/chat/history", limit, chatHandler.GetHistory)
	api.Get("/graph/:edge", limit, graphHandler.GetGraph)
	api.Get("/graph/:edge/html", limit, graphHandler.GetGraphPage)

	server.Post("/initial_query", limit, validate, legacyHandler.InitialQuery)
	server.Post("/conversational_query", limit, validate, legacyHandler.ConversationalQuery)
	server.Get("/chat_history", limit, legacyHandler.ChatHistory)
	server.Get("/show_graph", limit, legacyHandler.ShowGraph)

	return server, limiter.Stop
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
