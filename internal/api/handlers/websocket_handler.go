package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/chat"
	"github.com/newsgraph/backend/internal/pipeline"
	"github.com/newsgraph/backend/pkg/logger"
)

// WebSocketHandler accepts {"type":"topic"} and {"type":"query"} messages
// and streams answers word by word.
type WebSocketHandler struct {
	starter TopicStarter
	session Conversation
}

func NewWebSocketHandler(starter TopicStarter, session Conversation) *WebSocketHandler {
	return &WebSocketHandler{
		starter: starter,
		session: session,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		var err error
		switch msg.Type {
		case "topic":
			err = h.startTopic(c, msg.Content)
		case "query":
			err = h.streamResponse(c, msg.Content)
		default:
			h.sendError(c, "Unknown message type")
			continue
		}
		if err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) startTopic(c *websocket.Conn, topic string) error {
	if err := h.sendChunk(c, "status", "Fetching and analyzing articles..."); err != nil {
		return err
	}

	result, err := h.starter.StartTopic(context.Background(), topic)
	if err != nil {
		logger.Error("Failed to process topic", zap.String("topic", topic), zap.Error(err))
		_, msg := topicStatus(err)
		h.sendError(c, msg)
		return nil
	}

	return h.sendTopicReady(c, result)
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, query string) error {
	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	answer, err := h.session.Ask(context.Background(), query)
	if errors.Is(err, chat.ErrExit) {
		return h.sendChunk(c, "ended", conversationEnded)
	}
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		_, msg := chatStatus(err)
		h.sendError(c, msg)
		return nil
	}

	words := splitIntoWords(answer.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, answer)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendTopicReady(c *websocket.Conn, r *pipeline.Result) error {
	msg := map[string]interface{}{
		"type":     "topic_ready",
		"topic_id": r.TopicID,
		"topic":    r.Topic,
		"articles": len(r.Articles),
		"chunks":   r.Index.Chunks(),
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, answer *chat.Answer) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"message_id": answer.ID,
		"topic_id":   answer.TopicID,
		"chunks":     answer.Chunks,
		"latency_ms": answer.LatencyMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoWords splits on spaces and keeps newlines as their own items.
func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
