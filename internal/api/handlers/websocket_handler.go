package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/pdfchat/backend/internal/chat"
	"github.com/pdfchat/backend/pkg/logger"
)

// WebSocketHandler streams chat answers over a websocket with explicit
// framing: "chunk" frames carry answer fragments in order, and every
// exchange terminates with either a "complete" or an "error" frame, so a
// client can tell a failed generation from a finished one.
type WebSocketHandler struct {
	engine ChatEngine
}

func NewWebSocketHandler(engine ChatEngine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

type wsRequest struct {
	Type     string         `json:"type"`
	Messages []chat.Message `json:"messages"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}

		if err := h.streamAnswer(c, msg.Messages); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, messages []chat.Message) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, err := h.engine.AnswerStream(ctx, messages)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidQuery) {
			h.sendError(c, "Query cannot be empty")
			return nil
		}
		return err
	}

	for fragment := range relay.Fragments() {
		err := c.WriteJSON(map[string]interface{}{
			"type":    "chunk",
			"content": fragment,
		})
		if err != nil {
			// Client went away; cancel generation and drain.
			cancel()
			for range relay.Fragments() {
			}
			return err
		}
	}

	if err := relay.Err(); err != nil {
		h.sendError(c, "Answer generation failed before completing")
		return nil
	}

	return c.WriteJSON(map[string]interface{}{
		"type": "complete",
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
