package handlers

import (
	"bufio"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/pdfchat/backend/internal/chat"
	"github.com/pdfchat/backend/internal/metrics"
	"github.com/pdfchat/backend/internal/stream"
	"github.com/pdfchat/backend/pkg/logger"
)

// ChatEngine is the retrieval-augmented query pipeline behind /chat.
type ChatEngine interface {
	Answer(ctx context.Context, messages []chat.Message) (string, error)
	AnswerStream(ctx context.Context, messages []chat.Message) (*stream.Relay, error)
}

type ChatHandler struct {
	engine ChatEngine
}

func NewChatHandler(engine ChatEngine) *ChatHandler {
	return &ChatHandler{
		engine: engine,
	}
}

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
	Stream   bool           `json:"stream"`
}

// HandleChat answers the latest user message. With stream=true (body field
// or query param) the response body is a text/event-stream of raw answer
// fragments; chunk boundaries are arbitrary, there is no inner framing, and
// a mid-stream generation failure closes the body early. Clients needing an
// explicit terminal success/failure signal should use the websocket route.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse chat request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if c.Query("stream") == "true" {
		req.Stream = true
	}

	if req.Stream {
		return h.streamAnswer(c, req.Messages)
	}

	return h.wholeAnswer(c, req.Messages)
}

func (h *ChatHandler) wholeAnswer(c *fiber.Ctx, messages []chat.Message) error {
	start := time.Now()

	answer, err := h.engine.Answer(c.Context(), messages)
	if err != nil {
		return h.pipelineError(c, err)
	}

	metrics.QueryTotal.WithLabelValues("success", "whole").Inc()
	metrics.QueryDuration.WithLabelValues("whole").Observe(time.Since(start).Seconds())

	return c.JSON(fiber.Map{
		"role":    "assistant",
		"content": answer,
	})
}

func (h *ChatHandler) streamAnswer(c *fiber.Ctx, messages []chat.Message) error {
	start := time.Now()

	// The generation context outlives this handler; it is cancelled when
	// the body writer exits, so a client abort stops the upstream call.
	ctx, cancel := context.WithCancel(context.Background())

	relay, err := h.engine.AnswerStream(ctx, messages)
	if err != nil {
		cancel()
		return h.pipelineError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for fragment := range relay.Fragments() {
			if _, err := w.WriteString(fragment); err != nil {
				logger.Debug("Client disconnected mid-stream", zap.Error(err))
				metrics.QueryTotal.WithLabelValues("aborted", "stream").Inc()
				return
			}
			if err := w.Flush(); err != nil {
				logger.Debug("Client disconnected mid-stream", zap.Error(err))
				metrics.QueryTotal.WithLabelValues("aborted", "stream").Inc()
				return
			}
			metrics.StreamFragments.Inc()
		}

		if err := relay.Err(); err != nil {
			logger.Error("Generation failed mid-stream", zap.Error(err))
			metrics.QueryTotal.WithLabelValues("error", "stream").Inc()
			return
		}

		metrics.QueryTotal.WithLabelValues("success", "stream").Inc()
		metrics.QueryDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}))

	return nil
}

func (h *ChatHandler) pipelineError(c *fiber.Ctx, err error) error {
	if errors.Is(err, chat.ErrInvalidQuery) {
		metrics.QueryTotal.WithLabelValues("rejected", "any").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query cannot be empty",
		})
	}

	var retrievalErr *chat.RetrievalError
	if errors.As(err, &retrievalErr) {
		logger.Error("Retrieval failed", zap.Error(err))
		metrics.QueryTotal.WithLabelValues("error", "any").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve document context",
		})
	}

	var generationErr *chat.GenerationError
	if errors.As(err, &generationErr) {
		logger.Error("Generation failed", zap.Error(err))
		metrics.QueryTotal.WithLabelValues("error", "any").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate an answer",
		})
	}

	logger.Error("Chat pipeline failed", zap.Error(err))
	metrics.QueryTotal.WithLabelValues("error", "any").Inc()
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process query",
	})
}
