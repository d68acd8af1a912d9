package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdfchat/backend/internal/metrics"
	"github.com/pdfchat/backend/internal/stream"
	"github.com/pdfchat/backend/internal/vector/milvus"
	"github.com/pdfchat/backend/pkg/logger"
)

// ErrInvalidQuery rejects empty or whitespace-only questions before any
// external call is made.
var ErrInvalidQuery = errors.New("query cannot be empty")

// RetrievalError wraps a failure to embed the query or reach the index.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// GenerationError wraps a generation failure after the retry budget is
// spent.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder computes a query-representation embedding.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever is the read side of the vector index.
type Retriever interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, emit func(string) error) error
}

// EmbeddingCache stores query embeddings keyed by question text. Optional;
// retrieval result sets are never cached.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool, error)
	Set(ctx context.Context, text string, embedding []float32) error
}

type Engine struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	cache     EmbeddingCache
	topK      int
}

func NewEngine(embedder Embedder, retriever Retriever, generator Generator, topK int) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		topK:      topK,
	}
}

// WithCache attaches an optional query-embedding cache.
func (e *Engine) WithCache(cache EmbeddingCache) *Engine {
	e.cache = cache
	return e
}

// Answer runs the full pipeline and returns the complete generated answer.
func (e *Engine) Answer(ctx context.Context, messages []Message) (string, error) {
	prompt, err := e.preparePrompt(ctx, messages)
	if err != nil {
		return "", err
	}

	answer, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	return answer, nil
}

// AnswerStream runs validation and retrieval synchronously, then returns a
// relay carrying generation fragments. A generation failure after streaming
// has begun arrives as the relay's terminal error.
func (e *Engine) AnswerStream(ctx context.Context, messages []Message) (*stream.Relay, error) {
	prompt, err := e.preparePrompt(ctx, messages)
	if err != nil {
		return nil, err
	}

	relay := stream.NewRelay(16)

	go func() {
		err := e.generator.GenerateStream(ctx, prompt, func(fragment string) error {
			return relay.Send(ctx, fragment)
		})
		if err != nil {
			relay.Close(&GenerationError{Err: err})
			return
		}
		relay.Close(nil)
	}()

	return relay, nil
}

// preparePrompt covers steps 1-4 of the pipeline: validate, embed, retrieve,
// assemble. The latest user message is the retrieval query; earlier history
// is carried for display only.
func (e *Engine) preparePrompt(ctx context.Context, messages []Message) (string, error) {
	question := latestQuestion(messages)
	if strings.TrimSpace(question) == "" {
		return "", ErrInvalidQuery
	}

	start := time.Now()

	embedding, err := e.queryEmbedding(ctx, question)
	if err != nil {
		return "", &RetrievalError{Err: err}
	}

	results, err := e.retriever.Search(ctx, embedding, e.topK)
	if err != nil {
		return "", &RetrievalError{Err: err}
	}

	logger.Info("Chunks retrieved",
		zap.Int("results", len(results)),
		zap.Int("top_k", e.topK),
		zap.Duration("elapsed", time.Since(start)),
	)

	return renderPrompt(buildContext(results), question), nil
}

func (e *Engine) queryEmbedding(ctx context.Context, question string) ([]float32, error) {
	if e.cache != nil {
		embedding, ok, err := e.cache.Get(ctx, question)
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok {
			metrics.EmbeddingCacheHits.WithLabelValues("hit").Inc()
			return embedding, nil
		}
		metrics.EmbeddingCacheHits.WithLabelValues("miss").Inc()
	}

	embedding, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, question, embedding); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return embedding, nil
}

func latestQuestion(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}
