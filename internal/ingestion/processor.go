package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdfchat/backend/internal/pdf"
	"github.com/pdfchat/backend/internal/vector/milvus"
	"github.com/pdfchat/backend/pkg/config"
	"github.com/pdfchat/backend/pkg/logger"
)

// ErrEmptyDocument means the PDF parsed but no chunk survived whitespace
// filtering. Distinct from pdf.LoadError: the file was readable, just empty.
var ErrEmptyDocument = errors.New("document contains no usable text")

// PartialUpsertError reports a batch upsert that failed partway. There is no
// rollback; entries already indexed remain. Callers should surface this as a
// retryable ingestion failure.
type PartialUpsertError struct {
	Indexed int
	Failed  int
	Err     error
}

func (e *PartialUpsertError) Error() string {
	return fmt.Sprintf("ingestion partially failed: %d entries indexed, %d failed: %v", e.Indexed, e.Failed, e.Err)
}

func (e *PartialUpsertError) Unwrap() error {
	return e.Err
}

// Embedder computes document-representation embeddings, one per text, in
// input order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer is the additive upsert side of the vector index.
type Indexer interface {
	Upsert(ctx context.Context, entries []milvus.Entry) error
}

type IngestStats struct {
	Pages   int
	Chunks  int
	Indexed int
}

type Processor struct {
	embedder    Embedder
	index       Indexer
	splitter    SplitterConfig
	concurrency int
	batchSize   int
}

func NewProcessor(embedder Embedder, index Indexer, cfg config.IngestionConfig) *Processor {
	concurrency := cfg.UpsertConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	batchSize := cfg.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	splitter := SplitterConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}
	if err := splitter.Validate(); err != nil {
		// An unusable windowing policy would loop in splitPage.
		splitter = SplitterConfig{ChunkSize: 800, ChunkOverlap: 100}
	}

	return &Processor{
		embedder: embedder,
		index:    index,
		splitter: splitter,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

// IngestDocument runs split -> filter -> embed -> upsert. Upserts go out in
// batches with bounded parallelism; batch completion order is not
// significant.
func (p *Processor) IngestDocument(ctx context.Context, doc pdf.Document, source string) (*IngestStats, error) {
	chunks := p.splitter.Split(doc.Pages)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	logger.Info("Document chunked",
		zap.String("source", source),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("chunks", len(chunks)),
	)

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	entries := make([]milvus.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = milvus.Entry{
			ID:        uuid.New().String(),
			Text:      chunk.Text,
			Embedding: embeddings[i],
			Page:      chunk.Page,
			Ordinal:   chunk.Ordinal,
			Source:    source,
		}
	}

	var indexed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for start := 0; start < len(entries); start += p.batchSize {
		end := start + p.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		g.Go(func() error {
			if err := p.index.Upsert(gctx, batch); err != nil {
				return err
			}
			indexed.Add(int64(len(batch)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &PartialUpsertError{
			Indexed: int(indexed.Load()),
			Failed:  len(entries) - int(indexed.Load()),
			Err:     err,
		}
	}

	logger.Info("Document ingested",
		zap.String("source", source),
		zap.Int("entries", len(entries)),
	)

	return &IngestStats{
		Pages:   len(doc.Pages),
		Chunks:  len(chunks),
		Indexed: int(indexed.Load()),
	}, nil
}
