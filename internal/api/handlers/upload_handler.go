package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pdfchat/backend/internal/ingestion"
	"github.com/pdfchat/backend/internal/metrics"
	"github.com/pdfchat/backend/internal/pdf"
	"github.com/pdfchat/backend/pkg/logger"
)

// Ingestor runs the document pipeline on an already-loaded PDF.
type Ingestor interface {
	IngestDocument(ctx context.Context, doc pdf.Document, source string) (*ingestion.IngestStats, error)
}

// LoadFunc extracts per-page text from an uploaded file. Production wiring
// passes pdf.Load; tests substitute a fixture.
type LoadFunc func(r io.ReaderAt, size int64) (pdf.Document, error)

type UploadHandler struct {
	ingestor Ingestor
	load     LoadFunc
}

func NewUploadHandler(ingestor Ingestor, load LoadFunc) *UploadHandler {
	return &UploadHandler{
		ingestor: ingestor,
		load:     load,
	}
}

// HandleUpload accepts a multipart "file" field holding a PDF, and responds
// with plain text on success to match the uploader widget's expectations.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return c.Status(fiber.StatusBadRequest).SendString("No file uploaded")
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).SendString("Error processing file")
	}
	defer file.Close()

	doc, err := h.load(file, fileHeader.Size)
	if err != nil {
		var loadErr *pdf.LoadError
		if errors.As(err, &loadErr) {
			logger.Warn("Unparseable PDF uploaded",
				zap.String("filename", fileHeader.Filename),
				zap.Error(err),
			)
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			return c.Status(fiber.StatusBadRequest).SendString("The uploaded file is not a readable PDF")
		}
		logger.Error("Failed to load PDF", zap.Error(err))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).SendString("Error processing file")
	}

	stats, err := h.ingestor.IngestDocument(c.Context(), doc, fileHeader.Filename)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyDocument) {
			metrics.UploadsTotal.WithLabelValues("rejected").Inc()
			return c.Status(fiber.StatusBadRequest).SendString("No content found in the uploaded PDF")
		}

		var partial *ingestion.PartialUpsertError
		if errors.As(err, &partial) {
			logger.Error("Ingestion partially failed",
				zap.String("filename", fileHeader.Filename),
				zap.Int("indexed", partial.Indexed),
				zap.Int("failed", partial.Failed),
				zap.Error(err),
			)
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			return c.Status(fiber.StatusInternalServerError).
				SendString("Document was only partially indexed; please retry the upload")
		}

		logger.Error("Failed to ingest document", zap.Error(err))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).SendString("Error processing file")
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.ChunksIndexed.Add(float64(stats.Indexed))

	logger.Info("Upload processed",
		zap.String("filename", fileHeader.Filename),
		zap.Int("pages", stats.Pages),
		zap.Int("chunks", stats.Chunks),
	)

	return c.SendString(fmt.Sprintf("File processed successfully (%d chunks indexed)", stats.Indexed))
}
