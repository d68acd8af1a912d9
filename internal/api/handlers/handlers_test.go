package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfchat/backend/internal/chat"
	"github.com/pdfchat/backend/internal/ingestion"
	"github.com/pdfchat/backend/internal/pdf"
	"github.com/pdfchat/backend/internal/stream"
)

type fakeEngine struct {
	calls     int
	answer    string
	fragments []string
	err       error
	streamErr error
}

func (f *fakeEngine) Answer(ctx context.Context, messages []chat.Message) (string, error) {
	f.calls++
	if err := f.validate(messages); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeEngine) AnswerStream(ctx context.Context, messages []chat.Message) (*stream.Relay, error) {
	f.calls++
	if err := f.validate(messages); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}

	relay := stream.NewRelay(len(f.fragments))
	go func() {
		for _, fragment := range f.fragments {
			relay.Send(ctx, fragment)
		}
		if f.streamErr != nil {
			relay.Close(&chat.GenerationError{Err: f.streamErr})
			return
		}
		relay.Close(nil)
	}()
	return relay, nil
}

func (f *fakeEngine) validate(messages []chat.Message) error {
	if len(messages) == 0 || strings.TrimSpace(messages[len(messages)-1].Content) == "" {
		return chat.ErrInvalidQuery
	}
	return nil
}

type fakeIngestor struct {
	calls int
	stats *ingestion.IngestStats
	err   error
}

func (f *fakeIngestor) IngestDocument(ctx context.Context, doc pdf.Document, source string) (*ingestion.IngestStats, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func chatApp(engine ChatEngine) *fiber.App {
	app := fiber.New()
	handler := NewChatHandler(engine)
	app.Post("/api/v1/chat", handler.HandleChat)
	return app
}

func uploadApp(ingestor Ingestor, load LoadFunc) *fiber.App {
	if load == nil {
		load = func(r io.ReaderAt, size int64) (pdf.Document, error) {
			return pdf.Document{Pages: []pdf.Page{{Number: 1, Text: "The sky is blue."}}}, nil
		}
	}
	app := fiber.New()
	handler := NewUploadHandler(ingestor, load)
	app.Post("/api/v1/upload", handler.HandleUpload)
	return app
}

func chatRequestBody(t *testing.T, content string, streaming bool) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"messages": []chat.Message{{Role: "user", Content: content}},
		"stream":   streaming,
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestChatEmptyQuestionRejected(t *testing.T) {
	engine := &fakeEngine{}
	app := chatApp(engine)

	for _, content := range []string{"", "   ", "\n\t"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatRequestBody(t, content, false))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.NotEmpty(t, payload["error"])
	}
}

func TestChatWholeAnswer(t *testing.T) {
	engine := &fakeEngine{answer: "The sky is blue. (page 1)"}
	app := chatApp(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatRequestBody(t, "What color is the sky?", false))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "assistant", payload["role"])
	assert.Equal(t, "The sky is blue. (page 1)", payload["content"])
}

func TestChatStreamedBodyReconstructsAnswer(t *testing.T) {
	fragments := []string{"The sky ", "is ", "blue. ", "(page 1)"}
	engine := &fakeEngine{fragments: fragments}
	app := chatApp(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatRequestBody(t, "What color is the sky?", true))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(fragments, ""), string(body))
}

func TestChatStreamViaQueryParam(t *testing.T) {
	engine := &fakeEngine{fragments: []string{"hi"}}
	app := chatApp(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat?stream=true", chatRequestBody(t, "q", false))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
}

func TestChatRetrievalFailure(t *testing.T) {
	engine := &fakeEngine{err: &chat.RetrievalError{Err: errors.New("index down")}}
	app := chatApp(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatRequestBody(t, "question", false))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotEmpty(t, payload["error"])
}

func TestChatGenerationFailure(t *testing.T) {
	engine := &fakeEngine{err: &chat.GenerationError{Err: errors.New("model down")}}
	app := chatApp(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatRequestBody(t, "question", false))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUploadRequiresFile(t *testing.T) {
	ingestor := &fakeIngestor{}
	app := uploadApp(ingestor, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, ingestor.calls)
}

func pdfUploadRequest(t *testing.T) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "doc.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fixture"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadEmptyDocument(t *testing.T) {
	ingestor := &fakeIngestor{err: ingestion.ErrEmptyDocument}
	app := uploadApp(ingestor, nil)

	resp, err := app.Test(pdfUploadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, ingestor.calls)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "No content found")
}

func TestUploadPartialIngestionFailure(t *testing.T) {
	ingestor := &fakeIngestor{err: &ingestion.PartialUpsertError{
		Indexed: 3,
		Failed:  2,
		Err:     errors.New("network blip"),
	}}
	app := uploadApp(ingestor, nil)

	resp, err := app.Test(pdfUploadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "retry")
}

func TestUploadSuccess(t *testing.T) {
	ingestor := &fakeIngestor{stats: &ingestion.IngestStats{Pages: 1, Chunks: 2, Indexed: 2}}
	app := uploadApp(ingestor, nil)

	resp, err := app.Test(pdfUploadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "File processed successfully")
}

func TestUploadRejectsNonPDF(t *testing.T) {
	ingestor := &fakeIngestor{}
	load := func(r io.ReaderAt, size int64) (pdf.Document, error) {
		return pdf.Document{}, &pdf.LoadError{Err: errors.New("malformed header")}
	}
	app := uploadApp(ingestor, load)

	resp, err := app.Test(pdfUploadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, ingestor.calls, "unparseable input must not reach ingestion")

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "not a readable PDF")
}
