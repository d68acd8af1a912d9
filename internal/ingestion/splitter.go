package ingestion

import (
	"fmt"
	"strings"

	"github.com/pdfchat/backend/internal/pdf"
)

// Chunk is the atomic unit handed to the embedder and the vector index.
type Chunk struct {
	Text    string
	Page    int
	Ordinal int
}

// SplitterConfig is a windowing policy: fixed-size character windows that
// advance by ChunkSize-ChunkOverlap, so consecutive chunks share exactly
// ChunkOverlap characters. Windows never span page boundaries.
type SplitterConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be between 1 and %d, got %d", c.ChunkSize-1, c.ChunkOverlap)
	}
	return nil
}

// Split chunks every page and drops chunks that are empty after trimming.
// Offsets are rune-based so multi-byte text never splits mid-character.
func (c SplitterConfig) Split(pages []pdf.Page) []Chunk {
	var chunks []Chunk
	ordinal := 0

	for _, page := range pages {
		for _, text := range c.splitPage(page.Text) {
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:    text,
				Page:    page.Number,
				Ordinal: ordinal,
			})
			ordinal++
		}
	}

	return chunks
}

func (c SplitterConfig) splitPage(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	if len(runes) <= c.ChunkSize {
		return []string{text}
	}

	step := c.ChunkSize - c.ChunkOverlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.ChunkSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}

	return out
}
