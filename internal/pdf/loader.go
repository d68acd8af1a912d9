package pdf

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/pdfchat/backend/pkg/logger"
)

// LoadError marks input that could not be parsed as a PDF. The HTTP layer
// maps it to a client error rather than a server fault.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load pdf: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type Page struct {
	Number int
	Text   string
}

type Document struct {
	Pages []Page
}

// Load extracts plain text per page. A page whose extraction fails yields
// empty text and is logged; downstream filtering decides whether the
// document as a whole is usable.
func Load(r io.ReaderAt, size int64) (Document, error) {
	reader, err := open(r, size)
	if err != nil {
		return Document{}, &LoadError{Err: err}
	}

	numPages := reader.NumPage()
	doc := Document{Pages: make([]Page, 0, numPages)}

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, Page{Number: i})
			continue
		}

		text, err := extractText(page)
		if err != nil {
			logger.Warn("Failed to extract page text",
				zap.Int("page", i),
				zap.Error(err),
			)
			doc.Pages = append(doc.Pages, Page{Number: i})
			continue
		}

		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}

	return doc, nil
}

// The parser panics on some malformed structures instead of returning an
// error; open and extractText convert those panics so a bad upload cannot
// take down the handler.
func open(r io.ReaderAt, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.NewReader(r, size)
}

func extractText(page pdf.Page) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page extraction failed: %v", rec)
		}
	}()
	return page.GetPlainText(nil)
}
