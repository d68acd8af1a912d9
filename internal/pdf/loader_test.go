package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRejectsNonPDF(t *testing.T) {
	inputs := []string{
		"",
		"plain text, no pdf header",
		"<html><body>not a pdf</body></html>",
		"%PDF-truncated garbage with no structure",
	}

	for _, input := range inputs {
		r := bytes.NewReader([]byte(input))
		_, err := Load(r, int64(len(input)))
		require.Error(t, err, "input %q", input)

		var loadErr *LoadError
		assert.ErrorAs(t, err, &loadErr)
	}
}

func TestLoadErrorWrapsCause(t *testing.T) {
	cause := errors.New("bad xref")
	err := &LoadError{Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to load pdf")
	assert.Contains(t, err.Error(), "bad xref")
}

func TestLoadReadsPageCount(t *testing.T) {
	data := onePagePDF()
	doc, err := Load(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 1, doc.Pages[0].Number)
}

// onePagePDF is a hand-assembled single empty page, enough to exercise the
// reader without binary fixtures.
func onePagePDF() []byte {
	var b bytes.Buffer

	b.WriteString("%PDF-1.4\n")
	objects := []string{
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n",
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n",
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n",
	}
	var offsets []int
	for _, obj := range objects {
		offsets = append(offsets, b.Len())
		b.WriteString(obj)
	}

	xrefStart := b.Len()
	b.WriteString("xref\n0 4\n")
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefStart)

	return b.Bytes()
}
