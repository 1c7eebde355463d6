package extract

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads a PDF from disk and extracts page-by-page plain text.
// Pages that fail to decode are skipped; the document only fails when no
// page yields any text at all.
func (e *Extractor) extractPDF(path string) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading %s: %v", ErrExtraction, path, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: opening PDF %s: %v", ErrExtraction, path, err)
	}

	var buf bytes.Buffer
	numPages := r.NumPage()
	extracted := 0
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("skipping unreadable PDF page", "path", path, "page", i, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(text)
		extracted++
	}

	cleaned := cleanText(buf.String())
	if cleaned == "" {
		return Result{}, fmt.Errorf("%w: no extractable text in %s (%d pages)", ErrExtraction, path, numPages)
	}

	return Result{
		Text: cleaned,
		Metadata: map[string]string{
			"pages":           strconv.Itoa(numPages),
			"pages_extracted": strconv.Itoa(extracted),
		},
	}, nil
}
