package pdftext

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"ScholarLoop/internal/ports"
)

const (
	// maxPages bounds extraction; the evaluator only consumes the
	// leading excerpt anyway.
	maxPages = 100

	// maxTextBytes caps extracted text at 1MB.
	maxTextBytes = 1024 * 1024
)

// Extractor pulls plain text out of materialized PDF files.
type Extractor struct{}

var _ ports.Extractor = (*Extractor)(nil)

// NewExtractor returns a stateless PDF text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the PDF at path and returns normalized plain text.
// Pages that fail to decode are skipped; a document with no readable
// text at all is an error.
func (e *Extractor) Extract(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer file.Close()

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return "", fmt.Errorf("pdf %s has no pages", path)
	}
	if totalPages > maxPages {
		totalPages = maxPages
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		cleaned := normalize(pageText)
		if cleaned == "" {
			continue
		}
		text.WriteString(cleaned)
		text.WriteString("\n")

		if text.Len() > maxTextBytes {
			break
		}
	}

	result := text.String()
	if len(result) > maxTextBytes {
		result = result[:maxTextBytes]
	}
	if strings.TrimSpace(result) == "" {
		return "", fmt.Errorf("pdf %s yielded no text", path)
	}
	return result, nil
}

// normalize strips null bytes and collapses whitespace runs while
// preserving line breaks.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")

	var result strings.Builder
	lastWasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if r == '\n' {
				result.WriteRune('\n')
				lastWasSpace = false
				continue
			}
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		result.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(result.String())
}
