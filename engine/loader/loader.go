// Package loader extracts plain text from uploaded documents. PDF files get
// page-aware extraction, text files a direct UTF-8 read, and anything else a
// best-effort pass that keeps only printable characters. If the primary
// strategy yields nothing, one generic fallback is attempted before failing.
package loader

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/domain"
	"github.com/ledongthuc/pdf"
)

// Loader reads documents from disk and extracts their text content.
type Loader struct {
	logger *slog.Logger
}

// New creates a Loader.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load reads the file at doc.Path and extracts its text according to
// doc.Format. An empty extraction result is reported as domain.ErrNoContent
// after the fallback strategy has also been tried.
func (l *Loader) Load(doc domain.Document) (string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", fmt.Errorf("loader: read %s: %w", doc.Path, err)
	}

	text, err := l.extract(doc, data)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			l.logger.Warn("loader: primary extraction failed, trying generic fallback",
				"file", doc.Filename, "format", doc.Format, "error", err)
		}
		text = extractPrintable(data)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("loader: %s: %w", doc.Filename, domain.ErrNoContent)
	}
	return text, nil
}

func (l *Loader) extract(doc domain.Document, data []byte) (string, error) {
	switch doc.Format {
	case domain.FormatPDF:
		return extractPDF(data)
	case domain.FormatText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("loader: %s is not valid UTF-8", doc.Filename)
		}
		return string(data), nil
	default:
		return extractPrintable(data), nil
	}
}

// extractPDF walks the document page by page, so page order is preserved and
// a single corrupt page does not discard the rest.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("loader: open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("loader: pdf has no extractable text")
	}
	return b.String(), nil
}

// extractPrintable keeps printable runes and common whitespace, dropping
// everything else. This is the generic fallback for unknown formats and for
// primary strategies that come back empty.
func extractPrintable(data []byte) string {
	var b strings.Builder
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			if c := data[0]; c == '\n' || c == '\r' || c == '\t' || (c >= 32 && c < 127) {
				b.WriteByte(c)
			}
			data = data[1:]
			continue
		}
		data = data[size:]
		if printable(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func printable(r rune) bool {
	return r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != utf8.RuneError)
}
