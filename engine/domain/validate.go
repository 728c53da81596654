package domain

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLength bounds chat questions so a single message cannot blow up
// the prompt sent to the generative model.
const MaxQuestionLength = 4000

// ValidateQuestion checks a chat question before it enters the RAG pipeline.
func ValidateQuestion(q Question) error {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return NewValidationError("text", q.Text, ErrEmptyQuestion)
	}
	if utf8.RuneCountInString(text) > MaxQuestionLength {
		return NewValidationError("text", text[:32]+"...", ErrQuestionTooLong)
	}
	return nil
}

// ValidateTopK checks the retrieved-chunk count for a query.
func ValidateTopK(k int) error {
	if k <= 0 {
		return NewValidationError("k", strconv.Itoa(k), ErrInvalidTopK)
	}
	return nil
}

// ValidateUploadFilename rejects names that would escape the uploads
// directory once joined to it.
func ValidateUploadFilename(name string) error {
	if name == "" {
		return NewValidationError("filename", name, ErrEmptyFilename)
	}
	clean := filepath.Base(filepath.Clean(name))
	if clean != name || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return NewValidationError("filename", name, ErrUnsafeFilename)
	}
	return nil
}

// DetectFormat maps a filename extension to a document format. Unknown
// extensions fall through to generic extraction rather than being rejected.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".txt", ".md":
		return FormatText
	default:
		return FormatGeneric
	}
}
