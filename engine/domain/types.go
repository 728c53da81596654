// Package domain defines core domain types, constants, and validation for the
// CoursePilot engine. It acts as the validation gate at pipeline entry points.
package domain

// Format identifies how a document's bytes should be interpreted.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatText    Format = "text"
	FormatGeneric Format = "generic"
)

// Document represents an uploaded file awaiting ingestion. The file is
// temporary: it is removed after ingestion regardless of outcome.
type Document struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Format   Format `json:"format"`
}

// Chunk is a bounded text segment derived from a document for independent
// embedding. Index is the chunk's position within its source document.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Index  int    `json:"index"`
}

// Question represents a user chat question. Ephemeral, never persisted.
type Question struct {
	Text string `json:"text"`
}
