package ingest

import (
	"context"
	"fmt"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
)

// Embedder turns chunk texts into vectors. Implemented by pkg/ollama.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter persists embedded records. Implemented by semantic.VectorStore.
type VectorWriter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Policy decides how a batch write failure affects the rest of the job.
type Policy int

const (
	// BestEffort logs a failed batch and continues with the next one. Chunk
	// loss is possible and is surfaced through the Report, not as an error.
	BestEffort Policy = iota
	// FailFast aborts the job on the first failed batch.
	FailFast
)

func (p Policy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "best-effort"
}

// Options configures the ingestion pipeline.
type Options struct {
	ChunkSize int
	Overlap   int
	BatchSize int
	Policy    Policy
}

// DefaultOptions returns sensible defaults. The batch size stays well below
// typical per-request item limits of embedding services.
func DefaultOptions() Options {
	return Options{
		ChunkSize: 1000,
		Overlap:   150,
		BatchSize: 100,
	}
}

// BatchError records one failed batch with its position in the job.
type BatchError struct {
	Batch int    `json:"batch"`
	Err   error  `json:"-"`
	Cause string `json:"cause"`
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Batch, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }

// Report is the structured outcome of one ingestion job.
type Report struct {
	Source        string       `json:"source"`
	Chunks        int          `json:"chunks"`
	Stored        int          `json:"stored"`
	Batches       int          `json:"batches"`
	FailedBatches []BatchError `json:"failed_batches,omitempty"`
	Skipped       bool         `json:"skipped"`
}

// Complete reports whether every chunk reached the vector store.
func (r *Report) Complete() bool {
	return !r.Skipped && len(r.FailedBatches) == 0
}
