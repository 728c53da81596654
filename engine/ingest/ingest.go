// Package ingest provides the ingestion pipeline that takes an uploaded
// document through loading, chunking, embedding, and batched persistence
// into the vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/chunker"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/domain"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/loader"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/fn"
	"github.com/google/uuid"
)

// Pipeline orchestrates load → chunk → embed → store for one document.
// Within one job, batches are written strictly in sequence; different jobs
// may run concurrently against the same store.
type Pipeline struct {
	loader *loader.Loader
	embed  Embedder
	store  VectorWriter
	opts   Options
	logger *slog.Logger
}

// New creates a Pipeline.
func New(embed Embedder, store VectorWriter, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Pipeline{
		loader: loader.New(logger),
		embed:  embed,
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// Ingest processes the file at path. The file is removed before returning on
// every exit path. A nil error with an incomplete Report means some batches
// were lost under the best-effort policy; callers decide how to react.
func (p *Pipeline) Ingest(ctx context.Context, path string) (*Report, error) {
	defer p.cleanup(path)

	doc := domain.Document{
		Filename: filepath.Base(path),
		Path:     path,
		Format:   domain.DetectFormat(path),
	}
	report := &Report{Source: doc.Filename}

	load := fn.TracedStage("ingest.load", func(_ context.Context, d domain.Document) fn.Result[string] {
		return fn.FromPair(p.loader.Load(d))
	})
	chunk := fn.TracedStage("ingest.chunk", fn.MapStage(func(text string) []domain.Chunk {
		return p.chunks(doc.Filename, text)
	}))

	chunksRes := fn.Then(load, chunk)(ctx, doc)
	chunks, err := chunksRes.Unwrap()
	if err != nil {
		return report, fmt.Errorf("ingest %s: %w", doc.Filename, err)
	}

	if len(chunks) == 0 {
		p.logger.Info("ingest: nothing to index", "source", doc.Filename)
		report.Skipped = true
		return report, nil
	}
	report.Chunks = len(chunks)

	batches := fn.Chunk(chunks, p.opts.BatchSize)
	report.Batches = len(batches)

	for i, batch := range batches {
		if err := p.persistBatch(ctx, batch); err != nil {
			report.FailedBatches = append(report.FailedBatches, BatchError{
				Batch: i, Err: err, Cause: err.Error(),
			})
			p.logger.Error("ingest: batch failed",
				"source", doc.Filename, "batch", i, "policy", p.opts.Policy.String(), "error", err)
			if p.opts.Policy == FailFast {
				return report, fmt.Errorf("ingest %s: batch %d: %w", doc.Filename, i, err)
			}
			continue
		}
		report.Stored += len(batch)
	}

	p.logger.Info("ingest: done",
		"source", doc.Filename,
		"chunks", report.Chunks,
		"stored", report.Stored,
		"failed_batches", len(report.FailedBatches))
	return report, nil
}

// chunks splits text and tags every chunk with its source filename so
// retrieved results can be attributed to their origin document.
func (p *Pipeline) chunks(source, text string) []domain.Chunk {
	pieces := chunker.Split(text, p.opts.ChunkSize, p.opts.Overlap)
	out := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		out[i] = domain.Chunk{Text: piece, Source: source, Index: i}
	}
	return out
}

// persistBatch embeds one batch and writes it to the vector store. The batch
// either lands whole or not at all: an embedding failure aborts the write.
func (p *Pipeline) persistBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := fn.Map(batch, func(c domain.Chunk) string { return c.Text })
	vectors, err := p.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	records := make([]semantic.VectorRecord, len(batch))
	for i, c := range batch {
		records[i] = semantic.VectorRecord{
			ID:        pointID(c.Source, c.Index),
			Embedding: vectors[i],
			Content:   c.Text,
			Source:    c.Source,
			Index:     c.Index,
		}
	}
	if err := p.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// pointID derives a deterministic UUID from the source filename and chunk
// index, so re-ingesting the same file overwrites rather than duplicates.
func pointID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", source, index))).String()
}

// cleanup removes the temporary upload. Removing an already-removed file is
// a no-op, so the call is safe on every exit path.
func (p *Pipeline) cleanup(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("ingest: cleanup failed", "path", path, "error", err)
	}
}
