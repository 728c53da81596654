// Command ingest scans a directory of course documents and runs each file
// through the ingestion pipeline into Qdrant. Originals stay in place; every
// file is staged to a temporary copy because the pipeline consumes its input.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/domain"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/ingest"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/fn"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/metrics"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/ollama"
)

var met = metrics.New()

var (
	mFilesProcessed = met.Counter("coursepilot_ingest_files_total", "Files processed")
	mFilesFailed    = met.Counter("coursepilot_ingest_failures_total", "Files that failed ingestion")
	mChunksStored   = met.Counter("coursepilot_ingest_chunks_stored_total", "Chunks written to the vector store")
	mBatchesFailed  = met.Counter("coursepilot_ingest_batches_failed_total", "Batches lost under best-effort policy")
	mLastScan       = met.Gauge("coursepilot_ingest_last_scan_timestamp", "Epoch of last directory scan")
	mQueueDepth     = met.Gauge("coursepilot_ingest_queue_depth", "Files waiting to process")
	mFileDur        = met.Histogram("coursepilot_ingest_file_duration_seconds", "Per-file pipeline time", nil)
	mDocsByFormat   = func(format string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("coursepilot_ingest_docs_total", "format", format), "Documents ingested by format")
	}
)

const vectorDims = 768 // nomic-embed-text

func main() {
	var (
		dataDir     = flag.String("dir", "course_docs", "directory to scan for documents")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "course_material", "Qdrant collection name")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval; 0 runs one scan and exits")
		stateFile   = flag.String("state", ".ingest-state.json", "processed files state, relative to -dir")
		failFast    = flag.Bool("fail-fast", false, "abort a file on its first failed batch")
		metricsPort = flag.Int("metrics-port", 9091, "metrics endpoint port")
	)
	flag.Parse()

	met.CollectRuntime("coursepilot_ingest", 15*time.Second)
	met.ServeAsync(*metricsPort)

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", vectorDims)

	embedder := ollama.NewEmbedClient(*ollamaURL, *ollamaModel)

	opts := ingest.DefaultOptions()
	if *failFast {
		opts.Policy = ingest.FailFast
	}
	pipeline := ingest.New(embedder, vs, opts, log)

	statePath := filepath.Join(*dataDir, *stateFile)
	processed := loadState(statePath)

	os.MkdirAll(*dataDir, 0o755)
	log.Info("scanning for course documents", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			log.Error("readdir failed", "error", err)
			return
		}

		for _, e := range entries {
			if ctx.Err() != nil {
				return
			}
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			key := fmt.Sprintf("%s:%d", e.Name(), info.Size())
			if processed[key] {
				continue
			}

			mQueueDepth.Inc()
			start := time.Now()
			report, err := ingestFile(ctx, pipeline, filepath.Join(*dataDir, e.Name()))
			mFileDur.Since(start)
			mQueueDepth.Dec()
			mFilesProcessed.Inc()

			if err != nil {
				mFilesFailed.Inc()
				log.Error("file failed, will retry on next scan", "file", e.Name(), "error", err)
				continue
			}

			mChunksStored.Add(int64(report.Stored))
			mBatchesFailed.Add(int64(len(report.FailedBatches)))
			mDocsByFormat(string(domain.DetectFormat(e.Name()))).Inc()
			log.Info("file done",
				"file", e.Name(),
				"chunks", report.Chunks,
				"stored", report.Stored,
				"skipped", report.Skipped,
			)

			// A file with lost batches stays unmarked so the next scan
			// re-ingests it; deterministic point IDs make that an overwrite.
			if report.Complete() || report.Skipped {
				processed[key] = true
				saveState(statePath, processed)
			}
		}
	}

	scan()
	if *interval <= 0 {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

// ingestFile stages a copy of the document and runs the pipeline over the
// copy, retrying transient failures with backoff. The original is untouched.
func ingestFile(ctx context.Context, pipeline *ingest.Pipeline, path string) (*ingest.Report, error) {
	result := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[*ingest.Report] {
		staged, err := stage(path)
		if err != nil {
			return fn.Err[*ingest.Report](err)
		}
		return fn.FromPair(pipeline.Ingest(ctx, staged))
	})
	return result.Unwrap()
}

// stage copies the document into the staging area under its original name,
// so chunk sources and point IDs match what an upload of the same file
// would produce.
func stage(path string) (string, error) {
	dir := filepath.Join(os.TempDir(), "coursepilot-staging")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stage %s: %w", path, err)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	defer src.Close()

	dest := filepath.Join(dir, filepath.Base(path))
	dst, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return "", fmt.Errorf("stage %s: %w", path, err)
	}
	return dest, dst.Close()
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
