package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
)

// --- mocks ---

type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

type mockStore struct {
	batches   [][]semantic.VectorRecord
	failBatch int // 1-based call number to fail, 0 = never
	calls     int
}

func (m *mockStore) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	m.calls++
	if m.failBatch != 0 && m.calls == m.failBatch {
		return errors.New("store unavailable")
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *mockStore) stored() int {
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func writeUpload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestPipeline(embed Embedder, store VectorWriter, opts Options) *Pipeline {
	return New(embed, store, opts, nil)
}

// --- tests ---

func TestIngest_Success(t *testing.T) {
	path := writeUpload(t, "notes.txt", strings.Repeat("All about derivatives. ", 50))
	store := &mockStore{}
	p := newTestPipeline(&mockEmbedder{}, store, Options{ChunkSize: 100, Overlap: 10, BatchSize: 3})

	report, err := p.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Skipped || report.Chunks == 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Stored != report.Chunks {
		t.Fatalf("stored %d of %d chunks", report.Stored, report.Chunks)
	}
	if !report.Complete() {
		t.Fatal("report should be complete")
	}
	if store.stored() != report.Chunks {
		t.Fatalf("store has %d records, want %d", store.stored(), report.Chunks)
	}
	for _, b := range store.batches {
		for _, r := range b {
			if r.Source != "notes.txt" {
				t.Fatalf("record not tagged with source: %+v", r)
			}
		}
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("source file must be removed after ingestion")
	}
}

func TestIngest_EmptyFileSkips(t *testing.T) {
	path := writeUpload(t, "empty.txt", "   \n\n ")
	store := &mockStore{}
	p := newTestPipeline(&mockEmbedder{}, store, DefaultOptions())

	report, err := p.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("empty document is a skip, not an error: %v", err)
	}
	if !report.Skipped {
		t.Fatal("expected skipped report")
	}
	if store.calls != 0 {
		t.Fatal("no index writes for an empty document")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("cleanup must run on the skip path too")
	}
}

func TestIngest_MissingFile(t *testing.T) {
	p := newTestPipeline(&mockEmbedder{}, &mockStore{}, DefaultOptions())
	_, err := p.Ingest(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	if err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestIngest_PartialBatchFailure_BestEffort(t *testing.T) {
	// Enough text for several batches of 2 chunks each.
	path := writeUpload(t, "big.txt", strings.Repeat("Integration by parts. ", 200))
	store := &mockStore{failBatch: 2}
	p := newTestPipeline(&mockEmbedder{}, store, Options{ChunkSize: 120, BatchSize: 2, Policy: BestEffort})

	report, err := p.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("best-effort must not fail the job: %v", err)
	}
	if report.Batches < 3 {
		t.Fatalf("test needs at least 3 batches, got %d", report.Batches)
	}
	if len(report.FailedBatches) != 1 || report.FailedBatches[0].Batch != 1 {
		t.Fatalf("unexpected failures: %+v", report.FailedBatches)
	}
	// All remaining batches were attempted after the failure.
	if store.calls != report.Batches {
		t.Fatalf("attempted %d of %d batches", store.calls, report.Batches)
	}
	wantStored := report.Chunks - 2
	if report.Stored != wantStored || store.stored() != wantStored {
		t.Fatalf("stored %d (store %d), want %d", report.Stored, store.stored(), wantStored)
	}
	if report.Complete() {
		t.Fatal("report with failed batches must not be complete")
	}
}

func TestIngest_FailFastStops(t *testing.T) {
	path := writeUpload(t, "big.txt", strings.Repeat("Cauchy sequences converge. ", 200))
	store := &mockStore{failBatch: 1}
	p := newTestPipeline(&mockEmbedder{}, store, Options{ChunkSize: 120, BatchSize: 2, Policy: FailFast})

	report, err := p.Ingest(context.Background(), path)
	if err == nil {
		t.Fatal("fail-fast must surface the batch error")
	}
	if store.calls != 1 {
		t.Fatalf("made %d store calls after first failure, want 1", store.calls)
	}
	if report.Stored != 0 {
		t.Fatalf("stored %d, want 0", report.Stored)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("cleanup must run on the fail-fast path")
	}
}

func TestIngest_EmbedFailureCountsAsBatchFailure(t *testing.T) {
	path := writeUpload(t, "notes.txt", strings.Repeat("Eigenvalues and eigenvectors. ", 30))
	store := &mockStore{}
	p := newTestPipeline(&mockEmbedder{err: errors.New("embedder down")}, store, Options{ChunkSize: 200, BatchSize: 2})

	report, err := p.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("best-effort must not fail the job: %v", err)
	}
	if len(report.FailedBatches) != report.Batches {
		t.Fatalf("all %d batches should fail, got %d", report.Batches, len(report.FailedBatches))
	}
	if store.calls != 0 {
		t.Fatal("no store writes when embedding fails")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	path := writeUpload(t, "notes.txt", "text")
	p := newTestPipeline(&mockEmbedder{}, &mockStore{}, DefaultOptions())

	p.cleanup(path)
	p.cleanup(path) // second removal of a missing file must be a no-op
}

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("notes.txt", 3)
	b := pointID("notes.txt", 3)
	c := pointID("notes.txt", 4)
	d := pointID("other.txt", 3)
	if a != b {
		t.Fatal("same source+index must produce the same ID")
	}
	if a == c || a == d {
		t.Fatal("different chunks must produce different IDs")
	}
}

func TestBatchError(t *testing.T) {
	underlying := errors.New("boom")
	be := BatchError{Batch: 2, Err: underlying, Cause: "boom"}
	if !errors.Is(be, underlying) {
		t.Fatal("BatchError must unwrap to the underlying error")
	}
	if want := fmt.Sprintf("batch %d: %v", 2, underlying); be.Error() != want {
		t.Fatalf("got %q, want %q", be.Error(), want)
	}
}
