package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/domain"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/jobs"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/rag"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/metrics"
)

// maxUploadBytes caps an upload request body at 50 MiB.
const maxUploadBytes = 50 << 20

type server struct {
	cfg     Config
	store   *semantic.VectorStore
	queue   *jobs.Queue
	rag     *rag.Service
	manager *connManager
	reg     *metrics.Registry
	logger  *slog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadResponse is returned with 202 Accepted; ingestion continues in the
// background and can be polled via the job endpoint.
type uploadResponse struct {
	Filename string `json:"filename"`
	SavedTo  string `json:"saved_to"`
	JobID    string `json:"job_id"`
	Message  string `json:"message"`
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	filename := header.Filename
	if err := domain.ValidateUploadFilename(filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dest := filepath.Join(s.cfg.UploadDir, filename)
	out, err := os.Create(dest)
	if err != nil {
		s.logger.Error("upload: save failed", "filename", filename, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dest)
		s.logger.Error("upload: write failed", "filename", filename, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save upload")
		return
	}
	out.Close()

	jobID, err := s.queue.Enqueue(r.Context(), filename, dest)
	if err != nil {
		os.Remove(dest)
		s.logger.Error("upload: enqueue failed", "filename", filename, "err", err)
		writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
		return
	}

	s.reg.Counter(metrics.WithLabels("uploads_total",
		"format", string(domain.DetectFormat(filename))), "Accepted uploads").Inc()

	writeJSON(w, http.StatusAccepted, uploadResponse{
		Filename: filename,
		SavedTo:  dest,
		JobID:    jobID,
		Message:  "File accepted; ingestion is running in the background.",
	})
}

type collectionsResponse struct {
	Collection string `json:"collection_name"`
	Store      string `json:"store"`
	Count      uint64 `json:"count"`
	Status     string `json:"status"`
}

// handleCollections reports the durable state of the vector collection. A
// collection that does not exist yet is reported with a zero count, not an
// error: an empty index is a normal state for a fresh deployment.
func (s *server) handleCollections(w http.ResponseWriter, r *http.Request) {
	resp := collectionsResponse{
		Collection: s.store.Collection(),
		Store:      s.cfg.QdrantURL,
		Status:     "ok",
	}

	exists, err := s.store.Exists(r.Context())
	if err != nil {
		s.logger.Error("collections: lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "collection lookup failed")
		return
	}
	if !exists {
		resp.Status = "not found"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("collections: count failed", "err", err)
		writeError(w, http.StatusInternalServerError, "collection count failed")
		return
	}
	resp.Count = count
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.queue.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
