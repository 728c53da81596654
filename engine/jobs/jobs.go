// Package jobs provides an asynchronous ingestion job queue backed by NATS,
// with in-memory status tracking, retry, and dead-letter support.
package jobs

import (
	"sync"
	"time"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/ingest"
)

const (
	// TaskSubject is the NATS subject for ingestion tasks.
	TaskSubject = "jobs.ingest"
	// DLQSubject is the dead letter queue subject for tasks that exhausted retries.
	DLQSubject = "jobs.ingest.dlq"
	// MaxRetries before a task is sent to the DLQ.
	MaxRetries = 3
)

// State describes a job's lifecycle position.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Task is the wire message published to TaskSubject.
type Task struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Retries  int    `json:"retries"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Task  Task   `json:"task"`
	Error string `json:"error"`
}

// Job is the tracked status of an enqueued ingestion.
type Job struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	State      State          `json:"state"`
	Report     *ingest.Report `json:"report,omitempty"`
	Error      string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Tracker keeps job statuses in memory. It is safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job), now: time.Now}
}

// Add registers a new pending job.
func (t *Tracker) Add(id, filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &Job{
		ID:         id,
		Filename:   filename,
		State:      StatePending,
		EnqueuedAt: t.now(),
	}
}

// Get returns a copy of the job, if tracked.
func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// MarkRunning transitions a job to running.
func (t *Tracker) MarkRunning(id string) {
	t.set(id, func(j *Job) { j.State = StateRunning })
}

// MarkPending returns a job to pending, used between retry attempts.
func (t *Tracker) MarkPending(id string) {
	t.set(id, func(j *Job) { j.State = StatePending })
}

// MarkDone records a successful ingestion and its report.
func (t *Tracker) MarkDone(id string, report *ingest.Report) {
	t.set(id, func(j *Job) {
		j.State = StateDone
		j.Report = report
		j.FinishedAt = t.now()
	})
}

// MarkFailed records a terminal failure.
func (t *Tracker) MarkFailed(id string, errMsg string) {
	t.set(id, func(j *Job) {
		j.State = StateFailed
		j.Error = errMsg
		j.FinishedAt = t.now()
	})
}

func (t *Tracker) set(id string, mutate func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		mutate(j)
	}
}
