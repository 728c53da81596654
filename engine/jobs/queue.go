package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/domain"
	"github.com/CoursePilotAI/coursepilot-mvp/engine/ingest"
	"github.com/CoursePilotAI/coursepilot-mvp/pkg/natsutil"
)

// Runner executes one ingestion end to end.
type Runner interface {
	Ingest(ctx context.Context, path string) (*ingest.Report, error)
}

// Queue enqueues ingestion tasks over NATS and tracks their status.
type Queue struct {
	nc      *nats.Conn
	tracker *Tracker
	runner  Runner
	logger  *slog.Logger

	publish func(ctx context.Context, subject string, v any) error
}

// NewQueue wires a queue over the given NATS connection.
func NewQueue(nc *nats.Conn, runner Runner, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		nc:      nc,
		tracker: NewTracker(),
		runner:  runner,
		logger:  logger,
		publish: func(ctx context.Context, subject string, v any) error {
			return natsutil.Publish(ctx, nc, subject, v)
		},
	}
}

// NewLocalQueue runs tasks in-process, one goroutine per task, instead of
// publishing over NATS. Used for broker-less deployments and in tests.
func NewLocalQueue(runner Runner, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		tracker: NewTracker(),
		runner:  runner,
		logger:  logger,
	}
	q.publish = func(ctx context.Context, subject string, v any) error {
		if task, ok := v.(Task); ok && subject == TaskSubject {
			go q.process(context.WithoutCancel(ctx), task)
		}
		return nil
	}
	return q
}

// Enqueue registers a pending job for the uploaded file and publishes its task.
// The returned ID can be polled via Status.
func (q *Queue) Enqueue(ctx context.Context, filename, path string) (string, error) {
	id := uuid.New().String()
	q.tracker.Add(id, filename)

	task := Task{JobID: id, Filename: filename, Path: path}
	if err := q.publish(ctx, TaskSubject, task); err != nil {
		q.tracker.MarkFailed(id, err.Error())
		return "", fmt.Errorf("enqueue %s: %w", filename, err)
	}

	q.logger.Info("jobs: enqueued", "job_id", id, "filename", filename)
	return id, nil
}

// Status returns the current state of a job.
func (q *Queue) Status(id string) (Job, bool) {
	return q.tracker.Get(id)
}

// StartConsumer subscribes to the task subject and processes tasks as they
// arrive. Failed tasks are re-published with an incremented retry count and
// land on the DLQ once MaxRetries is reached.
func (q *Queue) StartConsumer() (*nats.Subscription, error) {
	return natsutil.Subscribe(q.nc, TaskSubject, func(ctx context.Context, task Task) {
		q.process(ctx, task)
	})
}

func (q *Queue) process(ctx context.Context, task Task) {
	q.tracker.MarkRunning(task.JobID)

	report, err := q.runner.Ingest(ctx, task.Path)
	if err == nil {
		if report == nil {
			report = &ingest.Report{Source: task.Filename}
		}
		q.tracker.MarkDone(task.JobID, report)
		q.logger.Info("jobs: done",
			"job_id", task.JobID,
			"filename", task.Filename,
			"chunks", report.Chunks,
			"stored", report.Stored,
		)
		return
	}

	task.Retries++
	q.logger.Error("jobs: ingest failed",
		"job_id", task.JobID,
		"filename", task.Filename,
		"retry", task.Retries,
		"error", err,
	)

	// The pipeline removes the upload on every exit, so a task whose file is
	// gone or unreadable can never succeed on a retry.
	if task.Retries >= MaxRetries || nonRetryable(err) {
		q.tracker.MarkFailed(task.JobID, err.Error())
		dlq := dlqMessage{Task: task, Error: err.Error()}
		if perr := q.publish(ctx, DLQSubject, dlq); perr != nil {
			q.logger.Error("jobs: DLQ publish failed", "job_id", task.JobID, "error", perr)
		}
		return
	}

	q.tracker.MarkPending(task.JobID)
	if perr := q.publish(ctx, TaskSubject, task); perr != nil {
		q.tracker.MarkFailed(task.JobID, perr.Error())
		q.logger.Error("jobs: retry publish failed", "job_id", task.JobID, "error", perr)
	}
}

func nonRetryable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, domain.ErrNoContent) ||
		errors.Is(err, domain.ErrUnsupportedFormat)
}
