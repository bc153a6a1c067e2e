package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// recordTimeout bounds each call into the Recorder.
	recordTimeout = 5 * time.Second

	// auditQueueSize is how many records may wait for the worker before new
	// ones are dropped.
	auditQueueSize = 1024
)

type auditJob struct {
	kind string
	id   string
	fn   func(ctx context.Context) error
}

// auditQueue hands Recorder calls to a single worker so connection
// goroutines never wait on the audit store. Jobs run in enqueue order.
type auditQueue struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	jobs   chan auditJob
	done   chan struct{}
}

func newAuditQueue(size int, logger *slog.Logger) *auditQueue {
	q := &auditQueue{
		logger: logger,
		jobs:   make(chan auditJob, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue never blocks. A full or closed queue drops the job.
func (q *auditQueue) enqueue(job auditJob) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("audit queue full, record dropped", "kind", job.kind, "participant_id", job.id)
	}
}

func (q *auditQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := job.fn(ctx); err != nil {
			q.logger.Warn("failed to record participant activity",
				"kind", job.kind,
				"participant_id", job.id,
				"error", err)
		}
		cancel()
	}
}

// close stops accepting jobs and waits until the queued ones have run.
func (q *auditQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	<-q.done
}
