// Package queue implements the durable generation-job queue. Jobs are
// keyed by their triggering message, which makes enqueue idempotent;
// dequeue order is priority first, then enqueue time. RedisQueue is the
// production implementation; MemoryQueue is the in-process substitute
// used by tests and redis-less development.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// Event is a named job state-transition notification delivered to
// registered observers.
type Event struct {
	JobID    string
	State    models.JobState
	Attempts int
}

// Observer receives state-transition events. Callbacks run on the
// goroutine performing the transition and must not block.
type Observer func(Event)

// Stats holds live job counts for operational polling. Waiting includes
// jobs parked for a retry delay.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue is the generation-job queue contract shared by the worker pool
// and the ingest path.
type Queue interface {
	// Enqueue adds a job, or returns the already-queued job for the
	// same triggering message (idempotent no-op). A broker failure is
	// reported as models.ErrQueueUnavailable and must never be
	// swallowed by callers.
	Enqueue(ctx context.Context, job *models.Job) (*models.Job, error)

	// Dequeue blocks until a job is ready or ctx is done, marks it
	// active, and returns it.
	Dequeue(ctx context.Context) (*models.Job, error)

	// Requeue returns an active job to waiting for a retry after the
	// given delay. The job keeps its identity; the caller has already
	// incremented the attempt counter.
	Requeue(ctx context.Context, job *models.Job, delay time.Duration) error

	// Complete and Fail move an active job to its terminal state. The
	// job record is retained for observability and pruned by expiry.
	Complete(ctx context.Context, job *models.Job) error
	Fail(ctx context.Context, job *models.Job, reason string) error

	// Get returns the stored job record, or (nil, nil) when unknown.
	Get(ctx context.Context, jobID string) (*models.Job, error)

	Stats(ctx context.Context) (Stats, error)

	// Subscribe registers an observer for state-transition events.
	Subscribe(obs Observer)

	Close() error
}

// observers is the shared event-dispatch mechanism for queue
// implementations.
type observers struct {
	mu   sync.RWMutex
	list []Observer
}

func (o *observers) subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, obs)
}

func (o *observers) notify(ev Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, obs := range o.list {
		obs(ev)
	}
}
