package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// memoryPollInterval bounds how long a blocked Dequeue waits before
// re-checking for due retries.
const memoryPollInterval = 5 * time.Millisecond

// memoryTerminalCap bounds retained terminal records, standing in for
// RedisQueue's terminal TTL. Counters are unaffected by eviction.
const memoryTerminalCap = 256

// delayedEntry is a job parked for a retry delay.
type delayedEntry struct {
	jobID   string
	readyAt time.Time
}

// MemoryQueue is the in-process Queue used by tests and when Redis is
// not configured. It implements the same idempotency and ordering
// guarantees as RedisQueue.
type MemoryQueue struct {
	mu        sync.Mutex
	records   map[string]*models.Job
	waiting   []string // job IDs, kept sorted by (priority, enqueue time)
	delayed   []delayedEntry
	terminal  []string // terminal job IDs, oldest first
	completed int64
	failed    int64
	wake      chan struct{}
	obs       observers
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		records: make(map[string]*models.Job),
		wake:    make(chan struct{}, 1),
	}
}

// Close releases nothing; it exists to satisfy Queue.
func (q *MemoryQueue) Close() error { return nil }

// Subscribe registers an observer for state-transition events.
func (q *MemoryQueue) Subscribe(obs Observer) { q.obs.subscribe(obs) }

// signal nudges one blocked Dequeue.
func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// sortWaiting restores priority-then-FIFO order.
func (q *MemoryQueue) sortWaiting() {
	sort.SliceStable(q.waiting, func(i, j int) bool {
		a, b := q.records[q.waiting[i]], q.records[q.waiting[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})
}

// Enqueue adds a job, or returns the existing job for the same
// triggering message.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.Job) (*models.Job, error) {
	q.mu.Lock()
	if existing, ok := q.records[job.ID]; ok {
		q.mu.Unlock()
		return existing, nil
	}

	stored := *job
	q.records[job.ID] = &stored
	q.waiting = append(q.waiting, job.ID)
	q.sortWaiting()
	q.mu.Unlock()

	q.obs.notify(Event{JobID: job.ID, State: models.JobWaiting, Attempts: job.Attempts})
	q.signal()
	return &stored, nil
}

// promoteDelayed moves due retries back to waiting. Caller holds the
// lock.
func (q *MemoryQueue) promoteDelayed(now time.Time) {
	kept := q.delayed[:0]
	promoted := false
	for _, entry := range q.delayed {
		if entry.readyAt.After(now) {
			kept = append(kept, entry)
			continue
		}
		q.waiting = append(q.waiting, entry.jobID)
		promoted = true
	}
	q.delayed = kept
	if promoted {
		q.sortWaiting()
	}
}

// Dequeue blocks until a job is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	for {
		q.mu.Lock()
		q.promoteDelayed(time.Now())
		if len(q.waiting) > 0 {
			jobID := q.waiting[0]
			q.waiting = q.waiting[1:]
			job := q.records[jobID]
			job.State = models.JobActive
			out := *job
			q.mu.Unlock()

			q.obs.notify(Event{JobID: out.ID, State: models.JobActive, Attempts: out.Attempts})
			return &out, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		case <-time.After(memoryPollInterval):
		}
	}
}

// Requeue parks an active job for a retry, preserving its identity.
func (q *MemoryQueue) Requeue(ctx context.Context, job *models.Job, delay time.Duration) error {
	q.mu.Lock()
	stored := *job
	stored.State = models.JobWaiting
	q.records[job.ID] = &stored
	q.delayed = append(q.delayed, delayedEntry{jobID: job.ID, readyAt: time.Now().Add(delay)})
	q.mu.Unlock()

	q.obs.notify(Event{JobID: job.ID, State: models.JobWaiting, Attempts: job.Attempts})
	q.signal()
	return nil
}

// retire records a terminal job and evicts the oldest terminal records
// beyond the cap. Caller holds the lock.
func (q *MemoryQueue) retire(jobID string) {
	q.terminal = append(q.terminal, jobID)
	for len(q.terminal) > memoryTerminalCap {
		delete(q.records, q.terminal[0])
		q.terminal = q.terminal[1:]
	}
}

// Complete moves an active job to completed.
func (q *MemoryQueue) Complete(ctx context.Context, job *models.Job) error {
	q.mu.Lock()
	stored := *job
	stored.State = models.JobCompleted
	q.records[job.ID] = &stored
	q.completed++
	q.retire(job.ID)
	q.mu.Unlock()

	q.obs.notify(Event{JobID: job.ID, State: models.JobCompleted, Attempts: job.Attempts})
	return nil
}

// Fail moves an active job to failed with the terminal reason.
func (q *MemoryQueue) Fail(ctx context.Context, job *models.Job, reason string) error {
	q.mu.Lock()
	stored := *job
	stored.State = models.JobFailed
	stored.LastError = reason
	q.records[job.ID] = &stored
	q.failed++
	q.retire(job.ID)
	q.mu.Unlock()

	q.obs.notify(Event{JobID: job.ID, State: models.JobFailed, Attempts: job.Attempts})
	return nil
}

// Get returns the stored job record, or (nil, nil) when unknown.
func (q *MemoryQueue) Get(ctx context.Context, jobID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.records[jobID]
	if !ok {
		return nil, nil
	}
	out := *job
	return &out, nil
}

// Stats reports live job counts. Delayed retries count as waiting.
func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := int64(0)
	for _, job := range q.records {
		if job.State == models.JobActive {
			active++
		}
	}
	return Stats{
		Waiting:   int64(len(q.waiting) + len(q.delayed)),
		Active:    active,
		Completed: q.completed,
		Failed:    q.failed,
	}, nil
}
