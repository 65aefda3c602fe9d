package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

const (
	waitingKey   = "genq:waiting"
	delayedKey   = "genq:delayed"
	activeKey    = "genq:active"
	completedKey = "genq:completed"
	failedKey    = "genq:failed"

	// terminalTTL prunes finished job records; live records never
	// expire.
	terminalTTL = 7 * 24 * time.Hour

	// priorityBand separates priority levels in the waiting zset
	// score. Millisecond timestamps stay well below it, so ordering is
	// priority first, enqueue time second.
	priorityBand = float64(1 << 42)

	// pollInterval bounds how long a blocked Dequeue waits before
	// re-checking the delayed set for due retries.
	pollInterval = time.Second
)

// jobKey returns the record key for a job.
func jobKey(jobID string) string {
	return "genq:job:" + jobID
}

// RedisQueue is the durable queue implementation. The queue is never
// authoritative for chat data: it can be dropped and rebuilt without
// losing messages, only pending generations.
type RedisQueue struct {
	client *redis.Client
	obs    observers
}

// NewRedisQueue wraps an already-connected Redis client. The caller
// owns the client's lifecycle.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Close releases queue-local resources. The shared Redis client is
// closed by its owner.
func (q *RedisQueue) Close() error { return nil }

// Subscribe registers an observer for state-transition events.
func (q *RedisQueue) Subscribe(obs Observer) { q.obs.subscribe(obs) }

// Ping checks the broker connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// score orders waiting jobs by priority, then enqueue time.
func score(priority int, at time.Time) float64 {
	return float64(priority)*priorityBand + float64(at.UnixMilli())
}

// saveJob writes the job record. A non-zero ttl schedules pruning.
func (q *RedisQueue) saveJob(ctx context.Context, job *models.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, jobKey(job.ID), data, ttl).Err()
}

// loadJob reads a job record, returning (nil, nil) when absent.
func (q *RedisQueue) loadJob(ctx context.Context, jobID string) (*models.Job, error) {
	data, err := q.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	job := &models.Job{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue adds a job, or returns the existing job for the same
// triggering message. SETNX on the record key is the idempotency gate:
// only the first enqueue for a message ever creates a record.
func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) (*models.Job, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	created, err := q.client.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
	}
	if !created {
		existing, err := q.loadJob(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
		}
		if existing != nil {
			// A failure between SETNX and ZAdd can leave a waiting
			// record with no queue entry. ZAddNX repairs the orphan
			// without disturbing a member that is already queued.
			if existing.State == models.JobWaiting {
				err := q.client.ZAddNX(ctx, waitingKey, redis.Z{
					Score:  score(existing.Priority, existing.EnqueuedAt),
					Member: existing.ID,
				}).Err()
				if err != nil {
					return nil, fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
				}
			}
			return existing, nil
		}
		// Record expired between SETNX and GET; fall through and queue
		// the fresh job.
		if err := q.saveJob(ctx, job, 0); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
		}
	}

	err = q.client.ZAdd(ctx, waitingKey, redis.Z{
		Score:  score(job.Priority, job.EnqueuedAt),
		Member: job.ID,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrQueueUnavailable, err)
	}

	q.obs.notify(Event{JobID: job.ID, State: models.JobWaiting, Attempts: job.Attempts})
	return job, nil
}

// promoteDelayed moves due retry jobs from the delayed set back to the
// waiting set. ZRem is the claim: with several worker processes, only
// the one that removes the member re-queues it.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	now := time.Now().UnixMilli()
	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: 100,
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	for _, jobID := range due {
		removed, err := q.client.ZRem(ctx, delayedKey, jobID).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // claimed by another worker
		}
		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			return err
		}
		priority := 0
		if job != nil {
			priority = job.Priority
		}
		if err := q.client.ZAdd(ctx, waitingKey, redis.Z{
			Score:  score(priority, time.Now()),
			Member: jobID,
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue blocks until a job is ready or ctx is done. ZPOPMIN is
// atomic, so concurrent workers never receive the same job.
func (q *RedisQueue) Dequeue(ctx context.Context) (*models.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := q.promoteDelayed(ctx); err != nil {
			return nil, err
		}

		popped, err := q.client.ZPopMin(ctx, waitingKey, 1).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		if len(popped) == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
				continue
			}
		}

		jobID, _ := popped[0].Member.(string)
		job, err := q.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			continue // record pruned out from under the queue entry
		}

		job.State = models.JobActive
		if err := q.saveJob(ctx, job, 0); err != nil {
			return nil, err
		}
		if err := q.client.SAdd(ctx, activeKey, job.ID).Err(); err != nil {
			return nil, err
		}

		q.obs.notify(Event{JobID: job.ID, State: models.JobActive, Attempts: job.Attempts})
		return job, nil
	}
}

// Requeue parks an active job in the delayed set for a retry. Identity
// is preserved; only state and the attempt counter change.
func (q *RedisQueue) Requeue(ctx context.Context, job *models.Job, delay time.Duration) error {
	job.State = models.JobWaiting
	if err := q.saveJob(ctx, job, 0); err != nil {
		return err
	}
	if err := q.client.SRem(ctx, activeKey, job.ID).Err(); err != nil {
		return err
	}
	readyAt := time.Now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(readyAt),
		Member: job.ID,
	}).Err(); err != nil {
		return err
	}

	q.obs.notify(Event{JobID: job.ID, State: models.JobWaiting, Attempts: job.Attempts})
	return nil
}

// Complete moves an active job to completed.
func (q *RedisQueue) Complete(ctx context.Context, job *models.Job) error {
	job.State = models.JobCompleted
	if err := q.saveJob(ctx, job, terminalTTL); err != nil {
		return err
	}
	pipe := q.client.Pipeline()
	pipe.SRem(ctx, activeKey, job.ID)
	pipe.Incr(ctx, completedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	q.obs.notify(Event{JobID: job.ID, State: models.JobCompleted, Attempts: job.Attempts})
	return nil
}

// Fail moves an active job to failed with the terminal reason.
func (q *RedisQueue) Fail(ctx context.Context, job *models.Job, reason string) error {
	job.State = models.JobFailed
	job.LastError = reason
	if err := q.saveJob(ctx, job, terminalTTL); err != nil {
		return err
	}
	pipe := q.client.Pipeline()
	pipe.SRem(ctx, activeKey, job.ID)
	pipe.Incr(ctx, failedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	q.obs.notify(Event{JobID: job.ID, State: models.JobFailed, Attempts: job.Attempts})
	return nil
}

// Get returns the stored job record, or (nil, nil) when unknown.
func (q *RedisQueue) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return q.loadJob(ctx, jobID)
}

// Stats reports live job counts. Delayed retries count as waiting.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, waitingKey)
	delayed := pipe.ZCard(ctx, delayedKey)
	active := pipe.SCard(ctx, activeKey)
	completed := pipe.Get(ctx, completedKey)
	failed := pipe.Get(ctx, failedKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Stats{}, err
	}

	stats := Stats{
		Waiting: waiting.Val() + delayed.Val(),
		Active:  active.Val(),
	}
	if n, err := completed.Int64(); err == nil {
		stats.Completed = n
	}
	if n, err := failed.Int64(); err == nil {
		stats.Failed = n
	}
	return stats, nil
}
