// Package worker runs the fixed-size pool that turns queued jobs into
// persisted AI replies.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/cache"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/metrics"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/provider"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/queue"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/retry"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/store"
)

// SentinelReply is the terminal ai message recorded when generation
// ultimately fails, so the user always receives a reply.
const SentinelReply = "Sorry, I encountered an error processing your message. Please try again."

// Config holds pool settings.
type Config struct {
	// Size is the number of concurrent consumers. Keep it small: it is
	// the effective concurrency cap against the provider's own rate
	// limits.
	Size int
	// CallTimeout bounds one provider call. Expiry is handled as a
	// transient failure.
	CallTimeout time.Duration
}

// Pool consumes generation jobs, invokes the provider, and persists
// outcomes.
type Pool struct {
	queue   queue.Queue
	store   store.DataStore
	gen     provider.Generator
	cache   *cache.Coordinator
	policy  retry.Policy
	logger  zerolog.Logger
	size    int
	timeout time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a pool. Zero config fields fall back to 2 workers and a
// 30s call timeout.
func New(q queue.Queue, st store.DataStore, gen provider.Generator, c *cache.Coordinator, policy retry.Policy, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 2
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Pool{
		queue:   q,
		store:   st,
		gen:     gen,
		cache:   c,
		policy:  policy,
		logger:  logger,
		size:    cfg.Size,
		timeout: cfg.CallTimeout,
	}
}

// Start launches the consumers. They run until Stop is called or the
// parent context is canceled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	p.logger.Info().Int("workers", p.size).Msg("worker pool started")
}

// Stop cancels the consumers and waits for in-flight jobs to finish
// their current step.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.process(ctx, job)
	}
}

// process executes one job: call the provider, persist the outcome,
// drive retries.
func (p *Pool) process(ctx context.Context, job *models.Job) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	reply, err := p.gen.Generate(callCtx, job.Prompt)
	elapsed := time.Since(start)
	cancel()

	// Shutdown mid-call: hand the job back untouched so another
	// worker re-delivers it. This is not an attempt.
	if err != nil && ctx.Err() != nil {
		if rqErr := p.queue.Requeue(context.Background(), job, 0); rqErr != nil {
			p.logger.Error().Err(rqErr).Str("job_id", job.ID).Msg("requeue on shutdown failed")
		}
		return
	}

	job.Attempts++

	if err != nil {
		p.handleFailure(ctx, job, err, elapsed)
		return
	}

	metrics.ProviderCallDuration.WithLabelValues("success").Observe(elapsed.Seconds())

	msg := &models.Message{
		ChatroomID: job.ChatroomID,
		Content:    reply,
		Sender:     models.SenderAI,
		InReplyTo:  job.MessageID,
		Metadata: map[string]any{
			"model":         p.gen.Model(),
			"processing_ms": elapsed.Milliseconds(),
			"job_id":        job.ID,
			"attempts":      job.Attempts,
		},
	}
	if err := p.persistReply(ctx, job, msg); err != nil {
		// The reply is lost but the provider call succeeded; retry the
		// whole job. At-least-once: a duplicate provider call is
		// acceptable, a dropped reply is not.
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("persisting ai reply failed")
		if p.policy.ShouldRetry(job.Attempts) {
			p.requeue(ctx, job)
			return
		}
		reason := "persistence failed: " + err.Error()
		p.persistSentinel(ctx, job, reason)
		p.fail(ctx, job, reason)
		return
	}

	if err := p.queue.Complete(ctx, job); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("marking job completed failed")
		return
	}
	metrics.JobsCompleted.Inc()
	p.logger.Info().
		Str("job_id", job.ID).
		Str("chatroom_id", job.ChatroomID.String()).
		Dur("latency", elapsed).
		Int("attempts", job.Attempts).
		Msg("generation completed")
}

// handleFailure classifies a provider error and either re-queues the
// job or records the terminal sentinel reply.
func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error, elapsed time.Duration) {
	transient := provider.IsTransient(err)
	outcome := "permanent"
	if transient {
		outcome = "transient"
	}
	metrics.ProviderCallDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	job.LastError = err.Error()

	if transient && p.policy.ShouldRetry(job.Attempts) {
		p.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Int("attempts", job.Attempts).
			Msg("transient provider failure, re-queueing")
		p.requeue(ctx, job)
		return
	}

	p.persistSentinel(ctx, job, err.Error())
	p.fail(ctx, job, err.Error())
}

// persistSentinel records the terminal-failure reply so the chatroom
// always shows an outcome for the user's message. A persistence error
// here is logged; the job still fails.
func (p *Pool) persistSentinel(ctx context.Context, job *models.Job, reason string) {
	sentinel := &models.Message{
		ChatroomID: job.ChatroomID,
		Content:    SentinelReply,
		Sender:     models.SenderAI,
		InReplyTo:  job.MessageID,
		Metadata: map[string]any{
			"error":    true,
			"reason":   reason,
			"model":    p.gen.Model(),
			"job_id":   job.ID,
			"attempts": job.Attempts,
		},
	}
	if perr := p.persistReply(ctx, job, sentinel); perr != nil {
		p.logger.Error().Err(perr).Str("job_id", job.ID).Msg("persisting sentinel reply failed")
	}
}

// persistReply stores an ai message, bumps the chatroom's recency, and
// invalidates the owner's listing cache.
func (p *Pool) persistReply(ctx context.Context, job *models.Job, msg *models.Message) error {
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return err
	}
	if err := p.store.TouchChatroom(ctx, job.ChatroomID); err != nil {
		p.logger.Warn().Err(err).Str("chatroom_id", job.ChatroomID.String()).Msg("touch chatroom failed")
	}
	p.cache.InvalidateChatrooms(ctx, job.UserID.String())
	return nil
}

func (p *Pool) requeue(ctx context.Context, job *models.Job) {
	delay := p.policy.NextDelay(job.Attempts - 1)
	if err := p.queue.Requeue(ctx, job, delay); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("requeue failed")
		return
	}
	metrics.JobsRetried.Inc()
}

func (p *Pool) fail(ctx context.Context, job *models.Job, reason string) {
	if err := p.queue.Fail(ctx, job, reason); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("marking job failed failed")
		return
	}
	metrics.JobsFailed.Inc()
	p.logger.Error().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Str("reason", reason).
		Msg("generation terminally failed")
}
