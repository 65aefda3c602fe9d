// Package chat orchestrates the synchronous half of the pipeline:
// chatroom CRUD, quota-gated message ingestion and job hand-off. The
// asynchronous half (provider calls, retries, the ai reply) lives in
// the worker pool.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/cache"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/metrics"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/queue"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/quota"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/store"
)

// maxMessageLength bounds a single prompt. Longer inputs are rejected
// before any persistence.
const maxMessageLength = 8192

// SendResult is what an accepted (or queue-degraded) send returns: the
// persisted user message, its generation job and the quota snapshot at
// acceptance time.
type SendResult struct {
	Message *models.Message `json:"message"`
	JobID   string          `json:"job_id"`
	Usage   quota.Usage     `json:"usage"`
}

// Service composes the store, quota accountant, cache coordinator and
// job queue behind the HTTP handlers.
type Service struct {
	store  store.DataStore
	quota  *quota.Accountant
	cache  *cache.Coordinator
	queue  queue.Queue
	logger zerolog.Logger
}

// NewService wires the orchestrator.
func NewService(st store.DataStore, acct *quota.Accountant, c *cache.Coordinator, q queue.Queue, logger zerolog.Logger) *Service {
	return &Service{store: st, quota: acct, cache: c, queue: q, logger: logger}
}

// SendMessage validates, quota-checks and persists a user message, then
// enqueues its generation job. The user message and quota snapshot are
// returned synchronously; the ai reply arrives later via the worker.
//
// A quota rejection has zero side effects. An enqueue failure after the
// message is persisted returns the message together with
// models.ErrQueueUnavailable so the caller can report partial success;
// jobs are re-derivable from the message, so nothing is lost.
func (s *Service) SendMessage(ctx context.Context, userID, chatroomID uuid.UUID, content string) (*SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", models.ErrValidation)
	}
	if len(content) > maxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", models.ErrValidation, maxMessageLength)
	}

	room, err := s.store.GetChatroom(ctx, chatroomID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading chatroom: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("%w: chatroom not found", models.ErrNotFound)
	}

	tier, err := s.userTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.quota.Check(ctx, userID, tier)
	if err != nil {
		return nil, fmt.Errorf("checking daily quota: %w", err)
	}
	if !usage.Allowed {
		metrics.QuotaRejections.Inc()
		return nil, fmt.Errorf("%w: daily limit of %d messages reached for tier %s",
			models.ErrQuotaExceeded, usage.Limit, usage.Tier)
	}

	msg := &models.Message{
		ChatroomID: chatroomID,
		Content:    content,
		Sender:     models.SenderUser,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}
	metrics.MessagesIngested.Inc()
	usage.Used++
	if !usage.Unlimited && usage.Remaining > 0 {
		usage.Remaining--
	}

	if err := s.store.TouchChatroom(ctx, chatroomID); err != nil {
		s.logger.Warn().Err(err).Str("chatroom_id", chatroomID.String()).Msg("touching chatroom failed")
	}
	s.cache.InvalidateChatrooms(ctx, userID.String())

	job := models.NewJob(msg, userID, jobPriority(tier))
	stored, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		// The message is durable; only the hand-off failed.
		s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("enqueue failed after persist")
		return &SendResult{Message: msg, Usage: usage}, err
	}
	metrics.JobsEnqueued.Inc()

	return &SendResult{Message: msg, JobID: stored.ID, Usage: usage}, nil
}

// RetryEnqueue re-runs only the job hand-off for an already-persisted
// user message. It is the recovery path for a send that returned
// ErrQueueUnavailable: the client retries with the saved message ID and
// no second message is created. Job identity is derived from the
// message ID, so repeated retries land on the same job.
func (s *Service) RetryEnqueue(ctx context.Context, userID, chatroomID uuid.UUID, messageID string) (*SendResult, error) {
	room, err := s.store.GetChatroom(ctx, chatroomID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading chatroom: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("%w: chatroom not found", models.ErrNotFound)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message: %w", err)
	}
	if msg == nil || msg.ChatroomID != chatroomID || msg.Sender != models.SenderUser {
		return nil, fmt.Errorf("%w: message not found", models.ErrNotFound)
	}

	tier, err := s.userTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Informational only: the message already consumed its quota slot
	// when it was first accepted, so the retry is never gated.
	usage, err := s.quota.Check(ctx, userID, tier)
	if err != nil {
		return nil, fmt.Errorf("checking daily quota: %w", err)
	}

	job := models.NewJob(msg, userID, jobPriority(tier))
	stored, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		s.logger.Error().Err(err).Str("message_id", msg.ID).Msg("enqueue retry failed")
		return &SendResult{Message: msg, Usage: usage}, err
	}
	metrics.JobsEnqueued.Inc()

	return &SendResult{Message: msg, JobID: stored.ID, Usage: usage}, nil
}

// jobPriority maps tiers to queue priority; paying tiers dequeue first.
func jobPriority(tier quota.Tier) int {
	if tier == quota.TierBasic {
		return 2
	}
	return 1
}

// userTier loads the user's subscription tier, defaulting to basic when
// no subscription row exists.
func (s *Service) userTier(ctx context.Context, userID uuid.UUID) (quota.Tier, error) {
	raw, err := s.store.GetUserTier(ctx, userID)
	if err != nil {
		return quota.TierBasic, fmt.Errorf("loading subscription: %w", err)
	}
	return quota.ParseTier(raw), nil
}

// Usage returns the caller's current quota snapshot without consuming
// anything.
func (s *Service) Usage(ctx context.Context, userID uuid.UUID) (quota.Usage, error) {
	tier, err := s.userTier(ctx, userID)
	if err != nil {
		return quota.Usage{}, err
	}
	return s.quota.Check(ctx, userID, tier)
}

// CreateChatroom creates a chatroom and invalidates the owner's cached
// listing.
func (s *Service) CreateChatroom(ctx context.Context, userID uuid.UUID, name, description string) (*models.Chatroom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: chatroom name is required", models.ErrValidation)
	}
	room, err := s.store.CreateChatroom(ctx, userID, name, strings.TrimSpace(description))
	if err != nil {
		return nil, fmt.Errorf("creating chatroom: %w", err)
	}
	s.cache.InvalidateChatrooms(ctx, userID.String())
	return room, nil
}

// ListChatrooms returns the caller's active chatrooms, newest activity
// first, through the read-through cache.
func (s *Service) ListChatrooms(ctx context.Context, userID uuid.UUID) ([]models.ChatroomSummary, error) {
	key := userID.String()
	if cached, ok := s.cache.GetChatrooms(ctx, key); ok {
		return cached, nil
	}

	rooms, err := s.store.ListChatrooms(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing chatrooms: %w", err)
	}
	summaries := make([]models.ChatroomSummary, 0, len(rooms))
	for i := range rooms {
		summaries = append(summaries, rooms[i].Summary())
	}
	s.cache.SetChatrooms(ctx, key, summaries)
	return summaries, nil
}

// ChatroomDetail is a chatroom together with its recent messages.
type ChatroomDetail struct {
	Chatroom *models.Chatroom `json:"chatroom"`
	Messages []models.Message `json:"messages"`
}

// GetChatroom returns one chatroom with its messages in creation order.
// A limit of zero returns all messages.
func (s *Service) GetChatroom(ctx context.Context, userID, chatroomID uuid.UUID, limit int) (*ChatroomDetail, error) {
	room, err := s.store.GetChatroom(ctx, chatroomID, userID)
	if err != nil {
		return nil, fmt.Errorf("loading chatroom: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("%w: chatroom not found", models.ErrNotFound)
	}
	msgs, err := s.store.ListMessages(ctx, chatroomID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	return &ChatroomDetail{Chatroom: room, Messages: msgs}, nil
}

// UpdateChatroom renames or re-describes a chatroom. Nil fields are
// left unchanged.
func (s *Service) UpdateChatroom(ctx context.Context, userID, chatroomID uuid.UUID, name, description *string) (*models.Chatroom, error) {
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, fmt.Errorf("%w: chatroom name cannot be empty", models.ErrValidation)
	}
	room, err := s.store.UpdateChatroom(ctx, chatroomID, userID, name, description)
	if err != nil {
		return nil, fmt.Errorf("updating chatroom: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("%w: chatroom not found", models.ErrNotFound)
	}
	s.cache.InvalidateChatrooms(ctx, userID.String())
	return room, nil
}

// DeleteChatroom soft-deletes a chatroom. Its messages stay in place
// for quota accounting; the room just stops being visible.
func (s *Service) DeleteChatroom(ctx context.Context, userID, chatroomID uuid.UUID) error {
	deleted, err := s.store.SoftDeleteChatroom(ctx, chatroomID, userID)
	if err != nil {
		return fmt.Errorf("deleting chatroom: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: chatroom not found", models.ErrNotFound)
	}
	s.cache.InvalidateChatrooms(ctx, userID.String())
	return nil
}
