package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState tracks a generation job through its lifecycle. Transitions
// are monotonic: waiting -> active -> {completed, failed}, with
// active -> waiting permitted only as a retry re-queue that keeps the
// same job identity and increments the attempt counter.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one pending AI-reply generation for a specific user message.
// Its ID is derived from the triggering message ID, which is what makes
// enqueue idempotent: at most one non-terminal job exists per message.
type Job struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	ChatroomID uuid.UUID `json:"chatroom_id"`
	UserID     uuid.UUID `json:"user_id"`
	Prompt     string    `json:"prompt"`
	Priority   int       `json:"priority"` // lower dequeues first
	Attempts   int       `json:"attempts"` // provider calls made so far
	State      JobState  `json:"state"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobID derives the deterministic job identity for a triggering message.
func JobID(messageID string) string {
	return "job:" + messageID
}

// NewJob builds a waiting job for the given user message.
func NewJob(msg *Message, userID uuid.UUID, priority int) *Job {
	return &Job{
		ID:         JobID(msg.ID),
		MessageID:  msg.ID,
		ChatroomID: msg.ChatroomID,
		UserID:     userID,
		Prompt:     msg.Content,
		Priority:   priority,
		State:      JobWaiting,
		EnqueuedAt: time.Now().UTC(),
	}
}
