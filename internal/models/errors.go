package models

import "errors"

// Sentinel errors shared across the service. Handlers map them to HTTP
// status codes; everything else surfaces as a 500.
var (
	// ErrValidation marks malformed input. No side effects.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing chatroom/message, or one not owned
	// by the caller. Ownership failures are deliberately
	// indistinguishable from absence.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded marks a send rejected by the daily limit. The
	// rejection has zero side effects: no message, no job.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrQueueUnavailable marks an enqueue that could not reach the
	// broker. The triggering message is already persisted when this is
	// returned, so the client may retry the send without duplicating
	// its message.
	ErrQueueUnavailable = errors.New("generation queue unavailable")
)
