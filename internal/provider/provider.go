// Package provider abstracts the external text-generation service. The
// worker pool only depends on Generator plus the transient/permanent
// error classification; Gemini is the production implementation.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Generator produces a reply for a prompt. Latency is unbounded unless
// the caller imposes a context timeout; a timeout surfaces as a
// transient error.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Error is a classified provider failure. Transient failures (timeout,
// 5xx, upstream rate limit) are retryable; permanent failures (bad
// request, content rejected) are not.
type Error struct {
	Transient bool
	Status    int // HTTP status, 0 for transport-level failures
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s provider error: %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s provider error: %s", kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err should feed the retry policy. Context
// deadline expiry counts: a stuck provider call that hit its timeout is
// retried like any other transient failure.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// classifyStatus maps an HTTP status to a classified error.
func classifyStatus(status int, reason string) *Error {
	transient := status == 408 || status == 429 || status >= 500
	return &Error{Transient: transient, Status: status, Reason: reason}
}
