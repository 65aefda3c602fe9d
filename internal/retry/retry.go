// Package retry holds the backoff policy for failed generation
// attempts. It is pure: no I/O, no clock reads, fully deterministic.
package retry

import "time"

// Policy maps an attempt count to the next delay and a continue/give-up
// decision. The zero value is not useful; use DefaultPolicy or build
// one from config.
type Policy struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
}

// DefaultPolicy mirrors the queue's historical defaults: 2s base,
// doubling, capped at 60s, three attempts total.
func DefaultPolicy() Policy {
	return Policy{
		Base:        2 * time.Second,
		Factor:      2,
		Cap:         60 * time.Second,
		MaxAttempts: 3,
	}
}

// NextDelay returns min(base * factor^attempt, cap) for the given
// attempt index (0 for the delay before the first retry).
func (p Policy) NextDelay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// ShouldRetry reports whether another attempt is allowed after
// `attempts` provider calls have already been made.
func (p Policy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}
