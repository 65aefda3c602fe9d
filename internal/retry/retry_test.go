package retry

import (
	"testing"
	"time"
)

func TestNextDelayDefaults(t *testing.T) {
	p := DefaultPolicy()

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for attempt, expected := range want {
		if got := p.NextDelay(attempt); got != expected {
			t.Fatalf("NextDelay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestNextDelayMonotonicAndBounded(t *testing.T) {
	p := DefaultPolicy()

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := p.NextDelay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.Cap {
			t.Fatalf("delay %v exceeds cap %v at attempt %d", d, p.Cap, attempt)
		}
		prev = d
	}
}

func TestNextDelayHitsCap(t *testing.T) {
	p := DefaultPolicy()
	// 2s * 2^5 = 64s > 60s cap
	if got := p.NextDelay(5); got != p.Cap {
		t.Fatalf("NextDelay(5) = %v, want cap %v", got, p.Cap)
	}
}

func TestShouldRetry(t *testing.T) {
	p := DefaultPolicy()

	for _, tc := range []struct {
		attempts int
		want     bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
		{4, false},
	} {
		if got := p.ShouldRetry(tc.attempts); got != tc.want {
			t.Fatalf("ShouldRetry(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestNextDelayCapSmallerThanBase(t *testing.T) {
	p := Policy{Base: 10 * time.Second, Factor: 2, Cap: 5 * time.Second, MaxAttempts: 3}
	if got := p.NextDelay(0); got != 5*time.Second {
		t.Fatalf("NextDelay(0) = %v, want cap", got)
	}
}
