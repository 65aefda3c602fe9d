// Package quota implements daily usage accounting: given a user and
// subscription tier, it decides whether another message may be ingested
// today. The check is stateless policy over the store; the counter is
// recomputed on demand and never cached, since correctness depends on
// freshness.
//
// Known race: two concurrent sends near the limit can each observe
// used < limit before either insert commits, letting both through. This
// is an accepted soft limit; closing it would need an atomic
// reserve-and-increment in the store.
package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tier is a closed enumeration of subscription levels.
type Tier int

const (
	TierBasic Tier = iota
	TierPro
	TierUnlimited
)

// ParseTier maps a stored tier string to a Tier. Unknown values fall
// back to the most restrictive tier.
func ParseTier(s string) Tier {
	switch s {
	case "pro":
		return TierPro
	case "unlimited":
		return TierUnlimited
	default:
		return TierBasic
	}
}

// String returns the wire representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierPro:
		return "pro"
	case TierUnlimited:
		return "unlimited"
	default:
		return "basic"
	}
}

// Limits holds the configured daily message limits per tier.
type Limits struct {
	Basic int
	Pro   int
}

// DefaultLimits mirrors the historical env defaults.
func DefaultLimits() Limits {
	return Limits{Basic: 5, Pro: 1000}
}

// Limit is a total mapping from tier to daily limit. TierUnlimited
// returns -1, which callers treat as no limit.
func (l Limits) Limit(t Tier) int {
	switch t {
	case TierPro:
		return l.Pro
	case TierUnlimited:
		return -1
	default:
		return l.Basic
	}
}

// CounterStore is the slice of the data store usage accounting needs.
type CounterStore interface {
	CountUserMessagesBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
}

// Usage is the snapshot returned to the caller alongside an accepted
// send, and in the 429 body on rejection.
type Usage struct {
	Allowed   bool   `json:"-"`
	Tier      string `json:"tier"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"` // -1 means unlimited
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited,omitempty"`
}

// Accountant answers daily-limit checks against the store.
type Accountant struct {
	store  CounterStore
	limits Limits
	// now is replaceable in tests.
	now func() time.Time
}

// NewAccountant creates an accountant over the given store.
func NewAccountant(store CounterStore, limits Limits) *Accountant {
	return &Accountant{store: store, limits: limits, now: time.Now}
}

// Check reports whether the user may send another message today. The
// window is the current UTC calendar day. A rejection has no side
// effects; callers must not persist anything when Allowed is false.
func (a *Accountant) Check(ctx context.Context, userID uuid.UUID, tier Tier) (Usage, error) {
	limit := a.limits.Limit(tier)
	if limit < 0 {
		// Unlimited short-circuits without a count query.
		return Usage{Allowed: true, Tier: tier.String(), Limit: -1, Remaining: -1, Unlimited: true}, nil
	}

	from, to := dayWindow(a.now())
	used, err := a.store.CountUserMessagesBetween(ctx, userID, from, to)
	if err != nil {
		return Usage{}, err
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		Allowed:   used < limit,
		Tier:      tier.String(),
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
	}, nil
}

// dayWindow returns [startOfUTCDay, startOfUTCDay+24h) for t.
func dayWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
