package quota

import (
	"context"
	"time"
)

type store interface {
	// Reserve atomically adds cost to the day's counter when the result stays
	// within limit, reporting the resulting used value and whether the
	// reservation was admitted.
	Reserve(ctx context.Context, day string, cost, limit int) (int, bool, error)
	// Release refunds a prior reservation whose provider call failed.
	Release(ctx context.Context, day string, cost int) error
	Used(ctx context.Context, day string) (int, error)
}

// Ledger is the date-scoped daily cost budget shared by all jobs. The day key
// is computed from the clock on every call, so the counter resets at UTC
// midnight without any scheduler.
type Ledger struct {
	store store
	limit int
	now   func() time.Time
}

// Reservation is the outcome of an admission check.
type Reservation struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Status is a point-in-time snapshot of the daily budget.
type Status struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// NewLedger constructs a Ledger with an in-memory store.
func NewLedger(limit int) *Ledger {
	return &Ledger{store: newMemoryStore(), limit: limit, now: time.Now}
}

// NewLedgerWithStore constructs a Ledger over an explicit store, e.g. Redis
// or Postgres, so multiple processes share correct accounting.
func NewLedgerWithStore(s store, limit int) *Ledger {
	return &Ledger{store: s, limit: limit, now: time.Now}
}

// WithClock overrides the clock, used by tests to cross the day boundary.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Reserve admits cost against today's budget. The check-then-increment is
// atomic in every store implementation, so concurrent callers can never
// collectively exceed the limit. A store failure fails closed.
func (l *Ledger) Reserve(ctx context.Context, cost int) (Reservation, error) {
	if cost <= 0 {
		used, err := l.store.Used(ctx, l.dayKey())
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{Allowed: true, Remaining: l.limit - used}, nil
	}
	used, allowed, err := l.store.Reserve(ctx, l.dayKey(), cost, l.limit)
	if err != nil {
		return Reservation{}, err
	}
	if !allowed {
		return Reservation{Allowed: false, Remaining: maxInt(0, l.limit-used)}, nil
	}
	return Reservation{Allowed: true, Remaining: l.limit - used}, nil
}

// Release refunds cost reserved for a provider call that ultimately failed,
// so retries do not double-spend.
func (l *Ledger) Release(ctx context.Context, cost int) error {
	if cost <= 0 {
		return nil
	}
	return l.store.Release(ctx, l.dayKey(), cost)
}

// Status reports the current consumption snapshot.
func (l *Ledger) Status(ctx context.Context) (Status, error) {
	used, err := l.store.Used(ctx, l.dayKey())
	if err != nil {
		return Status{}, err
	}
	return Status{
		Used:      used,
		Limit:     l.limit,
		Remaining: maxInt(0, l.limit-used),
		ResetAt:   l.resetAt(),
	}, nil
}

func (l *Ledger) dayKey() string {
	return l.now().UTC().Format("2006-01-02")
}

func (l *Ledger) resetAt() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
