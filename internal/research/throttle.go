package research

import (
	"context"
	"sync"
	"time"
)

// Throttle serializes rate-limited calls onto a shared minimum interval. The
// last-dispatch timestamp lives behind a mutex and each caller reserves its
// slot inside the critical section, so two concurrent callers can never both
// observe a stale timestamp and pass early. Injected into the search client;
// never a package-level mutable.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the throttle clock for tests.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// reserve claims the next dispatch slot and returns how long the caller must
// wait for it.
func (t *Throttle) reserve() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.next.Before(now) {
		t.next = now
	}
	wait := t.next.Sub(now)
	t.next = t.next.Add(t.interval)
	return wait
}

// Wait blocks until the caller's reserved slot arrives or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.interval <= 0 {
		return ctx.Err()
	}
	wait := t.reserve()
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
