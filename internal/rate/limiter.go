// Package rate gates outbound Gmail API calls so we respect remote quotas
// and never issue unbounded concurrent requests.
package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evanrusso/gmailvault/internal/errs"
)

// Class partitions API calls by quota cost.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassBatch Class = "batch"
)

// Limits configures per-window call budgets for each class.
type Limits struct {
	Window  time.Duration
	Read    int
	Write   int
	Batch   int
	MaxWait time.Duration
}

// DefaultLimits is sized for Gmail's per-user quota at a comfortable margin.
func DefaultLimits() Limits {
	return Limits{
		Window:  time.Minute,
		Read:    250,
		Write:   50,
		Batch:   25,
		MaxWait: 30 * time.Second,
	}
}

type window struct {
	start time.Time
	count int
	limit int
}

// Limiter is a fixed rolling-window rate limiter, one window per endpoint
// class. Safe for concurrent use; all counter mutation happens under a
// single mutex.
type Limiter struct {
	mu      sync.Mutex
	windows map[Class]*window
	size    time.Duration
	maxWait time.Duration
	now     func() time.Time
}

// NewLimiter returns a Limiter with the given budgets.
func NewLimiter(limits Limits) *Limiter {
	if limits.Window <= 0 {
		limits.Window = time.Minute
	}
	if limits.MaxWait <= 0 {
		limits.MaxWait = 30 * time.Second
	}
	return &Limiter{
		windows: map[Class]*window{
			ClassRead:  {limit: limits.Read},
			ClassWrite: {limit: limits.Write},
			ClassBatch: {limit: limits.Batch},
		},
		size:    limits.Window,
		maxWait: limits.MaxWait,
		now:     time.Now,
	}
}

// Acquire blocks until a slot in the class's current window is available,
// sleeping until the window resets rather than busy-waiting. It fails with
// a RateLimitedError once the configured max wait elapses, and with the
// context's error if it is canceled first.
func (l *Limiter) Acquire(ctx context.Context, class Class) error {
	deadline := l.now().Add(l.maxWait)
	for {
		wait, err := l.tryAcquire(class)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if l.now().Add(wait).After(deadline) {
			return &errs.RateLimitedError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate wait canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire takes a slot if one is free, or reports how long until the
// window resets.
func (l *Limiter) tryAcquire(class Class) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[class]
	if !ok {
		return 0, fmt.Errorf("unknown endpoint class %q", class)
	}

	now := l.now()
	if now.Sub(w.start) >= l.size {
		w.start = now
		w.count = 0
	}
	if w.count < w.limit {
		w.count++
		return 0, nil
	}
	return w.start.Add(l.size).Sub(now), nil
}
