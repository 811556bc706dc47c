// Package failsafe bounds mission operations in time and guarantees the boat is torn down
// when a mission ends for any reason.
package failsafe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDeadline is returned when an operation outlives its deadline.
var ErrDeadline = errors.New("operation deadline exceeded")

// WithDeadline runs op with a context that expires after d and waits for op to return.
// op must honour the context. A timeout is reported as ErrDeadline; cancellation of the parent ctx is passed through
// unchanged. A non-positive d runs op unbounded.
func WithDeadline(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := op(dctx)
	if err != nil && ctx.Err() == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrDeadline, d, err)
	}
	return err
}

// Watchdog tracks the time since a target was last seen.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	last    time.Time
	now     func() time.Time
}

// NewWatchdog creates a watchdog that expires timeout after the last Reset. A non-positive
// timeout never expires.
func NewWatchdog(timeout time.Duration) *Watchdog {
	w := &Watchdog{timeout: timeout, now: time.Now}
	w.last = w.now()
	return w
}

// SetClock replaces the time source. Used by tests.
func (w *Watchdog) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
	w.last = now()
}

// Reset marks a target as seen now.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = w.now()
}

// Since returns the time since the last Reset.
func (w *Watchdog) Since() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now().Sub(w.last)
}

// Expired reports whether the timeout has passed without a Reset.
func (w *Watchdog) Expired() bool {
	if w.timeout <= 0 {
		return false
	}
	return w.Since() > w.timeout
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}
