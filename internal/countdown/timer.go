// Package countdown implements the no-driver-found auto-cancel timer. The
// start timestamp is persisted so a suspended or restarted process recomputes
// the true remaining time instead of resetting to the full duration.
package countdown

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beekyynd/taxi/pkg/logger"
	"github.com/beekyynd/taxi/pkg/storage"
)

// Timer is one countdown instance. It is reusable: Cancel then Start begins a
// fresh countdown.
type Timer struct {
	store      storage.Store
	duration   time.Duration
	interval   time.Duration
	now        func() time.Time
	onTick     func(remaining time.Duration)
	onComplete func()

	mu        sync.Mutex
	cancelled bool
	running   bool
	searching bool
	remaining time.Duration
	stop      chan struct{}
}

// Option tunes a Timer; used by tests to inject the clock and tick interval.
type Option func(*Timer)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// WithInterval overrides the one-second tick interval.
func WithInterval(interval time.Duration) Option {
	return func(t *Timer) { t.interval = interval }
}

// NewTimer creates a countdown. onTick receives the remaining time every
// interval; onComplete fires exactly once when the countdown reaches zero.
func NewTimer(store storage.Store, duration time.Duration, onTick func(time.Duration), onComplete func(), opts ...Option) *Timer {
	t := &Timer{
		store:      store,
		duration:   duration,
		interval:   time.Second,
		now:        time.Now,
		onTick:     onTick,
		onComplete: onComplete,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start persists the start timestamp and begins ticking. The first check runs
// immediately, not on the first tick.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		// already counting down; keep the original start timestamp
		t.mu.Unlock()
		return nil
	}

	start := t.now()
	if err := t.store.Set(ctx, storage.KeyRideTimerStart, strconv.FormatInt(start.UnixMilli(), 10)); err != nil {
		t.mu.Unlock()
		return err
	}

	t.cancelled = false
	t.running = true
	t.searching = true
	t.remaining = t.duration
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	t.CheckNow(ctx)

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.CheckNow(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// CheckNow recomputes elapsed time from the persisted start timestamp. The
// shell calls this from its foreground-resume hook so expiry during
// suspension is detected immediately rather than on the next tick.
func (t *Timer) CheckNow(ctx context.Context) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	stored, err := t.store.Get(ctx, storage.KeyRideTimerStart)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Warn("failed to read countdown start", zap.Error(err))
		return
	}

	startMillis, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		logger.Warn("invalid countdown start value", zap.String("value", stored))
		return
	}

	elapsed := t.now().Sub(time.UnixMilli(startMillis))
	remaining := t.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.remaining = remaining

	if remaining > 0 {
		t.mu.Unlock()
		if t.onTick != nil {
			t.onTick(remaining)
		}
		return
	}

	// completion: flag first so a concurrent late tick is a guaranteed no-op
	t.cancelled = true
	t.running = false
	t.searching = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()

	if t.onComplete != nil {
		t.onComplete()
	}
}

// Cancel stops the countdown, clears the persisted start and zeroes the
// remaining time. Safe to call repeatedly and after completion.
func (t *Timer) Cancel(ctx context.Context) {
	t.mu.Lock()
	t.cancelled = true
	t.running = false
	t.searching = false
	t.remaining = 0
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()

	if err := t.store.Remove(ctx, storage.KeyRideTimerStart); err != nil {
		logger.Warn("failed to clear countdown start", zap.Error(err))
	}
}

// Remaining returns the last computed remaining time.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether the countdown is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Searching reports the "expanding/searching" UI flag.
func (t *Timer) Searching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searching
}
