// Package budget paces calls against a rate-limited search API.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultLowThreshold is the remaining-request count below which a
	// cool-down is applied before the next request.
	DefaultLowThreshold = 10
	// DefaultCooldown is the fixed delay applied when the budget is low.
	DefaultCooldown = 5 * time.Second
)

// Snapshot is the provider's view of the search budget at one point in time.
type Snapshot struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Source reports the current search budget.
type Source interface {
	SearchBudget(ctx context.Context) (Snapshot, error)
}

// WaitReason names why Check suspended the caller.
type WaitReason string

const (
	WaitExhausted WaitReason = "exhausted"
	WaitLow       WaitReason = "low"
)

// Budget refreshes rate-limit state before every request and suspends the
// caller when the budget is exhausted or low. The provider stays the source of
// truth; Budget is advisory.
type Budget struct {
	mu     sync.Mutex
	source Source
	logger *zap.Logger
	last   Snapshot
	seen   bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	LowThreshold int
	Cooldown     time.Duration

	// OnWait, when set, is called before every deliberate suspension.
	OnWait func(reason WaitReason, d time.Duration)
}

type Option func(*Budget)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Budget) { b.now = now }
}

// WithSleep replaces the context-aware timer used for every wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Budget) { b.sleep = sleep }
}

func New(source Source, logger *zap.Logger, opts ...Option) *Budget {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Budget{
		source:       source,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
		LowThreshold: DefaultLowThreshold,
		Cooldown:     DefaultCooldown,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(b)
		}
	}
	return b
}

// Last returns the most recently observed snapshot and whether one exists.
func (b *Budget) Last() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.seen
}

// Check consults the source and blocks until the next request may be issued.
//
// Remaining == 0: wait until the reset time (proceed with a warning if it has
// already passed). 0 < Remaining < LowThreshold: wait Cooldown. Otherwise
// return immediately. Only the calling goroutine is suspended.
func (b *Budget) Check(ctx context.Context) error {
	if ctx == nil {
		return errors.New("Check: nil context")
	}
	if b == nil || b.source == nil {
		return errors.New("Check: budget has no source (use New)")
	}

	snap, err := b.source.SearchBudget(ctx)
	if err != nil {
		return fmt.Errorf("querying rate limit: %w", err)
	}

	b.mu.Lock()
	b.last = snap
	b.seen = true
	now := b.now()
	b.mu.Unlock()

	b.logger.Debug("rate limit state",
		zap.Int("remaining", snap.Remaining),
		zap.Int("limit", snap.Limit),
		zap.Time("reset", snap.Reset))

	switch {
	case snap.Remaining <= 0:
		wait := snap.Reset.Sub(now)
		if wait <= 0 {
			b.logger.Warn("rate limit exhausted but reset time has passed, proceeding",
				zap.Time("reset", snap.Reset))
			return nil
		}
		b.logger.Info("rate limit exhausted, waiting for reset",
			zap.Duration("wait", wait), zap.Time("reset", snap.Reset))
		return b.wait(ctx, WaitExhausted, wait)
	case snap.Remaining < b.LowThreshold:
		b.logger.Debug("rate limit low, cooling down",
			zap.Int("remaining", snap.Remaining), zap.Duration("wait", b.Cooldown))
		return b.wait(ctx, WaitLow, b.Cooldown)
	default:
		return nil
	}
}

func (b *Budget) wait(ctx context.Context, reason WaitReason, d time.Duration) error {
	if b.OnWait != nil {
		b.OnWait(reason, d)
	}
	return b.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
