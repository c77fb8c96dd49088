package reconcile

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Runner performs one reconciliation pass.
type Runner interface {
	Run(ctx context.Context) Summary
}

// Trigger serialises passes within the process. Concurrent callers of Run
// share the pass already in flight instead of starting another.
type Trigger struct {
	runner   Runner
	group    singleflight.Group
	inFlight atomic.Bool
}

// NewTrigger wraps runner.
func NewTrigger(runner Runner) *Trigger {
	return &Trigger{runner: runner}
}

// Run starts a pass, or waits for the one in flight. shared is true when the
// summary came from a pass started by another caller.
func (t *Trigger) Run(ctx context.Context) (s Summary, shared bool) {
	v, _, shared := t.group.Do("sync", func() (any, error) {
		t.inFlight.Store(true)
		defer t.inFlight.Store(false)
		return t.runner.Run(ctx), nil
	})
	return v.(Summary), shared
}

// TryRun starts a pass only if none is in flight. ok is false when the call
// was dropped.
func (t *Trigger) TryRun(ctx context.Context) (s Summary, ok bool) {
	if t.inFlight.Load() {
		return Summary{}, false
	}
	s, shared := t.Run(ctx)
	return s, !shared
}

// Running reports whether a pass is in flight.
func (t *Trigger) Running() bool {
	return t.inFlight.Load()
}
