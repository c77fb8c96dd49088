// Package scheduler runs reconciliation passes on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"flight_tracker/internal/reconcile"
)

// Trigger starts a pass unless one is already in flight.
type Trigger interface {
	TryRun(ctx context.Context) (reconcile.Summary, bool)
}

// Scheduler fires a Trigger every interval.
type Scheduler struct {
	trigger    Trigger
	interval   time.Duration
	runOnStart bool
	logger     zerolog.Logger
}

// New creates a scheduler. An interval of zero or less disables it.
// When runOnStart is set the first pass starts immediately.
func New(trigger Trigger, interval time.Duration, runOnStart bool, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		trigger:    trigger,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled. Ticks that fire while a pass is still
// running are dropped, not queued.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("interval sync disabled")
		return
	}

	s.logger.Info().Dur("interval", s.interval).Msg("interval sync started")
	defer s.logger.Info().Msg("interval sync stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.tick(ctx, ticker)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, ticker)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, ticker *time.Ticker) {
	if ctx.Err() != nil {
		return
	}
	if _, ok := s.trigger.TryRun(ctx); !ok {
		s.logger.Warn().Msg("sync already in progress, tick dropped")
		return
	}

	// A tick that arrived during a long pass is stale.
	select {
	case <-ticker.C:
		s.logger.Debug().Msg("tick during sync dropped")
	default:
	}
}
