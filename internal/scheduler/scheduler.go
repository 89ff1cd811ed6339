package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every check cycle.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	RunAtStart   bool
}

// Scheduler drives periodic execution of price-check cycles.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function every interval until ctx is
// cancelled. A failed tick is logged, never fatal: the next cycle still runs.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunAtStart {
		s.execute(ctx, tick)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.execute(ctx, tick)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc) {
	started := time.Now()
	s.logger.Info().Msg("starting check cycle")

	if err := tick(ctx); err != nil {
		s.logger.Error().Err(err).Msg("check cycle failed")
		return
	}

	s.logger.Info().Dur("elapsed", time.Since(started)).Msg("check cycle finished")
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
