// Package scheduler triggers the daily reset at the configured local hour and runs the
// reconciliation pass on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/clock"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/queue"
)

const jobTimeout = 30 * time.Second

// Jobs runs the periodic work. RunScheduledReset must skip a day whose reset is already
// recorded, since catch-up calls it on every start.
type Jobs interface {
	RunScheduledReset(ctx context.Context) (queue.ResetResult, error)
	Reconcile(ctx context.Context) (queue.ReconcileResult, error)
}

type Options struct {
	ResetHour         int
	Location          *time.Location
	ReconcileInterval time.Duration
	// CatchUp runs the reset at startup when today's reset hour has already passed.
	CatchUp bool
	Clock   clock.Clock
	Logger  *zap.Logger
}

type Scheduler struct {
	jobs              Jobs
	resetHour         int
	location          *time.Location
	reconcileInterval time.Duration
	catchUp           bool
	clock             clock.Clock
	logger            *zap.Logger

	newTimer  func(d time.Duration) (<-chan time.Time, func() bool)
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

func New(jobs Jobs, options Options) *Scheduler {
	hour := options.ResetHour
	if hour < 0 || hour > 23 {
		hour = 0
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:              jobs,
		resetHour:         hour,
		location:          loc,
		reconcileInterval: options.ReconcileInterval,
		catchUp:           options.CatchUp,
		clock:             clk,
		logger:            logger,
		newTimer: func(d time.Duration) (<-chan time.Time, func() bool) {
			timer := time.NewTimer(d)
			return timer.C, timer.Stop
		},
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		},
	}
}

// NextReset is the first reset instant strictly after now.
func (s *Scheduler) NextReset() time.Time {
	return clock.NextAt(s.clock.Now(), s.resetHour, s.location)
}

func (s *Scheduler) resetHourPassed(now time.Time) bool {
	start := clock.StartOfDay(now, s.location)
	today := time.Date(start.Year(), start.Month(), start.Day(), s.resetHour, 0, 0, 0, start.Location())
	return !now.Before(today)
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.catchUp && s.resetHourPassed(s.clock.Now()) {
		s.runReset(ctx)
	}

	var reconcileC <-chan time.Time
	if s.reconcileInterval > 0 {
		c, stop := s.newTicker(s.reconcileInterval)
		defer stop()
		reconcileC = c
	}

	next := s.NextReset()
	s.logger.Info("daily reset scheduled", zap.Time("at", next))
	resetC, stopTimer := s.newTimer(next.Sub(s.clock.Now()))
	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return
		case <-resetC:
			s.runReset(ctx)
			next = s.NextReset()
			s.logger.Info("daily reset scheduled", zap.Time("at", next))
			resetC, stopTimer = s.newTimer(next.Sub(s.clock.Now()))
		case <-reconcileC:
			s.runReconcile(ctx)
		}
	}
}

func (s *Scheduler) runReset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	result, err := s.jobs.RunScheduledReset(ctx)
	if err != nil {
		s.logger.Error("daily reset failed", zap.Error(err))
		return
	}
	if result.Skipped {
		s.logger.Info("daily reset already recorded, skipping", zap.String("day", result.Day))
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if _, err := s.jobs.Reconcile(ctx); err != nil {
		s.logger.Error("reconciliation failed", zap.Error(err))
	}
}
