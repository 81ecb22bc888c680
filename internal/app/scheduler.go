package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/service"
)

// defaultCycleTimeout bounds a cycle that outlives shutdown, so an
// unreachable network cannot hold the process open forever.
const defaultCycleTimeout = 2 * time.Minute

// CycleRunner runs one scan cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (domain.ScanReport, error)
}

// CadenceSource selects the interval and counts skipped ticks.
type CadenceSource interface {
	Accelerated() bool
	RecordSkip()
}

// Scheduler fires scan cycles from a single timer. A tick that arrives while
// the previous cycle is still running is skipped and counted.
type Scheduler struct {
	runner       CycleRunner
	cadence      CadenceSource
	interval     func(accelerated bool) time.Duration
	cycleTimeout time.Duration
	logger       *slog.Logger

	inFlight atomic.Bool
	wake     chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler. interval maps the cadence flag to the
// delay between ticks.
func NewScheduler(runner CycleRunner, cadence CadenceSource, interval func(accelerated bool) time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:       runner,
		cadence:      cadence,
		interval:     interval,
		cycleTimeout: defaultCycleTimeout,
		logger:       logger.With(slog.String("component", "scheduler")),
		wake:         make(chan struct{}, 1),
	}
}

// Wake re-arms the timer with the current cadence. The HTTP mode switch calls
// it so a change to the fast cadence applies without waiting out a slow tick.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run fires the first cycle immediately and then one per interval until ctx
// is cancelled. It returns after the in-flight cycle, if any, completes.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.next()))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.wake:
			timer.Reset(s.next())
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.next())
		}
	}
}

func (s *Scheduler) next() time.Duration {
	return s.interval(s.cadence.Accelerated())
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.cadence.RecordSkip()
		s.logger.WarnContext(ctx, "previous cycle still running, tick skipped")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)

		// Shutdown must not abort a cycle half way through its hand-offs.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
		defer cancel()

		if _, err := s.runner.RunCycle(cctx); err != nil && !errors.Is(err, service.ErrCycleSkipped) {
			s.logger.WarnContext(cctx, "scan cycle failed", slog.String("error", err.Error()))
		}
	}()
}
