package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRunner struct {
	runs    atomic.Int64
	block   chan struct{}
	mu      sync.Mutex
	ctxErrs []error
}

func (r *countingRunner) RunCycle(ctx context.Context) (domain.ScanReport, error) {
	r.runs.Add(1)
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()
	return domain.ScanReport{}, nil
}

type fakeCadence struct {
	accelerated atomic.Bool
	skips       atomic.Int64
}

func (c *fakeCadence) Accelerated() bool { return c.accelerated.Load() }

func (c *fakeCadence) RecordSkip() { c.skips.Add(1) }

func fixed(normal, fast time.Duration) func(bool) time.Duration {
	return func(accelerated bool) time.Duration {
		if accelerated {
			return fast
		}
		return normal
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, &fakeCadence{}, fixed(5*time.Millisecond, time.Millisecond), discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "three cycles", func() bool { return runner.runs.Load() >= 3 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSchedulerSkipsWhileInFlight(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	cadence := &fakeCadence{}
	s := NewScheduler(runner, cadence, fixed(2*time.Millisecond, time.Millisecond), discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "skipped ticks", func() bool { return cadence.skips.Load() >= 2 })
	if got := runner.runs.Load(); got != 1 {
		t.Fatalf("cycles must not overlap, got %d concurrent runs", got)
	}

	cancel()
	close(runner.block)
	<-done
}

func TestSchedulerFinishesInFlightCycleOnShutdown(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	s := NewScheduler(runner, &fakeCadence{}, fixed(time.Hour, time.Hour), discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "first cycle", func() bool { return runner.runs.Load() == 1 })
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before the in-flight cycle finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(runner.block)
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.ctxErrs) != 1 || runner.ctxErrs[0] != nil {
		t.Fatalf("in-flight cycle saw a cancelled context: %v", runner.ctxErrs)
	}
}

func TestSchedulerWakeAppliesNewCadence(t *testing.T) {
	runner := &countingRunner{}
	cadence := &fakeCadence{}
	s := NewScheduler(runner, cadence, fixed(time.Hour, 2*time.Millisecond), discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, "first cycle", func() bool { return runner.runs.Load() == 1 })
	cadence.accelerated.Store(true)
	s.Wake()
	waitFor(t, "accelerated cycles", func() bool { return runner.runs.Load() >= 3 })

	cancel()
	<-done
}
