package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/notify"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	s.titles = append(s.titles, title)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

// lateAlertRunner blocks its first cycle until released and then enqueues an
// alert, the way a scan cycle finishing after shutdown does.
type lateAlertRunner struct {
	queue   *notify.Queue
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *lateAlertRunner) RunCycle(ctx context.Context) (domain.ScanReport, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	if ctx.Err() != nil {
		return domain.ScanReport{}, ctx.Err()
	}
	r.queue.Enqueue(notify.EventOpportunity, "late opportunity", "found by the last cycle")
	return domain.ScanReport{}, nil
}

type fixedCadence struct{}

func (fixedCadence) Accelerated() bool { return false }
func (fixedCadence) RecordSkip()       {}

func TestShutdownDeliversAlertsFromTheLastCycle(t *testing.T) {
	sender := &recordingSender{}
	queue := notify.NewQueue(notify.NewNotifier([]notify.Sender{sender}, nil, quietLogger()), 8, quietLogger())
	runner := &lateAlertRunner{
		queue:   queue,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	sched := NewScheduler(runner, fixedCadence{}, func(bool) time.Duration { return time.Hour }, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	startPipeline(gctx, g, sched, queue)

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not start")
	}
	cancel()
	// give the queue a chance to stop early if it were bound to ctx
	time.Sleep(50 * time.Millisecond)
	close(runner.release)

	if err := g.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	got := sender.sent()
	if len(got) != 1 || got[0] != "late opportunity" {
		t.Fatalf("expected the last cycle's alert to be delivered, got %v", got)
	}
}

type orderedStage struct {
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (s orderedStage) Run(ctx context.Context) error {
	<-ctx.Done()
	s.mu.Lock()
	*s.order = append(*s.order, s.name)
	s.mu.Unlock()
	return ctx.Err()
}

func TestPipelineStopsStagesInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	stages := []stage{
		orderedStage{name: "scheduler", order: &order, mu: &mu},
		orderedStage{name: "executor", order: &order, mu: &mu},
		orderedStage{name: "notify", order: &order, mu: &mu},
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	startPipeline(gctx, g, stages...)
	cancel()
	_ = g.Wait()

	if len(order) != 3 || order[0] != "scheduler" || order[1] != "executor" || order[2] != "notify" {
		t.Fatalf("unexpected stop order %v", order)
	}
}
