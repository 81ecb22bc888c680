package app

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// stage is a long-running consumer with the Run(ctx) shape shared by the
// scheduler, the executor and the notify queue.
type stage interface {
	Run(ctx context.Context) error
}

// startPipeline runs stages in g as a chain: the first stops when ctx is
// cancelled, and every later stage stops only once the stage before it has
// returned. The last scan cycle can therefore still submit and alert while
// shutting down, and its hand-offs are drained downstream.
func startPipeline(ctx context.Context, g *errgroup.Group, stages ...stage) {
	runCtx := ctx
	for _, st := range stages {
		done := make(chan struct{})
		stCtx := runCtx
		g.Go(func() error {
			defer close(done)
			return st.Run(stCtx)
		})
		runCtx = after(ctx, done)
	}
}

// after returns a context cancelled when done closes. It carries the values
// of parent but not its cancellation.
func after(parent context.Context, done <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	go func() {
		<-done
		cancel()
	}()
	return ctx
}
