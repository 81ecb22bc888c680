package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	sendTimeout  = 15 * time.Second
	drainTimeout = 5 * time.Second
)

// Event is one queued notification.
type Event struct {
	Kind    string
	Title   string
	Message string
}

// Queue buffers events between the scan and the senders. Enqueue never
// blocks: when the buffer is full the event is dropped and counted.
type Queue struct {
	ch       chan Event
	notifier *Notifier
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewQueue creates a Queue with the given buffer size.
func NewQueue(notifier *Notifier, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		ch:       make(chan Event, size),
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_queue")),
	}
}

// Enqueue offers an event to the queue and reports whether it was accepted.
func (q *Queue) Enqueue(kind, title, message string) bool {
	if !q.notifier.Enabled() || !q.notifier.Allows(kind) {
		return true
	}
	select {
	case q.ch <- Event{Kind: kind, Title: title, Message: message}:
		return true
	default:
		n := q.dropped.Add(1)
		q.logger.Warn("notification dropped, queue full",
			slog.String("event", kind),
			slog.Int64("dropped_total", n),
		)
		return false
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then flushes whatever is
// still buffered within a short grace period.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("notify queue started")
	defer q.logger.Info("notify queue stopped")

	for {
		select {
		case <-ctx.Done():
			q.flush()
			return ctx.Err()
		case ev := <-q.ch:
			q.deliver(ctx, ev)
		}
	}
}

func (q *Queue) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-q.ch:
			q.deliver(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			q.logger.Warn("notify flush timed out", slog.Int("remaining", len(q.ch)))
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, ev Event) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	// Delivery errors are already logged per sender.
	_ = q.notifier.Notify(sendCtx, ev.Kind, ev.Title, ev.Message)
}
