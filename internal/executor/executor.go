// Package executor hands fundable opportunities to an execution gateway and
// records what happened.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/notify"
)

// Notifier is the outbound alert queue.
type Notifier interface {
	Enqueue(kind, title, message string) bool
}

// Recorder observes dispatch outcomes (the status tracker).
type Recorder interface {
	RecordDispatch(opp domain.Opportunity, res domain.DispatchResult, err error)
}

// Executor consumes opportunities from a buffered queue, deduplicates routes
// and dispatches each one through the Gateway. Stores, bus, notifier and
// recorder are optional.
type Executor struct {
	queue   chan domain.Opportunity
	gateway Gateway
	dedup   *Dedup
	logger  *slog.Logger

	store    domain.DispatchStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier Notifier
	recorder Recorder

	cleanupInterval time.Duration
	now             func() time.Time
}

// NewExecutor creates an Executor with a queue of queueSize opportunities.
func NewExecutor(gateway Gateway, queueSize int, logger *slog.Logger) *Executor {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Executor{
		queue:           make(chan domain.Opportunity, queueSize),
		gateway:         gateway,
		dedup:           NewDedup(time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
		now:             time.Now,
	}
}

// SetStores enables persistence of dispatch records and audit entries.
func (e *Executor) SetStores(store domain.DispatchStore, audit domain.AuditStore) {
	e.store = store
	e.audit = audit
}

// SetBus enables appending dispatch results to the dispatch stream.
func (e *Executor) SetBus(bus domain.SignalBus) { e.bus = bus }

// SetNotifier enables dispatch alerts.
func (e *Executor) SetNotifier(n Notifier) { e.notifier = n }

// SetRecorder registers an observer for dispatch outcomes.
func (e *Executor) SetRecorder(r Recorder) { e.recorder = r }

// SetDedupTTL replaces the dedup window. Must be called before Run.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	if ttl > 0 {
		e.dedup = NewDedup(ttl)
	}
}

// SetCleanupInterval changes how often the dedup map is garbage-collected.
// Must be called before Run.
func (e *Executor) SetCleanupInterval(d time.Duration) {
	e.cleanupInterval = d
}

// Simulated reports whether the underlying gateway is simulated.
func (e *Executor) Simulated() bool { return e.gateway.Simulated() }

// Submit offers opp to the dispatch queue without blocking and reports
// whether it was accepted.
func (e *Executor) Submit(opp domain.Opportunity) bool {
	select {
	case e.queue <- opp:
		return true
	default:
		e.logger.Warn("dispatch queue full, opportunity dropped",
			slog.String("opportunity_id", opp.ID),
			slog.String("pair", opp.Pair()),
		)
		return false
	}
}

// Run processes queued opportunities until ctx is cancelled, then drains
// what is still buffered.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started", slog.Bool("simulated", e.gateway.Simulated()))
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()
		case opp := <-e.queue:
			e.process(ctx, opp)
		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

func routeKey(opp domain.Opportunity) string {
	return opp.Pair() + ":" + opp.BuyVenue + ">" + opp.SellVenue
}

func (e *Executor) process(ctx context.Context, opp domain.Opportunity) {
	log := e.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("pair", opp.Pair()),
		slog.String("route", opp.BuyVenue+">"+opp.SellVenue),
	)

	if e.dedup.IsDuplicate(routeKey(opp)) {
		log.Debug("route dispatched recently, skipping")
		return
	}

	res, err := e.gateway.Dispatch(ctx, opp)
	if err == nil {
		opp.Stage = domain.StageDispatched
		opp.Verdict = domain.VerdictDispatched
	}
	if e.recorder != nil {
		e.recorder.RecordDispatch(opp, res, err)
	}
	e.persist(ctx, opp, res, err)

	if err != nil {
		log.Error("dispatch failed", slog.String("error", err.Error()))
		if e.notifier != nil {
			title, body := notify.ErrorMessage("dispatch "+opp.Pair(), err, e.now())
			e.notifier.Enqueue(notify.EventError, title, body)
		}
		return
	}

	log.Info("opportunity dispatched",
		slog.Bool("simulated", res.Simulated),
		slog.String("tx", res.TxHash),
		slog.String("expected_profit", res.ExpectedProfit.StringFixed(2)),
	)
	if e.bus != nil {
		if payload, mErr := json.Marshal(res); mErr == nil {
			if sErr := e.bus.StreamAppend(ctx, domain.StreamDispatch, payload); sErr != nil {
				log.Warn("dispatch stream append failed", slog.String("error", sErr.Error()))
			}
		}
	}
	if e.notifier != nil {
		title, body := notify.DispatchMessage(opp, res)
		e.notifier.Enqueue(notify.EventDispatch, title, body)
	}
}

func (e *Executor) persist(ctx context.Context, opp domain.Opportunity, res domain.DispatchResult, dispatchErr error) {
	rec := domain.DispatchRecord{
		OpportunityID: opp.ID,
		Pair:          opp.Pair(),
		BuyVenue:      opp.BuyVenue,
		SellVenue:     opp.SellVenue,
		BuyPrice:      opp.BuyPrice,
		SellPrice:     opp.SellPrice,
		SpreadPct:     opp.SpreadPct,
		TotalPremium:  opp.TotalPremium(),
		Simulated:     e.gateway.Simulated(),
		TxHash:        res.TxHash,
		Status:        "dispatched",
		DetectedAt:    opp.DetectedAt,
		DispatchedAt:  e.now().UTC(),
	}
	if opp.Profit != nil {
		rec.NetProfit = opp.Profit.Net
	}
	if dispatchErr != nil {
		rec.Status = "failed"
		rec.Error = dispatchErr.Error()
	}

	if e.store != nil {
		if err := e.store.Insert(ctx, rec); err != nil {
			e.logger.Warn("dispatch record insert failed", slog.String("error", err.Error()))
		}
	}
	if e.audit != nil {
		detail := map[string]any{
			"opportunity_id": rec.OpportunityID,
			"pair":           rec.Pair,
			"status":         rec.Status,
			"simulated":      rec.Simulated,
			"net_profit":     rec.NetProfit.String(),
		}
		if rec.TxHash != "" {
			detail["tx_hash"] = rec.TxHash
		}
		if err := e.audit.Log(ctx, "dispatch."+rec.Status, detail); err != nil {
			e.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
}

// drain dispatches what is still queued after shutdown, each with a short
// deadline so external calls cannot hang the exit.
func (e *Executor) drain() {
	for {
		select {
		case opp := <-e.queue:
			e.logger.Warn("draining opportunity after shutdown", slog.String("opportunity_id", opp.ID))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(ctx, opp)
			cancel()
		default:
			return
		}
	}
}

var _ fmt.Stringer = (*Executor)(nil)

// String returns a human-readable description of the executor.
func (e *Executor) String() string {
	return fmt.Sprintf("Executor(simulated=%t)", e.gateway.Simulated())
}
