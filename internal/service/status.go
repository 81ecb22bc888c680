package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// StatusConfig carries the static facts shown in every snapshot.
type StatusConfig struct {
	Mode         string
	VenueCount   int
	TokenCount   int
	MinProfit    decimal.Decimal
	MaxFlashLoan decimal.Decimal
	Accelerated  bool
}

// StatusTracker is the single shared record of what the scanner has seen.
// Writers are the scan cycle, the scheduler and the executor; readers get
// deep copies from Snapshot.
type StatusTracker struct {
	cfg         StatusConfig
	startedAt   time.Time
	accelerated atomic.Bool

	mu            sync.RWMutex
	last          *domain.Opportunity
	counters      domain.ScanCounters
	lastCycleAt   time.Time
	lastCycleTook time.Duration
	lastBlock     uint64
	connection    func() domain.ConnectionState
	dropped       func() int64
}

// NewStatusTracker creates a tracker.
func NewStatusTracker(cfg StatusConfig) *StatusTracker {
	t := &StatusTracker{cfg: cfg, startedAt: time.Now().UTC()}
	t.accelerated.Store(cfg.Accelerated)
	return t
}

// SetConnectionSource registers where the connection state is read from.
func (t *StatusTracker) SetConnectionSource(fn func() domain.ConnectionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connection = fn
}

// SetDropCounter registers where the dropped-notification count is read from.
func (t *StatusTracker) SetDropCounter(fn func() int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped = fn
}

// SetAccelerated switches the cadence flag and returns the previous value.
func (t *StatusTracker) SetAccelerated(on bool) bool {
	return t.accelerated.Swap(on)
}

// Accelerated reports whether the accelerated cadence is selected.
func (t *StatusTracker) Accelerated() bool {
	return t.accelerated.Load()
}

// Cadence names the selected cadence.
func (t *StatusTracker) Cadence() domain.Cadence {
	if t.Accelerated() {
		return domain.CadenceAccelerated
	}
	return domain.CadenceNormal
}

// RecordCycle notes a completed cycle.
func (t *StatusTracker) RecordCycle(at time.Time, took time.Duration, block uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.Cycles++
	t.lastCycleAt = at
	t.lastCycleTook = took
	t.lastBlock = block
}

// RecordFailure notes a cycle that could not complete.
func (t *StatusTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.FailedCycles++
}

// RecordSkip notes a timer tick skipped because a cycle was still running.
func (t *StatusTracker) RecordSkip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.SkippedTicks++
}

// RecordOpportunity stores opp as the last opportunity and counts its
// verdict.
func (t *StatusTracker) RecordOpportunity(opp domain.Opportunity) {
	cp := copyOpportunity(opp)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &cp
	t.counters.Opportunities++
	switch opp.Verdict {
	case domain.VerdictFundable:
		t.counters.Profitable++
	case domain.VerdictUnderfunded:
		t.counters.Profitable++
		t.counters.Underfunded++
	}
}

// RecordDispatch counts a successful dispatch and refreshes the last
// opportunity if it is the one dispatched.
func (t *StatusTracker) RecordDispatch(opp domain.Opportunity, _ domain.DispatchResult, err error) {
	if err != nil {
		return
	}
	cp := copyOpportunity(opp)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.Dispatched++
	if t.last != nil && t.last.ID == opp.ID {
		t.last = &cp
	}
}

// Snapshot returns a copy of the current status.
func (t *StatusTracker) Snapshot() domain.StatusSnapshot {
	t.mu.RLock()
	snap := domain.StatusSnapshot{
		Mode:          t.cfg.Mode,
		LastCycleAt:   t.lastCycleAt,
		LastCycleTook: t.lastCycleTook,
		LastBlock:     t.lastBlock,
		Counters:      t.counters,
		VenueCount:    t.cfg.VenueCount,
		TokenCount:    t.cfg.TokenCount,
		MinProfit:     t.cfg.MinProfit,
		MaxFlashLoan:  t.cfg.MaxFlashLoan,
		StartedAt:     t.startedAt,
	}
	if t.last != nil {
		cp := copyOpportunity(*t.last)
		snap.LastOpportunity = &cp
	}
	connection, dropped := t.connection, t.dropped
	t.mu.RUnlock()

	snap.Cadence = t.Cadence()
	if connection != nil {
		snap.Connection = connection()
	}
	if dropped != nil {
		snap.Counters.Dropped = dropped()
	}
	return snap
}

func copyOpportunity(opp domain.Opportunity) domain.Opportunity {
	if opp.Profit != nil {
		p := *opp.Profit
		opp.Profit = &p
	}
	if opp.Financing != nil {
		opp.Financing = append([]domain.FlashLoanQuote(nil), opp.Financing...)
	}
	return opp
}
