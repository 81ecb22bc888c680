package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cadence names the scan interval currently in effect.
type Cadence string

const (
	CadenceNormal      Cadence = "normal"
	CadenceAccelerated Cadence = "accelerated"
)

// ScanCounters are monotonically increasing totals since process start.
type ScanCounters struct {
	Cycles        int64 `json:"cycles"`
	FailedCycles  int64 `json:"failed_cycles"`
	SkippedTicks  int64 `json:"skipped_ticks"`
	Opportunities int64 `json:"opportunities"`
	Profitable    int64 `json:"profitable"`
	Underfunded   int64 `json:"underfunded"`
	Dispatched    int64 `json:"dispatched"`
	Dropped       int64 `json:"notifications_dropped"`
}

// StatusSnapshot is the read-only view served to status consumers. Fields
// are copied at read time; nothing in it aliases live state.
type StatusSnapshot struct {
	Mode            string          `json:"mode"`
	Cadence         Cadence         `json:"cadence"`
	Connection      ConnectionState `json:"connection"`
	LastOpportunity *Opportunity    `json:"last_opportunity,omitempty"`
	LastCycleAt     time.Time       `json:"last_cycle_at"`
	LastCycleTook   time.Duration   `json:"last_cycle_took_ns"`
	LastBlock       uint64          `json:"last_block"`
	Counters        ScanCounters    `json:"counters"`
	VenueCount      int             `json:"venue_count"`
	TokenCount      int             `json:"token_count"`
	MinProfit       decimal.Decimal `json:"min_profit"`
	MaxFlashLoan    decimal.Decimal `json:"max_flash_loan"`
	StartedAt       time.Time       `json:"started_at"`
}
