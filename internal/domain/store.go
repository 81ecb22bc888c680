package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DispatchRecord is the persisted trace of an opportunity handed to the
// execution gateway. Opportunities that never reach dispatch are not stored.
type DispatchRecord struct {
	OpportunityID string          `json:"opportunity_id"`
	Pair          string          `json:"pair"`
	BuyVenue      string          `json:"buy_venue"`
	SellVenue     string          `json:"sell_venue"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	SpreadPct     decimal.Decimal `json:"spread_pct"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	TotalPremium  decimal.Decimal `json:"total_premium"`
	Simulated     bool            `json:"simulated"`
	TxHash        string          `json:"tx_hash,omitempty"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	DetectedAt    time.Time       `json:"detected_at"`
	DispatchedAt  time.Time       `json:"dispatched_at"`
}

// DispatchStore persists dispatch records.
type DispatchStore interface {
	Insert(ctx context.Context, rec DispatchRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]DispatchRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
