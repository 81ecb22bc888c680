package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ScanReport summarises one completed scan cycle.
type ScanReport struct {
	StartedAt     time.Time       `json:"started_at"`
	Took          time.Duration   `json:"took_ns"`
	Block         uint64          `json:"block"`
	GasPriceGwei  decimal.Decimal `json:"gas_price_gwei"`
	Opportunities []Opportunity   `json:"opportunities"`
}

// ReportArchiver stores scan reports for later analysis.
type ReportArchiver interface {
	Archive(ctx context.Context, report ScanReport) error
}
