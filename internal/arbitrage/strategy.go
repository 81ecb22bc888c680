// Package arbitrage finds cross-venue price gaps between registered token
// pairs and decides whether each gap survives gas and flash-loan costs.
package arbitrage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Quoter prices a swap on one venue. A false result means the venue had no
// usable answer this cycle.
type Quoter interface {
	Quote(ctx context.Context, venue domain.ExchangeVenue, tokenIn, tokenOut domain.TokenAsset, amountIn decimal.Decimal) (decimal.Decimal, bool)
}

// PremiumSource supplies the flash-loan premium rate and reserve availability
// for an asset.
type PremiumSource interface {
	PremiumRate(ctx context.Context) decimal.Decimal
	ReserveAvailable(ctx context.Context, asset domain.TokenAsset) bool
}

// StaticPremium is a PremiumSource with a fixed rate and every reserve
// available.
type StaticPremium struct {
	Rate decimal.Decimal
}

// PremiumRate returns the fixed rate.
func (s StaticPremium) PremiumRate(context.Context) decimal.Decimal { return s.Rate }

// ReserveAvailable always reports true.
func (s StaticPremium) ReserveAvailable(context.Context, domain.TokenAsset) bool { return true }
