package financing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// QuoteLeg prices borrowing principal of asset at rate.
func QuoteLeg(asset domain.TokenAsset, principal, rate decimal.Decimal, available bool) domain.FlashLoanQuote {
	premium := principal.Mul(rate)
	return domain.FlashLoanQuote{
		Asset:          asset.Address,
		Symbol:         asset.Symbol,
		Principal:      principal,
		PremiumRate:    rate,
		Premium:        premium,
		TotalRepayment: principal.Add(premium),
		Available:      available,
	}
}

// SplitPrincipal divides the flash-loan ceiling evenly across legs.
func SplitPrincipal(maxLoan decimal.Decimal, legs int) decimal.Decimal {
	if legs <= 0 {
		return decimal.Zero
	}
	return maxLoan.Div(decimal.NewFromInt(int64(legs)))
}

// RateFromBps converts a basis-point premium to a fractional rate.
func RateFromBps(bps int64) decimal.Decimal {
	return decimal.New(bps, -4)
}
