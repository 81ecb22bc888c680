package oracle

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount to the token's integer base units,
// truncating anything below the token's precision.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

// FromBaseUnits converts integer base units back to a human amount.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
