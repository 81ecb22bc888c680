package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenAsset is an ERC-20 token the scanner trades. Decimals is fixed at
// registration and used for every conversion of that token's amounts.
type TokenAsset struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int32          `json:"decimals"`
}

// ExchangeVenue is a Uniswap-V2 style router that answers getAmountsOut.
type ExchangeVenue struct {
	Name   string         `json:"name"`
	Router common.Address `json:"router"`
}

// PriceQuote is one venue's answer for one pair in one cycle.
type PriceQuote struct {
	Venue     string          `json:"venue"`
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	SampledAt time.Time       `json:"sampled_at"`
}

// PairKey identifies an unordered pair by symbol in registration order.
func PairKey(base, quote TokenAsset) string {
	return base.Symbol + "/" + quote.Symbol
}
