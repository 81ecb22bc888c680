package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Stage is where an opportunity sits in its evaluation lifecycle.
type Stage string

const (
	StageCandidate        Stage = "candidate"
	StageEvaluated        Stage = "evaluated"
	StageFinancingChecked Stage = "financing_checked"
	StageDispatched       Stage = "dispatched"
)

// Verdict is the outcome attached to an opportunity as it moves through the
// stages. Unprofitable, Underfunded and Dispatched are terminal.
type Verdict string

const (
	VerdictPending      Verdict = "pending"
	VerdictUnprofitable Verdict = "unprofitable"
	VerdictUnderfunded  Verdict = "underfunded"
	VerdictFundable     Verdict = "fundable"
	VerdictDispatched   Verdict = "dispatched"
)

// Terminal reports whether no further stage can follow v.
func (v Verdict) Terminal() bool {
	switch v {
	case VerdictUnprofitable, VerdictUnderfunded, VerdictDispatched:
		return true
	default:
		return false
	}
}

// ProfitBreakdown is the fiat-denominated profit analysis of an opportunity.
type ProfitBreakdown struct {
	Gross      decimal.Decimal `json:"gross"`
	GasCost    decimal.Decimal `json:"gas_cost"`
	Premium    decimal.Decimal `json:"premium"`
	Net        decimal.Decimal `json:"net"`
	Profitable bool            `json:"profitable"`
}

// FlashLoanQuote is the cost of borrowing Principal of Asset for one leg.
// Principal and Premium are valued in the pair's quote token; the gateway
// converts Principal to Asset units when it builds the loan.
type FlashLoanQuote struct {
	Asset          common.Address  `json:"asset"`
	Symbol         string          `json:"symbol"`
	Principal      decimal.Decimal `json:"principal"`
	PremiumRate    decimal.Decimal `json:"premium_rate"`
	Premium        decimal.Decimal `json:"premium"`
	TotalRepayment decimal.Decimal `json:"total_repayment"`
	Available      bool            `json:"available"`
}

// Opportunity is a cross-venue spread found in one scan cycle. It is rebuilt
// from fresh quotes every cycle.
type Opportunity struct {
	ID         string           `json:"id"`
	Base       TokenAsset       `json:"base"`
	Quote      TokenAsset       `json:"quote"`
	BuyVenue   string           `json:"buy_venue"`
	SellVenue  string           `json:"sell_venue"`
	BuyPrice   decimal.Decimal  `json:"buy_price"`
	SellPrice  decimal.Decimal  `json:"sell_price"`
	SpreadPct  decimal.Decimal  `json:"spread_pct"`
	Quantity   decimal.Decimal  `json:"quantity"`
	DetectedAt time.Time        `json:"detected_at"`
	Stage      Stage            `json:"stage"`
	Verdict    Verdict          `json:"verdict"`
	Profit     *ProfitBreakdown `json:"profit,omitempty"`
	Financing  []FlashLoanQuote `json:"financing,omitempty"`
}

// Pair returns the "BASE/QUOTE" label of the opportunity.
func (o Opportunity) Pair() string {
	return PairKey(o.Base, o.Quote)
}

// TotalPremium sums the premium across all financing legs.
func (o Opportunity) TotalPremium() decimal.Decimal {
	total := decimal.Zero
	for _, q := range o.Financing {
		total = total.Add(q.Premium)
	}
	return total
}

// DispatchResult is what the execution gateway reports for an opportunity
// it accepted.
type DispatchResult struct {
	OpportunityID  string          `json:"opportunity_id"`
	Simulated      bool            `json:"simulated"`
	TxHash         string          `json:"tx_hash,omitempty"`
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
	GasPriceWei    string          `json:"gas_price_wei"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}
