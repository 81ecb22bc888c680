package arbitrage

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/financing"
)

// EvaluatorConfig holds the fixed economics of one arbitrage.
type EvaluatorConfig struct {
	MinProfit decimal.Decimal
	// GasUnits is the estimated gas of one execution; it is not measured.
	GasUnits uint64
	// NativeToFiat converts the native gas token to fiat. Fixed, not live.
	NativeToFiat decimal.Decimal

	FinancingEnabled bool
	// MaxFlashLoan is split evenly between the pair's two assets.
	MaxFlashLoan decimal.Decimal
}

// Evaluator applies the two-tier profitability check: raw profit after gas,
// then profit over the flash-loan premium.
type Evaluator struct {
	cfg     EvaluatorConfig
	premium PremiumSource
	logger  *slog.Logger
}

// NewEvaluator creates an Evaluator. premium may be nil when financing is
// disabled.
func NewEvaluator(cfg EvaluatorConfig, premium PremiumSource, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		premium: premium,
		logger:  logger.With(slog.String("component", "evaluator")),
	}
}

// GasCost returns the fiat cost of GasUnits at gasPriceWei.
func (e *Evaluator) GasCost(gasPriceWei *big.Int) decimal.Decimal {
	if gasPriceWei == nil {
		return decimal.Zero
	}
	gwei := decimal.NewFromBigInt(gasPriceWei, -9)
	units := decimal.NewFromBigInt(new(big.Int).SetUint64(e.cfg.GasUnits), 0)
	return units.Mul(gwei).Shift(-9).Mul(e.cfg.NativeToFiat)
}

// Evaluate computes gross, gas and net profit for opp.
func (e *Evaluator) Evaluate(opp domain.Opportunity, gasPriceWei *big.Int) domain.ProfitBreakdown {
	gross := opp.SellPrice.Sub(opp.BuyPrice).Mul(opp.Quantity)
	gas := e.GasCost(gasPriceWei)
	net := gross.Sub(gas)
	return domain.ProfitBreakdown{
		Gross:      gross,
		GasCost:    gas,
		Premium:    decimal.Zero,
		Net:        net,
		Profitable: net.GreaterThanOrEqual(e.cfg.MinProfit),
	}
}

// CheckFinancing prices a flash loan on both pair assets and decides whether
// net profit clears the combined premium. net must come from Evaluate.
func (e *Evaluator) CheckFinancing(ctx context.Context, opp domain.Opportunity, net decimal.Decimal) (domain.Verdict, []domain.FlashLoanQuote) {
	source := e.premium
	if source == nil {
		source = StaticPremium{Rate: decimal.Zero}
	}
	rate := source.PremiumRate(ctx)
	principal := financing.SplitPrincipal(e.cfg.MaxFlashLoan, 2)

	legs := make([]domain.FlashLoanQuote, 0, 2)
	total := decimal.Zero
	allAvailable := true
	for _, asset := range []domain.TokenAsset{opp.Base, opp.Quote} {
		available := source.ReserveAvailable(ctx, asset)
		leg := financing.QuoteLeg(asset, principal, rate, available)
		legs = append(legs, leg)
		total = total.Add(leg.Premium)
		allAvailable = allAvailable && available
	}

	if !allAvailable || !net.GreaterThan(total) {
		return domain.VerdictUnderfunded, legs
	}
	return domain.VerdictFundable, legs
}

// Process drives opp through evaluation and, when profitable, the financing
// check. It mutates opp in place and returns the final verdict.
func (e *Evaluator) Process(ctx context.Context, opp *domain.Opportunity, gasPriceWei *big.Int) domain.Verdict {
	profit := e.Evaluate(*opp, gasPriceWei)
	opp.Profit = &profit
	opp.Stage = domain.StageEvaluated

	if !profit.Profitable {
		opp.Verdict = domain.VerdictUnprofitable
		e.log(ctx, opp)
		return opp.Verdict
	}

	opp.Stage = domain.StageFinancingChecked
	if !e.cfg.FinancingEnabled {
		opp.Verdict = domain.VerdictFundable
		e.log(ctx, opp)
		return opp.Verdict
	}

	verdict, legs := e.CheckFinancing(ctx, *opp, profit.Net)
	opp.Financing = legs
	opp.Profit.Premium = opp.TotalPremium()
	opp.Verdict = verdict
	e.log(ctx, opp)
	return verdict
}

func (e *Evaluator) log(ctx context.Context, opp *domain.Opportunity) {
	e.logger.InfoContext(ctx, "opportunity evaluated",
		slog.String("id", opp.ID),
		slog.String("pair", opp.Pair()),
		slog.String("verdict", string(opp.Verdict)),
		slog.String("gross", opp.Profit.Gross.StringFixed(4)),
		slog.String("gas", opp.Profit.GasCost.StringFixed(4)),
		slog.String("net", opp.Profit.Net.StringFixed(4)),
		slog.String("premium", opp.Profit.Premium.StringFixed(4)),
	)
}
