package arbitrage

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fiveCentGas makes GasCost exactly 0.05: 100k units at 500 gwei, 1:1 fiat.
var fiveCentGas = big.NewInt(500_000_000_000)

func scenarioEvaluator(financingOn bool, premium PremiumSource) *Evaluator {
	return NewEvaluator(EvaluatorConfig{
		MinProfit:        dec("0.30"),
		GasUnits:         100_000,
		NativeToFiat:     decimal.NewFromInt(1),
		FinancingEnabled: financingOn,
		MaxFlashLoan:     decimal.NewFromInt(20_000_000),
	}, premium, discard())
}

func candidate(buy, sell string, qty int64) domain.Opportunity {
	return domain.Opportunity{
		ID:        "opp",
		Base:      token("A", 1),
		Quote:     token("B", 2),
		BuyVenue:  "v1",
		SellVenue: "v2",
		BuyPrice:  dec(buy),
		SellPrice: dec(sell),
		Quantity:  decimal.NewFromInt(qty),
		Stage:     domain.StageCandidate,
		Verdict:   domain.VerdictPending,
	}
}

func TestGasCost(t *testing.T) {
	e := scenarioEvaluator(false, nil)
	if got := e.GasCost(fiveCentGas); !got.Equal(dec("0.05")) {
		t.Fatalf("expected 0.05, got %s", got)
	}

	defaults := NewEvaluator(EvaluatorConfig{GasUnits: 300_000, NativeToFiat: decimal.NewFromInt(1500)}, nil, discard())
	// 300k * 30 gwei = 0.009 native * 1500 = 13.5
	if got := defaults.GasCost(big.NewInt(30_000_000_000)); !got.Equal(dec("13.5")) {
		t.Fatalf("expected 13.5, got %s", got)
	}
}

func TestProfitabilityScenario(t *testing.T) {
	e := scenarioEvaluator(false, nil)
	cases := []struct {
		qty        int64
		net        string
		profitable bool
	}{
		{6, "0.25", false},
		{7, "0.30", true},
		{8, "0.35", true},
		{1000, "49.95", true},
	}
	for _, tc := range cases {
		p := e.Evaluate(candidate("1.00", "1.05", tc.qty), fiveCentGas)
		if !p.Net.Equal(dec(tc.net)) {
			t.Fatalf("qty %d: net %s, want %s", tc.qty, p.Net, tc.net)
		}
		if p.Profitable != tc.profitable {
			t.Fatalf("qty %d: profitable=%v, want %v", tc.qty, p.Profitable, tc.profitable)
		}
	}
}

func TestProfitableThresholdIsInclusive(t *testing.T) {
	e := scenarioEvaluator(false, nil)
	// gross 0.35 - gas 0.05 == min profit 0.30
	p := e.Evaluate(candidate("1.00", "1.05", 7), fiveCentGas)
	if !p.Net.Equal(dec("0.30")) || !p.Profitable {
		t.Fatalf("net equal to threshold must be profitable: %+v", p)
	}
}

func TestCheckFinancingUnderfunded(t *testing.T) {
	e := scenarioEvaluator(true, StaticPremium{Rate: dec("0.0005")})
	verdict, legs := e.CheckFinancing(context.Background(), candidate("1", "2", 1), dec("4000"))
	if verdict != domain.VerdictUnderfunded {
		t.Fatalf("expected underfunded, got %s", verdict)
	}
	if len(legs) != 2 {
		t.Fatalf("expected two legs, got %d", len(legs))
	}
	for _, l := range legs {
		if !l.Principal.Equal(decimal.NewFromInt(10_000_000)) || !l.Premium.Equal(decimal.NewFromInt(5000)) {
			t.Fatalf("unexpected leg %+v", l)
		}
	}
}

func TestCheckFinancingFundable(t *testing.T) {
	e := scenarioEvaluator(true, StaticPremium{Rate: dec("0.0005")})
	verdict, _ := e.CheckFinancing(context.Background(), candidate("1", "2", 1), dec("10000.01"))
	if verdict != domain.VerdictFundable {
		t.Fatalf("expected fundable, got %s", verdict)
	}
	// Equal to the premium is not enough.
	verdict, _ = e.CheckFinancing(context.Background(), candidate("1", "2", 1), dec("10000"))
	if verdict != domain.VerdictUnderfunded {
		t.Fatalf("net equal to premium must be underfunded, got %s", verdict)
	}
}

type unavailableReserve struct{ StaticPremium }

func (unavailableReserve) ReserveAvailable(context.Context, domain.TokenAsset) bool { return false }

func TestCheckFinancingUnavailableReserve(t *testing.T) {
	e := scenarioEvaluator(true, unavailableReserve{StaticPremium{Rate: dec("0.0005")}})
	verdict, legs := e.CheckFinancing(context.Background(), candidate("1", "2", 1), dec("1000000"))
	if verdict != domain.VerdictUnderfunded {
		t.Fatalf("expected underfunded, got %s", verdict)
	}
	if legs[0].Available {
		t.Fatal("leg should be marked unavailable")
	}
}

func TestProcessFinancingIndependentOfProfitability(t *testing.T) {
	e := scenarioEvaluator(true, StaticPremium{Rate: dec("0.0005")})
	// gross 50 - gas 0.05 = 49.95: profitable, far below the 10000 premium.
	opp := candidate("1.00", "1.05", 1000)
	verdict := e.Process(context.Background(), &opp, fiveCentGas)

	if verdict != domain.VerdictUnderfunded {
		t.Fatalf("expected underfunded, got %s", verdict)
	}
	if opp.Stage != domain.StageFinancingChecked || !opp.Profit.Profitable {
		t.Fatalf("expected profitable opportunity at financing stage, got %+v", opp)
	}
	if !opp.Profit.Premium.Equal(decimal.NewFromInt(10_000)) {
		t.Fatalf("expected premium 10000 recorded, got %s", opp.Profit.Premium)
	}
}

func TestProcessUnprofitableStopsBeforeFinancing(t *testing.T) {
	e := scenarioEvaluator(true, StaticPremium{Rate: dec("0.0005")})
	opp := candidate("1.00", "1.05", 6)
	if v := e.Process(context.Background(), &opp, fiveCentGas); v != domain.VerdictUnprofitable {
		t.Fatalf("expected unprofitable, got %s", v)
	}
	if opp.Stage != domain.StageEvaluated || opp.Financing != nil {
		t.Fatalf("financing must not run for unprofitable opportunity: %+v", opp)
	}
	if !opp.Verdict.Terminal() {
		t.Fatal("unprofitable must be terminal")
	}
}

func TestProcessWithoutFinancing(t *testing.T) {
	e := scenarioEvaluator(false, nil)
	opp := candidate("1.00", "1.05", 1000)
	if v := e.Process(context.Background(), &opp, fiveCentGas); v != domain.VerdictFundable {
		t.Fatalf("expected fundable, got %s", v)
	}
}
