package financing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var usdc = domain.TokenAsset{Symbol: "USDC", Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Decimals: 6}

func TestQuoteLegPremium(t *testing.T) {
	q := QuoteLeg(usdc, decimal.NewFromInt(10_000_000), decimal.RequireFromString("0.0005"), true)
	if !q.Premium.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected premium 5000, got %s", q.Premium)
	}
	if !q.TotalRepayment.Equal(decimal.NewFromInt(10_005_000)) {
		t.Fatalf("expected repayment 10005000, got %s", q.TotalRepayment)
	}
	if q.Symbol != "USDC" || q.Asset != usdc.Address || !q.Available {
		t.Fatalf("unexpected leg %+v", q)
	}
}

func TestSplitPrincipal(t *testing.T) {
	got := SplitPrincipal(decimal.NewFromInt(20_000_000), 2)
	if !got.Equal(decimal.NewFromInt(10_000_000)) {
		t.Fatalf("expected 10000000, got %s", got)
	}
	if !SplitPrincipal(decimal.NewFromInt(1), 0).IsZero() {
		t.Fatal("zero legs should borrow nothing")
	}
}

func TestRateFromBps(t *testing.T) {
	if got := RateFromBps(5); !got.Equal(decimal.RequireFromString("0.0005")) {
		t.Fatalf("expected 0.0005, got %s", got)
	}
}
