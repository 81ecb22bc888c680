package financing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/chain"
)

type poolStub struct {
	parsed  abi.ABI
	premium []byte
	reserve []byte
	fail    bool
	calls   int
}

func (p *poolStub) ChainID(context.Context) (*big.Int, error) { return big.NewInt(137), nil }
func (p *poolStub) BlockNumber(context.Context) (uint64, error) { return 1, nil }
func (p *poolStub) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (p *poolStub) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}
func (p *poolStub) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (p *poolStub) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	p.calls++
	if p.fail {
		return nil, errors.New("execution reverted")
	}
	switch {
	case bytes.Equal(msg.Data[:4], p.parsed.Methods["getFlashLoanPremiumTotal"].ID):
		return p.premium, nil
	case bytes.Equal(msg.Data[:4], p.parsed.Methods["getReserveData"].ID):
		return p.reserve, nil
	}
	return nil, errors.New("unknown method")
}
func (p *poolStub) Close() {}

type provider struct{ c chain.Client }

func (p provider) Handle() (chain.Client, error) { return p.c, nil }

func newPoolStub(t *testing.T, bps int64, liquidityIndex int64) *poolStub {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	premium, err := parsed.Methods["getFlashLoanPremiumTotal"].Outputs.Pack(big.NewInt(bps))
	if err != nil {
		t.Fatalf("pack premium: %v", err)
	}
	zero := big.NewInt(0)
	aToken := common.HexToAddress("0x625E7708f30cA75bfd92586e17077590C60eb4cD")
	reserve, err := parsed.Methods["getReserveData"].Outputs.Pack(
		zero, big.NewInt(liquidityIndex), zero, zero, zero, zero, big.NewInt(1700000000), uint16(4),
		aToken, common.Address{}, common.Address{}, common.Address{}, zero, zero, zero,
	)
	if err != nil {
		t.Fatalf("pack reserve: %v", err)
	}
	return &poolStub{parsed: parsed, premium: premium, reserve: reserve}
}

func newTestPool(t *testing.T, stub *poolStub) *Pool {
	t.Helper()
	p, err := NewPool(PoolConfig{
		Address:     common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD"),
		DefaultRate: decimal.RequireFromString("0.0005"),
		CacheTTL:    time.Minute,
	}, provider{c: stub}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func TestPremiumRateReadsAndMemoises(t *testing.T) {
	stub := newPoolStub(t, 9, 1)
	p := newTestPool(t, stub)

	for i := 0; i < 3; i++ {
		if got := p.PremiumRate(context.Background()); !got.Equal(decimal.RequireFromString("0.0009")) {
			t.Fatalf("expected 0.0009, got %s", got)
		}
	}
	if stub.calls != 1 {
		t.Fatalf("expected a single pool read, got %d", stub.calls)
	}
}

func TestPremiumRateFallsBackToDefault(t *testing.T) {
	stub := newPoolStub(t, 9, 1)
	stub.fail = true
	p := newTestPool(t, stub)

	if got := p.PremiumRate(context.Background()); !got.Equal(decimal.RequireFromString("0.0005")) {
		t.Fatalf("expected default 0.0005, got %s", got)
	}
}

func TestReserveAvailability(t *testing.T) {
	live := newTestPool(t, newPoolStub(t, 5, 1_000_000))
	if !live.ReserveAvailable(context.Background(), usdc) {
		t.Fatal("reserve with a liquidity index should be available")
	}
	info, err := live.Reserve(context.Background(), usdc.Address)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if info.AToken != common.HexToAddress("0x625E7708f30cA75bfd92586e17077590C60eb4cD") {
		t.Fatalf("unexpected aToken %s", info.AToken.Hex())
	}

	empty := newTestPool(t, newPoolStub(t, 5, 0))
	if empty.ReserveAvailable(context.Background(), usdc) {
		t.Fatal("reserve without liquidity index should be unavailable")
	}

	broken := newPoolStub(t, 5, 1)
	broken.fail = true
	if newTestPool(t, broken).ReserveAvailable(context.Background(), usdc) {
		t.Fatal("unreadable reserve should be unavailable")
	}
}
