package executor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/chain"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/financing"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	poolAddr   = common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD")
	receiver   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	quickRoute = common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff")
	sushiRoute = common.HexToAddress("0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506")
	wmatic     = domain.TokenAsset{Symbol: "WMATIC", Address: common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"), Decimals: 18}
	usdc       = domain.TokenAsset{Symbol: "USDC", Address: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), Decimals: 6}
)

type sendingClient struct {
	gasWei  *big.Int
	balance *big.Int
	sent    []*types.Transaction
}

func (c *sendingClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(137), nil }
func (c *sendingClient) BlockNumber(context.Context) (uint64, error) { return 1, nil }
func (c *sendingClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return c.gasWei, nil
}
func (c *sendingClient) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}
func (c *sendingClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return c.balance, nil
}
func (c *sendingClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}
func (c *sendingClient) Close() {}
func (c *sendingClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}
func (c *sendingClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.sent = append(c.sent, tx)
	return nil
}

type staticHandle struct{ c chain.Client }

func (s staticHandle) Handle() (chain.Client, error) { return s.c, nil }

func liveOpportunity() domain.Opportunity {
	opp := fundable("live")
	opp.Base, opp.Quote = wmatic, usdc
	opp.BuyPrice = decimal.RequireFromString("0.5")
	opp.SellPrice = decimal.RequireFromString("0.52")
	opp.Financing = []domain.FlashLoanQuote{
		financing.QuoteLeg(wmatic, decimal.NewFromInt(10), decimal.RequireFromString("0.0005"), true),
		financing.QuoteLeg(usdc, decimal.NewFromInt(10), decimal.RequireFromString("0.0005"), true),
	}
	return opp
}

func newLive(t *testing.T, client chain.Client, accelerated bool) *LiveGateway {
	t.Helper()
	g, err := NewLiveGateway(LiveConfig{
		ChainID:               137,
		Pool:                  poolAddr,
		Receiver:              receiver,
		Routers:               map[string]common.Address{"QuickSwap": quickRoute, "SushiSwap": sushiRoute},
		MaxGasPriceGwei:       decimal.NewFromInt(500),
		AcceleratedMultiplier: decimal.RequireFromString("1.5"),
		GasLimit:              500_000,
	}, staticHandle{c: client}, crypto.KeyConfig{RawPrivateKey: testKey}, func() bool { return accelerated }, discard())
	if err != nil {
		t.Fatalf("new live gateway: %v", err)
	}
	return g
}

func TestLiveGatewayNeedsKey(t *testing.T) {
	_, err := NewLiveGateway(LiveConfig{ChainID: 137}, staticHandle{}, crypto.KeyConfig{}, nil, discard())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestGasBid(t *testing.T) {
	normal := newLive(t, &sendingClient{}, false)
	bid, err := normal.GasBid(big.NewInt(100e9))
	if err != nil || bid.Cmp(big.NewInt(100e9)) != 0 {
		t.Fatalf("expected unchanged bid, got %v %v", bid, err)
	}
	if _, err := normal.GasBid(big.NewInt(501e9)); !errors.Is(err, domain.ErrGasPriceTooHigh) {
		t.Fatalf("expected ErrGasPriceTooHigh, got %v", err)
	}

	fast := newLive(t, &sendingClient{}, true)
	bid, err = fast.GasBid(big.NewInt(100e9))
	if err != nil || bid.Cmp(big.NewInt(150e9)) != 0 {
		t.Fatalf("expected 1.5x bid, got %v %v", bid, err)
	}
	if _, err := fast.GasBid(big.NewInt(400e9)); !errors.Is(err, domain.ErrGasPriceTooHigh) {
		t.Fatalf("accelerated bid above ceiling should be refused, got %v", err)
	}
}

func TestLiveGatewayDispatch(t *testing.T) {
	client := &sendingClient{gasWei: big.NewInt(40e9), balance: big.NewInt(0)}
	g := newLive(t, client, false)

	res, err := g.Dispatch(context.Background(), liveOpportunity())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(client.sent))
	}
	tx := client.sent[0]
	if res.TxHash != tx.Hash().Hex() || res.Simulated || res.GasPriceWei != "40000000000" {
		t.Fatalf("unexpected result %+v", res)
	}
	if *tx.To() != poolAddr || tx.Nonce() != 7 || tx.Gas() != 500_000 {
		t.Fatalf("unexpected tx to=%s nonce=%d gas=%d", tx.To().Hex(), tx.Nonce(), tx.Gas())
	}

	parsed, err := abi.JSON(strings.NewReader(financing.PoolABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	method, err := parsed.MethodById(tx.Data()[:4])
	if err != nil || method.Name != "flashLoan" {
		t.Fatalf("unexpected method %v %v", method, err)
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != receiver {
		t.Fatalf("unexpected receiver %v", args[0])
	}
	amounts := args[2].([]*big.Int)
	// 10 USDC of principal buys 20 WMATIC at 0.5 USDC each
	if amounts[0].String() != "20000000000000000000" || amounts[1].String() != "10000000" {
		t.Fatalf("amounts not converted to token units: %v", amounts)
	}
	if args[4].(common.Address) != g.Address() {
		t.Fatalf("onBehalfOf should be the wallet, got %v", args[4])
	}
}

func TestLegAmountNeedsBuyPrice(t *testing.T) {
	opp := liveOpportunity()
	opp.BuyPrice = decimal.Zero
	if _, err := legAmount(opp, opp.Financing[0]); err == nil {
		t.Fatal("expected error sizing the base leg without a price")
	}
	amount, err := legAmount(opp, opp.Financing[1])
	if err != nil || amount.String() != "10000000" {
		t.Fatalf("quote leg should not need a price, got %v %v", amount, err)
	}

	stray := opp.Financing[0]
	stray.Asset = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	if _, err := legAmount(liveOpportunity(), stray); err == nil {
		t.Fatal("expected error for an asset outside the pair")
	}
}

func TestLiveGatewayRefusesUnderfunded(t *testing.T) {
	client := &sendingClient{gasWei: big.NewInt(40e9)}
	g := newLive(t, client, false)
	opp := liveOpportunity()
	opp.Verdict = domain.VerdictUnderfunded
	if _, err := g.Dispatch(context.Background(), opp); !errors.Is(err, domain.ErrFinancingInsufficient) {
		t.Fatalf("expected ErrFinancingInsufficient, got %v", err)
	}
	if len(client.sent) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestCheckBalance(t *testing.T) {
	g := newLive(t, &sendingClient{balance: big.NewInt(5e17)}, false)
	bal, err := g.CheckBalance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected 0.5, got %s", bal)
	}
}
