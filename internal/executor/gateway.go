package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/chain"
	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/financing"
	"github.com/alanyoungcy/polyarb/internal/oracle"
)

// Gateway accepts fundable opportunities for execution.
type Gateway interface {
	Dispatch(ctx context.Context, opp domain.Opportunity) (domain.DispatchResult, error)
	Simulated() bool
}

// HandleProvider hands out the currently validated chain client.
type HandleProvider interface {
	Handle() (chain.Client, error)
}

// Submitter is the write side of an ethclient connection.
type Submitter interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var (
	_ Gateway = (*SimulatedGateway)(nil)
	_ Gateway = (*LiveGateway)(nil)
)

func expectedProfit(opp domain.Opportunity) decimal.Decimal {
	if opp.Profit == nil {
		return decimal.Zero
	}
	return opp.Profit.Net.Sub(opp.TotalPremium())
}

func requireFundable(opp domain.Opportunity) error {
	if opp.Verdict != domain.VerdictFundable {
		return fmt.Errorf("executor: opportunity %s is %s: %w", opp.ID, opp.Verdict, domain.ErrFinancingInsufficient)
	}
	return nil
}

// SimulatedGateway records what would have been submitted and never touches
// the chain.
type SimulatedGateway struct {
	now func() time.Time
}

// NewSimulatedGateway creates a SimulatedGateway.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{now: time.Now}
}

// Dispatch returns the expected profit of opp.
func (g *SimulatedGateway) Dispatch(_ context.Context, opp domain.Opportunity) (domain.DispatchResult, error) {
	if err := requireFundable(opp); err != nil {
		return domain.DispatchResult{}, err
	}
	return domain.DispatchResult{
		OpportunityID:  opp.ID,
		Simulated:      true,
		ExpectedProfit: expectedProfit(opp),
		SubmittedAt:    g.now().UTC(),
	}, nil
}

// Simulated reports true.
func (g *SimulatedGateway) Simulated() bool { return true }

// LiveConfig configures a LiveGateway.
type LiveConfig struct {
	ChainID  uint64
	Pool     common.Address
	Receiver common.Address
	// Routers maps venue name to router address for the receiver params.
	Routers               map[string]common.Address
	MaxGasPriceGwei       decimal.Decimal
	AcceleratedMultiplier decimal.Decimal
	GasLimit              uint64
}

var minBalance = decimal.NewFromInt(1)

// LiveGateway signs and submits a flashLoan call to the lending pool. The
// receiver contract performs the swaps; this gateway only passes the route.
type LiveGateway struct {
	cfg         LiveConfig
	chain       HandleProvider
	signer      *crypto.TxSigner
	abi         abi.ABI
	params      abi.Arguments
	accelerated func() bool
	logger      *slog.Logger
	now         func() time.Time
}

// NewLiveGateway resolves the wallet key and prepares the pool ABI. Without a
// configured key it fails with domain.ErrConfiguration.
func NewLiveGateway(cfg LiveConfig, provider HandleProvider, keyCfg crypto.KeyConfig, accelerated func() bool, logger *slog.Logger) (*LiveGateway, error) {
	key, err := crypto.LoadKey(keyCfg)
	if err != nil {
		return nil, fmt.Errorf("executor: live gateway: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(financing.PoolABI))
	if err != nil {
		return nil, fmt.Errorf("executor: parse pool abi: %w", err)
	}
	addrType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, fmt.Errorf("executor: address type: %w", err)
	}
	if accelerated == nil {
		accelerated = func() bool { return false }
	}
	if cfg.AcceleratedMultiplier.IsZero() {
		cfg.AcceleratedMultiplier = decimal.NewFromInt(1)
	}
	return &LiveGateway{
		cfg:         cfg,
		chain:       provider,
		signer:      crypto.NewTxSigner(key, cfg.ChainID),
		abi:         parsed,
		params:      abi.Arguments{{Type: addrType}, {Type: addrType}, {Type: addrType}, {Type: addrType}},
		accelerated: accelerated,
		logger:      logger.With(slog.String("component", "live_gateway")),
		now:         time.Now,
	}, nil
}

// Simulated reports false.
func (g *LiveGateway) Simulated() bool { return false }

// Address returns the signing wallet.
func (g *LiveGateway) Address() common.Address { return g.signer.Address() }

// CheckBalance logs the wallet's native balance and warns when it is too low
// to pay for gas.
func (g *LiveGateway) CheckBalance(ctx context.Context) (decimal.Decimal, error) {
	client, err := g.chain.Handle()
	if err != nil {
		return decimal.Zero, fmt.Errorf("executor: balance: %w", err)
	}
	wei, err := client.BalanceAt(ctx, g.signer.Address(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("executor: balance: %w", err)
	}
	bal := decimal.NewFromBigInt(wei, -18)
	attrs := []any{
		slog.String("wallet", g.signer.Address().Hex()),
		slog.String("balance", bal.StringFixed(4)),
	}
	if bal.LessThan(minBalance) {
		g.logger.WarnContext(ctx, "wallet balance low, at least 1 POL is needed for gas", attrs...)
	} else {
		g.logger.InfoContext(ctx, "wallet ready", attrs...)
	}
	return bal, nil
}

// GasBid returns the gas price to bid, applying the accelerated multiplier,
// or domain.ErrGasPriceTooHigh if it exceeds the ceiling.
func (g *LiveGateway) GasBid(suggested *big.Int) (*big.Int, error) {
	bid := suggested
	if g.accelerated() {
		bid = decimal.NewFromBigInt(suggested, 0).Mul(g.cfg.AcceleratedMultiplier).BigInt()
	}
	if !g.cfg.MaxGasPriceGwei.IsZero() {
		ceiling := g.cfg.MaxGasPriceGwei.Shift(9).BigInt()
		if bid.Cmp(ceiling) > 0 {
			return nil, fmt.Errorf("executor: bid %s gwei above %s: %w",
				decimal.NewFromBigInt(bid, -9).StringFixed(2), g.cfg.MaxGasPriceGwei, domain.ErrGasPriceTooHigh)
		}
	}
	return bid, nil
}

// Calldata packs the flashLoan call for opp.
func (g *LiveGateway) Calldata(opp domain.Opportunity) ([]byte, error) {
	buy, ok := g.cfg.Routers[opp.BuyVenue]
	if !ok {
		return nil, fmt.Errorf("executor: unknown venue %q", opp.BuyVenue)
	}
	sell, ok := g.cfg.Routers[opp.SellVenue]
	if !ok {
		return nil, fmt.Errorf("executor: unknown venue %q", opp.SellVenue)
	}
	if len(opp.Financing) == 0 {
		return nil, errors.New("executor: opportunity has no financing legs")
	}

	assets := make([]common.Address, 0, len(opp.Financing))
	amounts := make([]*big.Int, 0, len(opp.Financing))
	modes := make([]*big.Int, 0, len(opp.Financing))
	for _, leg := range opp.Financing {
		amount, err := legAmount(opp, leg)
		if err != nil {
			return nil, err
		}
		assets = append(assets, leg.Asset)
		amounts = append(amounts, amount)
		modes = append(modes, big.NewInt(0))
	}

	params, err := g.params.Pack(buy, sell, opp.Base.Address, opp.Quote.Address)
	if err != nil {
		return nil, fmt.Errorf("executor: pack params: %w", err)
	}
	data, err := g.abi.Pack("flashLoan", g.cfg.Receiver, assets, amounts, modes, g.signer.Address(), params, uint16(0))
	if err != nil {
		return nil, fmt.Errorf("executor: pack flashLoan: %w", err)
	}
	return data, nil
}

// legAmount converts a leg's principal into base units of the borrowed
// token. Principals are valued in the quote token, so the quote leg is taken
// as is and the base leg is divided by the buy price (quote per base).
func legAmount(opp domain.Opportunity, leg domain.FlashLoanQuote) (*big.Int, error) {
	switch leg.Asset {
	case opp.Quote.Address:
		return oracle.ToBaseUnits(leg.Principal, opp.Quote.Decimals), nil
	case opp.Base.Address:
		if !opp.BuyPrice.IsPositive() {
			return nil, fmt.Errorf("executor: cannot size %s leg without a buy price", opp.Base.Symbol)
		}
		return oracle.ToBaseUnits(leg.Principal.Div(opp.BuyPrice), opp.Base.Decimals), nil
	default:
		return nil, fmt.Errorf("executor: leg asset %s is not part of pair %s", leg.Asset.Hex(), opp.Pair())
	}
}

// Dispatch signs and sends the flashLoan transaction. It does not wait for a
// receipt.
func (g *LiveGateway) Dispatch(ctx context.Context, opp domain.Opportunity) (domain.DispatchResult, error) {
	if err := requireFundable(opp); err != nil {
		return domain.DispatchResult{}, err
	}
	client, err := g.chain.Handle()
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("executor: dispatch: %w", err)
	}
	sub, ok := client.(Submitter)
	if !ok {
		return domain.DispatchResult{}, errors.New("executor: dispatch: chain client cannot submit transactions")
	}

	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("executor: gas price: %w", err)
	}
	bid, err := g.GasBid(suggested)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	data, err := g.Calldata(opp)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	nonce, err := sub.PendingNonceAt(ctx, g.signer.Address())
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("executor: nonce: %w", err)
	}

	pool := g.cfg.Pool
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &pool,
		Gas:      g.cfg.GasLimit,
		GasPrice: bid,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := g.signer.Sign(tx)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if err := sub.SendTransaction(ctx, signed); err != nil {
		return domain.DispatchResult{}, fmt.Errorf("executor: send: %w", err)
	}

	g.logger.InfoContext(ctx, "flash loan submitted",
		slog.String("opportunity_id", opp.ID),
		slog.String("tx", signed.Hash().Hex()),
		slog.String("gas_gwei", decimal.NewFromBigInt(bid, -9).StringFixed(2)),
	)
	return domain.DispatchResult{
		OpportunityID:  opp.ID,
		TxHash:         signed.Hash().Hex(),
		ExpectedProfit: expectedProfit(opp),
		GasPriceWei:    bid.String(),
		SubmittedAt:    g.now().UTC(),
	}, nil
}
