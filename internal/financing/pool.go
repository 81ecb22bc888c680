// Package financing reads flash-loan parameters from the lending pool and
// prices the legs an opportunity would borrow.
package financing

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	cache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/chain"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PoolABI holds the lending pool methods the monitor reads and submits.
// getReserveData is declared with its tuple flattened; every member is
// static so the encoding is identical.
const PoolABI = `[
{"inputs":[],"name":"getFlashLoanPremiumTotal","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"asset","type":"address"}],"name":"getReserveData","outputs":[
 {"internalType":"uint256","name":"configuration","type":"uint256"},
 {"internalType":"uint128","name":"liquidityIndex","type":"uint128"},
 {"internalType":"uint128","name":"currentLiquidityRate","type":"uint128"},
 {"internalType":"uint128","name":"variableBorrowIndex","type":"uint128"},
 {"internalType":"uint128","name":"currentVariableBorrowRate","type":"uint128"},
 {"internalType":"uint128","name":"currentStableBorrowRate","type":"uint128"},
 {"internalType":"uint40","name":"lastUpdateTimestamp","type":"uint40"},
 {"internalType":"uint16","name":"id","type":"uint16"},
 {"internalType":"address","name":"aTokenAddress","type":"address"},
 {"internalType":"address","name":"stableDebtTokenAddress","type":"address"},
 {"internalType":"address","name":"variableDebtTokenAddress","type":"address"},
 {"internalType":"address","name":"interestRateStrategyAddress","type":"address"},
 {"internalType":"uint128","name":"accruedToTreasury","type":"uint128"},
 {"internalType":"uint128","name":"unbacked","type":"uint128"},
 {"internalType":"uint128","name":"isolationModeTotalDebt","type":"uint128"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"receiverAddress","type":"address"},{"internalType":"address[]","name":"assets","type":"address[]"},{"internalType":"uint256[]","name":"amounts","type":"uint256[]"},{"internalType":"uint256[]","name":"interestRateModes","type":"uint256[]"},{"internalType":"address","name":"onBehalfOf","type":"address"},{"internalType":"bytes","name":"params","type":"bytes"},{"internalType":"uint16","name":"referralCode","type":"uint16"}],"name":"flashLoan","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const premiumKey = "premium_rate"

// HandleProvider hands out the currently validated chain client.
type HandleProvider interface {
	Handle() (chain.Client, error)
}

// ReserveInfo is the subset of the pool's reserve data the monitor reports.
type ReserveInfo struct {
	LiquidityIndex *big.Int
	AToken         common.Address
}

// Available reports whether the reserve is initialised and can lend.
func (r ReserveInfo) Available() bool {
	return r.LiquidityIndex != nil && r.LiquidityIndex.Sign() > 0
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Address     common.Address
	DefaultRate decimal.Decimal
	CacheTTL    time.Duration
}

// Pool reads premium and reserve state from an Aave V3 pool and memoises the
// answers for CacheTTL. Reads that fail fall back to DefaultRate and to
// "unavailable" respectively.
type Pool struct {
	cfg    PoolConfig
	chain  HandleProvider
	abi    abi.ABI
	memo   *cache.Cache
	logger *slog.Logger
}

// NewPool creates a Pool reader.
func NewPool(cfg PoolConfig, provider HandleProvider, logger *slog.Logger) (*Pool, error) {
	parsed, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("financing: parse pool abi: %w", err)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Pool{
		cfg:    cfg,
		chain:  provider,
		abi:    parsed,
		memo:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: logger.With(slog.String("component", "financing")),
	}, nil
}

// PremiumRate returns the pool's live flash-loan premium as a fraction, or
// the configured default when the pool cannot be read.
func (p *Pool) PremiumRate(ctx context.Context) decimal.Decimal {
	if v, ok := p.memo.Get(premiumKey); ok {
		return v.(decimal.Decimal)
	}
	bps, err := p.premiumBps(ctx)
	if err != nil {
		p.logger.DebugContext(ctx, "premium read failed, using default",
			slog.String("default", p.cfg.DefaultRate.String()),
			slog.String("error", err.Error()),
		)
		return p.cfg.DefaultRate
	}
	rate := decimal.NewFromBigInt(bps, -4)
	p.memo.Set(premiumKey, rate, cache.DefaultExpiration)
	return rate
}

// ReserveAvailable reports whether the pool can lend asset.
func (p *Pool) ReserveAvailable(ctx context.Context, asset domain.TokenAsset) bool {
	key := "reserve:" + asset.Address.Hex()
	if v, ok := p.memo.Get(key); ok {
		return v.(bool)
	}
	info, err := p.Reserve(ctx, asset.Address)
	if err != nil {
		p.logger.DebugContext(ctx, "reserve read failed",
			slog.String("asset", asset.Symbol),
			slog.String("error", err.Error()),
		)
		return false
	}
	ok := info.Available()
	p.memo.Set(key, ok, cache.DefaultExpiration)
	return ok
}

// Reserve reads getReserveData for asset.
func (p *Pool) Reserve(ctx context.Context, asset common.Address) (ReserveInfo, error) {
	vals, err := p.call(ctx, "getReserveData", asset)
	if err != nil {
		return ReserveInfo{}, err
	}
	if len(vals) < 9 {
		return ReserveInfo{}, fmt.Errorf("financing: reserve data: %d values", len(vals))
	}
	idx, ok := vals[1].(*big.Int)
	if !ok {
		return ReserveInfo{}, fmt.Errorf("financing: reserve data: liquidity index type %T", vals[1])
	}
	aToken, ok := vals[8].(common.Address)
	if !ok {
		return ReserveInfo{}, fmt.Errorf("financing: reserve data: aToken type %T", vals[8])
	}
	return ReserveInfo{LiquidityIndex: idx, AToken: aToken}, nil
}

func (p *Pool) premiumBps(ctx context.Context) (*big.Int, error) {
	vals, err := p.call(ctx, "getFlashLoanPremiumTotal")
	if err != nil {
		return nil, err
	}
	bps, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("financing: premium type %T", vals[0])
	}
	return bps, nil
}

func (p *Pool) call(ctx context.Context, method string, args ...any) ([]any, error) {
	client, err := p.chain.Handle()
	if err != nil {
		return nil, fmt.Errorf("financing: %s: %w", method, err)
	}
	data, err := p.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("financing: pack %s: %w", method, err)
	}
	to := p.cfg.Address
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("financing: call %s: %w", method, err)
	}
	vals, err := p.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("financing: unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("financing: %s: empty result", method)
	}
	return vals, nil
}
