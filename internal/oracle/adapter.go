// Package oracle reads swap prices from Uniswap-V2 style routers.
package oracle

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
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/chain"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

const routerABI = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`

// HandleProvider hands out the currently validated chain client.
type HandleProvider interface {
	Handle() (chain.Client, error)
}

// Adapter quotes token swaps on a venue router via eth_call.
type Adapter struct {
	chain  HandleProvider
	cache  domain.QuoteCache
	abi    abi.ABI
	logger *slog.Logger
	now    func() time.Time
}

// NewAdapter creates an Adapter. cache may be nil.
func NewAdapter(provider HandleProvider, cache domain.QuoteCache, logger *slog.Logger) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse router abi: %w", err)
	}
	return &Adapter{
		chain:  provider,
		cache:  cache,
		abi:    parsed,
		logger: logger.With(slog.String("component", "oracle")),
		now:    time.Now,
	}, nil
}

// Quote returns how much tokenOut the venue gives for amountIn of tokenIn.
// The boolean is false when the venue has no usable answer; failures are
// logged, never returned.
func (a *Adapter) Quote(ctx context.Context, venue domain.ExchangeVenue, tokenIn, tokenOut domain.TokenAsset, amountIn decimal.Decimal) (decimal.Decimal, bool) {
	out, err := a.quote(ctx, venue, tokenIn, tokenOut, amountIn)
	if err != nil {
		a.logger.DebugContext(ctx, "no quote",
			slog.String("venue", venue.Name),
			slog.String("pair", domain.PairKey(tokenIn, tokenOut)),
			slog.String("error", err.Error()),
		)
		return decimal.Zero, false
	}

	if a.cache != nil {
		q := domain.PriceQuote{
			Venue:     venue.Name,
			TokenIn:   tokenIn.Symbol,
			TokenOut:  tokenOut.Symbol,
			AmountIn:  amountIn,
			AmountOut: out,
			SampledAt: a.now().UTC(),
		}
		if err := a.cache.SetQuote(ctx, q); err != nil {
			a.logger.DebugContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
		}
	}
	return out, true
}

func (a *Adapter) quote(ctx context.Context, venue domain.ExchangeVenue, tokenIn, tokenOut domain.TokenAsset, amountIn decimal.Decimal) (decimal.Decimal, error) {
	client, err := a.chain.Handle()
	if err != nil {
		return decimal.Zero, err
	}

	in := ToBaseUnits(amountIn, tokenIn.Decimals)
	if in.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("amount %s below token precision", amountIn)
	}

	data, err := a.abi.Pack("getAmountsOut", in, []common.Address{tokenIn.Address, tokenOut.Address})
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack: %w", err)
	}
	router := venue.Router
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call: %w", err)
	}
	if len(raw) == 0 {
		return decimal.Zero, fmt.Errorf("empty result")
	}

	vals, err := a.abi.Unpack("getAmountsOut", raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack: %w", err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return decimal.Zero, fmt.Errorf("no amounts")
	}
	last := amounts[len(amounts)-1]
	if last == nil || last.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("zero output")
	}
	return FromBaseUnits(last, tokenOut.Decimals), nil
}
