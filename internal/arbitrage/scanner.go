package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// UnitAmount is the amount of the pair's base token quoted on every venue.
	UnitAmount decimal.Decimal
	// ScaleFactor turns the unit quote into a realistic notional quantity.
	ScaleFactor decimal.Decimal
}

// Scanner enumerates every registered pair, quotes it on every venue and
// emits an opportunity when the cheapest and dearest venue differ.
type Scanner struct {
	cfg      ScannerConfig
	registry *Registry
	quoter   Quoter
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewScanner creates a Scanner.
func NewScanner(cfg ScannerConfig, registry *Registry, quoter Quoter, logger *slog.Logger) *Scanner {
	if cfg.UnitAmount.IsZero() {
		cfg.UnitAmount = decimal.NewFromInt(1)
	}
	if cfg.ScaleFactor.IsZero() {
		cfg.ScaleFactor = decimal.NewFromInt(1000)
	}
	return &Scanner{
		cfg:      cfg,
		registry: registry,
		quoter:   quoter,
		logger:   logger.With(slog.String("component", "scanner")),
		now:      time.Now,
		newID:    newOpportunityID,
	}
}

// Scan runs one pass over all pairs. Quotes are issued sequentially.
func (s *Scanner) Scan(ctx context.Context) []domain.Opportunity {
	venues := s.registry.Venues()
	var opps []domain.Opportunity

	for _, pair := range s.registry.Pairs() {
		if ctx.Err() != nil {
			return opps
		}
		opp, ok := s.scanPair(ctx, pair[0], pair[1], venues)
		if !ok {
			continue
		}
		s.logger.InfoContext(ctx, "opportunity detected",
			slog.String("id", opp.ID),
			slog.String("pair", opp.Pair()),
			slog.String("buy", opp.BuyVenue),
			slog.String("sell", opp.SellVenue),
			slog.String("spread_pct", opp.SpreadPct.StringFixed(4)),
		)
		opps = append(opps, opp)
	}
	return opps
}

type venueQuote struct {
	venue string
	price decimal.Decimal
}

func (s *Scanner) scanPair(ctx context.Context, base, quote domain.TokenAsset, venues []domain.ExchangeVenue) (domain.Opportunity, bool) {
	quoted := make([]venueQuote, 0, len(venues))
	for _, v := range venues {
		price, ok := s.quoter.Quote(ctx, v, base, quote, s.cfg.UnitAmount)
		if !ok {
			continue
		}
		quoted = append(quoted, venueQuote{venue: v.Name, price: price})
	}
	if len(quoted) < 2 {
		return domain.Opportunity{}, false
	}

	// Strict comparisons keep the earliest registered venue on ties.
	buy, sell := quoted[0], quoted[0]
	for _, q := range quoted[1:] {
		if q.price.LessThan(buy.price) {
			buy = q
		}
		if q.price.GreaterThan(sell.price) {
			sell = q
		}
	}
	if buy.venue == sell.venue || !sell.price.GreaterThan(buy.price) {
		return domain.Opportunity{}, false
	}
	if !buy.price.IsPositive() {
		s.logger.WarnContext(ctx, "non-positive buy price, pair skipped",
			slog.String("pair", domain.PairKey(base, quote)),
			slog.String("venue", buy.venue),
		)
		return domain.Opportunity{}, false
	}

	spread := sell.price.Sub(buy.price).Div(buy.price).Mul(hundred)
	return domain.Opportunity{
		ID:         s.newID(),
		Base:       base,
		Quote:      quote,
		BuyVenue:   buy.venue,
		SellVenue:  sell.venue,
		BuyPrice:   buy.price,
		SellPrice:  sell.price,
		SpreadPct:  spread,
		Quantity:   s.cfg.UnitAmount.Mul(s.cfg.ScaleFactor),
		DetectedAt: s.now().UTC(),
		Stage:      domain.StageCandidate,
		Verdict:    domain.VerdictPending,
	}, true
}

func newOpportunityID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
