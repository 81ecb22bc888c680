package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// QuoteCache implements domain.QuoteCache using one Redis hash per pair.
// Each field is a venue name and each value the JSON-encoded latest quote.
type QuoteCache struct {
	rdb  *redis.Client
	keys keyspace
	ttl  time.Duration
}

// NewQuoteCache creates a QuoteCache. A ttl of zero keeps quotes until
// overwritten.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.rdb, keys: c.keys, ttl: ttl}
}

// SetQuote stores q as the latest quote of its venue for its pair.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	pair := q.TokenIn + "/" + q.TokenOut
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", pair, err)
	}

	key := qc.keys.quotes(pair)
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, q.Venue, data)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", pair, err)
	}
	return nil
}

// GetQuotes returns the latest quote from every venue for pair, ordered by
// venue name. It returns domain.ErrNotFound when nothing is cached.
func (qc *QuoteCache) GetQuotes(ctx context.Context, pair string) ([]domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, qc.keys.quotes(pair)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get quotes %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}

	quotes := make([]domain.PriceQuote, 0, len(vals))
	for venue, raw := range vals {
		var q domain.PriceQuote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("redis: decode quote %s/%s: %w", pair, venue, err)
		}
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Venue < quotes[j].Venue })
	return quotes, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
