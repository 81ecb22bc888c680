package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// DispatchStore implements domain.DispatchStore using PostgreSQL.
type DispatchStore struct {
	pool *pgxpool.Pool
}

// NewDispatchStore creates a new DispatchStore.
func NewDispatchStore(pool *pgxpool.Pool) *DispatchStore {
	return &DispatchStore{pool: pool}
}

// Insert stores one dispatch record.
func (s *DispatchStore) Insert(ctx context.Context, rec domain.DispatchRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatches (opportunity_id, pair, buy_venue, sell_venue, buy_price, sell_price, spread_pct, net_profit, total_premium, simulated, tx_hash, status, error, detected_at, dispatched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.OpportunityID, rec.Pair, rec.BuyVenue, rec.SellVenue,
		rec.BuyPrice, rec.SellPrice, rec.SpreadPct, rec.NetProfit, rec.TotalPremium,
		rec.Simulated, nullable(rec.TxHash), rec.Status, nullable(rec.Error),
		rec.DetectedAt, rec.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert dispatch %s: %w", rec.OpportunityID, err)
	}
	return nil
}

// ListRecent returns dispatch records, newest first.
func (s *DispatchStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.DispatchRecord, error) {
	query, args := listQuery(`
		SELECT opportunity_id, pair, buy_venue, sell_venue, buy_price, sell_price, spread_pct, net_profit, total_premium, simulated, COALESCE(tx_hash, ''), status, COALESCE(error, ''), detected_at, dispatched_at
		FROM dispatches WHERE 1=1`, "dispatched_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list dispatches: %w", err)
	}
	defer rows.Close()

	var out []domain.DispatchRecord
	for rows.Next() {
		var r domain.DispatchRecord
		if err := rows.Scan(
			&r.OpportunityID, &r.Pair, &r.BuyVenue, &r.SellVenue,
			&r.BuyPrice, &r.SellPrice, &r.SpreadPct, &r.NetProfit, &r.TotalPremium,
			&r.Simulated, &r.TxHash, &r.Status, &r.Error,
			&r.DetectedAt, &r.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan dispatch: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list dispatches rows: %w", err)
	}
	return out, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ domain.DispatchStore = (*DispatchStore)(nil)
