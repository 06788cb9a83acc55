// Package archive mirrors the trade ledger into PostgreSQL so the
// dashboard can serve trade history without reading the CSV. The CSV
// remains the system of record; the archive is best-effort and only
// enabled when DATABASE_URL is configured.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mgriffes/redscan/internal/ledger"
)

// Repository stores trade records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new trade archive repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the trades table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS trades (
			id            BIGSERIAL PRIMARY KEY,
			placed_at     TIMESTAMPTZ NOT NULL,
			symbol        TEXT        NOT NULL,
			action        TEXT        NOT NULL,
			quantity      INTEGER     NOT NULL,
			price         DOUBLE PRECISION,
			purchased_at  TIMESTAMPTZ NOT NULL,
			UNIQUE (symbol, action, purchased_at)
		)
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

// SaveTrades upserts ledger records into the archive. Records already
// present (same symbol, action and purchase timestamp) are left alone,
// so mirroring the full ledger after every pass is idempotent.
func (r *Repository) SaveTrades(ctx context.Context, records []ledger.Record) error {
	query := `
		INSERT INTO trades (placed_at, symbol, action, quantity, price, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, action, purchased_at) DO NOTHING
	`

	for _, rec := range records {
		var price *float64
		if rec.PriceKnown {
			p := rec.Price
			price = &p
		}

		if _, err := r.pool.Exec(ctx, query,
			rec.Time, rec.Symbol, rec.Action, rec.Quantity, price, rec.PurchasedAt,
		); err != nil {
			return fmt.Errorf("insert trade %s %s: %w", rec.Action, rec.Symbol, err)
		}
	}
	return nil
}

// RecentTrades returns the most recent trades, newest first.
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]ledger.Record, error) {
	query := `
		SELECT placed_at, symbol, action, quantity, price, purchased_at
		FROM trades
		ORDER BY placed_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var rec ledger.Record
		var price *float64
		var placed, purchased time.Time

		if err := rows.Scan(&placed, &rec.Symbol, &rec.Action, &rec.Quantity, &price, &purchased); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		rec.Time = placed
		rec.PurchasedAt = purchased
		if price != nil {
			rec.Price = *price
			rec.PriceKnown = true
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
