package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// SnapshotStore implements domain.SnapshotSink using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `order_id, market_slug, asset_id, side, price, size,
	matched, matched_ts, status, source, created_at`

func scanSnapshotRows(rows pgx.Rows) ([]domain.TradeSnapshot, error) {
	var snaps []domain.TradeSnapshot
	for rows.Next() {
		var s domain.TradeSnapshot
		if err := rows.Scan(
			&s.OrderID, &s.MarketSlug, &s.AssetID, &s.Side,
			&s.Price, &s.Size, &s.Matched, &s.MatchedTS,
			&s.Status, &s.Source, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// InsertSnapshot writes one fill row. Duplicates on (order_id, matched_ts)
// are silently skipped via ON CONFLICT DO NOTHING so the same fill delivered
// twice by the feed produces a single row.
func (s *SnapshotStore) InsertSnapshot(ctx context.Context, snap domain.TradeSnapshot) error {
	const query = `
		INSERT INTO trade_snapshots (
			order_id, market_slug, asset_id, side, price, size,
			matched, matched_ts, status, source, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		) ON CONFLICT (order_id, matched_ts) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		snap.OrderID, snap.MarketSlug, snap.AssetID, string(snap.Side),
		snap.Price, snap.Size, snap.Matched, snap.MatchedTS,
		string(snap.Status), string(snap.Source), snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade snapshot %s: %w", snap.OrderID, err)
	}
	return nil
}

// InsertEvent writes one trade event row.
func (s *SnapshotStore) InsertEvent(ctx context.Context, ev domain.TradeEvent) error {
	const query = `
		INSERT INTO trade_events (code, state, market_slug, asset_id, side, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		string(ev.Code), string(ev.State), ev.MarketSlug, ev.AssetID,
		string(ev.Side), ev.Detail, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade event %s: %w", ev.Code, err)
	}
	return nil
}

// ListSnapshotsSince returns fills created at or after since, oldest first.
func (s *SnapshotStore) ListSnapshotsSince(ctx context.Context, since time.Time) ([]domain.TradeSnapshot, error) {
	query := `SELECT ` + snapshotSelectCols + `
		FROM trade_snapshots
		WHERE created_at >= $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots since %s: %w", since, err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots: %w", err)
	}
	return snaps, nil
}

// Compile-time interface check.
var _ domain.SnapshotSink = (*SnapshotStore)(nil)
