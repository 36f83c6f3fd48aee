package clickhouse

import (
	"context"
	"fmt"

	"solana-fraction-market/internal/domain"
)

// FeeSnapshotStore mirrors trading-fee observations into ClickHouse for
// analytics. The table is an insert-only MergeTree; the Postgres ledger
// stays authoritative and a lost snapshot is never re-derived.
type FeeSnapshotStore struct {
	conn *Conn
}

// NewFeeSnapshotStore creates a new FeeSnapshotStore.
func NewFeeSnapshotStore(conn *Conn) *FeeSnapshotStore {
	return &FeeSnapshotStore{conn: conn}
}

// InsertSnapshot records one observation.
func (s *FeeSnapshotStore) InsertSnapshot(ctx context.Context, snap *domain.FeeSnapshot) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fee_snapshots (token_id, period_id, lifetime_fees, delta, observed_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		snap.TokenID, snap.PeriodID,
		uint64(snap.LifetimeFees), uint64(snap.Delta), uint64(snap.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByToken retrieves all observations for a token, ordered by observation
// time ASC.
func (s *FeeSnapshotStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.FeeSnapshot, error) {
	query := `
		SELECT token_id, period_id, lifetime_fees, delta, observed_at
		FROM fee_snapshots
		WHERE token_id = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by token: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.FeeSnapshot
	for rows.Next() {
		var (
			snap                          domain.FeeSnapshot
			lifetimeFees, delta, observed uint64
		)
		if err := rows.Scan(&snap.TokenID, &snap.PeriodID, &lifetimeFees, &delta, &observed); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.LifetimeFees = int64(lifetimeFees)
		snap.Delta = int64(delta)
		snap.ObservedAt = int64(observed)
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snaps, nil
}

// TotalDeltaByPeriod sums the observed deltas for a fee period.
func (s *FeeSnapshotStore) TotalDeltaByPeriod(ctx context.Context, periodID string) (int64, error) {
	query := `SELECT sum(delta) FROM fee_snapshots WHERE period_id = ?`

	var total uint64
	if err := s.conn.QueryRow(ctx, query, periodID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum deltas by period: %w", err)
	}
	return int64(total), nil
}
