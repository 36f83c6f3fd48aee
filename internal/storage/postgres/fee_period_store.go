package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// FeePeriodStore implements storage.FeePeriodStore using PostgreSQL.
// CollectDelta runs the snapshot advance and the rows it produced in one
// transaction; the conditional UPDATE on last_recorded_fees is the
// idempotency gate.
type FeePeriodStore struct {
	pool *Pool
}

// NewFeePeriodStore creates a new FeePeriodStore.
func NewFeePeriodStore(pool *Pool) *FeePeriodStore {
	return &FeePeriodStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeePeriodStore = (*FeePeriodStore)(nil)

const feePeriodColumns = `period_id, sale_id, token_id, last_recorded_fees, window_start, window_end, status, created_at`

// Insert adds a fee period. Returns ErrDuplicateKey if period_id exists.
func (s *FeePeriodStore) Insert(ctx context.Context, p *domain.FeePeriod) error {
	query := `
		INSERT INTO fee_periods (period_id, sale_id, token_id, last_recorded_fees, window_start, window_end, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PeriodID,
		p.SaleID,
		p.TokenID,
		p.LastRecordedFees,
		p.WindowStart,
		p.WindowEnd,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fee period: %w", err)
	}
	return nil
}

// GetByID retrieves a period. Returns ErrNotFound if not exists.
func (s *FeePeriodStore) GetByID(ctx context.Context, periodID string) (*domain.FeePeriod, error) {
	query := `SELECT ` + feePeriodColumns + ` FROM fee_periods WHERE period_id = $1`

	var p domain.FeePeriod
	err := s.pool.QueryRow(ctx, query, periodID).Scan(
		&p.PeriodID,
		&p.SaleID,
		&p.TokenID,
		&p.LastRecordedFees,
		&p.WindowStart,
		&p.WindowEnd,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fee period by id: %w", err)
	}
	return &p, nil
}

// GetOpen retrieves all open periods, oldest first.
func (s *FeePeriodStore) GetOpen(ctx context.Context) ([]*domain.FeePeriod, error) {
	query := `
		SELECT ` + feePeriodColumns + `
		FROM fee_periods
		WHERE status = 'open'
		ORDER BY window_start ASC, period_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get open fee periods: %w", err)
	}
	defer rows.Close()

	return scanFeePeriods(rows)
}

// CollectDelta advances the snapshot and writes the accrual and revenue rows
// produced from the delta, all in one transaction. Returns ErrConflict when
// the snapshot moved concurrently.
func (s *FeePeriodStore) CollectDelta(ctx context.Context, periodID string, prevRecorded, newRecorded int64, accrual *domain.FeeLedgerEntry, revenue *domain.PlatformRevenue) error {
	if accrual == nil || revenue == nil || newRecorded < prevRecorded {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE fee_periods
		 SET last_recorded_fees = $3
		 WHERE period_id = $1 AND last_recorded_fees = $2 AND status = 'open'`,
		periodID, prevRecorded, newRecorded,
	)
	if err != nil {
		return fmt.Errorf("advance fee period snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fee_periods WHERE period_id = $1)`, periodID).Scan(&exists); err != nil {
			return fmt.Errorf("check fee period existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO fee_ledger_entries (entry_id, token_id, entry_type, beneficiary_kind, beneficiary_wallet, amount, version_id, external_tx_sig, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		accrual.EntryID, accrual.TokenID, accrual.EntryType, accrual.BeneficiaryKind,
		accrual.BeneficiaryWallet, accrual.Amount, accrual.VersionID, accrual.ExternalTxSig, accrual.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append trading fee accrual: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO platform_revenue (revenue_id, revenue_type, amount, source_id, token_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		revenue.RevenueID, revenue.RevenueType, revenue.Amount, revenue.SourceID,
		revenue.TokenID, revenue.Status, revenue.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trading fee revenue: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close moves a period from open to closed.
func (s *FeePeriodStore) Close(ctx context.Context, periodID string) error {
	query := `UPDATE fee_periods SET status = 'closed' WHERE period_id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, periodID)
	if err != nil {
		return fmt.Errorf("close fee period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fee_periods WHERE period_id = $1)`, periodID).Scan(&exists); err != nil {
			return fmt.Errorf("check fee period existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func scanFeePeriods(rows pgx.Rows) ([]*domain.FeePeriod, error) {
	var periods []*domain.FeePeriod

	for rows.Next() {
		var p domain.FeePeriod

		err := rows.Scan(
			&p.PeriodID,
			&p.SaleID,
			&p.TokenID,
			&p.LastRecordedFees,
			&p.WindowStart,
			&p.WindowEnd,
			&p.Status,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fee period row: %w", err)
		}

		periods = append(periods, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee period rows: %w", err)
	}

	return periods, nil
}
