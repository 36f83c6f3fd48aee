package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// RevenueStore implements storage.RevenueStore using PostgreSQL.
type RevenueStore struct {
	pool *Pool
}

// NewRevenueStore creates a new RevenueStore.
func NewRevenueStore(pool *Pool) *RevenueStore {
	return &RevenueStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RevenueStore = (*RevenueStore)(nil)

const revenueColumns = `revenue_id, revenue_type, amount, source_id, token_id, status, created_at`

// Insert adds a revenue row. Returns ErrDuplicateKey if revenue_id exists.
func (s *RevenueStore) Insert(ctx context.Context, r *domain.PlatformRevenue) error {
	query := `
		INSERT INTO platform_revenue (revenue_id, revenue_type, amount, source_id, token_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RevenueID,
		r.RevenueType,
		r.Amount,
		r.SourceID,
		r.TokenID,
		r.Status,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert platform revenue: %w", err)
	}
	return nil
}

// GetByToken retrieves revenue rows for a token, newest first.
func (s *RevenueStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.PlatformRevenue, error) {
	query := `
		SELECT ` + revenueColumns + `
		FROM platform_revenue
		WHERE token_id = $1
		ORDER BY created_at DESC, revenue_id DESC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get revenue by token: %w", err)
	}
	defer rows.Close()

	return scanRevenue(rows)
}

// GetBySource retrieves revenue rows for a source id, oldest first.
func (s *RevenueStore) GetBySource(ctx context.Context, sourceID string) ([]*domain.PlatformRevenue, error) {
	query := `
		SELECT ` + revenueColumns + `
		FROM platform_revenue
		WHERE source_id = $1
		ORDER BY created_at ASC, revenue_id ASC
	`

	rows, err := s.pool.Query(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get revenue by source: %w", err)
	}
	defer rows.Close()

	return scanRevenue(rows)
}

func scanRevenue(rows pgx.Rows) ([]*domain.PlatformRevenue, error) {
	var result []*domain.PlatformRevenue

	for rows.Next() {
		var r domain.PlatformRevenue

		err := rows.Scan(
			&r.RevenueID,
			&r.RevenueType,
			&r.Amount,
			&r.SourceID,
			&r.TokenID,
			&r.Status,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}

		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue rows: %w", err)
	}

	return result, nil
}
