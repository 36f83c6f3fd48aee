package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// RefundStore implements storage.RefundStore using PostgreSQL. The unique
// constraint on bid_id keeps refund creation idempotent under the audit pass.
type RefundStore struct {
	pool *Pool
}

// NewRefundStore creates a new RefundStore.
func NewRefundStore(pool *Pool) *RefundStore {
	return &RefundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RefundStore = (*RefundStore)(nil)

const refundColumns = `refund_id, auction_id, bid_id, bidder_id, wallet, amount, status, tx_sig, created_at`

// Insert adds a refund in queued status. Returns ErrDuplicateKey if
// refund_id or bid_id exists.
func (s *RefundStore) Insert(ctx context.Context, r *domain.Refund) error {
	query := `
		INSERT INTO refunds (refund_id, auction_id, bid_id, bidder_id, wallet, amount, status, tx_sig, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RefundID,
		r.AuctionID,
		r.BidID,
		r.BidderID,
		r.Wallet,
		r.Amount,
		r.Status,
		r.TxSig,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// GetByBid retrieves the refund for a bid. Returns ErrNotFound if none.
func (s *RefundStore) GetByBid(ctx context.Context, bidID string) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE bid_id = $1`

	var r domain.Refund
	err := s.pool.QueryRow(ctx, query, bidID).Scan(
		&r.RefundID,
		&r.AuctionID,
		&r.BidID,
		&r.BidderID,
		&r.Wallet,
		&r.Amount,
		&r.Status,
		&r.TxSig,
		&r.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get refund by bid: %w", err)
	}
	return &r, nil
}

// GetByAuction retrieves all refunds for an auction, oldest first.
func (s *RefundStore) GetByAuction(ctx context.Context, auctionID string) ([]*domain.Refund, error) {
	query := `
		SELECT ` + refundColumns + `
		FROM refunds
		WHERE auction_id = $1
		ORDER BY created_at ASC, refund_id ASC
	`

	rows, err := s.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get refunds by auction: %w", err)
	}
	defer rows.Close()

	return scanRefunds(rows)
}

// GetQueued retrieves all queued refunds, oldest first.
func (s *RefundStore) GetQueued(ctx context.Context) ([]*domain.Refund, error) {
	query := `
		SELECT ` + refundColumns + `
		FROM refunds
		WHERE status = 'queued'
		ORDER BY created_at ASC, refund_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get queued refunds: %w", err)
	}
	defer rows.Close()

	return scanRefunds(rows)
}

// MarkSubmitted moves a refund from queued to submitted with the transfer
// signature.
func (s *RefundStore) MarkSubmitted(ctx context.Context, refundID, txSig string) error {
	query := `UPDATE refunds SET status = 'submitted', tx_sig = $2 WHERE refund_id = $1 AND status = 'queued'`

	tag, err := s.pool.Exec(ctx, query, refundID, txSig)
	if err != nil {
		return fmt.Errorf("mark refund submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, refundID)
	}
	return nil
}

// MarkConfirmed moves a refund from submitted to confirmed.
func (s *RefundStore) MarkConfirmed(ctx context.Context, refundID string) error {
	query := `UPDATE refunds SET status = 'confirmed' WHERE refund_id = $1 AND status = 'submitted'`

	tag, err := s.pool.Exec(ctx, query, refundID)
	if err != nil {
		return fmt.Errorf("mark refund confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, refundID)
	}
	return nil
}

// MarkFailed moves a refund from queued or submitted to failed.
func (s *RefundStore) MarkFailed(ctx context.Context, refundID string) error {
	query := `UPDATE refunds SET status = 'failed' WHERE refund_id = $1 AND status IN ('queued', 'submitted')`

	tag, err := s.pool.Exec(ctx, query, refundID)
	if err != nil {
		return fmt.Errorf("mark refund failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, refundID)
	}
	return nil
}

func (s *RefundStore) missedWriteError(ctx context.Context, refundID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM refunds WHERE refund_id = $1)`, refundID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check refund existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func scanRefunds(rows pgx.Rows) ([]*domain.Refund, error) {
	var refunds []*domain.Refund

	for rows.Next() {
		var r domain.Refund

		err := rows.Scan(
			&r.RefundID,
			&r.AuctionID,
			&r.BidID,
			&r.BidderID,
			&r.Wallet,
			&r.Amount,
			&r.Status,
			&r.TxSig,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}

		refunds = append(refunds, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}

	return refunds, nil
}
