package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// PayoutStore implements storage.PayoutStore using PostgreSQL.
type PayoutStore struct {
	pool *Pool
}

// NewPayoutStore creates a new PayoutStore.
func NewPayoutStore(pool *Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PayoutStore = (*PayoutStore)(nil)

const payoutColumns = `payout_id, token_id, earner_wallet, amount, tx_sig, status, fail_reason, created_at`

// Insert adds a payout row. Returns ErrDuplicateKey if payout_id exists.
func (s *PayoutStore) Insert(ctx context.Context, p *domain.Payout) error {
	query := `
		INSERT INTO payouts (payout_id, token_id, earner_wallet, amount, tx_sig, status, fail_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PayoutID,
		p.TokenID,
		p.EarnerWallet,
		p.Amount,
		p.TxSig,
		p.Status,
		p.FailReason,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetByID retrieves a payout. Returns ErrNotFound if not exists.
func (s *PayoutStore) GetByID(ctx context.Context, payoutID string) (*domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE payout_id = $1`

	var p domain.Payout
	err := s.pool.QueryRow(ctx, query, payoutID).Scan(
		&p.PayoutID,
		&p.TokenID,
		&p.EarnerWallet,
		&p.Amount,
		&p.TxSig,
		&p.Status,
		&p.FailReason,
		&p.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get payout by id: %w", err)
	}
	return &p, nil
}

// GetPendingFor retrieves pending payouts for a (token, wallet) pair.
func (s *PayoutStore) GetPendingFor(ctx context.Context, tokenID, wallet string) ([]*domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE token_id = $1 AND earner_wallet = $2 AND status = 'pending'
		ORDER BY created_at ASC, payout_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, wallet)
	if err != nil {
		return nil, fmt.Errorf("get pending payouts for pair: %w", err)
	}
	defer rows.Close()

	return scanPayouts(rows)
}

// GetPending retrieves all pending payouts, oldest first.
func (s *PayoutStore) GetPending(ctx context.Context) ([]*domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE status = 'pending'
		ORDER BY created_at ASC, payout_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get pending payouts: %w", err)
	}
	defer rows.Close()

	return scanPayouts(rows)
}

// SetTxSig records the submitted transfer signature on a pending payout.
func (s *PayoutStore) SetTxSig(ctx context.Context, payoutID, txSig string) error {
	query := `UPDATE payouts SET tx_sig = $2 WHERE payout_id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, payoutID, txSig)
	if err != nil {
		return fmt.Errorf("set payout tx sig: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, payoutID)
	}
	return nil
}

// MarkConfirmed moves a payout from pending to confirmed.
func (s *PayoutStore) MarkConfirmed(ctx context.Context, payoutID string) error {
	return s.transition(ctx, payoutID, domain.PayoutStatusConfirmed, "")
}

// MarkFailed moves a payout from pending to failed with a classified reason.
func (s *PayoutStore) MarkFailed(ctx context.Context, payoutID, reason string) error {
	return s.transition(ctx, payoutID, domain.PayoutStatusFailed, reason)
}

func (s *PayoutStore) transition(ctx context.Context, payoutID, to, reason string) error {
	query := `UPDATE payouts SET status = $2, fail_reason = $3 WHERE payout_id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, payoutID, to, reason)
	if err != nil {
		return fmt.Errorf("transition payout status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, payoutID)
	}
	return nil
}

func (s *PayoutStore) missedWriteError(ctx context.Context, payoutID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE payout_id = $1)`, payoutID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check payout existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func scanPayouts(rows pgx.Rows) ([]*domain.Payout, error) {
	var payouts []*domain.Payout

	for rows.Next() {
		var p domain.Payout

		err := rows.Scan(
			&p.PayoutID,
			&p.TokenID,
			&p.EarnerWallet,
			&p.Amount,
			&p.TxSig,
			&p.Status,
			&p.FailReason,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payout row: %w", err)
		}

		payouts = append(payouts, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rows: %w", err)
	}

	return payouts, nil
}
