package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// BidStore implements storage.BidStore using PostgreSQL. The partial unique
// index on (auction_id) WHERE status = 'active' backs the one-active-bid
// invariant at the schema level.
type BidStore struct {
	pool *Pool
}

// NewBidStore creates a new BidStore.
func NewBidStore(pool *Pool) *BidStore {
	return &BidStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BidStore = (*BidStore)(nil)

const bidColumns = `bid_id, auction_id, bidder_id, wallet, amount, status, proof_sig, created_at`

// Insert adds a new bid. Returns ErrDuplicateKey if bid_id exists or a second
// active bid would violate the partial unique index.
func (s *BidStore) Insert(ctx context.Context, b *domain.Bid) error {
	query := `
		INSERT INTO bids (bid_id, auction_id, bidder_id, wallet, amount, status, proof_sig, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		b.BidID,
		b.AuctionID,
		b.BidderID,
		b.Wallet,
		b.Amount,
		b.Status,
		b.ProofSig,
		b.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

// GetByID retrieves a bid. Returns ErrNotFound if not exists.
func (s *BidStore) GetByID(ctx context.Context, bidID string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE bid_id = $1`

	var b domain.Bid
	err := s.pool.QueryRow(ctx, query, bidID).Scan(
		&b.BidID,
		&b.AuctionID,
		&b.BidderID,
		&b.Wallet,
		&b.Amount,
		&b.Status,
		&b.ProofSig,
		&b.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bid by id: %w", err)
	}
	return &b, nil
}

// GetActiveByAuction retrieves the single active bid for an auction.
func (s *BidStore) GetActiveByAuction(ctx context.Context, auctionID string) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 AND status = 'active'`

	var b domain.Bid
	err := s.pool.QueryRow(ctx, query, auctionID).Scan(
		&b.BidID,
		&b.AuctionID,
		&b.BidderID,
		&b.Wallet,
		&b.Amount,
		&b.Status,
		&b.ProofSig,
		&b.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active bid: %w", err)
	}
	return &b, nil
}

// GetByAuction retrieves all bids for an auction, newest first.
func (s *BidStore) GetByAuction(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC, bid_id DESC
	`

	rows, err := s.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids by auction: %w", err)
	}
	defer rows.Close()

	return scanBids(rows)
}

// UpdateStatus moves a bid between statuses. Returns ErrConflict if the bid
// is not in the from status.
func (s *BidStore) UpdateStatus(ctx context.Context, bidID, from, to string) error {
	query := `UPDATE bids SET status = $3 WHERE bid_id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, bidID, from, to)
	if err != nil {
		return fmt.Errorf("update bid status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bids WHERE bid_id = $1)`, bidID).Scan(&exists); err != nil {
			return fmt.Errorf("check bid existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func scanBids(rows pgx.Rows) ([]*domain.Bid, error) {
	var bids []*domain.Bid

	for rows.Next() {
		var b domain.Bid

		err := rows.Scan(
			&b.BidID,
			&b.AuctionID,
			&b.BidderID,
			&b.Wallet,
			&b.Amount,
			&b.Status,
			&b.ProofSig,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bid row: %w", err)
		}

		bids = append(bids, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bid rows: %w", err)
	}

	return bids, nil
}
