package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// AuctionStore implements storage.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *Pool
}

// NewAuctionStore creates a new AuctionStore.
func NewAuctionStore(pool *Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuctionStore = (*AuctionStore)(nil)

const auctionColumns = `
	auction_id, token_id, seller_id, starting_bid, current_bid, current_bidder,
	reserve_price, status, auction_start, auction_end, winner_id, winning_bid, created_at
`

// Insert adds a new auction. Returns ErrDuplicateKey if auction_id exists.
func (s *AuctionStore) Insert(ctx context.Context, a *domain.Auction) error {
	query := `
		INSERT INTO auctions (
			auction_id, token_id, seller_id, starting_bid, current_bid, current_bidder,
			reserve_price, status, auction_start, auction_end, winner_id, winning_bid, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		a.AuctionID,
		a.TokenID,
		a.SellerID,
		a.StartingBid,
		a.CurrentBid,
		a.CurrentBidder,
		a.ReservePrice,
		a.Status,
		a.AuctionStart,
		a.AuctionEnd,
		a.WinnerID,
		a.WinningBid,
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

// GetByID retrieves an auction. Returns ErrNotFound if not exists.
func (s *AuctionStore) GetByID(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE auction_id = $1`

	var a domain.Auction
	err := s.pool.QueryRow(ctx, query, auctionID).Scan(
		&a.AuctionID,
		&a.TokenID,
		&a.SellerID,
		&a.StartingBid,
		&a.CurrentBid,
		&a.CurrentBidder,
		&a.ReservePrice,
		&a.Status,
		&a.AuctionStart,
		&a.AuctionEnd,
		&a.WinnerID,
		&a.WinningBid,
		&a.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get auction by id: %w", err)
	}
	return &a, nil
}

// UpdateBid replaces the current-bid pair only when the stored values still
// match and the auction is active. Returns ErrConflict when a concurrent
// bidder won the race.
func (s *AuctionStore) UpdateBid(ctx context.Context, auctionID string, prevBid int64, prevBidder string, newBid int64, newBidder string) error {
	query := `
		UPDATE auctions
		SET current_bid = $4, current_bidder = $5
		WHERE auction_id = $1 AND current_bid = $2 AND current_bidder = $3 AND status = 'active'
	`

	tag, err := s.pool.Exec(ctx, query, auctionID, prevBid, prevBidder, newBid, newBidder)
	if err != nil {
		return fmt.Errorf("update auction bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, auctionID)
	}
	return nil
}

// TransitionStatus moves the auction between statuses, recording or clearing
// the winner fields. Returns ErrConflict if the auction is not in the from
// status.
func (s *AuctionStore) TransitionStatus(ctx context.Context, auctionID, from, to, winnerID string, winningBid int64) error {
	query := `
		UPDATE auctions
		SET status = $3, winner_id = $4, winning_bid = $5
		WHERE auction_id = $1 AND status = $2
	`

	tag, err := s.pool.Exec(ctx, query, auctionID, from, to, winnerID, winningBid)
	if err != nil {
		return fmt.Errorf("transition auction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, auctionID)
	}
	return nil
}

// GetExpiredActive retrieves active auctions whose end time has passed,
// oldest expiry first.
func (s *AuctionStore) GetExpiredActive(ctx context.Context, nowMS int64) ([]*domain.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = 'active' AND auction_end <= $1
		ORDER BY auction_end ASC, auction_id ASC
	`

	rows, err := s.pool.Query(ctx, query, nowMS)
	if err != nil {
		return nil, fmt.Errorf("get expired active auctions: %w", err)
	}
	defer rows.Close()

	return scanAuctions(rows)
}

// missedWriteError distinguishes a missing row from a lost conditional write.
func (s *AuctionStore) missedWriteError(ctx context.Context, auctionID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE auction_id = $1)`, auctionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check auction existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func scanAuctions(rows pgx.Rows) ([]*domain.Auction, error) {
	var auctions []*domain.Auction

	for rows.Next() {
		var a domain.Auction

		err := rows.Scan(
			&a.AuctionID,
			&a.TokenID,
			&a.SellerID,
			&a.StartingBid,
			&a.CurrentBid,
			&a.CurrentBidder,
			&a.ReservePrice,
			&a.Status,
			&a.AuctionStart,
			&a.AuctionEnd,
			&a.WinnerID,
			&a.WinningBid,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan auction row: %w", err)
		}

		auctions = append(auctions, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction rows: %w", err)
	}

	return auctions, nil
}
