package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// ListingStore implements storage.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *Pool
}

// NewListingStore creates a new ListingStore.
func NewListingStore(pool *Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ListingStore = (*ListingStore)(nil)

// Insert adds a new listing. Returns ErrDuplicateKey if listing_id exists.
func (s *ListingStore) Insert(ctx context.Context, l *domain.Listing) error {
	shares, err := json.Marshal(l.ProposedShares)
	if err != nil {
		return fmt.Errorf("marshal proposed shares: %w", err)
	}

	query := `
		INSERT INTO listings (listing_id, token_id, seller_id, price, proposed_shares, is_active, is_sold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		l.ListingID,
		l.TokenID,
		l.SellerID,
		l.Price,
		shares,
		l.IsActive,
		l.IsSold,
		l.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// GetByID retrieves a listing. Returns ErrNotFound if not exists.
func (s *ListingStore) GetByID(ctx context.Context, listingID string) (*domain.Listing, error) {
	query := `
		SELECT listing_id, token_id, seller_id, price, proposed_shares, is_active, is_sold, created_at
		FROM listings
		WHERE listing_id = $1
	`

	var l domain.Listing
	var shares []byte
	err := s.pool.QueryRow(ctx, query, listingID).Scan(
		&l.ListingID,
		&l.TokenID,
		&l.SellerID,
		&l.Price,
		&shares,
		&l.IsActive,
		&l.IsSold,
		&l.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get listing by id: %w", err)
	}

	if len(shares) > 0 {
		if err := json.Unmarshal(shares, &l.ProposedShares); err != nil {
			return nil, fmt.Errorf("unmarshal proposed shares: %w", err)
		}
	}
	return &l, nil
}

// Deactivate flips is_active from true to false exactly once. Returns
// ErrConflict if the listing was already deactivated.
func (s *ListingStore) Deactivate(ctx context.Context, listingID string, sold bool) error {
	query := `
		UPDATE listings
		SET is_active = FALSE, is_sold = $2
		WHERE listing_id = $1 AND is_active = TRUE
	`

	tag, err := s.pool.Exec(ctx, query, listingID, sold)
	if err != nil {
		return fmt.Errorf("deactivate listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, listingID)
	}
	return nil
}

// Reactivate reverts is_active false to true after a failed settlement.
// Returns ErrConflict if the listing is already active.
func (s *ListingStore) Reactivate(ctx context.Context, listingID string) error {
	query := `
		UPDATE listings
		SET is_active = TRUE, is_sold = FALSE
		WHERE listing_id = $1 AND is_active = FALSE
	`

	tag, err := s.pool.Exec(ctx, query, listingID)
	if err != nil {
		return fmt.Errorf("reactivate listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missedWriteError(ctx, listingID)
	}
	return nil
}

func (s *ListingStore) missedWriteError(ctx context.Context, listingID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE listing_id = $1)`, listingID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check listing existence: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}
