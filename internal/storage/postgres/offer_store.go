package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// OfferStore implements storage.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *Pool
}

// NewOfferStore creates a new OfferStore.
func NewOfferStore(pool *Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OfferStore = (*OfferStore)(nil)

const offerColumns = `offer_id, listing_id, buyer_id, wallet, amount, status, counter_amount, proof_sig, expires_at, created_at`

// Insert adds a new offer. Returns ErrDuplicateKey if offer_id exists.
func (s *OfferStore) Insert(ctx context.Context, o *domain.Offer) error {
	query := `
		INSERT INTO offers (offer_id, listing_id, buyer_id, wallet, amount, status, counter_amount, proof_sig, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		o.OfferID,
		o.ListingID,
		o.BuyerID,
		o.Wallet,
		o.Amount,
		o.Status,
		o.CounterAmount,
		o.ProofSig,
		o.ExpiresAt,
		o.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// GetByID retrieves an offer. Returns ErrNotFound if not exists.
func (s *OfferStore) GetByID(ctx context.Context, offerID string) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE offer_id = $1`

	var o domain.Offer
	err := s.pool.QueryRow(ctx, query, offerID).Scan(
		&o.OfferID,
		&o.ListingID,
		&o.BuyerID,
		&o.Wallet,
		&o.Amount,
		&o.Status,
		&o.CounterAmount,
		&o.ProofSig,
		&o.ExpiresAt,
		&o.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get offer by id: %w", err)
	}
	return &o, nil
}

// UpdateStatus moves an offer between statuses, recording the counter amount
// when one is supplied. Returns ErrConflict if the offer is not in the from
// status.
func (s *OfferStore) UpdateStatus(ctx context.Context, offerID, from, to string, counterAmount *int64) error {
	query := `
		UPDATE offers
		SET status = $3, counter_amount = COALESCE($4, counter_amount)
		WHERE offer_id = $1 AND status = $2
	`

	tag, err := s.pool.Exec(ctx, query, offerID, from, to, counterAmount)
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM offers WHERE offer_id = $1)`, offerID).Scan(&exists); err != nil {
			return fmt.Errorf("check offer existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// GetPendingByListing retrieves all pending offers on a listing, oldest first.
func (s *OfferStore) GetPendingByListing(ctx context.Context, listingID string) ([]*domain.Offer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE listing_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, offer_id ASC
	`

	rows, err := s.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("get pending offers by listing: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

// GetExpiredPending retrieves pending offers past their expiry.
func (s *OfferStore) GetExpiredPending(ctx context.Context, nowMS int64) ([]*domain.Offer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE status = 'pending' AND expires_at > 0 AND expires_at <= $1
		ORDER BY expires_at ASC, offer_id ASC
	`

	rows, err := s.pool.Query(ctx, query, nowMS)
	if err != nil {
		return nil, fmt.Errorf("get expired pending offers: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

func scanOffers(rows pgx.Rows) ([]*domain.Offer, error) {
	var offers []*domain.Offer

	for rows.Next() {
		var o domain.Offer

		err := rows.Scan(
			&o.OfferID,
			&o.ListingID,
			&o.BuyerID,
			&o.Wallet,
			&o.Amount,
			&o.Status,
			&o.CounterAmount,
			&o.ProofSig,
			&o.ExpiresAt,
			&o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}

		offers = append(offers, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer rows: %w", err)
	}

	return offers, nil
}

// OfferResponseStore implements storage.OfferResponseStore using PostgreSQL.
type OfferResponseStore struct {
	pool *Pool
}

// NewOfferResponseStore creates a new OfferResponseStore.
func NewOfferResponseStore(pool *Pool) *OfferResponseStore {
	return &OfferResponseStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OfferResponseStore = (*OfferResponseStore)(nil)

// Insert adds a response. Returns ErrDuplicateKey if response_id exists.
func (s *OfferResponseStore) Insert(ctx context.Context, r *domain.OfferResponse) error {
	query := `
		INSERT INTO offer_responses (response_id, offer_id, responder_id, type, counter_amount, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ResponseID,
		r.OfferID,
		r.ResponderID,
		r.Type,
		r.CounterAmount,
		r.Message,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert offer response: %w", err)
	}
	return nil
}

// GetByOffer retrieves all responses to an offer, oldest first.
func (s *OfferResponseStore) GetByOffer(ctx context.Context, offerID string) ([]*domain.OfferResponse, error) {
	query := `
		SELECT response_id, offer_id, responder_id, type, counter_amount, message, created_at
		FROM offer_responses
		WHERE offer_id = $1
		ORDER BY created_at ASC, response_id ASC
	`

	rows, err := s.pool.Query(ctx, query, offerID)
	if err != nil {
		return nil, fmt.Errorf("get responses by offer: %w", err)
	}
	defer rows.Close()

	var responses []*domain.OfferResponse
	for rows.Next() {
		var r domain.OfferResponse
		err := rows.Scan(
			&r.ResponseID,
			&r.OfferID,
			&r.ResponderID,
			&r.Type,
			&r.CounterAmount,
			&r.Message,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan offer response row: %w", err)
		}
		responses = append(responses, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer response rows: %w", err)
	}

	return responses, nil
}
