package postgres

import (
	"context"
	"fmt"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// OwnershipStore implements storage.OwnershipStore using PostgreSQL.
type OwnershipStore struct {
	pool *Pool
}

// NewOwnershipStore creates a new OwnershipStore.
func NewOwnershipStore(pool *Pool) *OwnershipStore {
	return &OwnershipStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OwnershipStore = (*OwnershipStore)(nil)

// GetOwner retrieves the current owner. Returns ErrNotFound if the token has
// no recorded owner.
func (s *OwnershipStore) GetOwner(ctx context.Context, tokenID string) (*domain.TokenOwnership, error) {
	query := `SELECT token_id, owner_id, updated_at FROM token_ownership WHERE token_id = $1`

	var o domain.TokenOwnership
	err := s.pool.QueryRow(ctx, query, tokenID).Scan(&o.TokenID, &o.OwnerID, &o.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token owner: %w", err)
	}
	return &o, nil
}

// Set records an owner outside settlement (seeding, imports).
func (s *OwnershipStore) Set(ctx context.Context, o *domain.TokenOwnership) error {
	query := `
		INSERT INTO token_ownership (token_id, owner_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO UPDATE SET owner_id = EXCLUDED.owner_id, updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, o.TokenID, o.OwnerID, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set token owner: %w", err)
	}
	return nil
}
