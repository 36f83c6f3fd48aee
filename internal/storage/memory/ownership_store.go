package memory

import (
	"context"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// OwnershipStore is an in-memory implementation of storage.OwnershipStore.
type OwnershipStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenOwnership // keyed by token_id
}

// NewOwnershipStore creates a new in-memory ownership store.
func NewOwnershipStore() *OwnershipStore {
	return &OwnershipStore{
		data: make(map[string]*domain.TokenOwnership),
	}
}

// Compile-time interface check.
var _ storage.OwnershipStore = (*OwnershipStore)(nil)

// GetOwner retrieves the current owner. Returns ErrNotFound if none recorded.
func (s *OwnershipStore) GetOwner(_ context.Context, tokenID string) (*domain.TokenOwnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	ownerCopy := *o
	return &ownerCopy, nil
}

// Set records an owner.
func (s *OwnershipStore) Set(_ context.Context, o *domain.TokenOwnership) error {
	if o == nil || o.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(o)
	return nil
}

func (s *OwnershipStore) setLocked(o *domain.TokenOwnership) {
	ownerCopy := *o
	s.data[o.TokenID] = &ownerCopy
}

func (s *OwnershipStore) getLocked(tokenID string) *domain.TokenOwnership {
	return s.data[tokenID]
}
