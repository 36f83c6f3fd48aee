package memory

import (
	"context"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// ListingStore is an in-memory implementation of storage.ListingStore.
type ListingStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Listing // keyed by listing_id
}

// NewListingStore creates a new in-memory listing store.
func NewListingStore() *ListingStore {
	return &ListingStore{
		data: make(map[string]*domain.Listing),
	}
}

// Compile-time interface check.
var _ storage.ListingStore = (*ListingStore)(nil)

// Insert adds a new listing. Returns ErrDuplicateKey if listing_id exists.
func (s *ListingStore) Insert(_ context.Context, l *domain.Listing) error {
	if l == nil || l.ListingID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[l.ListingID]; exists {
		return storage.ErrDuplicateKey
	}

	listingCopy := *l
	listingCopy.ProposedShares = append([]domain.ShareInput(nil), l.ProposedShares...)
	s.data[l.ListingID] = &listingCopy
	return nil
}

// GetByID retrieves a listing. Returns ErrNotFound if not exists.
func (s *ListingStore) GetByID(_ context.Context, listingID string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[listingID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	listingCopy := *l
	listingCopy.ProposedShares = append([]domain.ShareInput(nil), l.ProposedShares...)
	return &listingCopy, nil
}

// Deactivate flips is_active from true to false exactly once. Returns
// ErrConflict if the listing was already deactivated.
func (s *ListingStore) Deactivate(_ context.Context, listingID string, sold bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[listingID]
	if !exists {
		return storage.ErrNotFound
	}
	if !l.IsActive {
		return storage.ErrConflict
	}

	l.IsActive = false
	l.IsSold = sold
	return nil
}

// Reactivate reverts is_active false to true after a failed settlement.
// Returns ErrConflict if the listing is already active.
func (s *ListingStore) Reactivate(_ context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[listingID]
	if !exists {
		return storage.ErrNotFound
	}
	if l.IsActive {
		return storage.ErrConflict
	}

	l.IsActive = true
	l.IsSold = false
	return nil
}
