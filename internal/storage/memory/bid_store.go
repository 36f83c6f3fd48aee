package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// BidStore is an in-memory implementation of storage.BidStore.
type BidStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bid // keyed by bid_id
}

// NewBidStore creates a new in-memory bid store.
func NewBidStore() *BidStore {
	return &BidStore{
		data: make(map[string]*domain.Bid),
	}
}

// Compile-time interface check.
var _ storage.BidStore = (*BidStore)(nil)

// Insert adds a new bid. Returns ErrDuplicateKey if bid_id exists.
func (s *BidStore) Insert(_ context.Context, b *domain.Bid) error {
	if b == nil || b.BidID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[b.BidID]; exists {
		return storage.ErrDuplicateKey
	}

	bidCopy := *b
	s.data[b.BidID] = &bidCopy
	return nil
}

// GetByID retrieves a bid. Returns ErrNotFound if not exists.
func (s *BidStore) GetByID(_ context.Context, bidID string) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.data[bidID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	bidCopy := *b
	return &bidCopy, nil
}

// GetActiveByAuction retrieves the single active bid for an auction.
func (s *BidStore) GetActiveByAuction(_ context.Context, auctionID string) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.data {
		if b.AuctionID == auctionID && b.Status == domain.BidStatusActive {
			bidCopy := *b
			return &bidCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByAuction retrieves all bids for an auction, newest first.
func (s *BidStore) GetByAuction(_ context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bid
	for _, b := range s.data {
		if b.AuctionID == auctionID {
			bidCopy := *b
			result = append(result, &bidCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].BidID > result[j].BidID
	})

	return result, nil
}

// UpdateStatus moves a bid between statuses. Returns ErrConflict if the bid
// is not in the from status.
func (s *BidStore) UpdateStatus(_ context.Context, bidID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.data[bidID]
	if !exists {
		return storage.ErrNotFound
	}
	if b.Status != from {
		return storage.ErrConflict
	}

	b.Status = to
	return nil
}
