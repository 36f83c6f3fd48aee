package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// AuctionStore is an in-memory implementation of storage.AuctionStore.
type AuctionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Auction // keyed by auction_id
}

// NewAuctionStore creates a new in-memory auction store.
func NewAuctionStore() *AuctionStore {
	return &AuctionStore{
		data: make(map[string]*domain.Auction),
	}
}

// Compile-time interface check.
var _ storage.AuctionStore = (*AuctionStore)(nil)

// Insert adds a new auction. Returns ErrDuplicateKey if auction_id exists.
func (s *AuctionStore) Insert(_ context.Context, a *domain.Auction) error {
	if a == nil || a.AuctionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.AuctionID]; exists {
		return storage.ErrDuplicateKey
	}

	auctionCopy := *a
	s.data[a.AuctionID] = &auctionCopy
	return nil
}

// GetByID retrieves an auction. Returns ErrNotFound if not exists.
func (s *AuctionStore) GetByID(_ context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[auctionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	auctionCopy := *a
	return &auctionCopy, nil
}

// UpdateBid replaces the current bid triple only if the stored values still
// match (prevBid, prevBidder) and the auction is active.
func (s *AuctionStore) UpdateBid(_ context.Context, auctionID string, prevBid int64, prevBidder string, newBid int64, newBidder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[auctionID]
	if !exists {
		return storage.ErrNotFound
	}
	if a.Status != domain.AuctionStatusActive || a.CurrentBid != prevBid || a.CurrentBidder != prevBidder {
		return storage.ErrConflict
	}

	a.CurrentBid = newBid
	a.CurrentBidder = newBidder
	return nil
}

// TransitionStatus moves the auction between statuses, recording winner
// fields when the target is sold. Returns ErrConflict if not in from.
func (s *AuctionStore) TransitionStatus(_ context.Context, auctionID, from, to, winnerID string, winningBid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[auctionID]
	if !exists {
		return storage.ErrNotFound
	}
	if a.Status != from {
		return storage.ErrConflict
	}

	a.Status = to
	if to == domain.AuctionStatusSold {
		a.WinnerID = winnerID
		a.WinningBid = winningBid
	}
	if to == domain.AuctionStatusActive {
		// Compensating revert after a failed settlement.
		a.WinnerID = ""
		a.WinningBid = 0
	}
	return nil
}

// GetExpiredActive retrieves active auctions whose end time has passed.
func (s *AuctionStore) GetExpiredActive(_ context.Context, nowMS int64) ([]*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Auction
	for _, a := range s.data {
		if a.Status == domain.AuctionStatusActive && a.AuctionEnd <= nowMS {
			auctionCopy := *a
			result = append(result, &auctionCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AuctionEnd < result[j].AuctionEnd
	})

	return result, nil
}
