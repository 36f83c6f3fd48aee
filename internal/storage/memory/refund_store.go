package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// RefundStore is an in-memory implementation of storage.RefundStore.
type RefundStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Refund // keyed by refund_id
}

// NewRefundStore creates a new in-memory refund store.
func NewRefundStore() *RefundStore {
	return &RefundStore{
		data: make(map[string]*domain.Refund),
	}
}

// Compile-time interface check.
var _ storage.RefundStore = (*RefundStore)(nil)

// Insert adds a refund in queued status. Returns ErrDuplicateKey if
// refund_id exists.
func (s *RefundStore) Insert(_ context.Context, r *domain.Refund) error {
	if r == nil || r.RefundID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RefundID]; exists {
		return storage.ErrDuplicateKey
	}

	refundCopy := *r
	s.data[r.RefundID] = &refundCopy
	return nil
}

// GetByBid retrieves the refund for a bid. Returns ErrNotFound if none.
func (s *RefundStore) GetByBid(_ context.Context, bidID string) (*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.data {
		if r.BidID == bidID {
			refundCopy := *r
			return &refundCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByAuction retrieves all refunds for an auction, oldest first.
func (s *RefundStore) GetByAuction(_ context.Context, auctionID string) ([]*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Refund
	for _, r := range s.data {
		if r.AuctionID == auctionID {
			refundCopy := *r
			result = append(result, &refundCopy)
		}
	}

	sortRefunds(result)
	return result, nil
}

// GetQueued retrieves all queued refunds, oldest first.
func (s *RefundStore) GetQueued(_ context.Context) ([]*domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Refund
	for _, r := range s.data {
		if r.Status == domain.RefundStatusQueued {
			refundCopy := *r
			result = append(result, &refundCopy)
		}
	}

	sortRefunds(result)
	return result, nil
}

// MarkSubmitted moves a refund from queued to submitted with the transfer
// signature.
func (s *RefundStore) MarkSubmitted(_ context.Context, refundID, txSig string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[refundID]
	if !exists {
		return storage.ErrNotFound
	}
	if r.Status != domain.RefundStatusQueued {
		return storage.ErrConflict
	}

	r.Status = domain.RefundStatusSubmitted
	r.TxSig = txSig
	return nil
}

// MarkConfirmed moves a refund from submitted to confirmed.
func (s *RefundStore) MarkConfirmed(_ context.Context, refundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[refundID]
	if !exists {
		return storage.ErrNotFound
	}
	if r.Status != domain.RefundStatusSubmitted {
		return storage.ErrConflict
	}

	r.Status = domain.RefundStatusConfirmed
	return nil
}

// MarkFailed moves a refund from queued or submitted to failed.
func (s *RefundStore) MarkFailed(_ context.Context, refundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[refundID]
	if !exists {
		return storage.ErrNotFound
	}
	if r.Status == domain.RefundStatusConfirmed || r.Status == domain.RefundStatusFailed {
		return storage.ErrConflict
	}

	r.Status = domain.RefundStatusFailed
	return nil
}

func sortRefunds(refunds []*domain.Refund) {
	sort.Slice(refunds, func(i, j int) bool {
		if refunds[i].CreatedAt != refunds[j].CreatedAt {
			return refunds[i].CreatedAt < refunds[j].CreatedAt
		}
		return refunds[i].RefundID < refunds[j].RefundID
	})
}
