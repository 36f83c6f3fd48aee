package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// OfferStore is an in-memory implementation of storage.OfferStore.
type OfferStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Offer // keyed by offer_id
}

// NewOfferStore creates a new in-memory offer store.
func NewOfferStore() *OfferStore {
	return &OfferStore{
		data: make(map[string]*domain.Offer),
	}
}

// Compile-time interface check.
var _ storage.OfferStore = (*OfferStore)(nil)

// Insert adds a new offer. Returns ErrDuplicateKey if offer_id exists.
func (s *OfferStore) Insert(_ context.Context, o *domain.Offer) error {
	if o == nil || o.OfferID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OfferID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[o.OfferID] = copyOffer(o)
	return nil
}

// GetByID retrieves an offer. Returns ErrNotFound if not exists.
func (s *OfferStore) GetByID(_ context.Context, offerID string) (*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[offerID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyOffer(o), nil
}

// UpdateStatus moves an offer between statuses. Returns ErrConflict if the
// offer is not in the from status.
func (s *OfferStore) UpdateStatus(_ context.Context, offerID, from, to string, counterAmount *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.data[offerID]
	if !exists {
		return storage.ErrNotFound
	}
	if o.Status != from {
		return storage.ErrConflict
	}

	o.Status = to
	if counterAmount != nil {
		v := *counterAmount
		o.CounterAmount = &v
	}
	return nil
}

// GetPendingByListing retrieves all pending offers on a listing, oldest first.
func (s *OfferStore) GetPendingByListing(_ context.Context, listingID string) ([]*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Offer
	for _, o := range s.data {
		if o.ListingID == listingID && o.Status == domain.OfferStatusPending {
			result = append(result, copyOffer(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// GetExpiredPending retrieves pending offers past their expiry.
func (s *OfferStore) GetExpiredPending(_ context.Context, nowMS int64) ([]*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Offer
	for _, o := range s.data {
		if o.Status == domain.OfferStatusPending && o.Expired(nowMS) {
			result = append(result, copyOffer(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt < result[j].ExpiresAt
	})

	return result, nil
}

func copyOffer(o *domain.Offer) *domain.Offer {
	offerCopy := *o
	if o.CounterAmount != nil {
		v := *o.CounterAmount
		offerCopy.CounterAmount = &v
	}
	return &offerCopy
}

// OfferResponseStore is an in-memory implementation of
// storage.OfferResponseStore.
type OfferResponseStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OfferResponse // keyed by response_id
}

// NewOfferResponseStore creates a new in-memory offer response store.
func NewOfferResponseStore() *OfferResponseStore {
	return &OfferResponseStore{
		data: make(map[string]*domain.OfferResponse),
	}
}

// Compile-time interface check.
var _ storage.OfferResponseStore = (*OfferResponseStore)(nil)

// Insert adds a response. Returns ErrDuplicateKey if response_id exists.
func (s *OfferResponseStore) Insert(_ context.Context, r *domain.OfferResponse) error {
	if r == nil || r.ResponseID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ResponseID]; exists {
		return storage.ErrDuplicateKey
	}

	respCopy := *r
	s.data[r.ResponseID] = &respCopy
	return nil
}

// GetByOffer retrieves all responses to an offer, oldest first.
func (s *OfferResponseStore) GetByOffer(_ context.Context, offerID string) ([]*domain.OfferResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OfferResponse
	for _, r := range s.data {
		if r.OfferID == offerID {
			respCopy := *r
			result = append(result, &respCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}
