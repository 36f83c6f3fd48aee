package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// SaleStore is an in-memory implementation of storage.SaleStore.
type SaleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Sale // keyed by sale_id
}

// NewSaleStore creates a new in-memory sale store.
func NewSaleStore() *SaleStore {
	return &SaleStore{
		data: make(map[string]*domain.Sale),
	}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleStore)(nil)

// Insert adds a sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(_ context.Context, sale *domain.Sale) error {
	if sale == nil || sale.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(sale)
}

// insertLocked inserts without taking the mutex. Used by the settlement store.
func (s *SaleStore) insertLocked(sale *domain.Sale) error {
	if _, exists := s.data[sale.SaleID]; exists {
		return storage.ErrDuplicateKey
	}
	saleCopy := *sale
	s.data[sale.SaleID] = &saleCopy
	return nil
}

// GetByID retrieves a sale. Returns ErrNotFound if not exists.
func (s *SaleStore) GetByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.data[saleID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	saleCopy := *sale
	return &saleCopy, nil
}

// GetByToken retrieves all sales for a token, newest first.
func (s *SaleStore) GetByToken(_ context.Context, tokenID string) ([]*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sale
	for _, sale := range s.data {
		if sale.TokenID == tokenID {
			saleCopy := *sale
			result = append(result, &saleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	return result, nil
}

// GetUncollected retrieves completed sales with fee_collected = false.
func (s *SaleStore) GetUncollected(_ context.Context) ([]*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sale
	for _, sale := range s.data {
		if sale.Status == domain.SaleStatusCompleted && !sale.FeeCollected {
			saleCopy := *sale
			result = append(result, &saleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// MarkFeeCollected flips fee_collected exactly once. Returns ErrConflict if
// already collected.
func (s *SaleStore) MarkFeeCollected(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.data[saleID]
	if !exists {
		return storage.ErrNotFound
	}
	if sale.FeeCollected {
		return storage.ErrConflict
	}

	sale.FeeCollected = true
	return nil
}
