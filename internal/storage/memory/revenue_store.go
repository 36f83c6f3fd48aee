package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// RevenueStore is an in-memory implementation of storage.RevenueStore.
type RevenueStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PlatformRevenue // keyed by revenue_id
}

// NewRevenueStore creates a new in-memory platform revenue store.
func NewRevenueStore() *RevenueStore {
	return &RevenueStore{
		data: make(map[string]*domain.PlatformRevenue),
	}
}

// Compile-time interface check.
var _ storage.RevenueStore = (*RevenueStore)(nil)

// Insert adds a revenue row. Returns ErrDuplicateKey if revenue_id exists.
func (s *RevenueStore) Insert(_ context.Context, r *domain.PlatformRevenue) error {
	if r == nil || r.RevenueID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(r)
}

func (s *RevenueStore) insertLocked(r *domain.PlatformRevenue) error {
	if _, exists := s.data[r.RevenueID]; exists {
		return storage.ErrDuplicateKey
	}
	revCopy := *r
	s.data[r.RevenueID] = &revCopy
	return nil
}

func (s *RevenueStore) removeLocked(revenueID string) {
	delete(s.data, revenueID)
}

// GetByToken retrieves revenue rows for a token, newest first.
func (s *RevenueStore) GetByToken(_ context.Context, tokenID string) ([]*domain.PlatformRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PlatformRevenue
	for _, r := range s.data {
		if r.TokenID == tokenID {
			revCopy := *r
			result = append(result, &revCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].RevenueID > result[j].RevenueID
	})

	return result, nil
}

// GetBySource retrieves revenue rows for a source id.
func (s *RevenueStore) GetBySource(_ context.Context, sourceID string) ([]*domain.PlatformRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PlatformRevenue
	for _, r := range s.data {
		if r.SourceID == sourceID {
			revCopy := *r
			result = append(result, &revCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}
