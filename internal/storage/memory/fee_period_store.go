package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// FeePeriodStore is an in-memory implementation of storage.FeePeriodStore.
// CollectDelta spans the period snapshot, the ledger, and the revenue store;
// the snapshot CAS under this store's lock is the idempotency gate, and any
// downstream failure rolls the snapshot back.
type FeePeriodStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.FeePeriod // keyed by period_id
	ledger  *LedgerStore
	revenue *RevenueStore
}

// NewFeePeriodStore creates a new in-memory fee period store bound to the
// ledger and revenue stores it writes through.
func NewFeePeriodStore(ledger *LedgerStore, revenue *RevenueStore) *FeePeriodStore {
	return &FeePeriodStore{
		data:    make(map[string]*domain.FeePeriod),
		ledger:  ledger,
		revenue: revenue,
	}
}

// Compile-time interface check.
var _ storage.FeePeriodStore = (*FeePeriodStore)(nil)

// Insert adds a fee period. Returns ErrDuplicateKey if period_id exists.
func (s *FeePeriodStore) Insert(_ context.Context, p *domain.FeePeriod) error {
	if p == nil || p.PeriodID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PeriodID]; exists {
		return storage.ErrDuplicateKey
	}

	periodCopy := *p
	s.data[p.PeriodID] = &periodCopy
	return nil
}

// GetByID retrieves a period. Returns ErrNotFound if not exists.
func (s *FeePeriodStore) GetByID(_ context.Context, periodID string) (*domain.FeePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[periodID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	periodCopy := *p
	return &periodCopy, nil
}

// GetOpen retrieves all open periods, oldest first.
func (s *FeePeriodStore) GetOpen(_ context.Context) ([]*domain.FeePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeePeriod
	for _, p := range s.data {
		if p.Status == domain.FeePeriodOpen {
			periodCopy := *p
			result = append(result, &periodCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].WindowStart < result[j].WindowStart
	})

	return result, nil
}

// CollectDelta advances the snapshot and writes the accrual and revenue rows
// produced from the delta. The CAS on last_recorded_fees guarantees the same
// delta is never applied twice.
func (s *FeePeriodStore) CollectDelta(_ context.Context, periodID string, prevRecorded, newRecorded int64, accrual *domain.FeeLedgerEntry, revenue *domain.PlatformRevenue) error {
	if accrual == nil || revenue == nil || newRecorded < prevRecorded {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[periodID]
	if !exists {
		return storage.ErrNotFound
	}
	if p.Status != domain.FeePeriodOpen || p.LastRecordedFees != prevRecorded {
		return storage.ErrConflict
	}

	// Component locks follow the fixed sales, revenue, ledger, ownership
	// order shared with SettlementStore.
	s.revenue.mu.Lock()
	defer s.revenue.mu.Unlock()
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()

	if err := s.ledger.appendLocked(accrual); err != nil {
		return err
	}
	if err := s.revenue.insertLocked(revenue); err != nil {
		s.ledger.removeLocked(accrual.EntryID)
		return err
	}

	p.LastRecordedFees = newRecorded
	return nil
}

// Close moves a period from open to closed.
func (s *FeePeriodStore) Close(_ context.Context, periodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[periodID]
	if !exists {
		return storage.ErrNotFound
	}
	if p.Status != domain.FeePeriodOpen {
		return storage.ErrConflict
	}

	p.Status = domain.FeePeriodClosed
	return nil
}
