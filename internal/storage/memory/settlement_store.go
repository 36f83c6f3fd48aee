package memory

import (
	"context"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// SettlementStore is an in-memory implementation of storage.SettlementStore.
// It locks the sale, revenue, ledger, and ownership stores together so the
// four settlement writes appear as one atomic unit, and unwinds any applied
// write on a later failure.
type SettlementStore struct {
	mu        sync.Mutex // serializes settlements
	sales     *SaleStore
	revenue   *RevenueStore
	ledger    *LedgerStore
	ownership *OwnershipStore
}

// NewSettlementStore creates a settlement store over the given component
// stores.
func NewSettlementStore(sales *SaleStore, revenue *RevenueStore, ledger *LedgerStore, ownership *OwnershipStore) *SettlementStore {
	return &SettlementStore{
		sales:     sales,
		revenue:   revenue,
		ledger:    ledger,
		ownership: ownership,
	}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

// Record commits the sale, revenue, accrual, and ownership writes together.
func (s *SettlementStore) Record(_ context.Context, sale *domain.Sale, revenue *domain.PlatformRevenue, accrual *domain.FeeLedgerEntry, owner *domain.TokenOwnership) error {
	if sale == nil || revenue == nil || accrual == nil || owner == nil {
		return storage.ErrInvalidInput
	}
	if sale.PlatformFee+sale.SellerAmount != sale.SalePrice {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Component locks follow the fixed sales, revenue, ledger, ownership
	// order shared with FeePeriodStore.
	s.sales.mu.Lock()
	defer s.sales.mu.Unlock()
	s.revenue.mu.Lock()
	defer s.revenue.mu.Unlock()
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	s.ownership.mu.Lock()
	defer s.ownership.mu.Unlock()

	if err := s.sales.insertLocked(sale); err != nil {
		return err
	}
	if err := s.revenue.insertLocked(revenue); err != nil {
		delete(s.sales.data, sale.SaleID)
		return err
	}
	if err := s.ledger.appendLocked(accrual); err != nil {
		s.revenue.removeLocked(revenue.RevenueID)
		delete(s.sales.data, sale.SaleID)
		return err
	}

	s.ownership.setLocked(owner)
	return nil
}

// CollectSaleFee flips the sale's fee_collected flag and writes the accrual
// and revenue rows together. The flag advances only after both writes land,
// so a failed collection leaves the sale collectable.
func (s *SettlementStore) CollectSaleFee(_ context.Context, saleID string, accrual *domain.FeeLedgerEntry, revenue *domain.PlatformRevenue) error {
	if accrual == nil || revenue == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Component locks follow the fixed sales, revenue, ledger, ownership
	// order shared with FeePeriodStore.
	s.sales.mu.Lock()
	defer s.sales.mu.Unlock()
	s.revenue.mu.Lock()
	defer s.revenue.mu.Unlock()
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()

	sale, exists := s.sales.data[saleID]
	if !exists {
		return storage.ErrNotFound
	}
	if sale.FeeCollected {
		return storage.ErrConflict
	}

	if err := s.ledger.appendLocked(accrual); err != nil {
		return err
	}
	if err := s.revenue.insertLocked(revenue); err != nil {
		s.ledger.removeLocked(accrual.EntryID)
		return err
	}

	sale.FeeCollected = true
	return nil
}
