// Package ledger computes owed balances from the append-only fee accrual
// history. Balances are never cached; every call replays the entries so the
// ledger stays the single source of truth even when a transfer's outcome was
// uncertain.
package ledger

import (
	"context"
	"fmt"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// Service reads and appends fee ledger entries.
type Service struct {
	store storage.LedgerStore
}

// NewService creates a ledger service.
func NewService(store storage.LedgerStore) *Service {
	return &Service{store: store}
}

// Owed recomputes the balance owed to a beneficiary on a token: the sum of
// accruals minus the sum of payouts across the full history.
func (s *Service) Owed(ctx context.Context, tokenID, wallet string) (int64, error) {
	entries, err := s.store.GetByBeneficiary(ctx, tokenID, wallet)
	if err != nil {
		return 0, fmt.Errorf("load ledger for %s/%s: %w", tokenID, wallet, err)
	}
	return Balance(entries), nil
}

// History returns every entry for a token, oldest first.
func (s *Service) History(ctx context.Context, tokenID string) ([]*domain.FeeLedgerEntry, error) {
	return s.store.GetByToken(ctx, tokenID)
}

// Append records a new entry.
func (s *Service) Append(ctx context.Context, e *domain.FeeLedgerEntry) error {
	return s.store.Append(ctx, e)
}

// Balance folds a slice of entries into earned minus paid.
func Balance(entries []*domain.FeeLedgerEntry) int64 {
	var owed int64
	for _, e := range entries {
		switch e.EntryType {
		case domain.LedgerEntryAccrual:
			owed += e.Amount
		case domain.LedgerEntryPayoutToEarner:
			owed -= e.Amount
		}
	}
	return owed
}
