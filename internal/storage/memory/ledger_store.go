package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore. Entries
// are append-only; nothing here mutates an amount.
type LedgerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FeeLedgerEntry // keyed by entry_id
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		data: make(map[string]*domain.FeeLedgerEntry),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Append adds a ledger entry. Returns ErrDuplicateKey if entry_id exists.
func (s *LedgerStore) Append(_ context.Context, e *domain.FeeLedgerEntry) error {
	if e == nil || e.EntryID == "" || e.Amount <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(e)
}

// appendLocked appends without taking the mutex. Used by composite stores.
func (s *LedgerStore) appendLocked(e *domain.FeeLedgerEntry) error {
	if _, exists := s.data[e.EntryID]; exists {
		return storage.ErrDuplicateKey
	}
	entryCopy := *e
	s.data[e.EntryID] = &entryCopy
	return nil
}

// removeLocked deletes an entry. Only used by composite stores to roll back a
// partially applied atomic unit; application code never removes entries.
func (s *LedgerStore) removeLocked(entryID string) {
	delete(s.data, entryID)
}

// GetByToken retrieves all entries for a token, oldest first.
func (s *LedgerStore) GetByToken(_ context.Context, tokenID string) ([]*domain.FeeLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeeLedgerEntry
	for _, e := range s.data {
		if e.TokenID == tokenID {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}

	sortLedgerEntries(result)
	return result, nil
}

// GetByBeneficiary retrieves entries for one (token, wallet) pair, oldest
// first. Platform entries carry the platform treasury wallet.
func (s *LedgerStore) GetByBeneficiary(_ context.Context, tokenID, wallet string) ([]*domain.FeeLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeeLedgerEntry
	for _, e := range s.data {
		if e.TokenID == tokenID && e.BeneficiaryWallet == wallet {
			entryCopy := *e
			result = append(result, &entryCopy)
		}
	}

	sortLedgerEntries(result)
	return result, nil
}

// relinkUnversionedLocked points entries lacking a version reference at the
// given version. Amounts are untouched. Used by AgreementStore during
// rotation.
func (s *LedgerStore) relinkUnversionedLocked(tokenID, versionID string) int {
	n := 0
	for _, e := range s.data {
		if e.TokenID == tokenID && e.VersionID == "" {
			e.VersionID = versionID
			n++
		}
	}
	return n
}

func sortLedgerEntries(entries []*domain.FeeLedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt < entries[j].CreatedAt
		}
		return entries[i].EntryID < entries[j].EntryID
	})
}
