package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// AgreementStore is an in-memory implementation of storage.AgreementStore.
// RotateVersion holds the write lock across the close-and-insert pair, so two
// concurrent rotations for the same token cannot both observe the same open
// version.
type AgreementStore struct {
	mu       sync.RWMutex
	versions map[string]*domain.RoyaltyAgreementVersion // keyed by version_id
	shares   map[string][]*domain.RoyaltyShare          // keyed by version_id
	changes  map[string]*domain.AgreementChange         // keyed by change_id
	ledger   *LedgerStore
}

// NewAgreementStore creates a new in-memory agreement store. ledger may be
// nil when no ledger entries need re-linking on rotation.
func NewAgreementStore(ledger *LedgerStore) *AgreementStore {
	return &AgreementStore{
		versions: make(map[string]*domain.RoyaltyAgreementVersion),
		shares:   make(map[string][]*domain.RoyaltyShare),
		changes:  make(map[string]*domain.AgreementChange),
		ledger:   ledger,
	}
}

// Compile-time interface check.
var _ storage.AgreementStore = (*AgreementStore)(nil)

// GetOpenVersion retrieves the token's open version.
func (s *AgreementStore) GetOpenVersion(_ context.Context, tokenID string) (*domain.RoyaltyAgreementVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.openVersionLocked(tokenID)
	if v == nil {
		return nil, storage.ErrNotFound
	}
	return copyVersion(v), nil
}

func (s *AgreementStore) openVersionLocked(tokenID string) *domain.RoyaltyAgreementVersion {
	for _, v := range s.versions {
		if v.TokenID == tokenID && v.EffectiveTo == nil {
			return v
		}
	}
	return nil
}

// GetVersions retrieves all versions for a token, oldest first.
func (s *AgreementStore) GetVersions(_ context.Context, tokenID string) ([]*domain.RoyaltyAgreementVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RoyaltyAgreementVersion
	for _, v := range s.versions {
		if v.TokenID == tokenID {
			result = append(result, copyVersion(v))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EffectiveFrom < result[j].EffectiveFrom
	})

	return result, nil
}

// GetSharesByVersion retrieves the share rows of one version.
func (s *AgreementStore) GetSharesByVersion(_ context.Context, versionID string) ([]*domain.RoyaltyShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.shares[versionID]
	result := make([]*domain.RoyaltyShare, 0, len(rows))
	for _, r := range rows {
		shareCopy := *r
		result = append(result, &shareCopy)
	}
	return result, nil
}

// RotateVersion closes the open version, installs the new one with its
// shares and change entry, and re-links versionless ledger entries, all under
// one lock. Returns ErrConflict when the new version id already exists, and
// ErrInvalidInput on malformed rows.
func (s *AgreementStore) RotateVersion(_ context.Context, v *domain.RoyaltyAgreementVersion, shares []*domain.RoyaltyShare, change *domain.AgreementChange) error {
	if v == nil || v.VersionID == "" || v.TokenID == "" || change == nil || change.ChangeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[v.VersionID]; exists {
		return storage.ErrConflict
	}
	if _, exists := s.changes[change.ChangeID]; exists {
		return storage.ErrDuplicateKey
	}

	if open := s.openVersionLocked(v.TokenID); open != nil {
		closedAt := v.EffectiveFrom
		open.EffectiveTo = &closedAt
	}

	s.versions[v.VersionID] = copyVersion(v)

	rows := make([]*domain.RoyaltyShare, 0, len(shares))
	for _, r := range shares {
		shareCopy := *r
		rows = append(rows, &shareCopy)
	}
	s.shares[v.VersionID] = rows

	changeCopy := *change
	s.changes[change.ChangeID] = &changeCopy

	// Entries accrued before the token had an agreement pick up the new
	// version.
	if s.ledger != nil {
		s.ledger.mu.Lock()
		s.ledger.relinkUnversionedLocked(v.TokenID, v.VersionID)
		s.ledger.mu.Unlock()
	}
	return nil
}

// GetChanges retrieves the change history for a token, oldest first.
func (s *AgreementStore) GetChanges(_ context.Context, tokenID string) ([]*domain.AgreementChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AgreementChange
	for _, c := range s.changes {
		if c.TokenID == tokenID {
			changeCopy := *c
			result = append(result, &changeCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ChangeID < result[j].ChangeID
	})

	return result, nil
}

func copyVersion(v *domain.RoyaltyAgreementVersion) *domain.RoyaltyAgreementVersion {
	versionCopy := *v
	if v.EffectiveTo != nil {
		t := *v.EffectiveTo
		versionCopy.EffectiveTo = &t
	}
	return &versionCopy
}
