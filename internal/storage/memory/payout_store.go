package memory

import (
	"context"
	"sort"
	"sync"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// PayoutStore is an in-memory implementation of storage.PayoutStore.
type PayoutStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Payout // keyed by payout_id
}

// NewPayoutStore creates a new in-memory payout store.
func NewPayoutStore() *PayoutStore {
	return &PayoutStore{
		data: make(map[string]*domain.Payout),
	}
}

// Compile-time interface check.
var _ storage.PayoutStore = (*PayoutStore)(nil)

// Insert adds a payout row. Returns ErrDuplicateKey if payout_id exists.
func (s *PayoutStore) Insert(_ context.Context, p *domain.Payout) error {
	if p == nil || p.PayoutID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PayoutID]; exists {
		return storage.ErrDuplicateKey
	}

	payoutCopy := *p
	s.data[p.PayoutID] = &payoutCopy
	return nil
}

// GetByID retrieves a payout. Returns ErrNotFound if not exists.
func (s *PayoutStore) GetByID(_ context.Context, payoutID string) (*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[payoutID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	payoutCopy := *p
	return &payoutCopy, nil
}

// GetPendingFor retrieves pending payouts for a (token, wallet) pair.
func (s *PayoutStore) GetPendingFor(_ context.Context, tokenID, wallet string) ([]*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Payout
	for _, p := range s.data {
		if p.TokenID == tokenID && p.EarnerWallet == wallet && p.Status == domain.PayoutStatusPending {
			payoutCopy := *p
			result = append(result, &payoutCopy)
		}
	}

	sortPayouts(result)
	return result, nil
}

// GetPending retrieves all pending payouts, oldest first.
func (s *PayoutStore) GetPending(_ context.Context) ([]*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Payout
	for _, p := range s.data {
		if p.Status == domain.PayoutStatusPending {
			payoutCopy := *p
			result = append(result, &payoutCopy)
		}
	}

	sortPayouts(result)
	return result, nil
}

// SetTxSig records the submitted transfer signature on a pending payout.
func (s *PayoutStore) SetTxSig(_ context.Context, payoutID, txSig string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[payoutID]
	if !exists {
		return storage.ErrNotFound
	}
	if p.Status != domain.PayoutStatusPending {
		return storage.ErrConflict
	}

	p.TxSig = txSig
	return nil
}

// MarkConfirmed moves a payout from pending to confirmed.
func (s *PayoutStore) MarkConfirmed(_ context.Context, payoutID string) error {
	return s.transition(payoutID, domain.PayoutStatusConfirmed, "")
}

// MarkFailed moves a payout from pending to failed with a classified reason.
func (s *PayoutStore) MarkFailed(_ context.Context, payoutID, reason string) error {
	return s.transition(payoutID, domain.PayoutStatusFailed, reason)
}

func (s *PayoutStore) transition(payoutID, to, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[payoutID]
	if !exists {
		return storage.ErrNotFound
	}
	if p.Status != domain.PayoutStatusPending {
		return storage.ErrConflict
	}

	p.Status = to
	p.FailReason = reason
	return nil
}

func sortPayouts(payouts []*domain.Payout) {
	sort.Slice(payouts, func(i, j int) bool {
		if payouts[i].CreatedAt != payouts[j].CreatedAt {
			return payouts[i].CreatedAt < payouts[j].CreatedAt
		}
		return payouts[i].PayoutID < payouts[j].PayoutID
	})
}
