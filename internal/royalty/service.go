// Package royalty manages the versioned revenue-share configuration per
// token. Updates rotate versions so that exactly one version is ever open.
package royalty

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// Service owns royalty agreement rotation and lookups.
type Service struct {
	agreements storage.AgreementStore
	logger     *zap.Logger
	now        func() int64 // unix ms
}

// NewService creates a royalty service.
func NewService(agreements storage.AgreementStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		agreements: agreements,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// UpdateShares validates the proposed split, closes the current open version,
// and opens a new one with the given share rows. The rotation records the
// change history entry and re-links any versionless ledger rows in the same
// unit. Concurrent updates for the same token serialize on the store's
// rotation guard; the loser gets a StateConflictError.
func (s *Service) UpdateShares(ctx context.Context, tokenID string, shares []domain.ShareInput, platformFeeBps int, actorID, reason string) (*domain.RoyaltyAgreementVersion, error) {
	if tokenID == "" {
		return nil, domain.Validationf("token id is required")
	}
	if platformFeeBps < 0 || platformFeeBps > domain.TotalBps {
		return nil, domain.Validationf("platform fee bps %d out of range [0, %d]", platformFeeBps, domain.TotalBps)
	}
	if len(shares) == 0 {
		return nil, domain.Validationf("at least one share is required")
	}

	seen := make(map[string]bool, len(shares))
	sum := 0
	for _, sh := range shares {
		if sh.EarnerWallet == "" {
			return nil, domain.Validationf("share earner wallet is required")
		}
		if sh.Bps <= 0 {
			return nil, domain.Validationf("share bps for %s must be positive, got %d", sh.EarnerWallet, sh.Bps)
		}
		if seen[sh.EarnerWallet] {
			return nil, domain.Validationf("duplicate share for wallet %s", sh.EarnerWallet)
		}
		seen[sh.EarnerWallet] = true
		sum += sh.Bps
	}

	expected := domain.TotalBps - platformFeeBps
	if sum != expected {
		return nil, domain.Validationf(
			"invalid bps total: shares sum to %d, expected %d (platform fee %d of %d)",
			sum, expected, platformFeeBps, domain.TotalBps)
	}

	nowMS := s.now()
	version := &domain.RoyaltyAgreementVersion{
		VersionID:      uuid.NewString(),
		TokenID:        tokenID,
		PlatformFeeBps: platformFeeBps,
		EffectiveFrom:  nowMS,
	}

	shareRows := make([]*domain.RoyaltyShare, len(shares))
	for i, sh := range shares {
		shareRows[i] = &domain.RoyaltyShare{
			ShareID:      uuid.NewString(),
			VersionID:    version.VersionID,
			EarnerWallet: sh.EarnerWallet,
			Bps:          sh.Bps,
		}
	}

	change := &domain.AgreementChange{
		ChangeID:  uuid.NewString(),
		TokenID:   tokenID,
		VersionID: version.VersionID,
		ActorID:   actorID,
		Reason:    reason,
		Summary:   summarize(shares, platformFeeBps),
		CreatedAt: nowMS,
	}

	if err := s.agreements.RotateVersion(ctx, version, shareRows, change); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, &domain.StateConflictError{Entity: "agreement", ID: tokenID}
		}
		return nil, fmt.Errorf("rotate agreement version for %s: %w", tokenID, err)
	}

	s.logger.Info("royalty shares updated",
		zap.String("token_id", tokenID),
		zap.String("version_id", version.VersionID),
		zap.Int("platform_fee_bps", platformFeeBps),
		zap.String("actor", actorID))

	return version, nil
}

// Current returns the open version and its shares for a token.
func (s *Service) Current(ctx context.Context, tokenID string) (*domain.RoyaltyAgreementVersion, []*domain.RoyaltyShare, error) {
	version, err := s.agreements.GetOpenVersion(ctx, tokenID)
	if err != nil {
		return nil, nil, err
	}
	shares, err := s.agreements.GetSharesByVersion(ctx, version.VersionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load shares for version %s: %w", version.VersionID, err)
	}
	return version, shares, nil
}

// History returns all versions for a token, oldest first.
func (s *Service) History(ctx context.Context, tokenID string) ([]*domain.RoyaltyAgreementVersion, error) {
	return s.agreements.GetVersions(ctx, tokenID)
}

// Changes returns the change history for a token, oldest first.
func (s *Service) Changes(ctx context.Context, tokenID string) ([]*domain.AgreementChange, error) {
	return s.agreements.GetChanges(ctx, tokenID)
}

func summarize(shares []domain.ShareInput, platformFeeBps int) string {
	parts := make([]string, 0, len(shares)+1)
	parts = append(parts, fmt.Sprintf("platform %d bps", platformFeeBps))

	sorted := make([]domain.ShareInput, len(shares))
	copy(sorted, shares)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EarnerWallet < sorted[j].EarnerWallet })
	for _, sh := range sorted {
		parts = append(parts, fmt.Sprintf("%s %d bps", sh.EarnerWallet, sh.Bps))
	}
	return strings.Join(parts, ", ")
}
