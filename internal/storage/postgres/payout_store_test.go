package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

func testPayout(id string, createdAt int64) *domain.Payout {
	return &domain.Payout{
		PayoutID:     id,
		TokenID:      "tok1",
		EarnerWallet: "earner-wallet",
		Amount:       500_000_000,
		Status:       domain.PayoutStatusPending,
		CreatedAt:    createdAt,
	}
}

func TestPayoutStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPayoutStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPayout("p1", 1_000)))

	pending, err := store.GetPendingFor(ctx, "tok1", "earner-wallet")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.SetTxSig(ctx, "p1", "sig-1"))
	require.NoError(t, store.MarkConfirmed(ctx, "p1"))

	p, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusConfirmed, p.Status)
	assert.Equal(t, "sig-1", p.TxSig)

	// Terminal rows reject further transitions.
	err = store.MarkFailed(ctx, "p1", domain.PayoutFailNetwork)
	assert.ErrorIs(t, err, storage.ErrConflict)
	err = store.SetTxSig(ctx, "p1", "sig-2")
	assert.ErrorIs(t, err, storage.ErrConflict)

	pending, err = store.GetPendingFor(ctx, "tok1", "earner-wallet")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPayoutStore_MarkFailedRecordsReason(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPayoutStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPayout("p1", 1_000)))
	require.NoError(t, store.MarkFailed(ctx, "p1", domain.PayoutFailRateLimited))

	p, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, p.Status)
	assert.Equal(t, domain.PayoutFailRateLimited, p.FailReason)

	err = store.MarkConfirmed(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPayoutStore_GetPending(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPayoutStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testPayout("p1", 1_000)))
	second := testPayout("p2", 2_000)
	second.EarnerWallet = "other-wallet"
	require.NoError(t, store.Insert(ctx, second))
	require.NoError(t, store.MarkConfirmed(ctx, "p1"))

	pending, err := store.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].PayoutID)
}
