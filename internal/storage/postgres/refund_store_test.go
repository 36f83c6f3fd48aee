package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

func testRefund(id, bidID string, createdAt int64) *domain.Refund {
	return &domain.Refund{
		RefundID:  id,
		AuctionID: "a1",
		BidID:     bidID,
		BidderID:  "alice",
		Wallet:    "wallet1",
		Amount:    1_200_000_000,
		Status:    domain.RefundStatusQueued,
		CreatedAt: createdAt,
	}
}

func TestRefundStore_OneRefundPerBid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRefundStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRefund("r1", "b1", 1_000)))

	// The audit pass replaying the same bid is a no-op at the schema level.
	err := store.Insert(ctx, testRefund("r2", "b1", 2_000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByBid(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RefundID)

	_, err = store.GetByBid(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefundStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRefundStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testRefund("r1", "b1", 1_000)))
	require.NoError(t, store.Insert(ctx, testRefund("r2", "b2", 2_000)))

	queued, err := store.GetQueued(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "r1", queued[0].RefundID)

	require.NoError(t, store.MarkSubmitted(ctx, "r1", "sig-1"))
	require.NoError(t, store.MarkConfirmed(ctx, "r1"))

	got, err := store.GetByBid(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusConfirmed, got.Status)
	assert.Equal(t, "sig-1", got.TxSig)

	// Confirmed is terminal.
	err = store.MarkFailed(ctx, "r1")
	assert.ErrorIs(t, err, storage.ErrConflict)
	err = store.MarkSubmitted(ctx, "r1", "sig-2")
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Queued refunds can fail directly without a submitted hop.
	require.NoError(t, store.MarkFailed(ctx, "r2"))

	queued, err = store.GetQueued(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)

	refunds, err := store.GetByAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
}
