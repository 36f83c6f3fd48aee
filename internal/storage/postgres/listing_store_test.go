package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

func TestListingStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewListingStore(pool)
	ctx := context.Background()

	l := &domain.Listing{
		ListingID: "l1",
		TokenID:   "tok1",
		SellerID:  "seller1",
		Price:     2_000_000_000,
		ProposedShares: []domain.ShareInput{
			{EarnerWallet: "walletX", Bps: 7000},
			{EarnerWallet: "walletY", Bps: 2000},
		},
		IsActive:  true,
		CreatedAt: 1_000,
	}
	require.NoError(t, store.Insert(ctx, l))

	retrieved, err := store.GetByID(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000), retrieved.Price)
	assert.True(t, retrieved.IsActive)
	require.Len(t, retrieved.ProposedShares, 2)
	assert.Equal(t, "walletX", retrieved.ProposedShares[0].EarnerWallet)

	err = store.Insert(ctx, l)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListingStore_DeactivateReactivate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewListingStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.Listing{
		ListingID: "l1", TokenID: "tok1", SellerID: "seller1",
		Price: 1_000_000_000, IsActive: true, CreatedAt: 1_000,
	}))

	require.NoError(t, store.Deactivate(ctx, "l1", true))

	l, err := store.GetByID(ctx, "l1")
	require.NoError(t, err)
	assert.False(t, l.IsActive)
	assert.True(t, l.IsSold)

	// The second claimant loses.
	err = store.Deactivate(ctx, "l1", true)
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, store.Reactivate(ctx, "l1"))
	l, err = store.GetByID(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, l.IsActive)
	assert.False(t, l.IsSold)

	err = store.Reactivate(ctx, "l1")
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = store.Deactivate(ctx, "missing", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
