package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage"
	"whale-mirror/internal/storage/postgres"
)

func TestIntentStore_Postgres(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewIntentStore(pool)
	ctx := context.Background()

	intent := &domain.OrderIntent{
		IntentID:          "i1",
		SourceTradeID:     "t1",
		Whale:             "0xabc",
		MarketID:          "m1",
		Side:              domain.SideBuy,
		Size:              2000,
		Price:             0.42,
		WhaleQualityScore: 86.5,
		SizingRationale:   "tier cap binds",
		RiskBudgetUsed:    0.31,
		CreatedAt:         1000,
	}
	require.NoError(t, store.Insert(ctx, intent))

	t.Run("round trip", func(t *testing.T) {
		got, err := store.GetByID(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, domain.SideBuy, got.Side)
		assert.Equal(t, "tier cap binds", got.SizingRationale)
		assert.InDelta(t, 86.5, got.WhaleQualityScore, 1e-9)
	})

	t.Run("lookup by source trade", func(t *testing.T) {
		got, err := store.GetBySourceTradeID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "i1", got.IntentID)
	})

	t.Run("duplicate source trade rejected", func(t *testing.T) {
		dup := &domain.OrderIntent{IntentID: "i2", SourceTradeID: "t1", Side: domain.SideSell, CreatedAt: 2}
		err := store.Insert(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list since ordered", func(t *testing.T) {
		later := &domain.OrderIntent{IntentID: "i3", SourceTradeID: "t3", Side: domain.SideSell, CreatedAt: 5000}
		require.NoError(t, store.Insert(ctx, later))

		got, err := store.ListSince(ctx, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "i1", got[0].IntentID)
		assert.Equal(t, "i3", got[1].IntentID)
	})
}
