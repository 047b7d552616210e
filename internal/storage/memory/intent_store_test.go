package memory

import (
	"context"
	"errors"
	"testing"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage"
)

func TestIntentStore_InsertAndGet(t *testing.T) {
	store := NewIntentStore()
	ctx := context.Background()

	intent := &domain.OrderIntent{
		IntentID:      "i1",
		SourceTradeID: "t1",
		Whale:         "0xabc",
		MarketID:      "m1",
		Side:          domain.SideBuy,
		Size:          2000,
		Price:         0.42,
		CreatedAt:     1000,
	}
	if err := store.Insert(ctx, intent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Size != 2000 {
		t.Errorf("Size mismatch: got %f, want 2000", got.Size)
	}

	got, err = store.GetBySourceTradeID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetBySourceTradeID failed: %v", err)
	}
	if got.IntentID != "i1" {
		t.Errorf("IntentID mismatch: got %s", got.IntentID)
	}
}

func TestIntentStore_DuplicateSourceTrade(t *testing.T) {
	store := NewIntentStore()
	ctx := context.Background()

	first := &domain.OrderIntent{IntentID: "i1", SourceTradeID: "t1", CreatedAt: 1}
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// Same venue trade under a different intent id is still a duplicate:
	// one observed trade emits at most one intent.
	dup := &domain.OrderIntent{IntentID: "i2", SourceTradeID: "t1", CreatedAt: 2}
	if err := store.Insert(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestIntentStore_NotFound(t *testing.T) {
	store := NewIntentStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetBySourceTradeID(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntentStore_ListSince(t *testing.T) {
	store := NewIntentStore()
	ctx := context.Background()

	store.Insert(ctx, &domain.OrderIntent{IntentID: "i1", SourceTradeID: "t1", CreatedAt: 3000})
	store.Insert(ctx, &domain.OrderIntent{IntentID: "i2", SourceTradeID: "t2", CreatedAt: 1000})
	store.Insert(ctx, &domain.OrderIntent{IntentID: "i3", SourceTradeID: "t3", CreatedAt: 2000})

	got, err := store.ListSince(ctx, 1500)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(got) != 2 || got[0].IntentID != "i3" || got[1].IntentID != "i1" {
		t.Errorf("expected [i3 i1] ordered by CreatedAt, got %v", got)
	}
}
