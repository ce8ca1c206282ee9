package execution

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestStore(t *testing.T) *OrderStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewOrderStore(db)
	if err != nil {
		t.Fatalf("NewOrderStore returned error: %v", err)
	}
	return store
}

func sampleOrder() Order {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Order{
		ClientOrderID:  "BTC/USDT-buy-1700000000000-abcd1234",
		ExchangeID:     "ex-42",
		Symbol:         "BTC/USDT",
		Side:           SideBuy,
		Type:           "market",
		Quantity:       0.01,
		Status:         StatusFilled,
		FilledQuantity: 0.01,
		AvgFillPrice:   50010,
		Broker:         "paper",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestOrderStore_MissingKeyReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetByClientOrderID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByClientOrderID returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing key, got %+v", got)
	}
}

func TestOrderStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := sampleOrder()

	if err := store.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	got, err := store.GetByClientOrderID(ctx, want.ClientOrderID)
	if err != nil {
		t.Fatalf("GetByClientOrderID returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored order")
	}
	if got.ExchangeID != want.ExchangeID || got.Side != want.Side ||
		got.Status != want.Status || got.AvgFillPrice != want.AvgFillPrice {
		t.Fatalf("order mismatch: got %+v want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created_at mismatch: got %v want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestOrderStore_UpsertUpdatesMutableFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	order := sampleOrder()
	order.Status = StatusOpen
	order.FilledQuantity = 0
	if err := store.Upsert(ctx, order); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	order.Status = StatusFilled
	order.FilledQuantity = order.Quantity
	order.UpdatedAt = order.UpdatedAt.Add(time.Second)
	if err := store.Upsert(ctx, order); err != nil {
		t.Fatalf("second Upsert returned error: %v", err)
	}

	got, err := store.GetByClientOrderID(ctx, order.ClientOrderID)
	if err != nil {
		t.Fatalf("GetByClientOrderID returned error: %v", err)
	}
	if got.Status != StatusFilled || got.FilledQuantity != order.Quantity {
		t.Fatalf("expected updated row, got %+v", got)
	}

	orders, err := store.ListBySymbol(ctx, order.Symbol, 10)
	if err != nil {
		t.Fatalf("ListBySymbol returned error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("upsert must not duplicate rows, got %d", len(orders))
	}
}
