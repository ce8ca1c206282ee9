package execution

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/strategy"
)

type fakeBroker struct {
	calls int
	fail  bool
}

func (b *fakeBroker) Name() string { return "fake" }

func (b *fakeBroker) Execute(_ context.Context, order Order, ticker exchange.Ticker) (Order, error) {
	b.calls++
	if b.fail {
		return order, errors.New("交易所拒绝")
	}
	order.ExchangeID = "ex-1"
	order.Status = StatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = ticker.Last
	order.Broker = b.Name()
	return order, nil
}

func testExecutionConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		Mode:           config.ModePaper,
		SlippageBps:    5,
		MinNotionalUsd: 10,
		MinQuantity:    0.0001,
	}
}

func newTestManager(t *testing.T, broker Broker) (*Manager, *OrderStore) {
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

	mgr, err := NewManager(testExecutionConfig(), 1000, broker, store, nil, nil)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return mgr, store
}

func buySignal(confidence float64) strategy.Signal {
	return strategy.Signal{
		Symbol:      "BTC/USDT",
		Action:      strategy.ActionBuy,
		Confidence:  confidence,
		Reason:      "test",
		GeneratedAt: time.Now().UTC(),
	}
}

func testTicker() exchange.Ticker {
	return exchange.Ticker{Symbol: "BTC/USDT", Bid: 49990, Ask: 50010, Last: 50000}
}

func TestSubmitSignal_HoldIsNoOp(t *testing.T) {
	broker := &fakeBroker{}
	mgr, store := newTestManager(t, broker)

	signal := buySignal(0.8)
	signal.Action = strategy.ActionHold

	order, err := mgr.SubmitSignal(context.Background(), SubmitRequest{
		Symbol: "BTC/USDT",
		Signal: signal,
		Ticker: testTicker(),
	})
	if err != nil {
		t.Fatalf("SubmitSignal returned error: %v", err)
	}
	if order != nil {
		t.Fatalf("HOLD must not produce an order, got %+v", order)
	}
	if broker.calls != 0 {
		t.Fatalf("HOLD must not reach the broker, got %d calls", broker.calls)
	}

	orders, err := store.ListBySymbol(context.Background(), "BTC/USDT", 10)
	if err != nil {
		t.Fatalf("ListBySymbol returned error: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("HOLD must not persist anything, got %d rows", len(orders))
	}
}

func TestSubmitSignal_SizesByConfidence(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBroker{})

	order, err := mgr.SubmitSignal(context.Background(), SubmitRequest{
		Symbol: "BTC/USDT",
		Signal: buySignal(0.5),
		Ticker: testTicker(),
	})
	if err != nil {
		t.Fatalf("SubmitSignal returned error: %v", err)
	}

	// 1000 USD 上限 × 0.5 置信度 = 500 USD，价格 50000 → 0.01。
	if math.Abs(order.Quantity-0.01) > 1e-9 {
		t.Fatalf("expected quantity 0.01, got %f", order.Quantity)
	}
	if order.Side != SideBuy {
		t.Fatalf("expected buy side, got %s", order.Side)
	}
	if order.Status != StatusFilled {
		t.Fatalf("expected filled status from fake broker, got %s", order.Status)
	}
}

func TestSubmitSignal_FloorsAtMinNotional(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBroker{})

	// 置信度0 → 名义价值落到最小值10 USD。
	order, err := mgr.SubmitSignal(context.Background(), SubmitRequest{
		Symbol: "BTC/USDT",
		Signal: buySignal(0),
		Ticker: testTicker(),
	})
	if err != nil {
		t.Fatalf("SubmitSignal returned error: %v", err)
	}

	want := math.Max(0.0001, 10.0/50000)
	if math.Abs(order.Quantity-want) > 1e-12 {
		t.Fatalf("expected quantity %f, got %f", want, order.Quantity)
	}
}

func TestSubmitSignal_ConfidenceClamped(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBroker{})

	order, err := mgr.SubmitSignal(context.Background(), SubmitRequest{
		Symbol: "BTC/USDT",
		Signal: buySignal(3.0),
		Ticker: testTicker(),
	})
	if err != nil {
		t.Fatalf("SubmitSignal returned error: %v", err)
	}
	// 置信度被压到1 → 1000 USD / 50000 = 0.02。
	if math.Abs(order.Quantity-0.02) > 1e-9 {
		t.Fatalf("expected quantity 0.02, got %f", order.Quantity)
	}
}

func TestSubmitSignal_IdempotentByClientOrderID(t *testing.T) {
	broker := &fakeBroker{}
	mgr, store := newTestManager(t, broker)
	ctx := context.Background()

	req := SubmitRequest{
		Symbol:         "BTC/USDT",
		Signal:         buySignal(0.5),
		Ticker:         testTicker(),
		IdempotencyKey: "BTC/USDT-buy-1700000000000-abcd1234",
	}

	first, err := mgr.SubmitSignal(ctx, req)
	if err != nil {
		t.Fatalf("first SubmitSignal returned error: %v", err)
	}
	second, err := mgr.SubmitSignal(ctx, req)
	if err != nil {
		t.Fatalf("second SubmitSignal returned error: %v", err)
	}

	if broker.calls != 1 {
		t.Fatalf("duplicate key must not reach the broker twice, got %d calls", broker.calls)
	}
	if second.ClientOrderID != first.ClientOrderID || second.ExchangeID != first.ExchangeID {
		t.Fatalf("expected identical order back, got %+v vs %+v", first, second)
	}

	orders, err := store.ListBySymbol(ctx, "BTC/USDT", 10)
	if err != nil {
		t.Fatalf("ListBySymbol returned error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected single persisted row, got %d", len(orders))
	}
}

func TestSubmitSignal_GeneratedKeyShape(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeBroker{})

	order, err := mgr.SubmitSignal(context.Background(), SubmitRequest{
		Symbol: "BTC/USDT",
		Signal: buySignal(0.5),
		Ticker: testTicker(),
	})
	if err != nil {
		t.Fatalf("SubmitSignal returned error: %v", err)
	}

	parts := strings.Split(order.ClientOrderID, "-")
	if len(parts) < 3 {
		t.Fatalf("unexpected key shape: %s", order.ClientOrderID)
	}
	if !strings.HasPrefix(order.ClientOrderID, "BTC/USDT-buy-") {
		t.Fatalf("key must embed symbol and side, got %s", order.ClientOrderID)
	}
	suffix := parts[len(parts)-1]
	if len(suffix) != 8 {
		t.Fatalf("expected 8-char hex suffix, got %q", suffix)
	}
}

func TestSubmitSignal_BrokerFailureRecordsRejectedOrder(t *testing.T) {
	mgr, store := newTestManager(t, &fakeBroker{fail: true})
	ctx := context.Background()

	req := SubmitRequest{
		Symbol:         "BTC/USDT",
		Signal:         buySignal(0.5),
		Ticker:         testTicker(),
		IdempotencyKey: "BTC/USDT-buy-1700000000000-deadbeef",
	}

	if _, err := mgr.SubmitSignal(ctx, req); err == nil {
		t.Fatal("expected error from failing broker")
	}

	stored, err := store.GetByClientOrderID(ctx, req.IdempotencyKey)
	if err != nil {
		t.Fatalf("GetByClientOrderID returned error: %v", err)
	}
	if stored == nil || stored.Status != StatusRejected {
		t.Fatalf("expected rejected row persisted, got %+v", stored)
	}
}
