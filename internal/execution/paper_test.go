package execution

import (
	"context"
	"math"
	"strings"
	"testing"

	"trade-sentinel/internal/exchange"
)

func TestPaperBroker_BuySlipsUp(t *testing.T) {
	b := NewPaperBroker(10, nil) // 10 bps

	order := Order{ClientOrderID: "k1", Symbol: "BTC/USDT", Side: SideBuy, Quantity: 0.01}
	got, err := b.Execute(context.Background(), order, exchange.Ticker{Last: 50000})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	// 买单向上滑点：50000 × (1 + 0.001) = 50050。
	if math.Abs(got.AvgFillPrice-50050) > 1e-6 {
		t.Fatalf("expected fill 50050, got %f", got.AvgFillPrice)
	}
	if got.Status != StatusFilled {
		t.Fatalf("paper orders fill immediately, got %s", got.Status)
	}
	if got.FilledQuantity != order.Quantity {
		t.Fatalf("expected full fill, got %f", got.FilledQuantity)
	}
	if !strings.HasPrefix(got.ExchangeID, "paper-") {
		t.Fatalf("expected paper order id, got %s", got.ExchangeID)
	}
}

func TestPaperBroker_SellSlipsDown(t *testing.T) {
	b := NewPaperBroker(10, nil)

	order := Order{ClientOrderID: "k2", Symbol: "BTC/USDT", Side: SideSell, Quantity: 0.01}
	got, err := b.Execute(context.Background(), order, exchange.Ticker{Last: 50000})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if math.Abs(got.AvgFillPrice-49950) > 1e-6 {
		t.Fatalf("expected fill 49950, got %f", got.AvgFillPrice)
	}
}

func TestPaperBroker_RejectsInvalidPrice(t *testing.T) {
	b := NewPaperBroker(10, nil)

	order := Order{ClientOrderID: "k3", Symbol: "BTC/USDT", Side: SideBuy, Quantity: 0.01}
	if _, err := b.Execute(context.Background(), order, exchange.Ticker{Last: 0}); err == nil {
		t.Fatal("expected error on non-positive last price")
	}
}
