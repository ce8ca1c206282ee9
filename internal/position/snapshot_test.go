package position

import (
	"context"
	"testing"
	"time"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/store"
)

type fakeAPI struct {
	exchange.API

	balances  exchange.Balances
	positions map[string][]exchange.PositionInfo
}

func (f *fakeAPI) GetBalances(_ context.Context) (exchange.Balances, error) {
	return f.balances, nil
}

func (f *fakeAPI) GetPositions(_ context.Context, symbol string) ([]exchange.PositionInfo, error) {
	return f.positions[symbol], nil
}

func newTestPnLStore(t *testing.T) *DailyPnLStore {
	t.Helper()

	db, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pnl, err := NewDailyPnLStore(db.DB())
	if err != nil {
		t.Fatalf("NewDailyPnLStore returned error: %v", err)
	}
	return pnl
}

func newTestManager(t *testing.T, api exchange.API, markets []string, pnl *DailyPnLStore) *Manager {
	t.Helper()

	mgr, err := NewManager(api, markets, pnl, nil)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return mgr
}

func TestFetchSnapshot_AggregatesMarkets(t *testing.T) {
	api := &fakeAPI{
		balances: exchange.Balances{TotalUsd: 10000, FreeUsd: 8000},
		positions: map[string][]exchange.PositionInfo{
			"BTC/USDT:USDT": {{Symbol: "BTC/USDT:USDT", Quantity: 0.01, EntryPrice: 48000, MarkPrice: 50000, UnrealizedPnl: 20}},
			"ETH/USDT:USDT": {{Symbol: "ETH/USDT:USDT", Quantity: -1, EntryPrice: 3000, MarkPrice: 2900, UnrealizedPnl: 100}},
		},
	}

	mgr := newTestManager(t, api, []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}, newTestPnLStore(t))
	ctx := context.Background()
	if err := mgr.RecordTradeOutcome(ctx, "BTC/USDT:USDT", -50); err != nil {
		t.Fatalf("RecordTradeOutcome returned error: %v", err)
	}

	snapshot, err := mgr.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}

	if snapshot.Cash != 10000 {
		t.Fatalf("expected cash 10000, got %f", snapshot.Cash)
	}
	if snapshot.RealizedPnl != -50 {
		t.Fatalf("expected realized -50, got %f", snapshot.RealizedPnl)
	}
	if snapshot.UnrealizedPnl != 120 {
		t.Fatalf("expected unrealized 120, got %f", snapshot.UnrealizedPnl)
	}
	if snapshot.OpenCount() != 2 {
		t.Fatalf("expected 2 open positions, got %d", snapshot.OpenCount())
	}

	pos, held := snapshot.Position("btc/usdt:usdt")
	if !held {
		t.Fatal("symbol lookup must be case-insensitive")
	}
	if pos.Quantity != 0.01 {
		t.Fatalf("unexpected quantity %f", pos.Quantity)
	}
}

func TestRealizedPnlRollsOverAtDayBoundary(t *testing.T) {
	api := &fakeAPI{balances: exchange.Balances{TotalUsd: 1000}}
	mgr := newTestManager(t, api, nil, newTestPnLStore(t))
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	mgr.now = func() time.Time { return current }

	if err := mgr.RecordTradeOutcome(ctx, "BTC/USDT", -200); err != nil {
		t.Fatalf("RecordTradeOutcome returned error: %v", err)
	}
	if err := mgr.RecordTradeOutcome(ctx, "BTC/USDT", -100); err != nil {
		t.Fatalf("RecordTradeOutcome returned error: %v", err)
	}

	snapshot, err := mgr.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}
	if snapshot.RealizedPnl != -300 {
		t.Fatalf("expected realized -300 before rollover, got %f", snapshot.RealizedPnl)
	}

	// 跨过 UTC 日界后，新交易日的已实现盈亏从零开始。
	current = time.Date(2026, 3, 2, 0, 10, 0, 0, time.UTC)
	snapshot, err = mgr.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}
	if snapshot.RealizedPnl != 0 {
		t.Fatalf("expected realized 0 after rollover, got %f", snapshot.RealizedPnl)
	}
}

func TestRealizedPnlSurvivesRestart(t *testing.T) {
	api := &fakeAPI{balances: exchange.Balances{TotalUsd: 1000}}
	pnl := newTestPnLStore(t)
	ctx := context.Background()

	mgr := newTestManager(t, api, nil, pnl)
	if err := mgr.RecordTradeOutcome(ctx, "ETH/USDT", -75); err != nil {
		t.Fatalf("RecordTradeOutcome returned error: %v", err)
	}

	// 同一存储上重建管理器，模拟进程重启。
	restarted := newTestManager(t, api, nil, pnl)
	snapshot, err := restarted.FetchSnapshot(ctx)
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}
	if snapshot.RealizedPnl != -75 {
		t.Fatalf("expected realized -75 after restart, got %f", snapshot.RealizedPnl)
	}
}

func TestSnapshotEquity(t *testing.T) {
	s := Snapshot{Cash: 1000, UnrealizedPnl: -100}
	if got := s.Equity(); got != 900 {
		t.Fatalf("expected equity 900, got %f", got)
	}
}

func TestPositionNotional(t *testing.T) {
	p := Position{Symbol: "ETH/USDT", Quantity: -2, AvgEntryPrice: 3000, MarketPrice: 2900}

	// 空头名义价值取绝对值。
	if got := p.Notional(3100); got != 6200 {
		t.Fatalf("expected 6200, got %f", got)
	}
	// 价格非正时退回快照市价。
	if got := p.Notional(0); got != 5800 {
		t.Fatalf("expected 5800, got %f", got)
	}
}

func TestRecordStopOutSurfacesInSnapshot(t *testing.T) {
	api := &fakeAPI{balances: exchange.Balances{TotalUsd: 100}}
	mgr := newTestManager(t, api, nil, newTestPnLStore(t))

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	mgr.RecordStopOut("BTC/USDT", ts)

	snapshot, err := mgr.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot returned error: %v", err)
	}
	if got, ok := snapshot.LastStopOut["BTC/USDT"]; !ok || !got.Equal(ts) {
		t.Fatalf("expected stop-out timestamp %v, got %v", ts, got)
	}
}
