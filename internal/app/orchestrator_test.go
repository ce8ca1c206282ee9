package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/alert"
	"trade-sentinel/internal/config"
	"trade-sentinel/internal/monitor"
	"trade-sentinel/internal/risk"
	"trade-sentinel/internal/store"
)

type countingNotifier struct {
	critical int
}

func (n *countingNotifier) Notify(_ context.Context, level alert.Level, _, _ string) error {
	if level == alert.LevelCritical {
		n.critical++
	}
	return nil
}

func newDrawdownOrchestrator(t *testing.T) (*orchestrator, *countingNotifier) {
	t.Helper()

	db, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo, err := risk.NewKillSwitchStore(db.DB())
	if err != nil {
		t.Fatalf("NewKillSwitchStore returned error: %v", err)
	}

	ks, err := risk.NewKillSwitch(config.KillSwitchConfig{
		MaxConsecutiveLosses:   3,
		MaxDrawdownPct:         5,
		SpreadViolationsLimit:  3,
		SpreadViolationsWindow: 15 * time.Minute,
		APIErrorThreshold:      10,
	}, repo, nil)
	if err != nil {
		t.Fatalf("NewKillSwitch returned error: %v", err)
	}
	if err := ks.Init(context.Background()); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	monitorSvc, err := monitor.NewService(db, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	notifier := &countingNotifier{}
	o := &orchestrator{
		killSwitch: ks,
		monitor:    monitorSvc,
		notifier:   notifier,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	return o, notifier
}

func TestOrchestrator_DrawdownAlertFiresOncePerTrip(t *testing.T) {
	o, notifier := newDrawdownOrchestrator(t)
	ctx := context.Background()

	if err := o.checkDrawdown(ctx, 100); err != nil {
		t.Fatalf("checkDrawdown returned error: %v", err)
	}
	if notifier.critical != 0 {
		t.Fatal("peak-setting tick must not alert")
	}

	// 10% 回撤越过 5% 阈值，首次转入触发态。
	if err := o.checkDrawdown(ctx, 90); err != nil {
		t.Fatalf("checkDrawdown returned error: %v", err)
	}
	if !o.killSwitch.IsTriggered() {
		t.Fatal("expected kill switch triggered after drawdown breach")
	}
	if notifier.critical != 1 {
		t.Fatalf("expected exactly 1 critical alert, got %d", notifier.critical)
	}

	// 触发态下的后续周期，无论回撤是否消失，都不应重复告警或重复记事件。
	for _, equity := range []float64{100, 100, 80, 95} {
		if err := o.checkDrawdown(ctx, equity); err != nil {
			t.Fatalf("checkDrawdown returned error: %v", err)
		}
	}
	if notifier.critical != 1 {
		t.Fatalf("alert must fire once per transition, got %d", notifier.critical)
	}

	events, err := o.monitor.ListEvents(ctx, monitor.EventKillSwitch, 10)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected a single kill-switch event, got %d", len(events))
	}
}
