package risk

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestKillSwitchStore_LoadEmptyReturnsNil(t *testing.T) {
	store, err := NewKillSwitchStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewKillSwitchStore returned error: %v", err)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil on empty table, got %+v", state)
	}
}

func TestKillSwitchStore_RoundTrip(t *testing.T) {
	store, err := NewKillSwitchStore(openTestDB(t))
	if err != nil {
		t.Fatalf("NewKillSwitchStore returned error: %v", err)
	}
	ctx := context.Background()

	// 亚秒精度必须原样存取。
	triggeredAt := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	want := KillSwitchState{
		Triggered:         true,
		Reason:            "连续亏损 3 次达到上限 3",
		TriggeredAt:       triggeredAt,
		ConsecutiveLosses: 3,
		SpreadViolations: []time.Time{
			triggeredAt.Add(-10*time.Minute - 250*time.Millisecond),
			triggeredAt.Add(-5 * time.Minute),
		},
		APIErrors: 7,
	}

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected state after save")
	}
	if got.Triggered != want.Triggered || got.Reason != want.Reason ||
		got.ConsecutiveLosses != want.ConsecutiveLosses || got.APIErrors != want.APIErrors {
		t.Fatalf("state mismatch: got %+v want %+v", got, want)
	}
	if !got.TriggeredAt.Equal(want.TriggeredAt) {
		t.Fatalf("triggered_at mismatch: got %v want %v", got.TriggeredAt, want.TriggeredAt)
	}
	if len(got.SpreadViolations) != len(want.SpreadViolations) {
		t.Fatalf("violation count mismatch: got %d want %d", len(got.SpreadViolations), len(want.SpreadViolations))
	}
	for i := range want.SpreadViolations {
		if !got.SpreadViolations[i].Equal(want.SpreadViolations[i]) {
			t.Fatalf("violation %d mismatch: got %v want %v", i, got.SpreadViolations[i], want.SpreadViolations[i])
		}
	}
}

func TestKillSwitchStore_SaveOverwritesSingleRow(t *testing.T) {
	db := openTestDB(t)
	store, err := NewKillSwitchStore(db)
	if err != nil {
		t.Fatalf("NewKillSwitchStore returned error: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, KillSwitchState{ConsecutiveLosses: 1}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Save(ctx, KillSwitchState{ConsecutiveLosses: 2}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM kill_switch`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row, got %d", count)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.ConsecutiveLosses != 2 {
		t.Fatalf("expected latest save to win, got %d", got.ConsecutiveLosses)
	}
}
