package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// killSwitchRowID 固定为1：全进程只有一行熔断状态。
const killSwitchRowID = 1

// KillSwitchStore 将熔断状态保存在 SQLite 单行中。
// 违规时间窗口序列化为 RFC3339Nano 时间戳的 JSON 数组，保留亚秒精度。
type KillSwitchStore struct {
	db *sql.DB
}

var _ KillSwitchRepo = (*KillSwitchStore)(nil)

// NewKillSwitchStore 创建存储并初始化表结构。
func NewKillSwitchStore(db *sql.DB) (*KillSwitchStore, error) {
	if db == nil {
		return nil, errors.New("risk: 数据库实例不能为空")
	}

	store := &KillSwitchStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *KillSwitchStore) initSchema() error {
	schema := `CREATE TABLE IF NOT EXISTS kill_switch (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		triggered INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		triggered_at TEXT NOT NULL DEFAULT '',
		consecutive_losses INTEGER NOT NULL DEFAULT 0,
		spread_violations TEXT NOT NULL DEFAULT '[]',
		api_errors INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("risk: 初始化熔断表结构失败: %w", err)
	}
	return nil
}

// Load 读取熔断状态；不存在时返回 nil。
func (s *KillSwitchStore) Load(ctx context.Context) (*KillSwitchState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT triggered, reason, triggered_at, consecutive_losses, spread_violations, api_errors
		 FROM kill_switch WHERE id = ?`, killSwitchRowID)

	var (
		triggeredInt int
		reason       string
		triggeredAt  string
		losses       int
		violations   string
		apiErrors    int
	)

	switch err := row.Scan(&triggeredInt, &reason, &triggeredAt, &losses, &violations, &apiErrors); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("risk: 读取熔断状态失败: %w", err)
	}

	state := KillSwitchState{
		Triggered:         triggeredInt == 1,
		Reason:            reason,
		ConsecutiveLosses: losses,
		APIErrors:         apiErrors,
	}

	if triggeredAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, triggeredAt)
		if err != nil {
			return nil, fmt.Errorf("risk: 解析触发时间失败: %w", err)
		}
		state.TriggeredAt = ts
	}

	var window []string
	if err := json.Unmarshal([]byte(violations), &window); err != nil {
		return nil, fmt.Errorf("risk: 解析违规窗口失败: %w", err)
	}
	for _, raw := range window {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("risk: 解析违规时间戳失败: %w", err)
		}
		state.SpreadViolations = append(state.SpreadViolations, ts)
	}

	return &state, nil
}

// Save 整行覆盖熔断状态。
func (s *KillSwitchStore) Save(ctx context.Context, state KillSwitchState) error {
	window := make([]string, 0, len(state.SpreadViolations))
	for _, ts := range state.SpreadViolations {
		window = append(window, ts.UTC().Format(time.RFC3339Nano))
	}
	violations, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("risk: 序列化违规窗口失败: %w", err)
	}

	triggeredInt := 0
	if state.Triggered {
		triggeredInt = 1
	}

	triggeredAt := ""
	if !state.TriggeredAt.IsZero() {
		triggeredAt = state.TriggeredAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kill_switch (id, triggered, reason, triggered_at, consecutive_losses, spread_violations, api_errors, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			triggered = excluded.triggered,
			reason = excluded.reason,
			triggered_at = excluded.triggered_at,
			consecutive_losses = excluded.consecutive_losses,
			spread_violations = excluded.spread_violations,
			api_errors = excluded.api_errors,
			updated_at = excluded.updated_at`,
		killSwitchRowID, triggeredInt, state.Reason, triggeredAt, state.ConsecutiveLosses,
		string(violations), state.APIErrors, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("risk: 写入熔断状态失败: %w", err)
	}

	return nil
}
