package position

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DailyPnLStore 以交易日（UTC 日期）为主键持久化已实现盈亏。
// 换日写入新行即自然归零，重启后从当日行恢复，当日亏损不会因
// 进程退出而从风控闸门里消失。
type DailyPnLStore struct {
	db *sql.DB
}

// NewDailyPnLStore 创建日盈亏存储并初始化表结构。
func NewDailyPnLStore(db *sql.DB) (*DailyPnLStore, error) {
	if db == nil {
		return nil, errors.New("position: 数据库实例不能为空")
	}

	store := &DailyPnLStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *DailyPnLStore) initSchema() error {
	schema := `CREATE TABLE IF NOT EXISTS daily_pnl (
		day TEXT PRIMARY KEY,
		realized_pnl REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("position: 初始化日盈亏表结构失败: %w", err)
	}
	return nil
}

// Add 把一笔已实现盈亏累加到指定交易日的行上，行不存在时创建。
func (s *DailyPnLStore) Add(ctx context.Context, day string, pnl float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_pnl (day, realized_pnl, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET
			realized_pnl = realized_pnl + excluded.realized_pnl,
			updated_at = excluded.updated_at`,
		day, pnl, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("position: 写入日盈亏失败: %w", err)
	}
	return nil
}

// Realized 返回指定交易日的已实现盈亏，无记录时为 0。
func (s *DailyPnLStore) Realized(ctx context.Context, day string) (float64, error) {
	var realized float64
	err := s.db.QueryRowContext(ctx,
		`SELECT realized_pnl FROM daily_pnl WHERE day = ?`, day,
	).Scan(&realized)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("position: 读取日盈亏失败: %w", err)
	}
	return realized, nil
}
