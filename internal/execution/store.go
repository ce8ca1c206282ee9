package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OrderStore 以 client_order_id 为主键持久化本地订单，
// 是幂等提交的查询依据。
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore 创建订单存储并初始化表结构。
func NewOrderStore(db *sql.DB) (*OrderStore, error) {
	if db == nil {
		return nil, errors.New("execution: 数据库实例不能为空")
	}

	store := &OrderStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *OrderStore) initSchema() error {
	schema := `CREATE TABLE IF NOT EXISTS orders (
		client_order_id TEXT PRIMARY KEY,
		exchange_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		filled_quantity REAL NOT NULL DEFAULT 0,
		avg_fill_price REAL NOT NULL DEFAULT 0,
		broker TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execution: 初始化订单表结构失败: %w", err)
	}
	return nil
}

// Upsert 整行写入订单，已存在时覆盖可变字段。
func (s *OrderStore) Upsert(ctx context.Context, order Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (client_order_id, exchange_id, symbol, side, type, quantity, price,
			status, filled_quantity, avg_fill_price, broker, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_order_id) DO UPDATE SET
			exchange_id = excluded.exchange_id,
			status = excluded.status,
			filled_quantity = excluded.filled_quantity,
			avg_fill_price = excluded.avg_fill_price,
			broker = excluded.broker,
			updated_at = excluded.updated_at`,
		order.ClientOrderID, order.ExchangeID, order.Symbol, string(order.Side), order.Type,
		order.Quantity, order.Price, string(order.Status), order.FilledQuantity,
		order.AvgFillPrice, order.Broker,
		order.CreatedAt.UTC().Format(time.RFC3339Nano),
		order.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("execution: 写入订单失败: %w", err)
	}
	return nil
}

// GetByClientOrderID 按幂等键查询订单，不存在时返回 nil。
func (s *OrderStore) GetByClientOrderID(ctx context.Context, clientOrderID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT client_order_id, exchange_id, symbol, side, type, quantity, price,
			status, filled_quantity, avg_fill_price, broker, created_at, updated_at
		 FROM orders WHERE client_order_id = ?`, clientOrderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("execution: 查询订单失败: %w", err)
	}
	return order, nil
}

// ListBySymbol 按交易对列出最近的订单，最新的在前。
func (s *OrderStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT client_order_id, exchange_id, symbol, side, type, quantity, price,
			status, filled_quantity, avg_fill_price, broker, created_at, updated_at
		 FROM orders WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("execution: 查询订单列表失败: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("execution: 读取订单行失败: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execution: 遍历订单列表失败: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		order     Order
		side      string
		status    string
		createdAt string
		updatedAt string
	)

	err := row.Scan(&order.ClientOrderID, &order.ExchangeID, &order.Symbol, &side, &order.Type,
		&order.Quantity, &order.Price, &status, &order.FilledQuantity, &order.AvgFillPrice,
		&order.Broker, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	order.Side = Side(side)
	order.Status = Status(status)

	if order.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("解析创建时间失败: %w", err)
	}
	if order.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("解析更新时间失败: %w", err)
	}

	return &order, nil
}
