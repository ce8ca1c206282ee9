package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/exchange"
)

// Position 表示单个交易对的净持仓。
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"` // 有符号数量，空头为负
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarketPrice   float64 `json:"market_price"`
}

// Notional 返回按给定价格计算的持仓名义价值；价格非正时退回快照里的市价。
func (p Position) Notional(price float64) float64 {
	if price <= 0 {
		price = p.MarketPrice
	}
	if p.Quantity < 0 {
		return -p.Quantity * price
	}
	return p.Quantity * price
}

// Snapshot 为每个评估周期重建的账户视图，风控闸门只读使用。
type Snapshot struct {
	Cash          float64              `json:"cash"`
	RealizedPnl   float64              `json:"realized_pnl"`
	UnrealizedPnl float64              `json:"unrealized_pnl"`
	Positions     []Position           `json:"positions"`
	LastStopOut   map[string]time.Time `json:"last_stop_out,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// Equity 返回账户净值。
func (s Snapshot) Equity() float64 {
	return s.Cash + s.UnrealizedPnl
}

// Position 按交易对查找持仓。
func (s Snapshot) Position(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if strings.EqualFold(p.Symbol, symbol) {
			return p, true
		}
	}
	return Position{}, false
}

// OpenCount 返回当前持仓的交易对数量。
func (s Snapshot) OpenCount() int {
	return len(s.Positions)
}

// Manager 负责拼装账户快照，并维护按日持久化的已实现盈亏与
// 进程内的止损出场时间。由交易主循环单写访问。
type Manager struct {
	client  exchange.API
	markets []string
	pnl     *DailyPnLStore
	logger  *zap.Logger
	now     func() time.Time

	lastStopOut map[string]time.Time
}

// NewManager 创建账户快照管理器。日盈亏存储不能为空。
func NewManager(client exchange.API, markets []string, pnl *DailyPnLStore, logger *zap.Logger) (*Manager, error) {
	if pnl == nil {
		return nil, errors.New("position: 日盈亏存储不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:      client,
		markets:     markets,
		pnl:         pnl,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		lastStopOut: make(map[string]time.Time),
	}, nil
}

// tradingDay 返回当前 UTC 交易日，作为日盈亏行的主键。
func (m *Manager) tradingDay() string {
	return m.now().UTC().Format("2006-01-02")
}

// RecordTradeOutcome 把一笔平仓交易的已实现盈亏累加到当日行。
func (m *Manager) RecordTradeOutcome(ctx context.Context, symbol string, pnl float64) error {
	day := m.tradingDay()
	if err := m.pnl.Add(ctx, day, pnl); err != nil {
		return err
	}
	m.logger.Debug("记录平仓盈亏",
		zap.String("symbol", symbol),
		zap.String("day", day),
		zap.Float64("pnl", pnl),
	)
	return nil
}

// RecordStopOut 记录一次止损出场时间。
func (m *Manager) RecordStopOut(symbol string, ts time.Time) {
	m.lastStopOut[symbol] = ts.UTC()
}

// FetchSnapshot 从交易所重建账户快照。
func (m *Manager) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	balances, err := m.client.GetBalances(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("position: 获取账户余额失败: %w", err)
	}

	realized, err := m.pnl.Realized(ctx, m.tradingDay())
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Cash:        balances.TotalUsd,
		RealizedPnl: realized,
		Timestamp:   m.now().UTC(),
	}

	for _, market := range m.markets {
		infos, err := m.client.GetPositions(ctx, market)
		if err != nil {
			return Snapshot{}, fmt.Errorf("position: 获取持仓失败 (%s): %w", market, err)
		}
		for _, info := range infos {
			snapshot.Positions = append(snapshot.Positions, Position{
				Symbol:        info.Symbol,
				Quantity:      info.Quantity,
				AvgEntryPrice: info.EntryPrice,
				MarketPrice:   info.MarkPrice,
			})
			snapshot.UnrealizedPnl += info.UnrealizedPnl
		}
	}

	if len(m.lastStopOut) > 0 {
		snapshot.LastStopOut = make(map[string]time.Time, len(m.lastStopOut))
		for symbol, ts := range m.lastStopOut {
			snapshot.LastStopOut[symbol] = ts
		}
	}

	return snapshot, nil
}
