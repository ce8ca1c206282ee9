package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/metrics"
	"trade-sentinel/internal/strategy"
)

// Manager 负责把策略信号变成订单：按置信度定仓、生成幂等键、
// 查重后派发给执行器，并在返回前落库。执行器在构造时选定，运行期不再切换。
type Manager struct {
	cfg            config.ExecutionConfig
	maxPositionUsd float64
	broker         Broker
	store          *OrderStore
	sink           *metrics.Sink
	logger         *zap.Logger
	now            func() time.Time
}

// NewManager 创建订单管理器。
func NewManager(cfg config.ExecutionConfig, maxPositionUsd float64, broker Broker, store *OrderStore, sink *metrics.Sink, logger *zap.Logger) (*Manager, error) {
	if broker == nil {
		return nil, fmt.Errorf("execution: 执行器不能为空")
	}
	if store == nil {
		return nil, fmt.Errorf("execution: 订单存储不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		cfg:            cfg,
		maxPositionUsd: maxPositionUsd,
		broker:         broker,
		store:          store,
		sink:           sink,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// SizeNotional 按置信度缩放单笔名义价值，并以最小名义价值兜底。
func SizeNotional(maxPositionUsd, minNotionalUsd, confidence float64) float64 {
	scaled := maxPositionUsd * clamp(confidence, 0, 1)
	return math.Max(scaled, minNotionalUsd)
}

// PlannedNotional 返回给定置信度下这次下单的名义价值，供风控预检使用。
func (m *Manager) PlannedNotional(confidence float64) float64 {
	return SizeNotional(m.maxPositionUsd, m.cfg.MinNotionalUsd, confidence)
}

// SubmitSignal 幂等地提交一笔信号订单。
// HOLD 信号不产生任何副作用；重复的幂等键直接返回已有订单。
func (m *Manager) SubmitSignal(ctx context.Context, req SubmitRequest) (*Order, error) {
	if req.Signal.Action == strategy.ActionHold {
		return nil, nil
	}

	side, err := sideFromAction(req.Signal.Action)
	if err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = m.generateKey(req.Symbol, side)
	}

	existing, err := m.store.GetByClientOrderID(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.sink.Increment("orders_idempotent_hit_total", 1)
		m.logger.Info("幂等命中，返回已有订单",
			zap.String("client_order_id", key),
			zap.String("status", string(existing.Status)))
		return existing, nil
	}

	notional := m.PlannedNotional(req.Signal.Confidence)
	quantity := math.Max(m.cfg.MinQuantity, notional/math.Max(req.Ticker.Last, 1))

	now := m.now().UTC()
	order := Order{
		ClientOrderID: key,
		Symbol:        req.Symbol,
		Side:          side,
		Type:          "market",
		Quantity:      quantity,
		Status:        StatusPending,
		Broker:        m.broker.Name(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	executed, execErr := m.broker.Execute(ctx, order, req.Ticker)
	if execErr != nil {
		order.Status = StatusRejected
		order.UpdatedAt = m.now().UTC()
		if err := m.store.Upsert(ctx, order); err != nil {
			m.logger.Error("落库失败的订单无法记录", zap.String("client_order_id", key), zap.Error(err))
		}
		m.sink.Increment("orders_failed_total", 1)
		return nil, fmt.Errorf("提交订单失败: %w", execErr)
	}

	if err := m.store.Upsert(ctx, executed); err != nil {
		return nil, err
	}

	m.sink.Increment("orders_submitted_total", 1)
	m.logger.Info("订单提交完成",
		zap.String("client_order_id", executed.ClientOrderID),
		zap.String("symbol", executed.Symbol),
		zap.String("side", string(executed.Side)),
		zap.Float64("quantity", executed.Quantity),
		zap.String("status", string(executed.Status)),
		zap.String("broker", executed.Broker))

	return &executed, nil
}

// generateKey 生成幂等键：{symbol}-{side}-{毫秒时间戳}-{8位随机十六进制}。
func (m *Manager) generateKey(symbol string, side Side) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%d-%s", symbol, side, m.now().UnixMilli(), suffix)
}

func sideFromAction(action strategy.Action) (Side, error) {
	switch action {
	case strategy.ActionBuy:
		return SideBuy, nil
	case strategy.ActionSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("无法映射的信号方向: %s", action)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
