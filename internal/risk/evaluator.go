package risk

import (
	"fmt"

	"go.uber.org/zap"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/position"
)

// Evaluator 按固定顺序组合无状态守卫：任一守卫拦截即短路返回，
// Decision.BlockedBy 记录第一个命中的守卫。
type Evaluator struct {
	cfg    config.RiskConfig
	logger *zap.Logger
}

// NewEvaluator 创建风控评估器。
func NewEvaluator(cfg config.RiskConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{cfg: cfg, logger: logger}
}

// Evaluate 对一笔拟提交订单做整套守卫检查。
// incomingOrderUsd 为该订单的名义价值（美元）。
func (e *Evaluator) Evaluate(snapshot position.Snapshot, ticker exchange.Ticker, symbol string, incomingOrderUsd float64) Decision {
	if ExceedsMaxDailyLoss(snapshot, e.cfg.MaxDailyLossUsd) {
		return e.block(BlockDailyLoss, fmt.Sprintf("当日亏损已达上限 %.2f USD", e.cfg.MaxDailyLossUsd))
	}

	if ExceedsMaxOpenPositions(snapshot, e.cfg.MaxOpenPositions, symbol) {
		return e.block(BlockOpenPositions, fmt.Sprintf("持仓数量将触及上限 %d", e.cfg.MaxOpenPositions))
	}

	if ExceedsMaxPositionUsd(snapshot, symbol, e.cfg.MaxPositionUsd, ticker.Last, incomingOrderUsd) {
		return e.block(BlockPositionUsd, fmt.Sprintf("单仓名义价值将触及上限 %.2f USD", e.cfg.MaxPositionUsd))
	}

	if spread := ComputeSpreadBps(ticker); spread > e.cfg.MaxSpreadBps {
		return e.block(BlockSpread, fmt.Sprintf("盘口价差 %.1f bps 超过上限 %.1f bps", spread, e.cfg.MaxSpreadBps))
	}

	if slippage := EstimateSlippageBps(ticker); slippage > e.cfg.MaxSlippageBps {
		return e.block(BlockSlippage, fmt.Sprintf("预估滑点 %.1f bps 超过上限 %.1f bps", slippage, e.cfg.MaxSlippageBps))
	}

	return Decision{Allowed: true, Reason: "所有风控守卫通过"}
}

func (e *Evaluator) block(by BlockReason, reason string) Decision {
	e.logger.Warn("风控拦截",
		zap.String("blocked_by", string(by)),
		zap.String("reason", reason))
	return Decision{Allowed: false, Reason: reason, BlockedBy: by}
}
