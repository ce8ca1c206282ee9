package risk

import (
	"math"

	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/position"
)

// 本文件中的守卫均为无状态谓词：输入账户快照或盘口，输出是否越限。
// 守卫自身从不触发副作用，组合与短路由 Evaluator 负责。

// ExceedsMaxDailyLoss 判断当日已实现加未实现亏损是否达到上限。
func ExceedsMaxDailyLoss(snapshot position.Snapshot, maxLossUsd float64) bool {
	totalPnl := snapshot.RealizedPnl + snapshot.UnrealizedPnl
	return totalPnl <= -math.Abs(maxLossUsd)
}

// ExceedsMaxOpenPositions 判断新开一个交易对是否会触及持仓数量上限。
// 已持有该交易对时加仓不受此守卫限制：它约束的是分散度，不是单仓规模。
func ExceedsMaxOpenPositions(snapshot position.Snapshot, max int, symbol string) bool {
	if _, held := snapshot.Position(symbol); held {
		return false
	}
	return snapshot.OpenCount()+1 >= max
}

// ExceedsMaxPositionUsd 判断现有名义价值加上新订单后是否达到单仓上限。
// currentPrice 非正时使用快照中保存的市价；无持仓时只比较新订单的名义价值。
func ExceedsMaxPositionUsd(snapshot position.Snapshot, symbol string, maxUsd, currentPrice, incomingOrderUsd float64) bool {
	existing := 0.0
	if pos, held := snapshot.Position(symbol); held {
		existing = pos.Notional(currentPrice)
	}
	return existing+incomingOrderUsd >= maxUsd
}

// ComputeSpreadBps 计算盘口价差（基点）。中间价非正时返回 +Inf，
// 调用方必须将其视为自动拦截。
func ComputeSpreadBps(ticker exchange.Ticker) float64 {
	mid := ticker.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return (ticker.Ask - ticker.Bid) / mid * 10000
}

// EstimateSlippageBps 用最新成交价偏离中间价的幅度估算滑点（基点）。
// 中间价非正时返回 +Inf。
func EstimateSlippageBps(ticker exchange.Ticker) float64 {
	mid := ticker.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return math.Abs(ticker.Last-mid) / mid * 10000
}
