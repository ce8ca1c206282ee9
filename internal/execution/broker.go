package execution

import (
	"context"

	"trade-sentinel/internal/exchange"
)

// Broker 抽象订单落地方式：纸面模拟或真实交易所。
// 实现必须是无状态的，订单记录由 Manager 统一持久化。
type Broker interface {
	Execute(ctx context.Context, order Order, ticker exchange.Ticker) (Order, error)
	Name() string
}
