package strategy

import (
	"context"
	"time"

	"trade-sentinel/internal/exchange"
)

// Action 表示信号方向。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal 为一次策略输出：方向、置信度与可读理由。
// 置信度取值[0,1]，下游按其缩放仓位。
type Signal struct {
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Producer 抽象信号来源：技术指标策略与 AI 顾问均实现此接口。
type Producer interface {
	Produce(ctx context.Context, snapshot exchange.MarketSnapshot) (Signal, error)
	Name() string
}
