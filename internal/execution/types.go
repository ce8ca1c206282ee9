package execution

import (
	"time"

	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/strategy"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status 表示订单生命周期状态。
type Status string

const (
	StatusPending  Status = "pending"
	StatusOpen     Status = "open"
	StatusFilled   Status = "filled"
	StatusCanceled Status = "canceled"
	StatusRejected Status = "rejected"
)

// Order 为本地订单记录，以 ClientOrderID 作为幂等主键。
type Order struct {
	ClientOrderID  string    `json:"client_order_id"`
	ExchangeID     string    `json:"exchange_id"`
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	Type           string    `json:"type"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	Status         Status    `json:"status"`
	FilledQuantity float64   `json:"filled_quantity"`
	AvgFillPrice   float64   `json:"avg_fill_price"`
	Broker         string    `json:"broker"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SubmitRequest 描述一次信号驱动的下单请求。
// IdempotencyKey 为空时由 Manager 生成。
type SubmitRequest struct {
	Symbol         string
	Signal         strategy.Signal
	Ticker         exchange.Ticker
	IdempotencyKey string
}
