package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/exchange"
)

// orderPlacer 只暴露真实下单所需的最小接口。
type orderPlacer interface {
	PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error)
}

// LiveBroker 将订单提交给真实交易所，幂等键透传为 clientOrderId。
type LiveBroker struct {
	client orderPlacer
	logger *zap.Logger
	now    func() time.Time
}

var _ Broker = (*LiveBroker)(nil)

// NewLiveBroker 创建真实交易执行器。
func NewLiveBroker(client orderPlacer, logger *zap.Logger) *LiveBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveBroker{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Name 返回执行器标识。
func (b *LiveBroker) Name() string {
	return "live"
}

// Execute 提交市价单并将交易所应答映射回本地订单。
func (b *LiveBroker) Execute(ctx context.Context, order Order, _ exchange.Ticker) (Order, error) {
	ack, err := b.client.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Type:          order.Type,
		Quantity:      order.Quantity,
		Price:         order.Price,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return order, fmt.Errorf("真实下单失败: %w", err)
	}

	order.ExchangeID = ack.OrderID
	order.Status = mapAckStatus(ack.Status)
	order.FilledQuantity = ack.FilledQuantity
	order.AvgFillPrice = ack.AvgFillPrice
	order.Broker = b.Name()
	order.UpdatedAt = b.now().UTC()

	b.logger.Info("真实下单完成",
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("exchange_id", order.ExchangeID),
		zap.String("symbol", order.Symbol),
		zap.String("status", string(order.Status)))

	return order, nil
}

// mapAckStatus 将交易所状态归一到本地状态集合。
func mapAckStatus(status string) Status {
	switch status {
	case "closed", "filled":
		return StatusFilled
	case "canceled", "cancelled", "expired":
		return StatusCanceled
	case "rejected":
		return StatusRejected
	case "open":
		return StatusOpen
	default:
		return StatusPending
	}
}
