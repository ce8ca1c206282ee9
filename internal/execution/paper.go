package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trade-sentinel/internal/exchange"
)

// PaperBroker 在本地模拟成交：用最新成交价加不利方向滑点作为成交价，
// 订单立即全部成交，不触碰任何外部接口。
type PaperBroker struct {
	slippageBps float64
	logger      *zap.Logger
	now         func() time.Time
}

var _ Broker = (*PaperBroker)(nil)

// NewPaperBroker 创建纸面交易执行器。
func NewPaperBroker(slippageBps float64, logger *zap.Logger) *PaperBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperBroker{
		slippageBps: slippageBps,
		logger:      logger,
		now:         time.Now,
	}
}

// Name 返回执行器标识。
func (b *PaperBroker) Name() string {
	return "paper"
}

// Execute 模拟一笔市价成交。买单滑点抬价，卖单滑点压价。
func (b *PaperBroker) Execute(_ context.Context, order Order, ticker exchange.Ticker) (Order, error) {
	if ticker.Last <= 0 {
		return order, fmt.Errorf("模拟成交失败: 最新成交价非法 %f", ticker.Last)
	}

	slip := ticker.Last * b.slippageBps / 10000
	fillPrice := ticker.Last
	switch order.Side {
	case SideBuy:
		fillPrice += slip
	case SideSell:
		fillPrice -= slip
	}

	now := b.now().UTC()
	order.ExchangeID = "paper-" + uuid.NewString()
	order.Status = StatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = fillPrice
	order.Broker = b.Name()
	order.UpdatedAt = now

	b.logger.Info("纸面成交",
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("fill_price", fillPrice))

	return order, nil
}
