package exchange

import "time"

const (
	// TimeframeDecision 为主评估周期。
	TimeframeDecision = "1m"
	// TimeframeTrend 为趋势过滤周期。
	TimeframeTrend = "1h"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker 为最新盘口快照。
type Ticker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// Mid 返回买卖中间价，盘口缺失时为0。
func (t Ticker) Mid() float64 {
	return (t.Ask + t.Bid) / 2
}

// Balances 汇总账户资金。
type Balances struct {
	TotalUsd  float64
	FreeUsd   float64
	Totals    map[string]float64
	Timestamp time.Time
}

// PositionInfo 描述交易所返回的单个持仓。
type PositionInfo struct {
	Symbol        string
	Quantity      float64 // 有符号数量，空头为负
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
}

// OrderRequest 为统一的下单请求。
type OrderRequest struct {
	Symbol        string
	Side          string // buy | sell
	Type          string // market | limit
	Quantity      float64
	Price         float64
	ClientOrderID string
}

// OrderAck 为交易所对订单操作的应答。
type OrderAck struct {
	OrderID        string
	ClientOrderID  string
	Symbol         string
	Side           string
	Type           string
	Quantity       float64
	Price          float64
	Status         string
	FilledQuantity float64
	AvgFillPrice   float64
	Timestamp      time.Time
}

// MarketSnapshot 聚合一次评估所需的行情数据。
type MarketSnapshot struct {
	Symbol      string
	Candles     []Candle
	TrendCandle []Candle
	Ticker      Ticker
	RetrievedAt time.Time
}

// SnapshotRequest 控制一次快照采集的参数。
type SnapshotRequest struct {
	CandleLimit int
	TrendLimit  int
}

// DefaultSnapshotRequest 返回默认快照参数。
func DefaultSnapshotRequest() SnapshotRequest {
	return SnapshotRequest{
		CandleLimit: 200,
		TrendLimit:  100,
	}
}
