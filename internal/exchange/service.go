package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketDataService 聚合单一交易对的K线与盘口数据获取。
type MarketDataService struct {
	client API
	symbol string
	logger *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(client API, symbol string, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		client: client,
		symbol: symbol,
		logger: logger,
	}
}

// Symbol 返回交易对符号。
func (s *MarketDataService) Symbol() string {
	return s.symbol
}

// GetSnapshot 并发拉取评估周期K线、趋势周期K线与最新盘口。
func (s *MarketDataService) GetSnapshot(ctx context.Context, req SnapshotRequest) (MarketSnapshot, error) {
	defaultReq := DefaultSnapshotRequest()
	if req.CandleLimit <= 0 {
		req.CandleLimit = defaultReq.CandleLimit
	}
	if req.TrendLimit <= 0 {
		req.TrendLimit = defaultReq.TrendLimit
	}

	var (
		candles []Candle
		trend   []Candle
		ticker  Ticker
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.client.GetCandles(groupCtx, s.symbol, TimeframeDecision, req.CandleLimit)
		if err != nil {
			return err
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		data, err := s.client.GetCandles(groupCtx, s.symbol, TimeframeTrend, req.TrendLimit)
		if err != nil {
			return err
		}
		trend = data
		return nil
	})

	group.Go(func() error {
		data, err := s.client.GetTicker(groupCtx, s.symbol)
		if err != nil {
			return err
		}
		ticker = data
		return nil
	})

	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, err
	}

	snapshot := MarketSnapshot{
		Symbol:      s.symbol,
		Candles:     candles,
		TrendCandle: trend,
		Ticker:      ticker,
		RetrievedAt: time.Now().UTC(),
	}

	s.logger.Debug("市场数据快照获取完成",
		zap.String("symbol", snapshot.Symbol),
		zap.Time("retrieved_at", snapshot.RetrievedAt),
		zap.Int("candle_count", len(snapshot.Candles)),
		zap.Float64("bid", ticker.Bid),
		zap.Float64("ask", ticker.Ask),
	)

	return snapshot, nil
}
