package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trade-sentinel/internal/config"
)

// API 抽象核心依赖的交易所能力，便于注入替身实现。
type API interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
	GetOrder(ctx context.Context, orderID, symbol string) (OrderAck, error)
	ListOpenOrders(ctx context.Context, symbol string) ([]OrderAck, error)
	GetBalances(ctx context.Context) (Balances, error)
	GetPositions(ctx context.Context, symbol string) ([]PositionInfo, error)
}

// Client 负责与交易所交互并实现重试机制。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ API = (*Client)(nil)

// NewClient 构造 Binance USDⓈ-M 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// GetTicker 获取最新盘口快照。
func (c *Client) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	var raw ccxt.Ticker

	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return Ticker{}, err
	}

	ticker := Ticker{
		Symbol: symbol,
		Bid:    derefFloat(raw.Bid),
		Ask:    derefFloat(raw.Ask),
		Last:   derefFloat(raw.Last),
	}
	if raw.Timestamp != nil {
		ticker.Timestamp = time.UnixMilli(int64(*raw.Timestamp)).UTC()
	} else {
		ticker.Timestamp = time.Now().UTC()
	}

	return ticker, nil
}

// GetCandles 获取指定周期的K线数据。
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// PlaceOrder 提交订单。幂等键通过统一的 clientOrderId 参数透传给交易所。
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if req.Quantity <= 0 {
		return OrderAck{}, fmt.Errorf("exchange: 下单数量非法 %.8f", req.Quantity)
	}

	params := map[string]interface{}{}
	if req.ClientOrderID != "" {
		params["clientOrderId"] = req.ClientOrderID
	}

	var raw ccxt.Order
	err := c.callWithRetry(ctx, "create_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		opts := []ccxt.CreateOrderOptions{ccxt.WithCreateOrderParams(params)}
		if strings.EqualFold(req.Type, "limit") {
			opts = append(opts, ccxt.WithCreateOrderPrice(req.Price))
		}

		result, err := c.exchange.CreateOrder(req.Symbol, strings.ToLower(req.Type), strings.ToLower(req.Side), req.Quantity, opts...)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return OrderAck{}, err
	}

	return convertOrder(raw, req), nil
}

// CancelOrder 撤销订单。
func (c *Client) CancelOrder(ctx context.Context, orderID, symbol string) error {
	return c.callWithRetry(ctx, "cancel_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		_, err := c.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(symbol))
		return err
	})
}

// GetOrder 查询订单最新状态。
func (c *Client) GetOrder(ctx context.Context, orderID, symbol string) (OrderAck, error) {
	var raw ccxt.Order
	err := c.callWithRetry(ctx, "fetch_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOrder(orderID, ccxt.WithFetchOrderSymbol(symbol))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return OrderAck{}, err
	}
	return convertOrder(raw, OrderRequest{Symbol: symbol}), nil
}

// ListOpenOrders 列出指定交易对的未完结订单。
func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]OrderAck, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.exchange.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(symbol))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	acks := make([]OrderAck, 0, len(raw))
	for _, o := range raw {
		acks = append(acks, convertOrder(o, OrderRequest{Symbol: symbol}))
	}
	return acks, nil
}

// GetBalances 获取账户资金汇总。
func (c *Client) GetBalances(ctx context.Context) (Balances, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		result, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return Balances{}, err
	}

	balances := Balances{
		Totals:    make(map[string]float64),
		Timestamp: time.Now().UTC(),
	}

	if raw.Total != nil {
		for code, total := range raw.Total {
			if total == nil {
				continue
			}
			balances.Totals[code] = *total
		}
		for _, code := range []string{"USDT", "USDC", "USD"} {
			if v, ok := balances.Totals[code]; ok && balances.TotalUsd == 0 {
				balances.TotalUsd = v
			}
		}
	}
	if raw.Free != nil {
		for _, code := range []string{"USDT", "USDC", "USD"} {
			if free, ok := raw.Free[code]; ok && free != nil {
				balances.FreeUsd = *free
				break
			}
		}
	}

	return balances, nil
}

// GetPositions 获取指定交易对的持仓。
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	var raw []ccxt.Position
	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		result, err := c.exchange.FetchPositions()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	positions := make([]PositionInfo, 0, len(raw))
	for _, p := range raw {
		sym := derefString(p.Symbol)
		if symbol != "" && !strings.EqualFold(sym, symbol) {
			continue
		}

		qty := derefFloat(p.Contracts)
		if qty == 0 {
			continue
		}
		if strings.EqualFold(derefString(p.Side), "short") {
			qty = -qty
		}

		positions = append(positions, PositionInfo{
			Symbol:        sym,
			Quantity:      qty,
			EntryPrice:    derefFloat(p.EntryPrice),
			MarkPrice:     derefFloat(p.MarkPrice),
			UnrealizedPnl: derefFloat(p.UnrealizedPnl),
		})
	}

	return positions, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if _, err := c.exchange.LoadMarkets(); err != nil {
		return err
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.cfg.Name))
	return nil
}

// callWithRetry 对交易所调用做有限次重试，等待时间随尝试次数线性递增。
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	baseDelay := c.cfg.Retry.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)
		lastErr = normalizedErr

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt == maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := time.Duration(attempt) * baseDelay
		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func convertOrder(o ccxt.Order, req OrderRequest) OrderAck {
	ack := OrderAck{
		OrderID:        derefString(o.Id),
		ClientOrderID:  derefString(o.ClientOrderId),
		Symbol:         derefString(o.Symbol),
		Side:           derefString(o.Side),
		Type:           derefString(o.Type),
		Quantity:       derefFloat(o.Amount),
		Price:          derefFloat(o.Price),
		Status:         derefString(o.Status),
		FilledQuantity: derefFloat(o.Filled),
		AvgFillPrice:   derefFloat(o.Average),
	}

	if ack.Symbol == "" {
		ack.Symbol = req.Symbol
	}
	if ack.ClientOrderID == "" {
		ack.ClientOrderID = req.ClientOrderID
	}
	if ack.Side == "" {
		ack.Side = req.Side
	}
	if ack.Type == "" {
		ack.Type = req.Type
	}
	if ack.Quantity == 0 {
		ack.Quantity = req.Quantity
	}

	if o.Timestamp != nil {
		ack.Timestamp = time.UnixMilli(int64(*o.Timestamp)).UTC()
	} else {
		ack.Timestamp = time.Now().UTC()
	}

	return ack
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
