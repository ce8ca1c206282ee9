package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/advisor"
	"trade-sentinel/internal/alert"
	"trade-sentinel/internal/anomaly"
	"trade-sentinel/internal/breaker"
	"trade-sentinel/internal/config"
	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/execution"
	"trade-sentinel/internal/indicator"
	"trade-sentinel/internal/metrics"
	"trade-sentinel/internal/monitor"
	"trade-sentinel/internal/position"
	"trade-sentinel/internal/risk"
	"trade-sentinel/internal/store"
	"trade-sentinel/internal/strategy"
)

type symbolPipeline struct {
	symbol string
	market *exchange.MarketDataService
}

type orchestrator struct {
	pipelines  []symbolPipeline
	producer   strategy.Producer
	evaluator  *risk.Evaluator
	killSwitch *risk.KillSwitch
	breaker    *breaker.CircuitBreaker
	detector   *anomaly.Detector
	positions  *position.Manager
	execMgr    *execution.Manager
	monitor    *monitor.Service
	notifier   alert.Notifier
	sink       *metrics.Sink
	logger     *zap.Logger

	peakEquity float64
	apiErrors  int
	now        func() time.Time
}

func (o *orchestrator) Monitor() *monitor.Service {
	return o.monitor
}

func newOrchestrator(cfg *config.Config, logger *zap.Logger, store *store.Store, sink *metrics.Sink) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	pipelines := make([]symbolPipeline, 0, len(cfg.Exchange.Markets))
	for _, symbol := range cfg.Exchange.Markets {
		pipelines = append(pipelines, symbolPipeline{
			symbol: symbol,
			market: exchange.NewMarketDataService(client, symbol, logger),
		})
	}

	calculator := indicator.NewCalculator()

	var producer strategy.Producer
	switch cfg.Signal.Source {
	case config.SignalSourceAI:
		producer, err = advisor.New(cfg.OpenAI, calculator, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化AI顾问失败: %w", err)
		}
	default:
		producer = strategy.NewIndicatorStrategy(calculator, logger)
	}

	ksRepo, err := risk.NewKillSwitchStore(store.DB())
	if err != nil {
		return nil, fmt.Errorf("初始化熔断存储失败: %w", err)
	}

	killSwitch, err := risk.NewKillSwitch(cfg.KillSwitch, ksRepo, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化熔断开关失败: %w", err)
	}

	orderStore, err := execution.NewOrderStore(store.DB())
	if err != nil {
		return nil, fmt.Errorf("初始化订单存储失败: %w", err)
	}

	var broker execution.Broker
	if cfg.Execution.Mode == config.ModeLive {
		broker = execution.NewLiveBroker(client, logger)
	} else {
		logger.Info("执行器处于纸面模式")
		broker = execution.NewPaperBroker(cfg.Execution.SlippageBps, logger)
	}

	execMgr, err := execution.NewManager(cfg.Execution, cfg.Risk.MaxPositionUsd, broker, orderStore, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化订单管理器失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(store, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	pnlStore, err := position.NewDailyPnLStore(store.DB())
	if err != nil {
		return nil, fmt.Errorf("初始化日盈亏存储失败: %w", err)
	}

	positions, err := position.NewManager(client, cfg.Exchange.Markets, pnlStore, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化账户快照管理器失败: %w", err)
	}

	return &orchestrator{
		pipelines:  pipelines,
		producer:   producer,
		evaluator:  risk.NewEvaluator(cfg.Risk, logger),
		killSwitch: killSwitch,
		breaker:    breaker.New(cfg.Breaker, logger),
		detector:   anomaly.NewDetector(cfg.Anomaly, logger),
		positions:  positions,
		execMgr:    execMgr,
		monitor:    monitorSvc,
		notifier:   alert.NewLogNotifier(logger),
		sink:       sink,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Start 恢复持久化状态，必须在第一次 Tick 之前调用。
func (o *orchestrator) Start(ctx context.Context) error {
	if err := o.killSwitch.Init(ctx); err != nil {
		return fmt.Errorf("恢复熔断状态失败: %w", err)
	}
	o.sink.Gauge("kill_switch_triggered", boolGauge(o.killSwitch.IsTriggered()))
	return nil
}

// Tick 执行一轮完整评估：账户快照、逐交易对行情扫描与下单。
func (o *orchestrator) Tick(ctx context.Context) error {
	now := o.now().UTC()

	if o.breaker.IsOpen(now) {
		o.sink.Increment("breaker_skipped_ticks_total", 1)
		o.logger.Warn("断路器打开，跳过本轮交易所访问",
			zap.Int("failure_count", o.breaker.FailureCount()))
		return nil
	}

	snapshot, err := o.positions.FetchSnapshot(ctx)
	if err != nil {
		o.recordAPIFailure(ctx, "获取账户快照失败", err, "")
		return err
	}
	o.recordAPISuccess()
	o.monitor.RecordAccount(ctx, snapshot)

	equity := snapshot.Equity()
	o.sink.Gauge("account_equity_usd", equity)
	if err := o.checkDrawdown(ctx, equity); err != nil {
		return err
	}

	for i := range o.pipelines {
		if err := o.tickSymbol(ctx, &o.pipelines[i], snapshot); err != nil {
			return err
		}
	}

	o.sink.Gauge("kill_switch_triggered", boolGauge(o.killSwitch.IsTriggered()))
	return nil
}

func (o *orchestrator) tickSymbol(ctx context.Context, pipeline *symbolPipeline, account position.Snapshot) error {
	symbol := pipeline.symbol

	market, err := pipeline.market.GetSnapshot(ctx, exchange.DefaultSnapshotRequest())
	if err != nil {
		o.recordAPIFailure(ctx, "拉取市场数据失败", err, symbol)
		return err
	}
	o.recordAPISuccess()

	if blocked, err := o.scanAnomalies(ctx, symbol, market); err != nil {
		return err
	} else if blocked {
		return nil
	}

	signal, err := o.producer.Produce(ctx, market)
	if err != nil {
		o.monitor.RecordError(ctx, "生成信号失败", err, map[string]interface{}{"symbol": symbol})
		return err
	}
	o.monitor.RecordSignal(ctx, signal)

	if signal.Action == strategy.ActionHold {
		return nil
	}

	notional := o.execMgr.PlannedNotional(signal.Confidence)
	decision := o.evaluator.Evaluate(account, market.Ticker, symbol, notional)
	if decision.Allowed && o.killSwitch.IsTriggered() {
		decision = risk.Decision{
			Allowed:   false,
			Reason:    "熔断开关已触发，禁止新开仓",
			BlockedBy: risk.BlockKillSwitch,
		}
	}
	o.monitor.RecordRiskDecision(ctx, symbol, decision)

	if !decision.Allowed {
		o.sink.Increment("risk_blocked_total", 1)
		o.logger.Info("信号被风控拦截",
			zap.String("symbol", symbol),
			zap.String("blocked_by", string(decision.BlockedBy)),
			zap.String("reason", decision.Reason))
		return nil
	}

	order, err := o.execMgr.SubmitSignal(ctx, execution.SubmitRequest{
		Symbol: symbol,
		Signal: signal,
		Ticker: market.Ticker,
	})
	if err != nil {
		o.monitor.RecordError(ctx, "提交订单失败", err, map[string]interface{}{"symbol": symbol})
		return err
	}
	if order == nil {
		return nil
	}
	o.monitor.RecordOrder(ctx, *order)

	return o.settleOutcome(ctx, symbol, account, *order)
}

// scanAnomalies 扫描K线与盘口异常。高危异常跳过该交易对本轮交易，
// 价差异常同时计入熔断窗口。
func (o *orchestrator) scanAnomalies(ctx context.Context, symbol string, market exchange.MarketSnapshot) (bool, error) {
	anomalies := o.detector.ScanCandles(market.Candles)
	anomalies = append(anomalies, o.detector.ScanTicker(market.Ticker)...)
	if len(anomalies) == 0 {
		return false, nil
	}

	o.monitor.RecordAnomalies(ctx, anomalies)
	o.sink.Increment("anomalies_detected_total", float64(len(anomalies)))

	skip := false
	for _, a := range anomalies {
		if a.Type == anomaly.TypeSpreadBlowout {
			triggered, err := o.killSwitch.RecordSpreadViolation(ctx)
			if err != nil {
				return false, err
			}
			if triggered {
				o.onKillSwitchTriggered(ctx)
			}
		}
		if a.Severity == anomaly.SeverityHigh {
			skip = true
		}
	}

	if skip {
		o.logger.Warn("检测到高危行情异常，本轮跳过该交易对",
			zap.String("symbol", symbol),
			zap.Int("anomaly_count", len(anomalies)))
		if err := o.notifier.Notify(ctx, alert.LevelWarning, "行情异常",
			fmt.Sprintf("%s 检测到 %d 条异常，暂停本轮交易", symbol, len(anomalies))); err != nil {
			o.logger.Warn("发送告警失败", zap.Error(err))
		}
	}
	return skip, nil
}

// settleOutcome 对平仓方向的成交计算已实现盈亏并回灌熔断开关。
func (o *orchestrator) settleOutcome(ctx context.Context, symbol string, account position.Snapshot, order execution.Order) error {
	if order.Side != execution.SideSell || order.Status != execution.StatusFilled {
		return nil
	}

	pos, held := account.Position(symbol)
	if !held || pos.Quantity <= 0 {
		return nil
	}

	pnl := (order.AvgFillPrice - pos.AvgEntryPrice) * order.FilledQuantity
	if err := o.positions.RecordTradeOutcome(ctx, symbol, pnl); err != nil {
		return err
	}
	o.sink.Gauge("last_trade_pnl_usd", pnl)

	triggered, err := o.killSwitch.RecordTradeResult(ctx, pnl > 0)
	if err != nil {
		return err
	}
	if triggered {
		o.onKillSwitchTriggered(ctx)
	}
	return nil
}

// checkDrawdown 跟踪净值峰值并评估回撤。告警与计数只在开关发生
// 待命到触发的转换时触发一次，已触发态下的周期检查保持静默。
func (o *orchestrator) checkDrawdown(ctx context.Context, equity float64) error {
	if equity > o.peakEquity {
		o.peakEquity = equity
	}

	tripped, err := o.killSwitch.CheckDrawdown(ctx, equity, o.peakEquity)
	if err != nil {
		return err
	}
	if tripped {
		o.onKillSwitchTriggered(ctx)
	}
	return nil
}

func (o *orchestrator) onKillSwitchTriggered(ctx context.Context) {
	state := o.killSwitch.State()
	o.monitor.RecordKillSwitch(ctx, state)
	o.sink.Increment("kill_switch_trips_total", 1)
	o.sink.Gauge("kill_switch_triggered", 1)
	if err := o.notifier.Notify(ctx, alert.LevelCritical, "熔断触发", state.Reason); err != nil {
		o.logger.Warn("发送告警失败", zap.Error(err))
	}
}

// recordAPIFailure 统一处理交易所访问失败：推进断路器与熔断的错误计数。
func (o *orchestrator) recordAPIFailure(ctx context.Context, msg string, err error, symbol string) {
	o.breaker.RecordFailure()
	o.apiErrors++
	o.sink.Increment("api_errors_total", 1)

	ctxMap := map[string]interface{}{}
	if symbol != "" {
		ctxMap["symbol"] = symbol
	}
	o.monitor.RecordError(ctx, msg, err, ctxMap)

	triggered, ksErr := o.killSwitch.CheckAPIErrors(ctx, o.apiErrors)
	if ksErr != nil {
		o.logger.Error("更新熔断错误计数失败", zap.Error(ksErr))
		return
	}
	if triggered {
		o.onKillSwitchTriggered(ctx)
	}
}

func (o *orchestrator) recordAPISuccess() {
	o.breaker.RecordSuccess()
	o.apiErrors = 0
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
