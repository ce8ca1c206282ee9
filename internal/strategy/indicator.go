package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/indicator"
)

const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

// IndicatorStrategy 是默认信号源：快慢均线交叉给方向，
// RSI 做超买超卖过滤，趋势周期均线做大方向确认。
type IndicatorStrategy struct {
	calculator *indicator.Calculator
	logger     *zap.Logger
	now        func() time.Time
}

// NewIndicatorStrategy 创建指标策略。
func NewIndicatorStrategy(calculator *indicator.Calculator, logger *zap.Logger) *IndicatorStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndicatorStrategy{
		calculator: calculator,
		logger:     logger,
		now:        time.Now,
	}
}

// Name 返回信号源标识。
func (s *IndicatorStrategy) Name() string {
	return "indicator"
}

// Produce 依据决策周期K线计算信号。
func (s *IndicatorStrategy) Produce(_ context.Context, snapshot exchange.MarketSnapshot) (Signal, error) {
	result, err := s.calculator.Compute(exchange.TimeframeDecision, snapshot.Candles)
	if err != nil {
		return Signal{}, fmt.Errorf("指标策略计算失败: %w", err)
	}

	signal := Signal{
		Symbol:      snapshot.Symbol,
		Action:      ActionHold,
		Confidence:  0,
		Reason:      "无均线交叉",
		GeneratedAt: s.now().UTC(),
	}

	if math.IsNaN(result.SMAFast) || math.IsNaN(result.SMASlow) ||
		math.IsNaN(result.PrevSMAFast) || math.IsNaN(result.PrevSMASlow) {
		signal.Reason = "K线不足，指标未就绪"
		return signal, nil
	}

	crossedUp := result.PrevSMAFast <= result.PrevSMASlow && result.SMAFast > result.SMASlow
	crossedDown := result.PrevSMAFast >= result.PrevSMASlow && result.SMAFast < result.SMASlow

	switch {
	case crossedUp && result.RSI < rsiOverbought:
		signal.Action = ActionBuy
		signal.Confidence = s.confidence(result)
		signal.Reason = fmt.Sprintf("快线上穿慢线，RSI %.1f", result.RSI)
	case crossedDown && result.RSI > rsiOversold:
		signal.Action = ActionSell
		signal.Confidence = s.confidence(result)
		signal.Reason = fmt.Sprintf("快线下穿慢线，RSI %.1f", result.RSI)
	case crossedUp:
		signal.Reason = fmt.Sprintf("上穿但 RSI %.1f 超买，放弃", result.RSI)
	case crossedDown:
		signal.Reason = fmt.Sprintf("下穿但 RSI %.1f 超卖，放弃", result.RSI)
	}

	s.logger.Debug("指标策略输出",
		zap.String("symbol", snapshot.Symbol),
		zap.String("action", string(signal.Action)),
		zap.Float64("confidence", signal.Confidence),
		zap.String("reason", signal.Reason))

	return signal, nil
}

// confidence 用均线间距与成交量比例粗估置信度。
func (s *IndicatorStrategy) confidence(result indicator.Result) float64 {
	base := 0.5

	gap := math.Abs(result.SMAFast-result.SMASlow) / math.Max(result.SMASlow, 1e-9)
	base += math.Min(gap*50, 0.25)

	if result.Volume.Ratio > 1.5 {
		base += 0.15
	}

	return math.Min(base, 1.0)
}
