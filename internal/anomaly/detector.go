// Package anomaly 对K线与盘口做统计离群检测。
// 所有检查都要求最小历史长度，冷启动阶段不产生误报。
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/risk"
)

// Type 表示异常类型。
type Type string

const (
	TypeVolumeSpike   Type = "volume_spike"
	TypePriceGap      Type = "price_gap"
	TypeWickRange     Type = "wick_range"
	TypeSpreadBlowout Type = "spread_blowout"
)

// Severity 表示异常严重程度。
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly 为一次检测结果，仅在进程内流转，不做持久化。
type Anomaly struct {
	Type      Type      `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Observed  float64   `json:"observed"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Detector 按配置阈值扫描市场数据。
type Detector struct {
	cfg    config.AnomalyConfig
	logger *zap.Logger
}

// NewDetector 创建检测器。
func NewDetector(cfg config.AnomalyConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:    cfg,
		logger: logger,
	}
}

// ScanCandles 对K线窗口执行成交量、跳空与影线检查。
// 历史长度不足 min_candles 时直接返回空结果。
func (d *Detector) ScanCandles(candles []exchange.Candle) []Anomaly {
	if len(candles) < d.cfg.MinCandles {
		return nil
	}

	now := candles[len(candles)-1].Timestamp
	var results []Anomaly

	if a, ok := d.checkVolumeSpike(candles, now); ok {
		results = append(results, a)
	}
	if a, ok := d.checkPriceGap(candles, now); ok {
		results = append(results, a)
	}
	if a, ok := d.checkWickRange(candles, now); ok {
		results = append(results, a)
	}

	return results
}

// ScanTicker 检查盘口价差是否爆表。命中时固定为高严重度。
func (d *Detector) ScanTicker(ticker exchange.Ticker) []Anomaly {
	spreadBps := risk.ComputeSpreadBps(ticker)

	if math.IsInf(spreadBps, 1) {
		// 观测值用 -1 占位：无穷大无法通过 JSON 序列化落入监控事件。
		return []Anomaly{{
			Type:      TypeSpreadBlowout,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("%s 盘口中间价非法，无法计算价差", ticker.Symbol),
			Observed:  -1,
			Threshold: d.cfg.SpreadBlowoutBps,
			Timestamp: ticker.Timestamp,
		}}
	}

	if spreadBps < d.cfg.SpreadBlowoutBps {
		return nil
	}

	return []Anomaly{{
		Type:     TypeSpreadBlowout,
		Severity: SeverityHigh,
		Message: fmt.Sprintf("%s 价差 %.1f bps 超过阈值 %.1f bps",
			ticker.Symbol, spreadBps, d.cfg.SpreadBlowoutBps),
		Observed:  spreadBps,
		Threshold: d.cfg.SpreadBlowoutBps,
		Timestamp: ticker.Timestamp,
	}}
}

// checkVolumeSpike 用尾部窗口的成交量中位数衡量当前放量倍数。
func (d *Detector) checkVolumeSpike(candles []exchange.Candle, now time.Time) (Anomaly, bool) {
	window := d.cfg.VolumeWindow
	if len(candles) < window+1 {
		return Anomaly{}, false
	}

	trailing := make([]float64, 0, window)
	for _, c := range candles[len(candles)-1-window : len(candles)-1] {
		trailing = append(trailing, c.Volume)
	}

	base := median(trailing)
	if base <= 0 {
		return Anomaly{}, false
	}

	current := candles[len(candles)-1].Volume
	ratio := current / base
	if ratio < d.cfg.VolumeSpikeMultiple {
		return Anomaly{}, false
	}

	return Anomaly{
		Type:     TypeVolumeSpike,
		Severity: scaleSeverity(ratio, d.cfg.VolumeSpikeMultiple),
		Message: fmt.Sprintf("成交量放大至中位数的 %.1f 倍（阈值 %.1f 倍）",
			ratio, d.cfg.VolumeSpikeMultiple),
		Observed:  ratio,
		Threshold: d.cfg.VolumeSpikeMultiple,
		Timestamp: now,
	}, true
}

// checkPriceGap 检查开盘价相对前收的跳空幅度。
func (d *Detector) checkPriceGap(candles []exchange.Candle, now time.Time) (Anomaly, bool) {
	if len(candles) < 2 {
		return Anomaly{}, false
	}

	prevClose := candles[len(candles)-2].Close
	if prevClose <= 0 {
		return Anomaly{}, false
	}

	open := candles[len(candles)-1].Open
	gapPct := math.Abs(open-prevClose) / prevClose * 100
	if gapPct < d.cfg.PriceGapPct {
		return Anomaly{}, false
	}

	return Anomaly{
		Type:     TypePriceGap,
		Severity: scaleSeverity(gapPct, d.cfg.PriceGapPct),
		Message: fmt.Sprintf("开盘跳空 %.2f%%（阈值 %.2f%%）",
			gapPct, d.cfg.PriceGapPct),
		Observed:  gapPct,
		Threshold: d.cfg.PriceGapPct,
		Timestamp: now,
	}, true
}

// checkWickRange 检查K线振幅相对实体的比例。
func (d *Detector) checkWickRange(candles []exchange.Candle, now time.Time) (Anomaly, bool) {
	last := candles[len(candles)-1]

	totalRange := last.High - last.Low
	if totalRange <= 0 {
		return Anomaly{}, false
	}

	body := math.Abs(last.Close - last.Open)
	if body <= 0 {
		// 十字星实体为零，比例无意义。
		return Anomaly{}, false
	}

	ratio := totalRange / body
	if ratio < d.cfg.WickBodyRatio {
		return Anomaly{}, false
	}

	return Anomaly{
		Type:     TypeWickRange,
		Severity: scaleSeverity(ratio, d.cfg.WickBodyRatio),
		Message: fmt.Sprintf("K线振幅为实体的 %.1f 倍（阈值 %.1f 倍）",
			ratio, d.cfg.WickBodyRatio),
		Observed:  ratio,
		Threshold: d.cfg.WickBodyRatio,
		Timestamp: now,
	}, true
}

// scaleSeverity 按超过阈值的倍数划分严重程度。
func scaleSeverity(observed, threshold float64) Severity {
	if threshold <= 0 {
		return SeverityLow
	}
	multiple := observed / threshold
	switch {
	case multiple >= 2:
		return SeverityHigh
	case multiple >= 1.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
