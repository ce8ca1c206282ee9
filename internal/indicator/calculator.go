package indicator

import (
	"fmt"
	"sync"

	talib "github.com/markcheno/go-talib"

	"trade-sentinel/internal/exchange"
)

const (
	smaFastPeriod = 10
	smaSlowPeriod = 30
	rsiPeriod     = 14
	atrPeriod     = 14
	volumeAvgSpan = 20
)

// ATRResult 保存 ATR 指标。
type ATRResult struct {
	Absolute float64
	Relative float64
}

// VolumeResult 保存成交量相关统计。
type VolumeResult struct {
	Current   float64
	Average20 float64
	Ratio     float64
}

// Result 为一次指标计算的汇总。
type Result struct {
	Timeframe     string
	Series        Series
	SMAFast       float64
	SMASlow       float64
	PrevSMAFast   float64
	PrevSMASlow   float64
	RSI           float64
	ATR           ATRResult
	Volume        VolumeResult
	Close         float64
	PreviousClose float64
}

type cacheEntry struct {
	key    string
	result Result
}

// Calculator 提供技术指标计算并带有简单缓存。
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute 依据给定K线计算策略所需的技术指标。
func (c *Calculator) Compute(timeframe string, candles []exchange.Candle) (Result, error) {
	if len(candles) == 0 {
		return Result{}, fmt.Errorf("计算指标失败: 输入K线为空")
	}

	series := NewSeries(candles)
	cacheKey := fmt.Sprintf("%s:%d:%d", timeframe, series.Len(), series.Timestamps[len(series.Timestamps)-1].Unix())

	c.mu.Lock()
	if entry, ok := c.cache[timeframe]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.result, nil
	}
	c.mu.Unlock()

	result := c.calculate(timeframe, series)

	c.mu.Lock()
	c.cache[timeframe] = cacheEntry{key: cacheKey, result: result}
	c.mu.Unlock()

	return result, nil
}

func (c *Calculator) calculate(timeframe string, series Series) Result {
	closePrices := series.Close
	highs := series.High
	lows := series.Low
	volumes := series.Volume

	smaFast := talib.Sma(closePrices, smaFastPeriod)
	smaSlow := talib.Sma(closePrices, smaSlowPeriod)
	rsi := talib.Rsi(closePrices, rsiPeriod)
	atr := talib.Atr(highs, lows, closePrices, atrPeriod)

	volumeAvg := average(SliceTail(volumes, volumeAvgSpan))
	volumeCurrent := Last(volumes)

	lastClose := Last(closePrices)
	atrAbs := Last(atr)

	return Result{
		Timeframe:     timeframe,
		Series:        series,
		SMAFast:       Last(smaFast),
		SMASlow:       Last(smaSlow),
		PrevSMAFast:   Prev(smaFast),
		PrevSMASlow:   Prev(smaSlow),
		RSI:           Last(rsi),
		ATR:           ATRResult{Absolute: atrAbs, Relative: SafeDivide(atrAbs, lastClose)},
		Volume:        VolumeResult{Current: volumeCurrent, Average20: volumeAvg, Ratio: SafeDivide(volumeCurrent, volumeAvg)},
		Close:         lastClose,
		PreviousClose: Prev(closePrices),
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
