package indicator

import (
	"math"
	"testing"
	"time"

	"trade-sentinel/internal/exchange"
)

func rampCandles(n int) []exchange.Candle {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, 0, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		candles = append(candles, exchange.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10,
		})
	}
	return candles
}

func TestCompute_EmptyInputFails(t *testing.T) {
	c := NewCalculator()
	if _, err := c.Compute("1m", nil); err == nil {
		t.Fatal("expected error on empty candles")
	}
}

func TestCompute_SMAValues(t *testing.T) {
	c := NewCalculator()

	// 线性上涨序列的 SMA 可手算：窗口中点价格。
	result, err := c.Compute("1m", rampCandles(40))
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}

	// 最后10根收盘 130..139，均值 134.5。
	if math.Abs(result.SMAFast-134.5) > 1e-9 {
		t.Fatalf("expected SMA10 134.5, got %f", result.SMAFast)
	}
	// 最后30根收盘 110..139，均值 124.5。
	if math.Abs(result.SMASlow-124.5) > 1e-9 {
		t.Fatalf("expected SMA30 124.5, got %f", result.SMASlow)
	}
	if result.Close != 139 || result.PreviousClose != 138 {
		t.Fatalf("unexpected closes: %f / %f", result.Close, result.PreviousClose)
	}
	if math.Abs(result.Volume.Ratio-1) > 1e-9 {
		t.Fatalf("flat volume ratio should be 1, got %f", result.Volume.Ratio)
	}
}

func TestCompute_CachesByTimeframeAndLastCandle(t *testing.T) {
	c := NewCalculator()
	candles := rampCandles(40)

	first, err := c.Compute("1m", candles)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	second, err := c.Compute("1m", candles)
	if err != nil {
		t.Fatalf("second Compute returned error: %v", err)
	}
	if first.SMAFast != second.SMAFast || first.Close != second.Close {
		t.Fatal("cached result must match")
	}

	// 新K线使缓存失效。
	extended := append(candles, exchange.Candle{
		Timestamp: candles[len(candles)-1].Timestamp.Add(time.Minute),
		Open:      140, High: 141, Low: 139, Close: 140, Volume: 10,
	})
	third, err := c.Compute("1m", extended)
	if err != nil {
		t.Fatalf("third Compute returned error: %v", err)
	}
	if third.Close != 140 {
		t.Fatalf("expected recomputed close 140, got %f", third.Close)
	}
}

func TestSeriesHelpers(t *testing.T) {
	if !math.IsNaN(Last(nil)) {
		t.Fatal("Last of empty slice must be NaN")
	}
	if !math.IsNaN(Prev([]float64{1})) {
		t.Fatal("Prev of single element must be NaN")
	}
	if got := SliceTail([]float64{1, 2, 3, 4}, 2); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("unexpected tail: %v", got)
	}
	if got := SafeDivide(1, 0); got != 0 {
		t.Fatalf("SafeDivide by zero must be 0, got %f", got)
	}
}
