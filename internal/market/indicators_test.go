package market

import (
	"math"
	"testing"
	"time"
)

func klinesFromCloses(closes []float64) []Kline {
	out := make([]Kline, len(closes))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = Kline{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c * 1.01,
			Low:      c * 0.99,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func TestCalculateSMA(t *testing.T) {
	klines := klinesFromCloses([]float64{1, 2, 3, 4, 5})
	if got := CalculateSMA(klines, 3); got != 4 {
		t.Errorf("SMA(3) = %.2f, want 4 over the last three closes", got)
	}
	if got := CalculateSMA(klines, 10); got != 0 {
		t.Errorf("SMA with short history = %.2f, want 0", got)
	}
}

func TestCalculateRSIExtremes(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	if got := CalculateRSI(klinesFromCloses(rising), 14); got != 100 {
		t.Errorf("RSI of pure gains = %.2f, want 100", got)
	}

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	if got := CalculateRSI(klinesFromCloses(falling), 14); got != 0 {
		t.Errorf("RSI of pure losses = %.2f, want 0", got)
	}

	if got := CalculateRSI(klinesFromCloses([]float64{1, 2}), 14); got != 50 {
		t.Errorf("RSI with short history = %.2f, want neutral 50", got)
	}
}

func TestCalculateBollingerBands(t *testing.T) {
	// Constant closes collapse the bands onto the middle.
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	bb := CalculateBollingerBands(klinesFromCloses(flat), 20, 2)
	if bb.Upper != 100 || bb.Middle != 100 || bb.Lower != 100 {
		t.Errorf("flat bands = %+v, want all 100", bb)
	}
}

func TestBuildSnapshotRequiresHistory(t *testing.T) {
	short := make([]float64, 200)
	for i := range short {
		short[i] = 100
	}
	if snap := BuildSnapshot("BTCUSDT", "binance", klinesFromCloses(short)); snap != nil {
		t.Error("200 candles must not be enough, EMA200 needs a prior seed")
	}
}

func TestBuildSnapshot(t *testing.T) {
	closes := make([]float64, 210)
	for i := range closes {
		closes[i] = 100 + 0.1*float64(i)
	}
	klines := klinesFromCloses(closes)
	klines[len(klines)-1].Volume = 2000

	snap := BuildSnapshot("BTCUSDT", "binance", klines)
	if snap == nil {
		t.Fatal("expected a snapshot from 210 candles")
	}

	if snap.Price != closes[len(closes)-1] {
		t.Errorf("price = %.2f, want last close %.2f", snap.Price, closes[len(closes)-1])
	}
	if snap.RSI != 100 {
		t.Errorf("RSI = %.2f, want 100 in a monotone uptrend", snap.RSI)
	}
	if snap.EMA50 <= snap.EMA200 {
		t.Errorf("EMA50 %.2f should sit above EMA200 %.2f in an uptrend", snap.EMA50, snap.EMA200)
	}
	if len(snap.RSISeries) != 16 {
		t.Errorf("RSI series length = %d, want 16", len(snap.RSISeries))
	}
	if len(snap.Closes) != len(klines) {
		t.Errorf("closes length = %d, want full history %d", len(snap.Closes), len(klines))
	}

	// 24 candles back at 0.1 per candle is a 2.4 point move off ~118.5.
	wantChange := (closes[len(closes)-1] - closes[len(closes)-25]) / closes[len(closes)-25] * 100
	if math.Abs(snap.PriceChange24h-wantChange) > 1e-9 {
		t.Errorf("24h change = %.4f, want %.4f", snap.PriceChange24h, wantChange)
	}
	if snap.VolumeRatio() != 2 {
		t.Errorf("volume ratio = %.2f, want 2.0 with a doubled last candle", snap.VolumeRatio())
	}
}
