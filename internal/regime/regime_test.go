package regime

import (
	"fmt"
	"testing"

	"crypto-signal-bot/internal/market"
)

// steadyUptrendSnapshot builds a snapshot with 100 consecutive +1%
// closes, price well above its EMA200 and mid-channel Bollinger.
func steadyUptrendSnapshot(symbol string) *market.IndicatorSnapshot {
	closes := make([]float64, 101)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * 1.01
	}
	price := closes[len(closes)-1]
	return &market.IndicatorSnapshot{
		Symbol:  symbol,
		Price:   price,
		EMA200:  price * 0.8,
		BBUpper: price * 1.2,
		BBLower: price * 0.8,
		Closes:  closes,
	}
}

// chaoticSnapshot builds a calm series that turns violently choppy in
// the last 20 candles.
func chaoticSnapshot(symbol string) *market.IndicatorSnapshot {
	closes := make([]float64, 201)
	for i := range closes {
		switch {
		case i >= len(closes)-20 && i%2 == 0:
			closes[i] = 105
		case i >= len(closes)-20:
			closes[i] = 100
		case i%2 == 0:
			closes[i] = 100.1
		default:
			closes[i] = 100
		}
	}
	price := closes[len(closes)-1]
	return &market.IndicatorSnapshot{
		Symbol:  symbol,
		Price:   price,
		EMA200:  100,
		BBUpper: price * 1.2,
		BBLower: price * 0.8,
		Closes:  closes,
	}
}

func TestDetectStrongBull(t *testing.T) {
	d := NewDetector()
	analysis := d.Detect(steadyUptrendSnapshot("BTCUSDT"))

	if analysis.Regime != StrongBull {
		t.Fatalf("regime = %s, want %s", analysis.Regime, StrongBull)
	}
	if !analysis.Structural {
		t.Errorf("uniform uptrend should read as structural")
	}
	if analysis.TrendStrength != 1 {
		t.Errorf("trend strength = %.2f, want clipped to 1", analysis.TrendStrength)
	}
	// structural +15, low volatility +8, no warnings
	if analysis.Confidence != 58 {
		t.Errorf("confidence = %.1f, want 58", analysis.Confidence)
	}
	if len(analysis.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", analysis.Warnings)
	}
}

func TestDetectHighVolatility(t *testing.T) {
	d := NewDetector()
	analysis := d.Detect(chaoticSnapshot("DOGEUSDT"))

	if analysis.Regime != HighVolatility {
		t.Fatalf("regime = %s, want %s", analysis.Regime, HighVolatility)
	}
	if analysis.Structural {
		t.Errorf("alternating chop should not read as structural")
	}
	if analysis.Confidence != 15 {
		t.Errorf("confidence = %.1f, want floor of 15", analysis.Confidence)
	}
	if len(analysis.Warnings) == 0 {
		t.Errorf("expected volatility and structure warnings")
	}
}

func TestConfidenceStaysBounded(t *testing.T) {
	d := NewDetector()
	snaps := []*market.IndicatorSnapshot{
		steadyUptrendSnapshot("A"),
		chaoticSnapshot("B"),
		{Symbol: "C", Price: 100, EMA200: 100, BBUpper: 101, BBLower: 99},
	}
	for _, snap := range snaps {
		analysis := d.Detect(snap)
		if analysis.Confidence < 15 || analysis.Confidence > 75 {
			t.Errorf("%s: confidence %.1f outside [15, 75]", snap.Symbol, analysis.Confidence)
		}
	}
}

func TestHistoryCapAndLatest(t *testing.T) {
	d := NewDetector()
	snap := steadyUptrendSnapshot("ETHUSDT")
	for i := 0; i < 12; i++ {
		d.Detect(snap)
	}

	history := d.History("ETHUSDT")
	if len(history) != historyLimit {
		t.Errorf("history length = %d, want %d", len(history), historyLimit)
	}

	latest := d.Latest()
	if latest["ETHUSDT"] == nil {
		t.Fatalf("latest missing analysis for ETHUSDT")
	}
	if latest["ETHUSDT"] != history[len(history)-1] {
		t.Errorf("Latest should return the newest recorded analysis")
	}
}

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		trend      float64
		vol        float64
		structural bool
		want       Regime
	}{
		{0.8, 40, true, StrongBull},
		{-0.8, 40, true, StrongBear},
		{0.4, 40, true, WeakBull},
		{-0.4, 40, true, WeakBear},
		{0.1, 20, true, Consolidation},
		{0.1, 50, true, RangeBound},
		{0.5, 90, true, HighVolatility},
		{0.5, 40, false, SpontaneousEvent},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("trend=%.1f vol=%.0f structural=%v", tt.trend, tt.vol, tt.structural)
		if got := classify(tt.trend, tt.vol, tt.structural); got != tt.want {
			t.Errorf("%s: classify = %s, want %s", name, got, tt.want)
		}
	}
}
