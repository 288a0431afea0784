package regime

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
)

// Regime labels a market condition
type Regime string

const (
	HighVolatility   Regime = "HIGH_VOLATILITY"
	StrongBull       Regime = "STRONG_BULL"
	StrongBear       Regime = "STRONG_BEAR"
	WeakBull         Regime = "WEAK_BULL"
	WeakBear         Regime = "WEAK_BEAR"
	Consolidation    Regime = "CONSOLIDATION"
	RangeBound       Regime = "RANGE_BOUND"
	BreakoutPending  Regime = "BREAKOUT_PENDING"
	SpontaneousEvent Regime = "SPONTANEOUS_EVENT"
)

// Analysis is the output of one regime detection pass.
type Analysis struct {
	Symbol               string    `json:"symbol"`
	Regime               Regime    `json:"regime"`
	TrendStrength        float64   `json:"trend_strength"`        // [-1, 1]
	VolatilityPercentile float64   `json:"volatility_percentile"` // [0, 100]
	Structural           bool      `json:"structural"`
	Confidence           float64   `json:"confidence"` // [15, 75]
	Warnings             []string  `json:"warnings"`
	Timestamp            time.Time `json:"timestamp"`
}

// Detector classifies symbols into market regimes and keeps a short
// per-symbol history for commentary. The history never feeds back
// into classification.
type Detector struct {
	mu      sync.Mutex
	history map[string][]*Analysis
	logger  zerolog.Logger
}

const historyLimit = 10

// NewDetector creates a regime detector.
func NewDetector() *Detector {
	return &Detector{
		history: make(map[string][]*Analysis),
		logger:  logging.Component("RegimeDetector"),
	}
}

// Detect classifies the snapshot into a regime.
func (d *Detector) Detect(snap *market.IndicatorSnapshot) *Analysis {
	returns := snap.Returns()

	trend := trendStrength(snap.Price, snap.EMA200, returns)
	vol := volatilityPercentile(returns)
	structural := isStructural(returns, trend)

	warnings := buildWarnings(snap, vol, structural)
	regime := classify(trend, vol, structural)
	confidence := confidenceScore(structural, vol, len(warnings))

	analysis := &Analysis{
		Symbol:               snap.Symbol,
		Regime:               regime,
		TrendStrength:        trend,
		VolatilityPercentile: vol,
		Structural:           structural,
		Confidence:           confidence,
		Warnings:             warnings,
		Timestamp:            time.Now(),
	}

	d.record(analysis)

	d.logger.Debug().
		Str("symbol", snap.Symbol).
		Str("regime", string(regime)).
		Float64("trend", trend).
		Float64("volatility_pct", vol).
		Float64("confidence", confidence).
		Msg("regime detected")

	return analysis
}

// trendStrength blends distance from EMA200 with recent momentum,
// clipped to [-1, 1].
func trendStrength(price, ema200 float64, returns []float64) float64 {
	if ema200 <= 0 {
		return 0
	}
	base := 2 * (price - ema200) / ema200

	momentum := 0.0
	if len(returns) >= 20 {
		momentum = 100 * mean(returns[len(returns)-20:])
	}

	return clip(base+momentum, -1, 1)
}

// volatilityPercentile scores recent volatility against the symbol's
// own full-history volatility, 50 when history is too short.
func volatilityPercentile(returns []float64) float64 {
	if len(returns) < 21 {
		return 50
	}
	recent := stdev(returns[len(returns)-20:])
	overall := stdev(returns)
	return clip(50*recent/(overall+1e-10), 0, 100)
}

// isStructural tests whether at least 60% of the last 50 returns
// share the trend's sign. Short histories pass by default.
func isStructural(returns []float64, trend float64) bool {
	if len(returns) < 50 {
		return true
	}
	window := returns[len(returns)-50:]
	matching := 0
	for _, r := range window {
		if trend >= 0 && r > 0 {
			matching++
		} else if trend < 0 && r < 0 {
			matching++
		}
	}
	return float64(matching)/float64(len(window)) >= 0.6
}

// classify applies the regime decision tree in priority order.
func classify(trend, vol float64, structural bool) Regime {
	abs := math.Abs(trend)

	switch {
	case vol > 85:
		return HighVolatility
	case abs > 0.6 && structural:
		if trend > 0 {
			return StrongBull
		}
		return StrongBear
	case abs > 0.3 && structural:
		if trend > 0 {
			return WeakBull
		}
		return WeakBear
	case abs < 0.2:
		if vol < 30 {
			return Consolidation
		}
		return RangeBound
	case vol < 25 && abs < 0.3:
		return BreakoutPending
	case !structural:
		return SpontaneousEvent
	default:
		return RangeBound
	}
}

func buildWarnings(snap *market.IndicatorSnapshot, vol float64, structural bool) []string {
	var warnings []string

	if vol > 90 {
		warnings = append(warnings, "extreme volatility, signals unreliable")
	} else if vol > 70 {
		warnings = append(warnings, "elevated volatility")
	}
	if !structural {
		warnings = append(warnings, "price action lacks structural consistency")
	}
	if snap.BBPosition() > 0.9 {
		warnings = append(warnings, "price pressed against upper Bollinger band")
	}

	return warnings
}

func confidenceScore(structural bool, vol float64, warningCount int) float64 {
	confidence := 35.0

	if structural {
		confidence += 15
	} else {
		confidence -= 20
	}

	switch {
	case vol > 80:
		confidence -= 25
	case vol > 60:
		confidence -= 10
	case vol < 20:
		confidence += 8
	}

	confidence -= 8 * float64(warningCount)

	return clip(confidence, 15, 75)
}

func (d *Detector) record(analysis *Analysis) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := append(d.history[analysis.Symbol], analysis)
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	d.history[analysis.Symbol] = entries
}

// History returns the recorded analyses for a symbol, oldest first.
func (d *Detector) History(symbol string) []*Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.history[symbol]
	out := make([]*Analysis, len(entries))
	copy(out, entries)
	return out
}

// Latest returns the most recent analysis per symbol.
func (d *Detector) Latest() map[string]*Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]*Analysis, len(d.history))
	for symbol, entries := range d.history {
		if len(entries) > 0 {
			out[symbol] = entries[len(entries)-1]
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
