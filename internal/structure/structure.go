package structure

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
	"crypto-signal-bot/internal/regime"
)

// TrendLabel is a per-timeframe directional call
type TrendLabel string

const (
	TrendBullish TrendLabel = "BULLISH"
	TrendBearish TrendLabel = "BEARISH"
	TrendNeutral TrendLabel = "NEUTRAL"
)

// Level is a support or resistance level with a strength score.
type Level struct {
	Price    float64 `json:"price"`
	Strength float64 `json:"strength"` // [0, 100]
}

// MarketStructure is the assembled structural view of one symbol.
type MarketStructure struct {
	Symbol string `json:"symbol"`

	Support    Level `json:"support"`
	Resistance Level `json:"resistance"`

	VolumeTrend      string  `json:"volume_trend"` // increasing, decreasing, stable
	VolumePercentile float64 `json:"volume_percentile"`

	MomentumScore float64 `json:"momentum_score"` // [-100, 100]
	TrendStrength float64 `json:"trend_strength"` // [0, 100]

	VolatilityLabel string `json:"volatility_label"` // low, normal, high, extreme

	// Timeframe trends are inferred from the single hourly snapshot,
	// not fetched per timeframe. The 4h and 1d labels are proxies
	// built from EMA geometry and carry that imprecision.
	Trend1h TrendLabel `json:"trend_1h"`
	Trend4h TrendLabel `json:"trend_4h"`
	Trend1d TrendLabel `json:"trend_1d"`

	TimeframeAlignment float64 `json:"timeframe_alignment"` // [0, 100]

	Timestamp time.Time `json:"timestamp"`
}

// Builder derives market structure from indicator snapshots.
type Builder struct {
	logger zerolog.Logger
}

// NewBuilder creates a structure builder.
func NewBuilder() *Builder {
	return &Builder{logger: logging.Component("StructureBuilder")}
}

// Build assembles the structural view for a snapshot. The regime
// analysis supplies the volatility percentile.
func (b *Builder) Build(snap *market.IndicatorSnapshot, reg *regime.Analysis) *MarketStructure {
	support, resistance := findLevels(snap)

	ms := &MarketStructure{
		Symbol:     snap.Symbol,
		Support:    support,
		Resistance: resistance,

		VolumeTrend:      volumeTrend(snap.VolumeRatio()),
		VolumePercentile: volumePercentile(snap.VolumeRatio()),

		MomentumScore: momentumScore(snap),
		TrendStrength: trendStrength(snap),

		VolatilityLabel: volatilityLabel(reg.VolatilityPercentile),

		Trend1h: trend1h(snap),
		Trend4h: trend4h(snap),
		Trend1d: trend1d(snap),

		Timestamp: time.Now(),
	}
	ms.TimeframeAlignment = alignment(ms.Trend1h, ms.Trend4h, ms.Trend1d)

	b.logger.Debug().
		Str("symbol", snap.Symbol).
		Float64("support", ms.Support.Price).
		Float64("resistance", ms.Resistance.Price).
		Float64("momentum", ms.MomentumScore).
		Float64("tf_alignment", ms.TimeframeAlignment).
		Msg("structure built")

	return ms
}

// findLevels picks the nearest EMA or Bollinger level on each side of
// price, falling back to ±5% bands at strength 30.
func findLevels(snap *market.IndicatorSnapshot) (Level, Level) {
	type candidate struct {
		price    float64
		strength float64
	}

	var supports, resistances []candidate
	for _, c := range []candidate{
		{snap.EMA200, 80},
		{snap.EMA50, 60},
	} {
		if c.price <= 0 {
			continue
		}
		if c.price < snap.Price {
			supports = append(supports, c)
		} else if c.price > snap.Price {
			resistances = append(resistances, c)
		}
	}
	if snap.BBLower > 0 && snap.BBLower < snap.Price {
		supports = append(supports, candidate{snap.BBLower, 50})
	}
	if snap.BBUpper > snap.Price {
		resistances = append(resistances, candidate{snap.BBUpper, 50})
	}

	nearest := func(cands []candidate) (candidate, bool) {
		if len(cands) == 0 {
			return candidate{}, false
		}
		best := cands[0]
		for _, c := range cands[1:] {
			if math.Abs(c.price-snap.Price) < math.Abs(best.price-snap.Price) {
				best = c
			}
		}
		return best, true
	}

	support := Level{Price: snap.Price * 0.95, Strength: 30}
	if c, ok := nearest(supports); ok {
		support = Level{Price: c.price, Strength: c.strength}
	}
	resistance := Level{Price: snap.Price * 1.05, Strength: 30}
	if c, ok := nearest(resistances); ok {
		resistance = Level{Price: c.price, Strength: c.strength}
	}
	return support, resistance
}

func volumeTrend(ratio float64) string {
	switch {
	case ratio > 1.3:
		return "increasing"
	case ratio < 0.7:
		return "decreasing"
	default:
		return "stable"
	}
}

// volumePercentile maps the volume ratio onto a step scale.
func volumePercentile(ratio float64) float64 {
	switch {
	case ratio < 0.5:
		return 10
	case ratio < 0.8:
		return 30
	case ratio < 1.2:
		return 50
	case ratio < 1.5:
		return 70
	case ratio < 2.0:
		return 80
	case ratio < 2.5:
		return 90
	default:
		return 95
	}
}

// momentumScore combines price change, RSI displacement and MACD
// histogram into a [-100, 100] score.
func momentumScore(snap *market.IndicatorSnapshot) float64 {
	priceComp := clip(10*snap.PriceChange24h, -30, 30)
	rsiComp := clip(0.8*(snap.RSI-50), -40, 40)
	macdComp := clip(1000*snap.MACDHistogram, -30, 30)
	return clip(priceComp+rsiComp+macdComp, -100, 100)
}

// trendStrength centers at 50 and shifts by EMA spread and price
// distance from EMA50.
func trendStrength(snap *market.IndicatorSnapshot) float64 {
	score := 50.0
	if snap.EMA200 > 0 {
		score += clip((snap.EMA50-snap.EMA200)/snap.EMA200*500, -30, 30)
	}
	if snap.EMA50 > 0 {
		score += clip((snap.Price-snap.EMA50)/snap.EMA50*400, -20, 20)
	}
	return clip(score, 0, 100)
}

func volatilityLabel(percentile float64) string {
	switch {
	case percentile > 85:
		return "extreme"
	case percentile > 70:
		return "high"
	case percentile < 30:
		return "low"
	default:
		return "normal"
	}
}

func trend1h(snap *market.IndicatorSnapshot) TrendLabel {
	if snap.RSI > 55 && snap.MACDHistogram > 0 {
		return TrendBullish
	}
	if snap.RSI < 45 && snap.MACDHistogram < 0 {
		return TrendBearish
	}
	return TrendNeutral
}

func trend4h(snap *market.IndicatorSnapshot) TrendLabel {
	if snap.Price > snap.EMA50 && snap.EMA50 > snap.EMA200 {
		return TrendBullish
	}
	if snap.Price < snap.EMA50 && snap.EMA50 < snap.EMA200 {
		return TrendBearish
	}
	return TrendNeutral
}

func trend1d(snap *market.IndicatorSnapshot) TrendLabel {
	if snap.EMA200 <= 0 {
		return TrendNeutral
	}
	gap := (snap.EMA50 - snap.EMA200) / snap.EMA200
	if gap > 0.02 {
		return TrendBullish
	}
	if gap < -0.02 {
		return TrendBearish
	}
	return TrendNeutral
}

// alignment weights the timeframe calls 0.2/0.3/0.5, longer frames
// counting more.
func alignment(t1h, t4h, t1d TrendLabel) float64 {
	score := func(t TrendLabel) float64 {
		switch t {
		case TrendBullish:
			return 100
		case TrendBearish:
			return 0
		default:
			return 50
		}
	}
	return 0.2*score(t1h) + 0.3*score(t4h) + 0.5*score(t1d)
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
