package strategy

import (
	"testing"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/market"
	"crypto-signal-bot/internal/regime"
	"crypto-signal-bot/internal/structure"
)

type fakePositions struct {
	open map[string]bool
}

func (f *fakePositions) HasOpenPosition(symbol string) bool {
	return f.open[symbol]
}

// swingPullbackContext builds a textbook swing setup: golden cross in
// place, price resting on the 50 EMA, MACD turning up, RSI mid-range.
func swingPullbackContext() *EvalContext {
	return &EvalContext{
		Snap: &market.IndicatorSnapshot{
			Symbol:            "ETHUSDT",
			Price:             100.8,
			EMA50:             101,
			EMA200:            100,
			RSI:               50,
			MACDHistogram:     0.5,
			PrevMACDHistogram: 0.4,
			Volume:            1200,
			AvgVolume20:       1000,
		},
		Regime: &regime.Analysis{
			Regime:               regime.WeakBull,
			VolatilityPercentile: 40,
			Structural:           true,
		},
		Structure: &structure.MarketStructure{
			Support:            structure.Level{Price: 97, Strength: 60},
			Resistance:         structure.Level{Price: 110, Strength: 50},
			VolumeTrend:        "stable",
			VolumePercentile:   50,
			TrendStrength:      55,
			Trend4h:            structure.TrendBullish,
			Trend1d:            structure.TrendBullish,
			Trend1h:            structure.TrendBullish,
			TimeframeAlignment: 100,
		},
		Tier:     config.TierBlueChip,
		TierConf: config.TierSettings{TargetPercent: 8},
	}
}

func TestSwingSignalGeneration(t *testing.T) {
	s := New(SwingConfig(), &fakePositions{open: map[string]bool{}})
	ec := swingPullbackContext()

	sig := s.Evaluate(ec)
	if sig == nil {
		t.Fatal("expected a swing signal from a clean pullback setup")
	}

	if sig.Strategy != "swing" {
		t.Errorf("strategy = %s, want swing", sig.Strategy)
	}
	if sig.Confidence < 55 {
		t.Errorf("confidence = %.1f, want at least the 55 floor", sig.Confidence)
	}
	if sig.Confidence > 100 {
		t.Errorf("confidence = %.1f, must not exceed 100", sig.Confidence)
	}

	// Stop sits just under the strong support level.
	wantStop := 97 * 0.985
	if sig.StopLoss != wantStop {
		t.Errorf("stop = %.4f, want %.4f", sig.StopLoss, wantStop)
	}

	// Blue chip swing target is 8% above entry.
	wantTarget := 100.8 * 1.08
	if sig.TargetPrice != wantTarget {
		t.Errorf("target = %.4f, want %.4f", sig.TargetPrice, wantTarget)
	}

	if sig.RSI != 50 {
		t.Errorf("signal RSI = %.1f, want snapshot value 50", sig.RSI)
	}
	if sig.VolumeRatio != 1.2 {
		t.Errorf("signal volume ratio = %.2f, want 1.2", sig.VolumeRatio)
	}
}

func TestSwingCooldownBlocksRepeat(t *testing.T) {
	s := New(SwingConfig(), nil)
	ec := swingPullbackContext()

	if s.Evaluate(ec) == nil {
		t.Fatal("first evaluation should signal")
	}
	if s.Evaluate(ec) != nil {
		t.Error("second evaluation inside the cooldown should stay silent")
	}
	if s.CooldownRemaining("ETHUSDT") <= 0 {
		t.Error("cooldown remaining should be positive after a signal")
	}
}

func TestOpenPositionSuppressesSignal(t *testing.T) {
	s := New(SwingConfig(), &fakePositions{open: map[string]bool{"ETHUSDT": true}})
	if s.Evaluate(swingPullbackContext()) != nil {
		t.Error("symbol with an open position must not signal again")
	}
}

func TestSwingRejectsOverboughtRSI(t *testing.T) {
	s := New(SwingConfig(), nil)
	ec := swingPullbackContext()
	ec.Snap.RSI = 65
	if s.Evaluate(ec) != nil {
		t.Error("RSI above the swing window should block entry")
	}
}

func TestConfidenceBounds(t *testing.T) {
	ec := swingPullbackContext()

	if got := Confidence(ec, 150); got > 100 {
		t.Errorf("confidence = %.1f, technical input must be clipped", got)
	}

	ec.Regime.Regime = regime.StrongBear
	ec.Structure.Support.Strength = 0
	ec.Structure.TrendStrength = 0
	ec.Structure.VolumePercentile = 0
	ec.Structure.TimeframeAlignment = 0
	if got := Confidence(ec, 0); got < 0 {
		t.Errorf("confidence = %.1f, must not go negative", got)
	}
}

func TestRiskFloorRaisesLowToMedium(t *testing.T) {
	// A calm, strong-trend context scores as LOW risk.
	ec := swingPullbackContext()
	ec.Regime.VolatilityPercentile = 20
	ec.Structure.VolumeTrend = "increasing"
	ec.Structure.TrendStrength = 70
	ec.Regime.Warnings = nil

	score := RiskScore(ec)
	if RiskLevelFor(score) != RiskLow {
		t.Fatalf("expected LOW risk from calm context, got %s (score %.0f)", RiskLevelFor(score), score)
	}

	cfg := ScalpingConfig(false)
	if !cfg.RiskFloor {
		t.Error("scalping must carry the risk floor")
	}
	cfg = OpportunisticConfig()
	if !cfg.RiskFloor {
		t.Error("opportunistic must carry the risk floor")
	}
}

func TestSqueezeScoreBands(t *testing.T) {
	tests := []struct {
		ratio float64
		want  float64
	}{
		{0.9, 0},
		{0.65, 20},
		{0.55, 40},
		{0.45, 60},
		{0.35, 80},
		{0.2, 100},
	}
	for _, tt := range tests {
		snap := &market.IndicatorSnapshot{BandWidth: tt.ratio, AvgBandWidth: 1}
		if got := SqueezeScore(snap); got != tt.want {
			t.Errorf("SqueezeScore(ratio %.2f) = %.0f, want %.0f", tt.ratio, got, tt.want)
		}
	}
}

func TestDetectBullishDivergence(t *testing.T) {
	// Price makes a lower low while RSI holds a higher low.
	snap := &market.IndicatorSnapshot{
		Closes:    []float64{100, 98, 95, 97, 96, 93, 92.5, 94},
		RSISeries: []float64{40, 35, 28, 32, 35, 36, 37, 38},
	}
	score := DetectBullishDivergence(snap)
	if score != 40 {
		t.Errorf("divergence score = %.0f, want 40 for a decisive divergence", score)
	}

	// Price and RSI both making lower lows is no divergence.
	snap = &market.IndicatorSnapshot{
		Closes:    []float64{100, 98, 95, 97, 96, 93, 92.5, 94},
		RSISeries: []float64{40, 35, 28, 32, 30, 26, 25, 27},
	}
	if got := DetectBullishDivergence(snap); got != 0 {
		t.Errorf("divergence score = %.0f, want 0 without an RSI higher low", got)
	}
}

// scalpingBounceContext builds an oversold bounce setup in a lively
// market: RSI near 30, price in the lower Bollinger band, volume
// running above average.
func scalpingBounceContext() *EvalContext {
	return &EvalContext{
		Snap: &market.IndicatorSnapshot{
			Symbol:      "SOLUSDT",
			Price:       100,
			BBUpper:     108,
			BBLower:     98,
			RSI:         30,
			Volume:      1600,
			AvgVolume20: 1000,
		},
		Regime: &regime.Analysis{
			Regime:               regime.WeakBull,
			VolatilityPercentile: 70,
		},
		Structure: &structure.MarketStructure{
			Support:            structure.Level{Price: 95, Strength: 60},
			Resistance:         structure.Level{Price: 110, Strength: 50},
			VolumePercentile:   50,
			TrendStrength:      55,
			TimeframeAlignment: 100,
		},
		Tier:     config.TierBlueChip,
		TierConf: config.TierSettings{TargetPercent: 5},
	}
}

func TestScalpingRequiresElevatedVolatility(t *testing.T) {
	s := New(ScalpingConfig(false), nil)
	ec := scalpingBounceContext()

	ec.Regime.VolatilityPercentile = 10
	if s.Evaluate(ec) != nil {
		t.Error("scalping must stay silent when the volatility percentile is low")
	}

	ec.Regime.VolatilityPercentile = 70
	if s.Evaluate(ec) == nil {
		t.Error("expected a scalping signal once volatility is elevated")
	}
}

// longTermDipContext builds an accumulation setup: price a shade
// under the 200 EMA, oversold RSI, low in the bands.
func longTermDipContext() *EvalContext {
	return &EvalContext{
		Snap: &market.IndicatorSnapshot{
			Symbol:            "BTCUSDT",
			Price:             96,
			PrevClose:         96.5,
			EMA200:            100,
			BBUpper:           104,
			BBLower:           94,
			RSI:               33,
			PrevRSI:           36,
			MACDHistogram:     0.1,
			PrevMACDHistogram: 0.05,
		},
		Regime: &regime.Analysis{
			Regime:               regime.WeakBull,
			VolatilityPercentile: 40,
		},
		Structure: &structure.MarketStructure{
			Support:            structure.Level{Price: 90, Strength: 60},
			Resistance:         structure.Level{Price: 105, Strength: 50},
			VolumePercentile:   50,
			TrendStrength:      55,
			TimeframeAlignment: 100,
		},
		Tier:     config.TierBlueChip,
		TierConf: config.TierSettings{TargetPercent: 12},
	}
}

func TestLongTermKnifeCatchVeto(t *testing.T) {
	s := New(LongTermConfig(), nil)

	// Latest candle down over 2% while RSI is deeply oversold and
	// still falling fast.
	ec := longTermDipContext()
	ec.Snap.PrevClose = 99
	if s.Evaluate(ec) != nil {
		t.Error("accelerating single-candle drop should veto the entry")
	}

	// A heavy 24h drop alone is not a falling knife when the latest
	// candle has stabilized.
	ec = longTermDipContext()
	ec.Snap.PriceChange24h = -8
	if s.Evaluate(ec) == nil {
		t.Error("expected a long_term signal when the latest candle is stable")
	}
}

func TestLevelForBuckets(t *testing.T) {
	tests := []struct {
		confidence float64
		want       ConfidenceLevel
	}{
		{95, ConfidenceVeryHigh},
		{90, ConfidenceVeryHigh},
		{80, ConfidenceHigh},
		{75, ConfidenceHigh},
		{65, ConfidenceModerate},
		{60, ConfidenceModerate},
		{55, ConfidenceLow},
		{50, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.confidence); got != tt.want {
			t.Errorf("LevelFor(%.0f) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestVariantsRespectEnableFlags(t *testing.T) {
	cfg := &config.StrategyConfig{SwingEnabled: true, ScalpingEnabled: true}
	out := Variants(cfg, nil)
	if len(out) != 2 {
		t.Fatalf("got %d variants, want 2", len(out))
	}
	if out[0].Name() != "swing" || out[1].Name() != "scalping" {
		t.Errorf("variants = [%s, %s], want [swing, scalping]", out[0].Name(), out[1].Name())
	}
}
