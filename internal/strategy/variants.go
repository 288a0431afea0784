package strategy

import (
	"fmt"
	"time"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/structure"
)

// Variants builds the enabled strategy set over a shared position
// view.
func Variants(cfg *config.StrategyConfig, positions PositionReader) []*Strategy {
	var out []*Strategy
	if cfg.LongTermEnabled {
		out = append(out, New(LongTermConfig(), positions))
	}
	if cfg.SwingEnabled {
		out = append(out, New(SwingConfig(), positions))
	}
	if cfg.ScalpingEnabled {
		out = append(out, New(ScalpingConfig(cfg.NewsFilterEnabled), positions))
	}
	if cfg.OpportunisticEnabled {
		out = append(out, New(OpportunisticConfig(), positions))
	}
	return out
}

// LongTermConfig is the accumulation-dip style: deep pullbacks near
// the 200 EMA in otherwise intact markets.
func LongTermConfig() VariantConfig {
	return VariantConfig{
		Name:            "long_term",
		Cooldown:        48 * time.Hour,
		ConfidenceFloor: 55,
		MaxHold:         504 * time.Hour,
		HoldText:        "2-3 weeks",
		TargetPercent: map[config.Tier]float64{
			config.TierBlueChip:   12,
			config.TierHighGrowth: 18,
			config.TierMeme:       30,
			config.TierNarrative:  22,
			config.TierEmerging:   25,
		},
		Entry: func(ec *EvalContext) (bool, []string) {
			snap := ec.Snap
			if snap.EMA200 <= 0 {
				return false, nil
			}

			emaDist := (snap.Price - snap.EMA200) / snap.EMA200
			if emaDist < -0.05 {
				return false, nil
			}
			if snap.BBPosition() > 0.65 {
				return false, nil
			}
			if snap.RSI > 40 {
				return false, nil
			}

			// Knife-catch veto: oversold and still accelerating down
			// on the latest candle.
			rsiDelta := snap.RSI - snap.PrevRSI
			candleChange := 0.0
			if snap.PrevClose > 0 {
				candleChange = (snap.Price - snap.PrevClose) / snap.PrevClose * 100
			}
			if snap.RSI < 35 && candleChange < -2 && rsiDelta < -2 {
				return false, nil
			}

			return true, []string{
				fmt.Sprintf("price %.1f%% from EMA200", emaDist*100),
				fmt.Sprintf("RSI %.1f oversold", snap.RSI),
				fmt.Sprintf("Bollinger position %.2f", snap.BBPosition()),
			}
		},
		Technical: func(ec *EvalContext) float64 {
			snap := ec.Snap
			score := 50.0
			if snap.RSI <= 40 {
				score += clip(40-snap.RSI, 0, 25)
			}
			if snap.BBPosition() < 0.35 {
				score += 10
			}
			if snap.Price > snap.EMA200 {
				score += 10
			}
			if snap.MACDHistogram > snap.PrevMACDHistogram {
				score += 5
			}
			return clip(score, 0, 100)
		},
		StopLoss: func(ec *EvalContext) float64 {
			support := ec.Structure.Support
			if support.Strength >= 50 && support.Price < ec.Snap.Price {
				return support.Price * 0.995
			}
			// 6-10% scaled by volatility.
			pct := 6 + 4*ec.Regime.VolatilityPercentile/100
			return ec.Snap.Price * (1 - pct/100)
		},
	}
}

// SwingConfig rides confirmed uptrends on pullbacks to the 50 EMA.
func SwingConfig() VariantConfig {
	return VariantConfig{
		Name:            "swing",
		Cooldown:        96 * time.Hour,
		ConfidenceFloor: 55,
		MaxHold:         240 * time.Hour,
		HoldText:        "3-10 days",
		TargetPercent: map[config.Tier]float64{
			config.TierBlueChip:   8,
			config.TierHighGrowth: 10,
			config.TierMeme:       15,
			config.TierNarrative:  12,
			config.TierEmerging:   14,
		},
		Entry: func(ec *EvalContext) (bool, []string) {
			snap := ec.Snap
			if snap.EMA50 <= 0 || snap.EMA200 <= 0 {
				return false, nil
			}

			gap := (snap.EMA50 - snap.EMA200) / snap.EMA200
			if gap < 0.005 {
				return false, nil
			}
			if snap.Price < snap.EMA50*0.95 {
				return false, nil
			}
			if snap.Price < snap.EMA200*0.98 {
				return false, nil
			}
			macdOK := snap.MACDHistogram > 0 || snap.MACDHistogram > snap.PrevMACDHistogram
			if !macdOK {
				return false, nil
			}
			if ec.Structure.Trend4h == structure.TrendBearish || ec.Structure.Trend1d == structure.TrendBearish {
				return false, nil
			}
			if snap.RSI < 35 || snap.RSI > 58 {
				return false, nil
			}

			return true, []string{
				fmt.Sprintf("golden cross gap %.2f%%", gap*100),
				fmt.Sprintf("pullback to EMA50 with RSI %.1f", snap.RSI),
				"MACD histogram positive or turning up",
			}
		},
		Technical: func(ec *EvalContext) float64 {
			snap := ec.Snap
			score := 40.0
			gap := (snap.EMA50 - snap.EMA200) / snap.EMA200
			if gap >= 0.005 {
				score += 20
			}
			if snap.MACDHistogram > 0 {
				score += 15
			}
			if snap.MACDHistogram > snap.PrevMACDHistogram {
				score += 15
			}
			if snap.RSI >= 40 && snap.RSI <= 55 {
				score += 10
			}
			return clip(score, 0, 100)
		},
		StopLoss: func(ec *EvalContext) float64 {
			support := ec.Structure.Support
			if support.Strength >= 60 && support.Price < ec.Snap.Price {
				return support.Price * 0.985
			}
			// 5.5-9% scaled by volatility.
			pct := 5.5 + 3.5*ec.Regime.VolatilityPercentile/100
			return ec.Snap.Price * (1 - pct/100)
		},
	}
}

// ScalpingConfig hunts short oversold bounces on a volume push.
// Positions auto-exit after an hour.
func ScalpingConfig(newsFilter bool) VariantConfig {
	return VariantConfig{
		Name:            "scalping",
		Cooldown:        6 * time.Hour,
		ConfidenceFloor: 50,
		MaxHold:         time.Hour,
		HoldText:        "under 1 hour",
		RiskFloor:       true,
		TargetPercent: map[config.Tier]float64{
			config.TierBlueChip:   5,
			config.TierHighGrowth: 8,
			config.TierMeme:       12,
			config.TierNarrative:  9,
			config.TierEmerging:   10,
		},
		Entry: func(ec *EvalContext) (bool, []string) {
			snap := ec.Snap
			// No scalps in quiet markets; the style needs movement.
			if ec.Regime.VolatilityPercentile < 60 {
				return false, nil
			}
			if snap.RSI > 38 {
				return false, nil
			}
			if snap.BBPosition() > 0.55 {
				return false, nil
			}
			if snap.VolumeRatio() < 1.2 {
				return false, nil
			}

			reasons := []string{
				fmt.Sprintf("RSI %.1f with %.1fx volume", snap.RSI, snap.VolumeRatio()),
				fmt.Sprintf("Bollinger position %.2f", snap.BBPosition()),
			}

			if newsFilter && ec.News != nil {
				if sentiment, ok := ec.News.Sentiment(snap.Symbol); ok {
					if sentiment < -0.3 {
						return false, nil
					}
					if sentiment > 0.3 {
						reasons = append(reasons, "positive news backdrop")
					}
				}
			}

			return true, reasons
		},
		Technical: func(ec *EvalContext) float64 {
			snap := ec.Snap
			score := 45.0
			if snap.RSI <= 38 {
				score += clip(1.5*(38-snap.RSI), 0, 30)
			}
			if snap.BBPosition() < 0.3 {
				score += 10
			}
			if snap.VolumeRatio() >= 1.5 {
				score += 10
			}
			if ec.News != nil {
				if sentiment, ok := ec.News.Sentiment(snap.Symbol); ok && sentiment > 0.3 {
					score += 5
				}
			}
			return clip(score, 0, 100)
		},
		StopLoss: func(ec *EvalContext) float64 {
			// 4-6% scaled by volatility, always percent based for
			// fast exits.
			pct := 4 + 2*ec.Regime.VolatilityPercentile/100
			return ec.Snap.Price * (1 - pct/100)
		},
	}
}

// OpportunisticConfig waits for compressed volatility or bullish
// divergence paired with a heavy volume push.
func OpportunisticConfig() VariantConfig {
	return VariantConfig{
		Name:            "opportunistic",
		Cooldown:        72 * time.Hour,
		ConfidenceFloor: 60,
		MaxHold:         168 * time.Hour,
		HoldText:        "2-7 days",
		RiskFloor:       true,
		TargetPercent: map[config.Tier]float64{
			config.TierBlueChip:   9,
			config.TierHighGrowth: 16,
			config.TierMeme:       28,
			config.TierNarrative:  19,
			config.TierEmerging:   22,
		},
		Entry: func(ec *EvalContext) (bool, []string) {
			snap := ec.Snap
			if snap.RSI > 45 {
				return false, nil
			}
			if snap.VolumeRatio() < 1.8 {
				return false, nil
			}

			squeeze := snap.SqueezeRatio() < 0.7
			divergence := DetectBullishDivergence(snap)
			if !squeeze && divergence == 0 {
				return false, nil
			}

			reasons := []string{
				fmt.Sprintf("volume surge %.1fx average", snap.VolumeRatio()),
			}
			if squeeze {
				reasons = append(reasons, fmt.Sprintf("volatility squeeze, band ratio %.2f", snap.SqueezeRatio()))
			}
			if divergence > 0 {
				reasons = append(reasons, fmt.Sprintf("bullish RSI divergence, score %.0f", divergence))
			}
			return true, reasons
		},
		Technical: func(ec *EvalContext) float64 {
			snap := ec.Snap
			score := 40.0
			score += 0.3 * SqueezeScore(snap)
			score += 0.5 * DetectBullishDivergence(snap)
			if snap.RSI <= 45 {
				score += clip(0.5*(45-snap.RSI), 0, 15)
			}
			return clip(score, 0, 100)
		},
		StopLoss: func(ec *EvalContext) float64 {
			// 6-10% scaled by volatility, one point tighter when the
			// squeeze is extreme.
			pct := 6 + 4*ec.Regime.VolatilityPercentile/100
			if SqueezeScore(ec.Snap) > 80 {
				pct -= 1
			}
			return ec.Snap.Price * (1 - pct/100)
		},
	}
}
