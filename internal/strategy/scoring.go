package strategy

import (
	"crypto-signal-bot/internal/regime"
)

// regimeScore maps each regime onto a long-bias friendliness score.
var regimeScores = map[regime.Regime]float64{
	regime.StrongBull:       90,
	regime.WeakBull:         75,
	regime.BreakoutPending:  65,
	regime.Consolidation:    55,
	regime.RangeBound:       50,
	regime.SpontaneousEvent: 35,
	regime.HighVolatility:   30,
	regime.WeakBear:         25,
	regime.StrongBear:       15,
}

// Confidence blends the five analysis dimensions with fixed weights.
// Regime context weighs 25%, the variant's own technical read 30%,
// structure 20%, volume 15% and timeframe alignment 10%.
func Confidence(ec *EvalContext, technical float64) float64 {
	regimePart := regimeScores[ec.Regime.Regime]
	structurePart := clip(0.6*ec.Structure.Support.Strength+0.4*ec.Structure.TrendStrength, 0, 100)

	score := 0.25*regimePart +
		0.30*clip(technical, 0, 100) +
		0.20*structurePart +
		0.15*ec.Structure.VolumePercentile +
		0.10*ec.Structure.TimeframeAlignment

	return clip(score, 0, 100)
}

// RiskScore sums the risk contributions from volatility, volume
// trend, structural weakness and regime warnings.
func RiskScore(ec *EvalContext) float64 {
	score := 0.0

	vol := ec.Regime.VolatilityPercentile
	switch {
	case vol > 95:
		score += 40
	case vol > 85:
		score += 30
	case vol > 70:
		score += 20
	case vol > 50:
		score += 10
	}

	switch ec.Structure.VolumeTrend {
	case "decreasing":
		score += 20
	case "stable":
		score += 10
	}

	switch {
	case ec.Structure.TrendStrength < 30:
		score += 20
	case ec.Structure.TrendStrength < 50:
		score += 10
	}

	warningPenalty := 7 * float64(len(ec.Regime.Warnings))
	if warningPenalty > 20 {
		warningPenalty = 20
	}
	score += warningPenalty

	return score
}

// RiskLevelFor buckets a risk score.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 70:
		return RiskExtreme
	case score >= 50:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
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
