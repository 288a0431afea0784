package strategy

import "crypto-signal-bot/internal/market"

// SqueezeScore rates how compressed the Bollinger bands are relative
// to their recent average width. 0 means no squeeze, 100 an extreme
// one.
func SqueezeScore(snap *market.IndicatorSnapshot) float64 {
	ratio := snap.SqueezeRatio()
	switch {
	case ratio >= 0.7:
		return 0
	case ratio >= 0.6:
		return 20
	case ratio >= 0.5:
		return 40
	case ratio >= 0.4:
		return 60
	case ratio >= 0.3:
		return 80
	default:
		return 100
	}
}

// DetectBullishDivergence looks for price making a lower low while
// RSI makes a higher low across the recent window. Returns a 0-40
// score scaled by how decisive the divergence is, 0 when absent.
func DetectBullishDivergence(snap *market.IndicatorSnapshot) float64 {
	rsi := snap.RSISeries
	closes := snap.Closes
	if len(rsi) < 8 || len(closes) < len(rsi) {
		return 0
	}

	closes = closes[len(closes)-len(rsi):]
	mid := len(rsi) / 2

	priorPriceLow, priorRSILow := windowLows(closes[:mid], rsi[:mid])
	recentPriceLow, recentRSILow := windowLows(closes[mid:], rsi[mid:])

	if recentPriceLow >= priorPriceLow || recentRSILow <= priorRSILow {
		return 0
	}

	priceDrop := (priorPriceLow - recentPriceLow) / priorPriceLow * 100
	rsiGain := recentRSILow - priorRSILow

	switch {
	case rsiGain >= 7 && priceDrop >= 2:
		return 40
	case rsiGain >= 4:
		return 30
	case rsiGain >= 2:
		return 20
	default:
		return 10
	}
}

// windowLows returns the lowest close and the RSI low of a window.
func windowLows(closes, rsi []float64) (float64, float64) {
	priceLow := closes[0]
	rsiLow := rsi[0]
	for i := range closes {
		if closes[i] < priceLow {
			priceLow = closes[i]
		}
		if rsi[i] < rsiLow {
			rsiLow = rsi[i]
		}
	}
	return priceLow, rsiLow
}
