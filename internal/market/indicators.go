package market

import "math"

// CalculateSMA calculates Simple Moving Average over the last period closes
func CalculateSMA(klines []Kline, period int) float64 {
	if len(klines) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average
func CalculateEMA(klines []Kline, period int) float64 {
	if len(klines) < period || period <= 0 {
		return 0
	}

	sma := CalculateSMA(klines[:period], period)
	multiplier := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// emaSeries returns the running EMA over an arbitrary value series.
// The first period-1 entries repeat the seed SMA.
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	out := make([]float64, len(values))
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	seed := sum / float64(period)
	for i := 0; i < period; i++ {
		out[i] = seed
	}

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i] * multiplier) + (out[i-1] * (1 - multiplier))
	}
	return out
}

// CalculateRSI calculates the Relative Strength Index over the last
// period+1 closes, 50 when history is too short.
func CalculateRSI(klines []Kline, period int) float64 {
	if len(klines) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0

	for i := len(klines) - period; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// CalculateRSISeries returns the trailing RSI values for the last
// count candles, oldest first.
func CalculateRSISeries(klines []Kline, period, count int) []float64 {
	if count <= 0 {
		return nil
	}
	out := make([]float64, 0, count)
	for i := count - 1; i >= 0; i-- {
		end := len(klines) - i
		if end < period+1 {
			continue
		}
		out = append(out, CalculateRSI(klines[:end], period))
	}
	return out
}

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD          float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// CalculateMACD calculates the MACD line, signal line (EMA of the MACD
// series) and histogram, plus the previous candle's histogram.
func CalculateMACD(klines []Kline, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(klines) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	macdLine := make([]float64, 0, len(closes)-slowPeriod+1)
	for i := slowPeriod - 1; i < len(closes); i++ {
		macdLine = append(macdLine, fast[i]-slow[i])
	}

	signal := emaSeries(macdLine, signalPeriod)
	if signal == nil {
		return &MACDResult{}
	}

	last := len(macdLine) - 1
	result := &MACDResult{
		MACD:      macdLine[last],
		Signal:    signal[last],
		Histogram: macdLine[last] - signal[last],
	}
	if last > 0 {
		result.PrevHistogram = macdLine[last-1] - signal[last-1]
	}
	return result
}

// BollingerBandsResult holds Bollinger Bands values
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollingerBands calculates Bollinger Bands
func CalculateBollingerBands(klines []Kline, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if len(klines) < period {
		return &BollingerBandsResult{}
	}

	middle := CalculateSMA(klines, period)

	variance := 0.0
	startIdx := len(klines) - period
	for i := startIdx; i < len(klines); i++ {
		diff := klines[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerBandsResult{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
}

// bandWidth returns the normalized Bollinger band width at the given
// end offset into the kline slice.
func bandWidth(klines []Kline, period int, mult float64) float64 {
	bb := CalculateBollingerBands(klines, period, mult)
	if bb.Middle == 0 {
		return 0
	}
	return (bb.Upper - bb.Lower) / bb.Middle
}

// CalculateAvgBandWidth averages the Bollinger band width over the
// trailing count candles.
func CalculateAvgBandWidth(klines []Kline, period int, mult float64, count int) float64 {
	sum := 0.0
	n := 0
	for i := 0; i < count; i++ {
		end := len(klines) - i
		if end < period {
			break
		}
		sum += bandWidth(klines[:end], period, mult)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CalculateAverageVolume calculates average volume over a period
func CalculateAverageVolume(klines []Kline, period int) float64 {
	if len(klines) == 0 {
		return 0
	}
	if len(klines) < period {
		period = len(klines)
	}

	sum := 0.0
	startIdx := len(klines) - period
	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Volume
	}

	return sum / float64(period)
}

// BuildSnapshot computes the full indicator set from a kline history.
// Returns nil when there is not enough history for EMA200.
func BuildSnapshot(symbol, source string, klines []Kline) *IndicatorSnapshot {
	if len(klines) < 201 {
		return nil
	}

	last := klines[len(klines)-1]
	macd := CalculateMACD(klines, 12, 26, 9)
	bb := CalculateBollingerBands(klines, 20, 2)
	rsiSeries := CalculateRSISeries(klines, 14, 16)

	snap := &IndicatorSnapshot{
		Symbol:    symbol,
		Source:    source,
		Timestamp: last.OpenTime,

		Price:     last.Close,
		PrevClose: klines[len(klines)-2].Close,

		RSI:     CalculateRSI(klines, 14),
		PrevRSI: CalculateRSI(klines[:len(klines)-1], 14),

		EMA50:  CalculateEMA(klines, 50),
		EMA200: CalculateEMA(klines, 200),

		MACD:              macd.MACD,
		MACDSignal:        macd.Signal,
		MACDHistogram:     macd.Histogram,
		PrevMACDHistogram: macd.PrevHistogram,

		BBUpper:  bb.Upper,
		BBMiddle: bb.Middle,
		BBLower:  bb.Lower,

		BandWidth:    bandWidth(klines, 20, 2),
		AvgBandWidth: CalculateAvgBandWidth(klines, 20, 2, 20),

		Volume:      last.Volume,
		AvgVolume20: CalculateAverageVolume(klines[:len(klines)-1], 20),

		RSISeries: rsiSeries,
	}

	if len(klines) >= 25 {
		past := klines[len(klines)-25].Close
		if past > 0 {
			snap.PriceChange24h = (last.Close - past) / past * 100
		}
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	snap.Closes = closes

	return snap
}
