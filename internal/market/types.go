package market

import (
	"time"
)

// Kline represents a single OHLCV candle
type Kline struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// IndicatorSnapshot is an immutable view of a symbol's market state
// at one tick. All downstream analysis works from this struct and
// never refetches.
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	Price          float64 `json:"price"`
	PrevClose      float64 `json:"prev_close"`
	PriceChange24h float64 `json:"price_change_24h"` // percent over the trailing 24 candles

	RSI     float64 `json:"rsi"`
	PrevRSI float64 `json:"prev_rsi"`

	EMA50  float64 `json:"ema_50"`
	EMA200 float64 `json:"ema_200"`

	MACD              float64 `json:"macd"`
	MACDSignal        float64 `json:"macd_signal"`
	MACDHistogram     float64 `json:"macd_histogram"`
	PrevMACDHistogram float64 `json:"prev_macd_histogram"`

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`

	BandWidth    float64 `json:"band_width"`     // (upper-lower)/middle
	AvgBandWidth float64 `json:"avg_band_width"` // 20-period average of band width

	Volume      float64 `json:"volume"`
	AvgVolume20 float64 `json:"avg_volume_20"`

	// Closes and RSISeries carry recent history for regime math and
	// divergence detection. Closes is ordered oldest to newest.
	Closes    []float64 `json:"closes"`
	RSISeries []float64 `json:"rsi_series"`
}

// BBPosition returns where price sits inside the Bollinger channel,
// 0 at the lower band and 1 at the upper. Values can exceed [0,1]
// when price escapes the bands.
func (s *IndicatorSnapshot) BBPosition() float64 {
	width := s.BBUpper - s.BBLower
	if width <= 0 {
		return 0.5
	}
	return (s.Price - s.BBLower) / width
}

// VolumeRatio returns current volume relative to the 20-period average.
func (s *IndicatorSnapshot) VolumeRatio() float64 {
	if s.AvgVolume20 <= 0 {
		return 1.0
	}
	return s.Volume / s.AvgVolume20
}

// SqueezeRatio returns current band width relative to its 20-period
// average. Ratios below 0.7 mark a volatility squeeze.
func (s *IndicatorSnapshot) SqueezeRatio() float64 {
	if s.AvgBandWidth <= 0 {
		return 1.0
	}
	return s.BandWidth / s.AvgBandWidth
}

// Returns computes the simple return series from the close history.
func (s *IndicatorSnapshot) Returns() []float64 {
	if len(s.Closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s.Closes)-1)
	for i := 1; i < len(s.Closes); i++ {
		prev := s.Closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (s.Closes[i]-prev)/prev)
	}
	return out
}
