package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// coinIDs maps common base assets to CoinGecko coin ids. Unlisted
// bases fall back to the lowercased asset name.
var coinIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"DOT":   "polkadot",
	"ADA":   "cardano",
	"MATIC": "matic-network",
	"DOGE":  "dogecoin",
	"SHIB":  "shiba-inu",
	"PEPE":  "pepe",
	"FET":   "fetch-ai",
	"RNDR":  "render-token",
	"INJ":   "injective-protocol",
	"SEI":   "sei-network",
	"TIA":   "celestia",
	"SUI":   "sui",
}

// CoinGeckoSource fetches hourly price and volume history from the
// CoinGecko market_chart API and synthesizes candles from it. High
// and low are approximated from adjacent closes.
type CoinGeckoSource struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoSource creates a CoinGecko market data source.
func NewCoinGeckoSource(baseURL string, timeout time.Duration) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *CoinGeckoSource) Name() string {
	return "coingecko"
}

type marketChartResponse struct {
	Prices       [][]float64 `json:"prices"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// FetchKlines returns synthesized hourly candles. The interval
// argument is ignored; CoinGecko returns hourly granularity for
// multi-day ranges.
func (c *CoinGeckoSource) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	base := baseAsset(symbol)
	id, ok := coinIDs[base]
	if !ok {
		id = strings.ToLower(base)
	}

	days := limit/24 + 1
	url := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d",
		c.baseURL, id, days)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building market_chart request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching market_chart: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading market_chart response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market_chart request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var chart marketChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("parsing market_chart response: %w", err)
	}
	if len(chart.Prices) < 2 {
		return nil, fmt.Errorf("empty market_chart response for %s", symbol)
	}

	volumes := make(map[int64]float64, len(chart.TotalVolumes))
	for _, v := range chart.TotalVolumes {
		if len(v) == 2 {
			volumes[int64(v[0])] = v[1]
		}
	}

	klines := make([]Kline, 0, len(chart.Prices)-1)
	for i := 1; i < len(chart.Prices); i++ {
		prev, cur := chart.Prices[i-1], chart.Prices[i]
		if len(prev) < 2 || len(cur) < 2 {
			continue
		}
		open, close := prev[1], cur[1]
		high, low := open, close
		if close > high {
			high = close
		}
		if open < low {
			low = open
		}
		klines = append(klines, Kline{
			OpenTime: time.UnixMilli(int64(cur[0])),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   volumes[int64(cur[0])],
		})
	}

	if len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}
