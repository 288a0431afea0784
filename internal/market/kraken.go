package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// krakenBases maps base assets to Kraken's asset codes.
var krakenBases = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// KrakenSource fetches OHLC history from the Kraken public API.
type KrakenSource struct {
	baseURL string
	client  *http.Client
}

// NewKrakenSource creates a Kraken market data source.
func NewKrakenSource(baseURL string, timeout time.Duration) *KrakenSource {
	return &KrakenSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (k *KrakenSource) Name() string {
	return "kraken"
}

type krakenOHLCResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// FetchKlines fetches OHLC candles. Kraken intervals are expressed in
// minutes; only hourly is used here.
func (k *KrakenSource) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	base := baseAsset(symbol)
	if mapped, ok := krakenBases[base]; ok {
		base = mapped
	}
	pair := base + "USD"

	minutes := 60
	if strings.HasSuffix(interval, "m") {
		if v, err := strconv.Atoi(strings.TrimSuffix(interval, "m")); err == nil {
			minutes = v
		}
	}

	url := fmt.Sprintf("%s/0/public/OHLC?pair=%s&interval=%d", k.baseURL, pair, minutes)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building OHLC request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OHLC: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading OHLC response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OHLC request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed krakenOHLCResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing OHLC response: %w", err)
	}
	if len(parsed.Error) > 0 {
		return nil, fmt.Errorf("OHLC request rejected: %s", strings.Join(parsed.Error, ", "))
	}

	// The result holds the candle array under Kraken's canonical pair
	// name plus a "last" cursor field.
	var rows [][]interface{}
	for key, raw := range parsed.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("parsing OHLC rows: %w", err)
		}
		break
	}

	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		ts, ok := row[0].(float64)
		if !ok {
			continue
		}
		open, err1 := krakenField(row[1])
		high, err2 := krakenField(row[2])
		low, err3 := krakenField(row[3])
		close, err4 := krakenField(row[4])
		volume, err5 := krakenField(row[6])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		klines = append(klines, Kline{
			OpenTime: time.Unix(int64(ts), 0),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   volume,
		})
	}

	if len(klines) == 0 {
		return nil, fmt.Errorf("empty OHLC response for %s", symbol)
	}
	if len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}

func krakenField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected OHLC field type %T", v)
	}
	return strconv.ParseFloat(s, 64)
}
