package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// BinanceSource fetches klines from the Binance public REST API.
type BinanceSource struct {
	baseURL string
	client  *http.Client
}

// NewBinanceSource creates a Binance kline source.
func NewBinanceSource(baseURL string, timeout time.Duration) *BinanceSource {
	return &BinanceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *BinanceSource) Name() string {
	return "binance"
}

// FetchKlines fetches OHLCV candles for a symbol.
func (b *BinanceSource) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		b.baseURL, symbol, interval, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building klines request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading klines response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines request failed: status %d: %s", resp.StatusCode, string(body))
	}

	// Binance encodes each candle as a mixed-type array.
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing klines response: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		k := Kline{OpenTime: time.UnixMilli(int64(openTime))}
		var parseErr error
		k.Open, parseErr = parseField(row[1], parseErr)
		k.High, parseErr = parseField(row[2], parseErr)
		k.Low, parseErr = parseField(row[3], parseErr)
		k.Close, parseErr = parseField(row[4], parseErr)
		k.Volume, parseErr = parseField(row[5], parseErr)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing kline row: %w", parseErr)
		}
		klines = append(klines, k)
	}

	if len(klines) == 0 {
		return nil, fmt.Errorf("empty kline response for %s", symbol)
	}
	return klines, nil
}

// FetchPrice returns the latest traded price from the ticker endpoint.
func (b *BinanceSource) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building ticker request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching ticker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading ticker response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("parsing ticker response: %w", err)
	}
	return strconv.ParseFloat(ticker.Price, 64)
}

func parseField(v interface{}, prev error) (float64, error) {
	if prev != nil {
		return 0, prev
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected kline field type %T", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return f, nil
}
