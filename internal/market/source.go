package market

import (
	"context"
	"strings"
)

// Source fetches raw candle history for one symbol from an upstream
// market data API. Implementations must be safe for concurrent use.
type Source interface {
	Name() string
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// PriceSource is implemented by sources that expose a cheap spot
// price endpoint, used by the position monitor between full fetches.
type PriceSource interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// baseAsset strips the quote currency from a Binance-style pair.
func baseAsset(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return strings.TrimSuffix(upper, quote)
		}
	}
	return upper
}
