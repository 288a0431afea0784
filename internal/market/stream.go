package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
)

// PriceStream keeps a live price map fed by the Binance miniTicker
// websocket stream. The position monitor reads from it between polls
// so exits react faster than the REST cadence allows. Reconnects
// forever with backoff; a dead stream degrades to REST polling.
type PriceStream struct {
	endpoint string
	symbols  []string

	mu     sync.RWMutex
	prices map[string]float64
	asOf   map[string]time.Time

	logger zerolog.Logger
}

// NewPriceStream creates a stream for a fixed symbol set.
func NewPriceStream(symbols []string) *PriceStream {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}

	return &PriceStream{
		endpoint: fmt.Sprintf("wss://stream.binance.com:9443/stream?streams=%s", strings.Join(streams, "/")),
		symbols:  symbols,
		prices:   make(map[string]float64),
		asOf:     make(map[string]time.Time),
		logger:   logging.Component("PriceStream"),
	}
}

type miniTickerEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

// Run connects and consumes ticker events until the context ends.
func (ps *PriceStream) Run(ctx context.Context) {
	if len(ps.symbols) == 0 {
		return
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := ps.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		ps.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (ps *PriceStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ps.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing stream: %w", err)
	}
	defer conn.Close()

	ps.logger.Info().Int("symbols", len(ps.symbols)).Msg("price stream connected")

	// Close the connection when the context ends so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}

		var env miniTickerEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(env.Data.Close, 64)
		if err != nil || price <= 0 {
			continue
		}

		ps.mu.Lock()
		ps.prices[env.Data.Symbol] = price
		ps.asOf[env.Data.Symbol] = time.Now()
		ps.mu.Unlock()
	}
}

// Price returns the last streamed price for a symbol if fresh enough.
func (ps *PriceStream) Price(symbol string, maxAge time.Duration) (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	price, ok := ps.prices[symbol]
	if !ok {
		return 0, false
	}
	if time.Since(ps.asOf[symbol]) > maxAge {
		return 0, false
	}
	return price, true
}
