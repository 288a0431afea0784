package position

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
)

// PriceFeed supplies the monitor with prices. The market provider
// satisfies it.
type PriceFeed interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Monitor is the independent loop that watches open positions. It
// prefers streamed prices and falls back to REST polling, so a dead
// websocket never stops exit handling.
type Monitor struct {
	manager  *Manager
	feed     PriceFeed
	stream   *market.PriceStream
	interval time.Duration

	// partialThreshold is the fraction of the target gain at which
	// the one-shot partial exit advisory fires.
	partialThreshold float64

	// OnExit and OnPartial are invoked outside the manager lock. Set
	// before Run.
	OnExit    func(ctx context.Context, result *CheckResult)
	OnPartial func(ctx context.Context, pos *Position, price float64)

	logger zerolog.Logger
}

// NewMonitor creates the monitor loop. stream may be nil.
func NewMonitor(manager *Manager, feed PriceFeed, stream *market.PriceStream, interval time.Duration, partialThreshold float64) *Monitor {
	return &Monitor{
		manager:          manager,
		feed:             feed,
		stream:           stream,
		interval:         interval,
		partialThreshold: partialThreshold,
		logger:           logging.Component("PositionMonitor"),
	}
}

// Run polls open positions until the context ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("position monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("position monitor stopped")
			return
		case <-ticker.C:
			m.pass(ctx)
		}
	}
}

// pass checks every open position once. A failing symbol is logged
// and skipped, never fatal for the loop.
func (m *Monitor) pass(ctx context.Context) {
	for _, symbol := range m.manager.OpenSymbols() {
		price, err := m.price(ctx, symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("no price this pass, skipping")
			continue
		}

		result, err := m.manager.Check(ctx, symbol, price, m.partialThreshold)
		if err != nil {
			m.logger.Error().Err(err).Str("symbol", symbol).Msg("exit check failed, will retry next pass")
			continue
		}
		if result == nil {
			continue
		}

		if result.Closed && m.OnExit != nil {
			m.OnExit(ctx, result)
		}
		if result.PartialAdvice && m.OnPartial != nil {
			m.OnPartial(ctx, result.Position, price)
		}
	}
}

func (m *Monitor) price(ctx context.Context, symbol string) (float64, error) {
	if m.stream != nil {
		if price, ok := m.stream.Price(symbol, 2*m.interval); ok {
			return price, nil
		}
	}
	return m.feed.Price(ctx, symbol)
}
