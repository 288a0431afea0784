package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/circuit"
	"crypto-signal-bot/internal/logging"
)

// ProviderConfig holds the indicator provider configuration
type ProviderConfig struct {
	Interval    string
	KlineLimit  int
	MaxRetries  int
	CacheTTL    time.Duration
	BreakerConf *circuit.BreakerConfig
}

// Provider fetches indicator snapshots through a ranked list of data
// sources. Each source carries its own circuit breaker; a source whose
// circuit is open is skipped until its cooldown elapses. A symbol
// whose every source fails is skipped for the tick, never fatal.
type Provider struct {
	sources  []Source
	breakers map[string]*circuit.Breaker
	cache    *SnapshotCache
	config   ProviderConfig
	logger   zerolog.Logger

	onSourceState func(source string, state circuit.BreakerState)
}

// NewProvider creates a provider over ranked sources, preferred first.
func NewProvider(sources []Source, cache *SnapshotCache, config ProviderConfig) *Provider {
	logger := logging.Component("IndicatorProvider")

	p := &Provider{
		sources:  sources,
		breakers: make(map[string]*circuit.Breaker, len(sources)),
		cache:    cache,
		config:   config,
		logger:   logger,
	}

	for _, src := range sources {
		b := circuit.NewBreaker(src.Name(), config.BreakerConf)
		b.OnStateChange(func(source string, state circuit.BreakerState) {
			logger.Warn().Str("source", source).Str("state", string(state)).Msg("data source circuit state changed")
			if p.onSourceState != nil {
				p.onSourceState(source, state)
			}
		})
		p.breakers[src.Name()] = b
	}

	return p
}

// OnSourceStateChange registers a callback for source circuit
// transitions, in addition to the provider's own logging. Must be
// called before the first Fetch.
func (p *Provider) OnSourceStateChange(fn func(source string, state circuit.BreakerState)) {
	p.onSourceState = fn
}

// Fetch returns the indicator snapshot for a symbol, from cache when
// fresh. Returns nil with no error when every source is down, which
// callers treat as skip-this-symbol.
func (p *Provider) Fetch(ctx context.Context, symbol string) (*IndicatorSnapshot, error) {
	if p.cache != nil {
		if snap := p.cache.Get(ctx, symbol); snap != nil {
			return snap, nil
		}
	}

	for _, src := range p.sources {
		breaker := p.breakers[src.Name()]
		if ok, reason := breaker.Allow(); !ok {
			p.logger.Debug().Str("symbol", symbol).Str("source", src.Name()).Str("reason", reason).Msg("skipping source")
			continue
		}

		klines, err := p.fetchWithRetry(ctx, src, breaker, symbol)
		if err != nil {
			breaker.RecordFailure(err)
			p.logger.Warn().Err(err).Str("symbol", symbol).Str("source", src.Name()).Msg("source failed, trying next")
			continue
		}

		snap := BuildSnapshot(symbol, src.Name(), klines)
		if snap == nil {
			err := fmt.Errorf("insufficient history for %s: %d candles", symbol, len(klines))
			breaker.RecordFailure(err)
			p.logger.Warn().Err(err).Str("source", src.Name()).Msg("source returned short history")
			continue
		}

		breaker.RecordSuccess()
		if p.cache != nil {
			p.cache.Put(ctx, snap)
		}
		return snap, nil
	}

	p.logger.Error().Str("symbol", symbol).Msg("all data sources failed, skipping symbol")
	return nil, nil
}

// fetchWithRetry retries one source with exponential backoff before
// handing the failure to its breaker.
func (p *Provider) fetchWithRetry(ctx context.Context, src Source, breaker *circuit.Breaker, symbol string) ([]Kline, error) {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(breaker.Backoff(attempt - 1)):
			}
		}

		klines, err := src.FetchKlines(ctx, symbol, p.config.Interval, p.config.KlineLimit)
		if err == nil {
			return klines, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", p.config.MaxRetries, lastErr)
}

// Price returns the latest traded price for a symbol. Sources that
// expose a lightweight ticker endpoint are tried first, then the
// snapshot path.
func (p *Provider) Price(ctx context.Context, symbol string) (float64, error) {
	for _, src := range p.sources {
		ticker, ok := src.(PriceSource)
		if !ok {
			continue
		}
		breaker := p.breakers[src.Name()]
		if allowed, _ := breaker.Allow(); !allowed {
			continue
		}
		price, err := ticker.FetchPrice(ctx, symbol)
		if err != nil {
			breaker.RecordFailure(err)
			continue
		}
		breaker.RecordSuccess()
		return price, nil
	}

	snap, err := p.Fetch(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if snap == nil {
		return 0, fmt.Errorf("no price available for %s", symbol)
	}
	return snap.Price, nil
}

// SourceStats returns per-source circuit breaker statistics.
func (p *Provider) SourceStats() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(p.sources))
	for _, src := range p.sources {
		out = append(out, p.breakers[src.Name()].Stats())
	}
	return out
}
