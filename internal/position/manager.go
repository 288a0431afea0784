package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/strategy"
)

// Store persists positions across restarts. Close is atomic: the
// position row flips to CLOSED and the outcome row is appended in one
// transaction.
type Store interface {
	SavePosition(ctx context.Context, pos *Position) error
	CloseTrade(ctx context.Context, pos *Position) error
	LoadOpenPositions(ctx context.Context) ([]*Position, error)
}

// Manager is the single source of truth for open positions. It
// implements the read-only view strategies consult, so no strategy
// carries its own active set.
type Manager struct {
	mu        sync.RWMutex
	open      map[string]*Position // keyed by symbol, one open holding per symbol
	store     Store
	logger    zerolog.Logger
	closedCnt int
}

// NewManager creates a position manager. store may be nil, in which
// case state lives only in memory.
func NewManager(store Store) *Manager {
	return &Manager{
		open:   make(map[string]*Position),
		store:  store,
		logger: logging.Component("PositionManager"),
	}
}

// Restore loads persisted open positions, called once at startup.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	positions, err := m.store.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading open positions: %w", err)
	}

	m.mu.Lock()
	for _, pos := range positions {
		m.open[pos.Symbol] = pos
	}
	m.mu.Unlock()

	m.logger.Info().Int("count", len(positions)).Msg("restored open positions")
	return nil
}

// HasOpenPosition implements strategy.PositionReader.
func (m *Manager) HasOpenPosition(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.open[symbol]
	return ok
}

var _ strategy.PositionReader = (*Manager)(nil)

// Open creates a tracked position from a sent signal.
func (m *Manager) Open(ctx context.Context, sig *strategy.Signal, maxHold time.Duration) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.open[sig.Symbol]; exists {
		return nil, fmt.Errorf("position already open for %s", sig.Symbol)
	}

	targetPct := 0.0
	if sig.EntryPrice > 0 {
		targetPct = (sig.TargetPrice - sig.EntryPrice) / sig.EntryPrice * 100
	}

	pos := &Position{
		ID:          uuid.New().String(),
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Strategy:    sig.Strategy,
		Tier:        sig.Tier,
		EntryPrice:  sig.EntryPrice,
		StopLoss:    sig.StopLoss,
		TargetPrice: sig.TargetPrice,
		Confidence:  sig.FinalConfidence(),

		ExpectedProfitMin: 0.5 * targetPct,
		ExpectedProfitMax: targetPct,

		Status:   StatusOpen,
		OpenedAt: time.Now(),
		MaxHold:  maxHold,
		MaxPrice: sig.EntryPrice,
		MinPrice: sig.EntryPrice,
	}

	if m.store != nil {
		if err := m.store.SavePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("persisting position: %w", err)
		}
	}

	m.open[sig.Symbol] = pos
	m.logger.Info().
		Str("symbol", pos.Symbol).
		Str("strategy", pos.Strategy).
		Float64("entry", pos.EntryPrice).
		Float64("stop", pos.StopLoss).
		Float64("target", pos.TargetPrice).
		Msg("position opened")

	return pos, nil
}

// CheckResult reports the outcome of one monitor pass over a symbol.
type CheckResult struct {
	Position      *Position
	Closed        bool
	Reason        ExitReason
	Analysis      *ExitAnalysis
	PartialAdvice bool
}

// Check evaluates one open position against a fresh price. Exits are
// applied atomically; the partial-exit advisory fires at most once
// per holding. Re-checking an already closed symbol is a no-op.
func (m *Manager) Check(ctx context.Context, symbol string, price float64, partialThreshold float64) (*CheckResult, error) {
	m.mu.Lock()
	pos, ok := m.open[symbol]
	if !ok || pos.Status != StatusOpen {
		m.mu.Unlock()
		return nil, nil
	}

	pos.Track(price)

	now := time.Now()
	reason := pos.Evaluate(price, now)
	if reason == "" {
		result := &CheckResult{Position: pos}
		if partialThreshold > 0 && !pos.PartialExitAdvised && pos.TargetProgress(price) >= partialThreshold {
			pos.PartialExitAdvised = true
			result.PartialAdvice = true
			if m.store != nil {
				if err := m.store.SavePosition(ctx, pos); err != nil {
					m.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist partial advisory marker")
				}
			}
		}
		m.mu.Unlock()
		return result, nil
	}

	pos.Status = StatusClosed
	pos.ClosedAt = now
	pos.ExitPrice = price
	pos.ExitReason = reason
	pos.Analysis = pos.BuildAnalysis(price, now, reason)

	if m.store != nil {
		if err := m.store.CloseTrade(ctx, pos); err != nil {
			// Roll back the in-memory transition so the next pass
			// retries the close.
			pos.Status = StatusOpen
			pos.ClosedAt = time.Time{}
			pos.ExitPrice = 0
			pos.ExitReason = ""
			pos.Analysis = nil
			m.mu.Unlock()
			return nil, fmt.Errorf("persisting close for %s: %w", symbol, err)
		}
	}

	delete(m.open, symbol)
	m.closedCnt++
	m.mu.Unlock()

	m.logger.Info().
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Float64("exit", price).
		Float64("profit_pct", pos.Analysis.ProfitPercent).
		Msg("position closed")

	return &CheckResult{
		Position: pos,
		Closed:   true,
		Reason:   reason,
		Analysis: pos.Analysis,
	}, nil
}

// OpenSymbols returns the symbols with open positions.
func (m *Manager) OpenSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.open))
	for symbol := range m.open {
		out = append(out, symbol)
	}
	return out
}

// OpenPositions returns a copy of the open position list.
func (m *Manager) OpenPositions() []*Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Position, 0, len(m.open))
	for _, pos := range m.open {
		cp := *pos
		out = append(out, &cp)
	}
	return out
}

// Stats returns manager counters for the status API.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"open":   len(m.open),
		"closed": m.closedCnt,
	}
}
