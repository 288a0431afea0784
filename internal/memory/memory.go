package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
)

// maxEntries caps the remembered outcomes per symbol.
const maxEntries = 3

// Entry is one remembered signal for a symbol. Win stays nil while
// the trade is pending.
type Entry struct {
	Symbol        string    `json:"symbol"`
	Strategy      string    `json:"strategy"`
	Tier          string    `json:"tier"`
	EntryPrice    float64   `json:"entry_price"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
	Win           *bool     `json:"win,omitempty"`
	ExitPrice     *float64  `json:"exit_price,omitempty"`
	ProfitPercent *float64  `json:"profit_percent,omitempty"`
	ExitReason    string    `json:"exit_reason,omitempty"`
}

// Pending reports whether the entry still awaits an outcome.
func (e *Entry) Pending() bool {
	return e.Win == nil
}

// Store persists memory entries. The database repository implements
// it; nil keeps memory process-local.
type Store interface {
	SaveSymbolMemory(ctx context.Context, symbol string, entries []*Entry) error
	LoadSymbolMemory(ctx context.Context) (map[string][]*Entry, error)
}

// Memory keeps the last few signal outcomes per symbol and feeds a
// compact summary into the AI prompt. Inserting past the cap evicts
// the oldest entry.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]*Entry // oldest first
	store   Store
	logger  zerolog.Logger
}

// New creates a memory. store may be nil.
func New(store Store) *Memory {
	return &Memory{
		entries: make(map[string][]*Entry),
		store:   store,
		logger:  logging.Component("SignalMemory"),
	}
}

// Restore loads persisted entries, called once at startup.
func (m *Memory) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadSymbolMemory(ctx)
	if err != nil {
		return fmt.Errorf("loading symbol memory: %w", err)
	}

	m.mu.Lock()
	for symbol, entries := range loaded {
		if len(entries) > maxEntries {
			entries = entries[len(entries)-maxEntries:]
		}
		m.entries[symbol] = entries
	}
	m.mu.Unlock()
	return nil
}

// Record inserts a pending entry for a just-sent signal.
func (m *Memory) Record(ctx context.Context, symbol, strategy, tier string, entryPrice, confidence float64) {
	m.mu.Lock()
	entries := append(m.entries[symbol], &Entry{
		Symbol:     symbol,
		Strategy:   strategy,
		Tier:       tier,
		EntryPrice: entryPrice,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	})
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	m.entries[symbol] = entries
	m.persist(ctx, symbol, entries)
	m.mu.Unlock()
}

// UpdateOutcome resolves the most recent pending entry for a symbol.
// Entries that already carry an outcome are never rewritten.
func (m *Memory) UpdateOutcome(ctx context.Context, symbol string, exitPrice float64, win bool, profitPercent float64, exitReason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries[symbol]
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Pending() {
			continue
		}
		w := win
		x := exitPrice
		p := profitPercent
		entries[i].Win = &w
		entries[i].ExitPrice = &x
		entries[i].ProfitPercent = &p
		entries[i].ExitReason = exitReason
		m.persist(ctx, symbol, entries)
		return
	}

	m.logger.Debug().Str("symbol", symbol).Msg("no pending memory entry to resolve")
}

func (m *Memory) persist(ctx context.Context, symbol string, entries []*Entry) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSymbolMemory(ctx, symbol, entries); err != nil {
		m.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist symbol memory")
	}
}

// Entries returns a copy of a symbol's remembered outcomes, oldest
// first.
func (m *Memory) Entries(symbol string) []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries[symbol]
	out := make([]*Entry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

// Summary renders the symbol's recent record for the AI prompt.
func (m *Memory) Summary(symbol string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.entries[symbol]
	if len(entries) == 0 {
		return "no prior signals for this symbol"
	}

	wins, losses, pending := 0, 0, 0
	var parts []string
	for _, e := range entries {
		switch {
		case e.Pending():
			pending++
			parts = append(parts, fmt.Sprintf("%s %s pending from %.6g", e.Strategy, e.Tier, e.EntryPrice))
		case *e.Win:
			wins++
			parts = append(parts, fmt.Sprintf("%s %s %.6g to %.6g +%.1f%% (%s)",
				e.Strategy, e.Tier, e.EntryPrice, *e.ExitPrice, *e.ProfitPercent, e.ExitReason))
		default:
			losses++
			parts = append(parts, fmt.Sprintf("%s %s %.6g to %.6g %.1f%% (%s)",
				e.Strategy, e.Tier, e.EntryPrice, *e.ExitPrice, *e.ProfitPercent, e.ExitReason))
		}
	}

	return fmt.Sprintf("last %d signals: %d wins, %d losses, %d pending [%s]",
		len(entries), wins, losses, pending, strings.Join(parts, "; "))
}
