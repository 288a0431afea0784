package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/memory"
	"crypto-signal-bot/internal/position"
)

// SavePosition upserts a position row.
func (d *DB) SavePosition(ctx context.Context, pos *position.Position) error {
	var analysis []byte
	if pos.Analysis != nil {
		data, err := json.Marshal(pos.Analysis)
		if err != nil {
			return fmt.Errorf("encoding analysis: %w", err)
		}
		analysis = data
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO positions (
			id, signal_id, symbol, strategy, tier,
			entry_price, stop_loss, target_price, confidence,
			expected_profit_min, expected_profit_max,
			status, opened_at, max_hold_seconds,
			max_price, min_price, partial_exit_advised,
			closed_at, exit_price, exit_reason, analysis
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			max_price = EXCLUDED.max_price,
			min_price = EXCLUDED.min_price,
			partial_exit_advised = EXCLUDED.partial_exit_advised,
			closed_at = EXCLUDED.closed_at,
			exit_price = EXCLUDED.exit_price,
			exit_reason = EXCLUDED.exit_reason,
			analysis = EXCLUDED.analysis`,
		pos.ID, pos.SignalID, pos.Symbol, pos.Strategy, string(pos.Tier),
		pos.EntryPrice, pos.StopLoss, pos.TargetPrice, pos.Confidence,
		pos.ExpectedProfitMin, pos.ExpectedProfitMax,
		string(pos.Status), pos.OpenedAt, int64(pos.MaxHold.Seconds()),
		pos.MaxPrice, pos.MinPrice, pos.PartialExitAdvised,
		nullTime(pos.ClosedAt), nullFloat(pos.ExitPrice), nullString(string(pos.ExitReason)), analysis,
	)
	if err != nil {
		return fmt.Errorf("saving position %s: %w", pos.Symbol, err)
	}
	return nil
}

// CloseTrade flips the position to CLOSED and appends the outcome row
// in one transaction, so a crash can never record one without the
// other.
func (d *DB) CloseTrade(ctx context.Context, pos *position.Position) error {
	if pos.Analysis == nil {
		return fmt.Errorf("closing %s without analysis", pos.Symbol)
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning close transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	analysis, err := json.Marshal(pos.Analysis)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE positions SET
			status = $2, closed_at = $3, exit_price = $4, exit_reason = $5,
			max_price = $6, min_price = $7, partial_exit_advised = FALSE,
			analysis = $8
		WHERE id = $1`,
		pos.ID, string(position.StatusClosed), pos.ClosedAt, pos.ExitPrice,
		string(pos.ExitReason), pos.MaxPrice, pos.MinPrice, analysis,
	)
	if err != nil {
		return fmt.Errorf("updating position row: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trade_outcomes (
			position_id, symbol, strategy, tier,
			entry_price, exit_price, profit_percent, sim_final_value,
			expectation_met, max_profit_during_hold, duration_hours,
			exit_reason, opened_at, closed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		pos.ID, pos.Symbol, pos.Strategy, string(pos.Tier),
		pos.EntryPrice, pos.ExitPrice, pos.Analysis.ProfitPercent, pos.Analysis.SimFinalValue,
		pos.Analysis.ExpectationMet, pos.Analysis.MaxProfitDuringHold, pos.Analysis.DurationHours,
		string(pos.ExitReason), pos.OpenedAt, pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outcome row: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadOpenPositions returns every OPEN position for restart recovery.
func (d *DB) LoadOpenPositions(ctx context.Context) ([]*position.Position, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, signal_id, symbol, strategy, tier,
			entry_price, stop_loss, target_price, confidence,
			expected_profit_min, expected_profit_max,
			opened_at, max_hold_seconds, max_price, min_price, partial_exit_advised
		FROM positions WHERE status = $1`,
		string(position.StatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("querying open positions: %w", err)
	}
	defer rows.Close()

	var out []*position.Position
	for rows.Next() {
		var pos position.Position
		var tier string
		var maxHoldSeconds int64
		if err := rows.Scan(
			&pos.ID, &pos.SignalID, &pos.Symbol, &pos.Strategy, &tier,
			&pos.EntryPrice, &pos.StopLoss, &pos.TargetPrice, &pos.Confidence,
			&pos.ExpectedProfitMin, &pos.ExpectedProfitMax,
			&pos.OpenedAt, &maxHoldSeconds, &pos.MaxPrice, &pos.MinPrice, &pos.PartialExitAdvised,
		); err != nil {
			return nil, fmt.Errorf("scanning position row: %w", err)
		}
		pos.Tier = config.Tier(tier)
		pos.MaxHold = time.Duration(maxHoldSeconds) * time.Second
		pos.Status = position.StatusOpen
		out = append(out, &pos)
	}
	return out, rows.Err()
}

// SaveSymbolMemory stores the symbol's memory ring as one JSONB row.
func (d *DB) SaveSymbolMemory(ctx context.Context, symbol string, entries []*memory.Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding memory entries: %w", err)
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO symbol_memory (symbol, entries, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (symbol) DO UPDATE SET entries = EXCLUDED.entries, updated_at = NOW()`,
		symbol, data,
	)
	if err != nil {
		return fmt.Errorf("saving memory for %s: %w", symbol, err)
	}
	return nil
}

// LoadSymbolMemory returns all persisted memory rings.
func (d *DB) LoadSymbolMemory(ctx context.Context) (map[string][]*memory.Entry, error) {
	rows, err := d.pool.Query(ctx, `SELECT symbol, entries FROM symbol_memory`)
	if err != nil {
		return nil, fmt.Errorf("querying symbol memory: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*memory.Entry)
	for rows.Next() {
		var symbol string
		var data []byte
		if err := rows.Scan(&symbol, &data); err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		var entries []*memory.Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decoding memory for %s: %w", symbol, err)
		}
		out[symbol] = entries
	}
	return out, rows.Err()
}

// ExitStats aggregates closed-trade performance for the status API.
func (d *DB) ExitStats(ctx context.Context) (map[string]interface{}, error) {
	var total, wins int
	var avgProfit, bestProfit, worstProfit *float64

	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE profit_percent > 0),
			AVG(profit_percent), MAX(profit_percent), MIN(profit_percent)
		FROM trade_outcomes`,
	).Scan(&total, &wins, &avgProfit, &bestProfit, &worstProfit)
	if err != nil {
		return nil, fmt.Errorf("aggregating outcomes: %w", err)
	}

	stats := map[string]interface{}{
		"total_trades": total,
		"wins":         wins,
	}
	if total > 0 {
		stats["win_rate"] = float64(wins) / float64(total) * 100
		stats["avg_profit_percent"] = deref(avgProfit)
		stats["best_profit_percent"] = deref(bestProfit)
		stats["worst_profit_percent"] = deref(worstProfit)
	}
	return stats, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullFloat(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
