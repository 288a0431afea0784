package position

import (
	"fmt"
	"time"

	"crypto-signal-bot/config"
)

// Status is the lifecycle state of a tracked position
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// ExitReason explains why a position closed
type ExitReason string

const (
	ExitTargetHit ExitReason = "TARGET_HIT"
	ExitStopLoss  ExitReason = "STOP_LOSS"
	ExitTimeout   ExitReason = "TIMEOUT"
)

// DefaultMaxHold applies when a strategy carries no timeout of its own.
const DefaultMaxHold = 240 * time.Hour

// Position is one virtual holding opened from a sent signal. The bot
// never places orders; positions exist to score signal quality.
type Position struct {
	ID       string      `json:"id"`
	SignalID string      `json:"signal_id"`
	Symbol   string      `json:"symbol"`
	Strategy string      `json:"strategy"`
	Tier     config.Tier `json:"tier"`

	EntryPrice  float64 `json:"entry_price"`
	StopLoss    float64 `json:"stop_loss"`
	TargetPrice float64 `json:"target_price"`
	Confidence  float64 `json:"confidence"`

	// Forecast band for the exit analysis, in percent. The max is the
	// variant's target distance and the min half of it.
	ExpectedProfitMin float64 `json:"expected_profit_min"`
	ExpectedProfitMax float64 `json:"expected_profit_max"`

	Status   Status        `json:"status"`
	OpenedAt time.Time     `json:"opened_at"`
	MaxHold  time.Duration `json:"max_hold"`

	// Price extremes observed while open, for the exit analysis.
	MaxPrice float64 `json:"max_price"`
	MinPrice float64 `json:"min_price"`

	// PartialExitAdvised marks that the one-shot partial exit
	// advisory already fired for this holding.
	PartialExitAdvised bool `json:"partial_exit_advised"`

	ClosedAt   time.Time     `json:"closed_at,omitempty"`
	ExitPrice  float64       `json:"exit_price,omitempty"`
	ExitReason ExitReason    `json:"exit_reason,omitempty"`
	Analysis   *ExitAnalysis `json:"analysis,omitempty"`
}

// ExitAnalysis summarizes a closed position.
type ExitAnalysis struct {
	ProfitPercent float64 `json:"profit_percent"`
	// SimFinalValue is the end value of a simulated 100-unit stake.
	SimFinalValue       float64 `json:"sim_final_value"`
	ExpectationMet      bool    `json:"expectation_met"`
	MaxProfitDuringHold float64 `json:"max_profit_during_hold"`
	Duration            string  `json:"duration"`
	DurationHours       float64 `json:"duration_hours"`
}

// Evaluate inspects the current price against exit conditions in
// fixed priority: target, then stop, then timeout. Empty reason means
// keep holding.
func (p *Position) Evaluate(price float64, now time.Time) ExitReason {
	if p.Status != StatusOpen {
		return ""
	}
	if price >= p.TargetPrice {
		return ExitTargetHit
	}
	if price <= p.StopLoss {
		return ExitStopLoss
	}
	maxHold := p.MaxHold
	if maxHold <= 0 {
		maxHold = DefaultMaxHold
	}
	if now.Sub(p.OpenedAt) > maxHold {
		return ExitTimeout
	}
	return ""
}

// Track records a price observation into the held extremes.
func (p *Position) Track(price float64) {
	if p.Status != StatusOpen || price <= 0 {
		return
	}
	if price > p.MaxPrice {
		p.MaxPrice = price
	}
	if p.MinPrice == 0 || price < p.MinPrice {
		p.MinPrice = price
	}
}

// TargetProgress returns how much of the entry-to-target gain the
// price has covered, 0 at entry and 1 at target.
func (p *Position) TargetProgress(price float64) float64 {
	span := p.TargetPrice - p.EntryPrice
	if span <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / span
}

// BuildAnalysis computes the exit analysis for a close at the given
// price and time.
func (p *Position) BuildAnalysis(exitPrice float64, closedAt time.Time, reason ExitReason) *ExitAnalysis {
	profitPct := 0.0
	simFinal := 0.0
	if p.EntryPrice > 0 {
		profitPct = (exitPrice - p.EntryPrice) / p.EntryPrice * 100
		simFinal = 100 * exitPrice / p.EntryPrice
	}

	maxProfit := 0.0
	if p.EntryPrice > 0 && p.MaxPrice > p.EntryPrice {
		maxProfit = (p.MaxPrice - p.EntryPrice) / p.EntryPrice * 100
	}

	held := closedAt.Sub(p.OpenedAt)

	// Realized within the forecast band. Positions restored from an
	// older schema carry no band and fall back to the exit reason.
	met := p.ExpectedProfitMin <= profitPct && profitPct <= p.ExpectedProfitMax
	if p.ExpectedProfitMax <= 0 {
		met = reason == ExitTargetHit
	}

	return &ExitAnalysis{
		ProfitPercent:       profitPct,
		SimFinalValue:       simFinal,
		ExpectationMet:      met,
		MaxProfitDuringHold: maxProfit,
		Duration:            humanDuration(held),
		DurationHours:       held.Hours(),
	}
}

func humanDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 48*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) - hours*60
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) - days*24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
