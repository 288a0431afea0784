package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
	"crypto-signal-bot/internal/regime"
	"crypto-signal-bot/internal/structure"
)

// PositionReader is the read-only view strategies get of the open
// position book. The lifecycle manager owns the book; strategies only
// ask whether a symbol is already held.
type PositionReader interface {
	HasOpenPosition(symbol string) bool
}

// NewsProvider supplies an optional sentiment read for a symbol,
// in [-1, 1]. Used only by variants that opt in.
type NewsProvider interface {
	Sentiment(symbol string) (float64, bool)
}

// EvalContext bundles everything one evaluation pass needs.
type EvalContext struct {
	Snap      *market.IndicatorSnapshot
	Regime    *regime.Analysis
	Structure *structure.MarketStructure
	Tier      config.Tier
	TierConf  config.TierSettings
	News      NewsProvider
}

// VariantConfig describes one trading style. All four shipped
// variants run through the same Strategy machinery; only these
// records differ.
type VariantConfig struct {
	Name            string
	Cooldown        time.Duration
	ConfidenceFloor float64
	MaxHold         time.Duration
	HoldText        string

	// TargetPercent maps tier to take-profit distance. Missing tiers
	// fall back to the tier's configured target.
	TargetPercent map[config.Tier]float64

	// RiskFloor raises LOW risk labels to MEDIUM for styles that are
	// inherently aggressive.
	RiskFloor bool

	// Entry decides whether conditions admit a signal and explains
	// why. Technical produces the variant's 0-100 technical score.
	// StopLoss places the protective stop below the entry price.
	Entry     func(ec *EvalContext) (bool, []string)
	Technical func(ec *EvalContext) float64
	StopLoss  func(ec *EvalContext) float64
}

// Strategy evaluates one variant against market snapshots. Cooldown
// clocks are per symbol and private to the variant.
type Strategy struct {
	cfg       VariantConfig
	positions PositionReader

	mu         sync.Mutex
	lastSignal map[string]time.Time

	logger zerolog.Logger
}

// New creates a strategy from a variant config.
func New(cfg VariantConfig, positions PositionReader) *Strategy {
	return &Strategy{
		cfg:        cfg,
		positions:  positions,
		lastSignal: make(map[string]time.Time),
		logger:     logging.Component("Strategy").With().Str("variant", cfg.Name).Logger(),
	}
}

// Name returns the variant name.
func (s *Strategy) Name() string {
	return s.cfg.Name
}

// MaxHold returns the variant's position timeout.
func (s *Strategy) MaxHold() time.Duration {
	return s.cfg.MaxHold
}

// Evaluate runs the variant against a symbol snapshot. Returns nil
// when no signal should fire.
func (s *Strategy) Evaluate(ec *EvalContext) *Signal {
	symbol := ec.Snap.Symbol

	if s.positions != nil && s.positions.HasOpenPosition(symbol) {
		return nil
	}
	if !s.cooldownElapsed(symbol) {
		return nil
	}

	ok, reasons := s.cfg.Entry(ec)
	if !ok {
		return nil
	}

	confidence := Confidence(ec, s.cfg.Technical(ec))
	if confidence < s.cfg.ConfidenceFloor {
		s.logger.Debug().
			Str("symbol", symbol).
			Float64("confidence", confidence).
			Float64("floor", s.cfg.ConfidenceFloor).
			Msg("confidence below floor")
		return nil
	}

	riskScore := RiskScore(ec)
	riskLevel := RiskLevelFor(riskScore)
	if s.cfg.RiskFloor && riskLevel == RiskLow {
		riskLevel = RiskMedium
	}

	entry := ec.Snap.Price
	stop := s.cfg.StopLoss(ec)
	if stop >= entry || stop <= 0 {
		s.logger.Warn().
			Str("symbol", symbol).
			Float64("entry", entry).
			Float64("stop", stop).
			Msg("rejecting signal with invalid stop placement")
		return nil
	}

	target := entry * (1 + s.targetPercent(ec)/100)
	riskReward := (target - entry) / (entry - stop)

	signal := &Signal{
		ID:       uuid.New().String(),
		Symbol:   symbol,
		Strategy: s.cfg.Name,
		Tier:     ec.Tier,

		EntryPrice:  entry,
		StopLoss:    stop,
		TargetPrice: target,
		RiskReward:  riskReward,

		Confidence:      confidence,
		ConfidenceLevel: LevelFor(confidence),
		RiskScore:       riskScore,
		RiskLevel:       riskLevel,

		Regime:       string(ec.Regime.Regime),
		VolumeRatio:  ec.Snap.VolumeRatio(),
		RSI:          ec.Snap.RSI,
		Warnings:     ec.Regime.Warnings,
		Reasons:      reasons,
		HoldDuration: s.cfg.HoldText,

		GeneratedAt: time.Now(),
	}

	s.markSignal(symbol)

	s.logger.Info().
		Str("symbol", symbol).
		Float64("confidence", confidence).
		Float64("entry", entry).
		Float64("stop", stop).
		Float64("target", target).
		Str("risk", string(riskLevel)).
		Msg("signal generated")

	return signal
}

func (s *Strategy) targetPercent(ec *EvalContext) float64 {
	if pct, ok := s.cfg.TargetPercent[ec.Tier]; ok {
		return pct
	}
	return ec.TierConf.TargetPercent
}

func (s *Strategy) cooldownElapsed(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastSignal[symbol]
	if !ok {
		return true
	}
	return time.Since(last) >= s.cfg.Cooldown
}

func (s *Strategy) markSignal(symbol string) {
	s.mu.Lock()
	s.lastSignal[symbol] = time.Now()
	s.mu.Unlock()
}

// CooldownRemaining reports how long until the variant may signal a
// symbol again, for the status API.
func (s *Strategy) CooldownRemaining(symbol string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastSignal[symbol]
	if !ok {
		return 0
	}
	remaining := s.cfg.Cooldown - time.Since(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// String implements fmt.Stringer.
func (s *Strategy) String() string {
	return fmt.Sprintf("strategy(%s)", s.cfg.Name)
}
