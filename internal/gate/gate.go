package gate

import (
	"fmt"

	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/strategy"
)

// QualityGate filters generated signals before they reach the AI
// layer or any subscriber. Rejections carry a reason for the scan
// statistics.
type QualityGate struct {
	cfg      *config.GateConfig
	universe *config.UniverseConfig
	tracker  *DailyTracker
	logger   zerolog.Logger
}

// NewQualityGate creates the gate with its daily tracker.
func NewQualityGate(cfg *config.GateConfig, universe *config.UniverseConfig) *QualityGate {
	tierCaps := make(map[config.Tier]int, len(universe.Tiers))
	for tier, settings := range universe.Tiers {
		tierCaps[tier] = settings.DailyCap
	}

	return &QualityGate{
		cfg:      cfg,
		universe: universe,
		tracker:  NewDailyTracker(cfg.MaxDailyTotal, tierCaps),
		logger:   logging.Component("QualityGate"),
	}
}

// Tracker exposes the daily quota tracker.
func (g *QualityGate) Tracker() *DailyTracker {
	return g.tracker
}

// Check runs all quality filters. A nil error means the signal may
// proceed; quota is NOT consumed here.
func (g *QualityGate) Check(sig *strategy.Signal) error {
	tierConf := g.universe.Tiers[sig.Tier]

	if sig.Confidence < tierConf.MinConfidence {
		return fmt.Errorf("confidence %.1f below tier %s floor %.1f",
			sig.Confidence, sig.Tier, tierConf.MinConfidence)
	}

	if sig.EntryPrice <= sig.StopLoss || sig.TargetPrice <= sig.EntryPrice {
		return fmt.Errorf("malformed price ladder: stop %.6f entry %.6f target %.6f",
			sig.StopLoss, sig.EntryPrice, sig.TargetPrice)
	}

	rr := (sig.TargetPrice - sig.EntryPrice) / (sig.EntryPrice - sig.StopLoss)
	if rr < g.cfg.MinRiskReward {
		return fmt.Errorf("reward:risk %.2f below minimum %.2f", rr, g.cfg.MinRiskReward)
	}

	if sig.Strategy == "scalping" || sig.Strategy == "opportunistic" {
		if sig.VolumeRatio < 1.1 {
			return fmt.Errorf("volume ratio %.2f too thin for %s entry", sig.VolumeRatio, sig.Strategy)
		}
	}

	if sig.RSI > g.cfg.PumpRSI && sig.VolumeRatio > g.cfg.PumpVolumeRatio {
		return fmt.Errorf("pump pattern: RSI %.1f with %.1fx volume", sig.RSI, sig.VolumeRatio)
	}

	if !g.tracker.CanSend(sig.Tier) {
		return fmt.Errorf("daily quota exhausted for tier %s", sig.Tier)
	}

	return nil
}

// RecordSend consumes quota after a signal was actually delivered.
func (g *QualityGate) RecordSend(sig *strategy.Signal) {
	g.tracker.Record(sig.Tier)
	g.logger.Info().
		Str("symbol", sig.Symbol).
		Str("strategy", sig.Strategy).
		Str("tier", string(sig.Tier)).
		Msg("signal quota consumed")
}

// CanSend re-checks quota without consuming it, for the send path.
func (g *QualityGate) CanSend(tier config.Tier) bool {
	return g.tracker.CanSend(tier)
}
