package engine

import (
	"context"
	"testing"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/events"
	"crypto-signal-bot/internal/memory"
	"crypto-signal-bot/internal/notification"
	"crypto-signal-bot/internal/position"
	"crypto-signal-bot/internal/regime"
	"crypto-signal-bot/internal/strategy"
)

func testEngine(ai config.AIConfig) *Engine {
	cfg := &config.Config{AIConfig: ai}
	return New(cfg, nil, regime.NewDetector(), nil, nil, nil,
		position.NewManager(nil), memory.New(nil), notification.NewManager(),
		events.NewBus(), nil, nil)
}

func testRegime() *regime.Analysis {
	return &regime.Analysis{Regime: regime.WeakBull, VolatilityPercentile: 40, Confidence: 50}
}

func TestApproveDropsBelowReviewFloor(t *testing.T) {
	e := testEngine(config.AIConfig{
		Enabled:            false,
		MinConfidenceForAI: 60,
		NoAISendThreshold:  72,
	})

	sig := &strategy.Signal{Symbol: "BTCUSDT", Confidence: 58}
	if e.approve(context.Background(), sig, testRegime()) {
		t.Error("confidence below the review floor must drop")
	}
}

func TestApproveWithoutAIRequiresHighConfidence(t *testing.T) {
	e := testEngine(config.AIConfig{
		Enabled:            false,
		MinConfidenceForAI: 60,
		NoAISendThreshold:  72,
	})

	sig := &strategy.Signal{Symbol: "BTCUSDT", Confidence: 70}
	if e.approve(context.Background(), sig, testRegime()) {
		t.Error("without AI review, 70 is below the unreviewed send threshold")
	}

	sig.Confidence = 74
	if !e.approve(context.Background(), sig, testRegime()) {
		t.Error("without AI review, 74 clears the unreviewed send threshold")
	}
	if sig.AIDecision != "SKIPPED" {
		t.Errorf("AI decision = %q, want SKIPPED marker", sig.AIDecision)
	}
}

func ladderSignal() *strategy.Signal {
	return &strategy.Signal{
		Symbol:      "BTCUSDT",
		Tier:        config.TierBlueChip,
		EntryPrice:  100,
		StopLoss:    94,
		TargetPrice: 108,
	}
}

func TestRiskLadderAppliesSuggestedPercents(t *testing.T) {
	e := testEngine(config.AIConfig{})
	sig := ladderSignal()

	stopPct, targetPct := 4.0, 9.0
	e.applyRiskLadder(sig, &llm.RiskEvaluation{
		SuggestedStopPercent:   stopPct,
		SuggestedTargetPercent: targetPct,
	})

	// Via variables so the expectations go through the same runtime float
	// arithmetic as applyRiskLadder instead of being constant-folded.
	wantStop := 100 * (1 - stopPct/100)
	wantTarget := 100 * (1 + targetPct/100)
	if sig.StopLoss != wantStop {
		t.Errorf("stop = %.2f, want %.2f from a 4%% suggestion", sig.StopLoss, wantStop)
	}
	if sig.TargetPrice != wantTarget {
		t.Errorf("target = %.2f, want %.2f from a 9%% suggestion", sig.TargetPrice, wantTarget)
	}
	wantRR := (wantTarget - 100) / (100 - wantStop)
	if sig.RiskReward != wantRR {
		t.Errorf("risk reward = %.4f, want %.4f after the ladder moved", sig.RiskReward, wantRR)
	}
}

func TestRiskLadderIgnoresInsanePercents(t *testing.T) {
	e := testEngine(config.AIConfig{})
	sig := ladderSignal()

	e.applyRiskLadder(sig, &llm.RiskEvaluation{
		SuggestedStopPercent:   40,
		SuggestedTargetPercent: 150,
	})

	if sig.StopLoss != 94 || sig.TargetPrice != 108 {
		t.Errorf("ladder = %.2f/%.2f, out-of-range suggestions must leave it alone",
			sig.StopLoss, sig.TargetPrice)
	}
}

func TestRiskLadderFallsBackToTierStop(t *testing.T) {
	e := testEngine(config.AIConfig{})
	e.cfg.UniverseConfig.Tiers = map[config.Tier]config.TierSettings{
		config.TierBlueChip: {StopPercent: 5},
	}

	wantStop := 100 * (1 - 5.0/100)

	// No review at all uses the tier stop.
	sig := ladderSignal()
	e.applyRiskLadder(sig, nil)
	if sig.StopLoss != wantStop {
		t.Errorf("stop = %.2f, want the 5%% tier stop without a review", sig.StopLoss)
	}
	if sig.TargetPrice != 108 {
		t.Errorf("target = %.2f, the tier path must not move the target", sig.TargetPrice)
	}

	// A fallback evaluation carries no real suggestions either.
	sig = ladderSignal()
	e.applyRiskLadder(sig, &llm.RiskEvaluation{Fallback: true, SuggestedStopPercent: 4})
	if sig.StopLoss != wantStop {
		t.Errorf("stop = %.2f, fallback evaluations take the tier stop", sig.StopLoss)
	}
}

func TestRecentSignalsRing(t *testing.T) {
	e := testEngine(config.AIConfig{})

	if got := e.RecentSignals(10); len(got) != 0 {
		t.Errorf("fresh engine has %d recent signals, want 0", len(got))
	}

	stats := e.ScanStats()
	if stats["signals_sent"].(int64) != 0 {
		t.Errorf("fresh engine reports sent signals: %v", stats["signals_sent"])
	}
}
