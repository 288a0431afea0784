package gate

import (
	"strings"
	"testing"
	"time"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/strategy"
)

func testGate() *QualityGate {
	gateCfg := &config.GateConfig{
		MinRiskReward:   1.5,
		MaxDailyTotal:   12,
		PumpRSI:         72,
		PumpVolumeRatio: 2.5,
	}
	universe := &config.UniverseConfig{
		Tiers: map[config.Tier]config.TierSettings{
			config.TierBlueChip: {MinConfidence: 60, DailyCap: 2},
			config.TierMeme:     {MinConfidence: 70, DailyCap: 1},
		},
	}
	return NewQualityGate(gateCfg, universe)
}

func validSignal() *strategy.Signal {
	return &strategy.Signal{
		Symbol:      "BTCUSDT",
		Strategy:    "swing",
		Tier:        config.TierBlueChip,
		EntryPrice:  100,
		StopLoss:    96,
		TargetPrice: 108,
		Confidence:  75,
		RSI:         50,
		VolumeRatio: 1.4,
	}
}

func TestCheckAcceptsCleanSignal(t *testing.T) {
	if err := testGate().Check(validSignal()); err != nil {
		t.Fatalf("clean signal rejected: %v", err)
	}
}

func TestCheckRejectsBelowTierFloor(t *testing.T) {
	sig := validSignal()
	sig.Confidence = 55
	err := testGate().Check(sig)
	if err == nil || !strings.Contains(err.Error(), "below tier") {
		t.Errorf("want tier floor rejection, got %v", err)
	}
}

func TestCheckRejectsThinRiskReward(t *testing.T) {
	sig := validSignal()
	sig.TargetPrice = 104 // reward:risk = 1.0
	err := testGate().Check(sig)
	if err == nil || !strings.Contains(err.Error(), "reward:risk") {
		t.Errorf("want reward:risk rejection, got %v", err)
	}
}

func TestCheckRejectsPumpPattern(t *testing.T) {
	sig := validSignal()
	sig.RSI = 80
	sig.VolumeRatio = 3.0
	err := testGate().Check(sig)
	if err == nil || !strings.Contains(err.Error(), "pump") {
		t.Errorf("want pump rejection, got %v", err)
	}
}

func TestCheckRejectsThinVolumeForFastStyles(t *testing.T) {
	sig := validSignal()
	sig.Strategy = "scalping"
	sig.VolumeRatio = 1.0
	err := testGate().Check(sig)
	if err == nil || !strings.Contains(err.Error(), "volume ratio") {
		t.Errorf("want thin volume rejection, got %v", err)
	}

	// The same volume is fine for slower styles.
	sig.Strategy = "long_term"
	if err := testGate().Check(sig); err != nil {
		t.Errorf("long_term should tolerate 1.0x volume: %v", err)
	}
}

func TestQuotaIdempotence(t *testing.T) {
	g := testGate()

	// CanSend never consumes quota no matter how often it runs.
	for i := 0; i < 20; i++ {
		if !g.CanSend(config.TierBlueChip) {
			t.Fatalf("CanSend consumed quota on call %d", i)
		}
	}

	sig := validSignal()
	g.RecordSend(sig)
	g.RecordSend(sig)
	if g.CanSend(config.TierBlueChip) {
		t.Error("blue chip cap of 2 should be exhausted after two sends")
	}
	if !g.CanSend(config.TierMeme) {
		t.Error("meme tier quota must be independent of blue chip sends")
	}
}

func TestQuotaRollsOverAtMidnight(t *testing.T) {
	g := testGate()
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.Local)
	g.tracker.now = func() time.Time { return day }

	g.tracker.Record(config.TierMeme)
	if g.CanSend(config.TierMeme) {
		t.Fatal("meme cap of 1 should be exhausted")
	}

	g.tracker.now = func() time.Time { return day.Add(2 * time.Hour) }
	if !g.CanSend(config.TierMeme) {
		t.Error("quota should reset after the local date changes")
	}
}

func TestGlobalDailyCap(t *testing.T) {
	gateCfg := &config.GateConfig{MinRiskReward: 1.5, MaxDailyTotal: 3}
	universe := &config.UniverseConfig{
		Tiers: map[config.Tier]config.TierSettings{
			config.TierBlueChip: {MinConfidence: 60, DailyCap: 0},
		},
	}
	g := NewQualityGate(gateCfg, universe)

	for i := 0; i < 3; i++ {
		g.tracker.Record(config.TierBlueChip)
	}
	if g.CanSend(config.TierBlueChip) {
		t.Error("global cap of 3 should block further sends")
	}
}
