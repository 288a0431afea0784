package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/strategy"
)

func openPosition(entry, stop, target float64, openedAt time.Time, maxHold time.Duration) *Position {
	return &Position{
		ID:          "test",
		Symbol:      "BTCUSDT",
		Strategy:    "swing",
		Tier:        config.TierBlueChip,
		EntryPrice:  entry,
		StopLoss:    stop,
		TargetPrice: target,
		Status:      StatusOpen,
		OpenedAt:    openedAt,
		MaxHold:     maxHold,
		MaxPrice:    entry,
		MinPrice:    entry,
	}
}

func TestEvaluateTargetBeatsStop(t *testing.T) {
	// Deliberately inverted ladder: price satisfies both exits at
	// once. Target must win on priority.
	pos := openPosition(90, 105, 100, time.Now(), 240*time.Hour)
	if got := pos.Evaluate(103, time.Now()); got != ExitTargetHit {
		t.Errorf("Evaluate = %s, want %s when target and stop both trigger", got, ExitTargetHit)
	}
}

func TestEvaluateStopAndTimeout(t *testing.T) {
	now := time.Now()
	pos := openPosition(100, 95, 110, now, 240*time.Hour)

	if got := pos.Evaluate(94, now); got != ExitStopLoss {
		t.Errorf("Evaluate = %s, want %s", got, ExitStopLoss)
	}
	if got := pos.Evaluate(100, now); got != "" {
		t.Errorf("Evaluate = %s, want hold", got)
	}

	// Scalping hold expires after one hour.
	pos = openPosition(100, 95, 110, now.Add(-61*time.Minute), time.Hour)
	if got := pos.Evaluate(100, now); got != ExitTimeout {
		t.Errorf("Evaluate = %s, want %s after 61 minutes of a 1h hold", got, ExitTimeout)
	}
}

func TestBuildAnalysisSimulatedStake(t *testing.T) {
	opened := time.Now().Add(-3 * time.Hour)
	pos := openPosition(10, 9, 12, opened, 240*time.Hour)
	pos.Track(12)

	analysis := pos.BuildAnalysis(12, time.Now(), ExitTargetHit)

	if analysis.ProfitPercent != 20.0 {
		t.Errorf("profit = %.1f%%, want 20.0", analysis.ProfitPercent)
	}
	if analysis.SimFinalValue != 120.0 {
		t.Errorf("simulated stake = %.1f, want 120.0 from 100 units", analysis.SimFinalValue)
	}
	if !analysis.ExpectationMet {
		t.Error("target hit must count as expectation met")
	}

	analysis = pos.BuildAnalysis(9, time.Now(), ExitStopLoss)
	if analysis.ExpectationMet {
		t.Error("stop loss must not count as expectation met")
	}
}

type recordingStore struct {
	saved     []*Position
	closed    []*Position
	failClose bool
}

func (s *recordingStore) SavePosition(ctx context.Context, pos *Position) error {
	s.saved = append(s.saved, pos)
	return nil
}

func (s *recordingStore) CloseTrade(ctx context.Context, pos *Position) error {
	if s.failClose {
		return errors.New("database unavailable")
	}
	s.closed = append(s.closed, pos)
	return nil
}

func (s *recordingStore) LoadOpenPositions(ctx context.Context) ([]*Position, error) {
	return nil, nil
}

func testSignal() *strategy.Signal {
	return &strategy.Signal{
		ID:          "sig-1",
		Symbol:      "ETHUSDT",
		Strategy:    "swing",
		Tier:        config.TierBlueChip,
		EntryPrice:  100,
		StopLoss:    95,
		TargetPrice: 110,
		Confidence:  70,
	}
}

func TestManagerOpenAndClose(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	m := NewManager(store)

	if _, err := m.Open(ctx, testSignal(), 240*time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !m.HasOpenPosition("ETHUSDT") {
		t.Fatal("manager should report the open position")
	}
	if _, err := m.Open(ctx, testSignal(), 240*time.Hour); err == nil {
		t.Error("second open for the same symbol must fail")
	}

	result, err := m.Check(ctx, "ETHUSDT", 110, 0)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Closed || result.Reason != ExitTargetHit {
		t.Fatalf("result = %+v, want target hit close", result)
	}
	if len(store.closed) != 1 {
		t.Errorf("close persisted %d times, want 1", len(store.closed))
	}

	// Re-checking a closed symbol is a no-op.
	result, err = m.Check(ctx, "ETHUSDT", 110, 0)
	if err != nil || result != nil {
		t.Errorf("re-check = (%+v, %v), want (nil, nil)", result, err)
	}
}

func TestManagerRollsBackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{failClose: true}
	m := NewManager(store)

	if _, err := m.Open(ctx, testSignal(), 240*time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := m.Check(ctx, "ETHUSDT", 110, 0); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	if !m.HasOpenPosition("ETHUSDT") {
		t.Fatal("failed close must leave the position open for retry")
	}

	// Once the store recovers, the next pass closes normally.
	store.failClose = false
	result, err := m.Check(ctx, "ETHUSDT", 110, 0)
	if err != nil {
		t.Fatalf("retry check: %v", err)
	}
	if !result.Closed {
		t.Error("retry should close the position")
	}
}

func TestPartialAdvisoryFiresOnce(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	if _, err := m.Open(ctx, testSignal(), 240*time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Entry 100, target 110: price 107 is 70% of the way.
	result, err := m.Check(ctx, "ETHUSDT", 107, 0.7)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.PartialAdvice {
		t.Fatal("advisory should fire at 70% target progress")
	}

	result, err = m.Check(ctx, "ETHUSDT", 108, 0.7)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.PartialAdvice {
		t.Error("advisory is one-shot per holding")
	}
	if result.Closed {
		t.Error("price below target must not close")
	}
}

func TestOpenSetsForecastBand(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)

	pos, err := m.Open(ctx, testSignal(), 240*time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Entry 100, target 110: the band runs from half the target
	// distance to the full distance.
	wantMax := (110.0 - 100) / 100 * 100
	if pos.ExpectedProfitMax != wantMax {
		t.Errorf("expected profit max = %.2f, want %.2f", pos.ExpectedProfitMax, wantMax)
	}
	if pos.ExpectedProfitMin != 0.5*wantMax {
		t.Errorf("expected profit min = %.2f, want %.2f", pos.ExpectedProfitMin, 0.5*wantMax)
	}
}

func TestBuildAnalysisForecastBand(t *testing.T) {
	opened := time.Now().Add(-3 * time.Hour)

	band := func() *Position {
		pos := openPosition(100, 95, 110, opened, 240*time.Hour)
		pos.ExpectedProfitMin = 5
		pos.ExpectedProfitMax = 10
		return pos
	}

	// Realized profit inside the band counts regardless of why the
	// position closed.
	analysis := band().BuildAnalysis(107, time.Now(), ExitTimeout)
	if !analysis.ExpectationMet {
		t.Error("7% on a 5-10% forecast should count as met")
	}

	// Blowing through the band misses the forecast just like falling
	// short of it.
	analysis = band().BuildAnalysis(120, time.Now(), ExitTargetHit)
	if analysis.ExpectationMet {
		t.Error("20% on a 5-10% forecast overshoots the band")
	}

	analysis = band().BuildAnalysis(102, time.Now(), ExitTimeout)
	if analysis.ExpectationMet {
		t.Error("2% on a 5-10% forecast falls short of the band")
	}
}

func TestPartialAdvisorySurvivesCloseRollback(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	m := NewManager(store)
	if _, err := m.Open(ctx, testSignal(), 240*time.Hour); err != nil {
		t.Fatalf("open: %v", err)
	}

	result, err := m.Check(ctx, "ETHUSDT", 107, 0.7)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.PartialAdvice {
		t.Fatal("advisory should fire at 70% target progress")
	}

	// Target hits but the close fails to persist.
	store.failClose = true
	if _, err := m.Check(ctx, "ETHUSDT", 110, 0.7); err == nil {
		t.Fatal("expected persist failure to surface")
	}

	// Price retreats below target while the store is still down. The
	// one-shot advisory must not re-arm after the rolled-back close.
	result, err = m.Check(ctx, "ETHUSDT", 108, 0.7)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.PartialAdvice {
		t.Error("a rolled-back close must not re-arm the advisory")
	}

	store.failClose = false
	result, err = m.Check(ctx, "ETHUSDT", 110, 0.7)
	if err != nil {
		t.Fatalf("retry check: %v", err)
	}
	if !result.Closed {
		t.Error("recovered store should close the position")
	}
}

func TestTargetProgress(t *testing.T) {
	pos := openPosition(100, 95, 110, time.Now(), 240*time.Hour)
	if got := pos.TargetProgress(105); got != 0.5 {
		t.Errorf("TargetProgress(105) = %.2f, want 0.5", got)
	}
	if got := pos.TargetProgress(100); got != 0 {
		t.Errorf("TargetProgress(100) = %.2f, want 0", got)
	}
}
