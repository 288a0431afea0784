package memory

import (
	"context"
	"strings"
	"testing"
)

func TestRecordEvictsPastCap(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	m.Record(ctx, "BTCUSDT", "swing", "BLUE_CHIP", 61000, 60)
	m.Record(ctx, "BTCUSDT", "scalping", "BLUE_CHIP", 61200, 62)
	m.Record(ctx, "BTCUSDT", "swing", "BLUE_CHIP", 61500, 64)
	m.Record(ctx, "BTCUSDT", "long_term", "BLUE_CHIP", 60800, 66)

	entries := m.Entries("BTCUSDT")
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want cap of 3", len(entries))
	}
	if entries[0].Strategy != "scalping" {
		t.Errorf("oldest entry = %s, the first record should have been evicted", entries[0].Strategy)
	}
	if entries[2].Confidence != 66 {
		t.Errorf("newest confidence = %.0f, want 66", entries[2].Confidence)
	}
	if entries[2].EntryPrice != 60800 || entries[2].Tier != "BLUE_CHIP" {
		t.Errorf("newest entry = %.0f %s, want 60800 BLUE_CHIP", entries[2].EntryPrice, entries[2].Tier)
	}
}

func TestUpdateOutcomeResolvesMostRecentPending(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	m.Record(ctx, "ETHUSDT", "swing", "BLUE_CHIP", 3000, 60)
	m.Record(ctx, "ETHUSDT", "scalping", "BLUE_CHIP", 3050, 62)

	m.UpdateOutcome(ctx, "ETHUSDT", 3309, true, 8.5, "TARGET_HIT")

	entries := m.Entries("ETHUSDT")
	if !entries[0].Pending() {
		t.Error("older entry should stay pending")
	}
	if entries[1].Pending() {
		t.Fatal("newest entry should be resolved")
	}
	if !*entries[1].Win || *entries[1].ProfitPercent != 8.5 {
		t.Errorf("resolved entry = win %v profit %v, want win +8.5", *entries[1].Win, *entries[1].ProfitPercent)
	}
	if *entries[1].ExitPrice != 3309 {
		t.Errorf("exit price = %.0f, want 3309", *entries[1].ExitPrice)
	}

	// A second outcome resolves the remaining pending entry, never
	// rewriting the already-resolved one.
	m.UpdateOutcome(ctx, "ETHUSDT", 2874, false, -4.2, "STOP_LOSS")
	entries = m.Entries("ETHUSDT")
	if entries[0].Pending() {
		t.Error("second outcome should resolve the older pending entry")
	}
	if *entries[1].ProfitPercent != 8.5 {
		t.Error("resolved entries must never be rewritten")
	}
}

func TestUpdateOutcomeWithoutPendingIsNoop(t *testing.T) {
	ctx := context.Background()
	m := New(nil)
	m.UpdateOutcome(ctx, "XRPUSDT", 0.6, true, 5, "TARGET_HIT")
	if len(m.Entries("XRPUSDT")) != 0 {
		t.Error("outcome for an unknown symbol must not create entries")
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	if got := m.Summary("SOLUSDT"); got != "no prior signals for this symbol" {
		t.Errorf("empty summary = %q", got)
	}

	m.Record(ctx, "SOLUSDT", "swing", "HIGH_GROWTH", 150, 60)
	m.UpdateOutcome(ctx, "SOLUSDT", 163.65, true, 9.1, "TARGET_HIT")
	m.Record(ctx, "SOLUSDT", "scalping", "HIGH_GROWTH", 160, 55)

	summary := m.Summary("SOLUSDT")
	if !strings.Contains(summary, "1 wins") || !strings.Contains(summary, "1 pending") {
		t.Errorf("summary = %q, want win and pending counts", summary)
	}
	if !strings.Contains(summary, "+9.1%") {
		t.Errorf("summary = %q, want the win's profit", summary)
	}
	if !strings.Contains(summary, "HIGH_GROWTH") || !strings.Contains(summary, "150") {
		t.Errorf("summary = %q, want tier and entry price context", summary)
	}
}
