package gate

import (
	"sync"
	"time"

	"crypto-signal-bot/config"
)

// DailyTracker enforces global and per-tier daily signal quotas.
// Counters roll over at local midnight. CanSend never mutates state;
// only Record counts, and only when a signal actually went out.
type DailyTracker struct {
	mu       sync.Mutex
	date     string
	total    int
	perTier  map[config.Tier]int
	maxTotal int
	tierCaps map[config.Tier]int
	now      func() time.Time
}

// NewDailyTracker creates a tracker with the given caps.
func NewDailyTracker(maxTotal int, tierCaps map[config.Tier]int) *DailyTracker {
	return &DailyTracker{
		perTier:  make(map[config.Tier]int),
		maxTotal: maxTotal,
		tierCaps: tierCaps,
		now:      time.Now,
	}
}

func (t *DailyTracker) rollover() {
	today := t.now().Local().Format("2006-01-02")
	if t.date != today {
		t.date = today
		t.total = 0
		t.perTier = make(map[config.Tier]int)
	}
}

// CanSend reports whether quota remains for a tier. Idempotent;
// calling it repeatedly never consumes quota.
func (t *DailyTracker) CanSend(tier config.Tier) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	if t.maxTotal > 0 && t.total >= t.maxTotal {
		return false
	}
	if cap, ok := t.tierCaps[tier]; ok && cap > 0 && t.perTier[tier] >= cap {
		return false
	}
	return true
}

// Record counts one sent signal against the tier and global quota.
func (t *DailyTracker) Record(tier config.Tier) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	t.total++
	t.perTier[tier]++
}

// Stats returns today's counters for the status API.
func (t *DailyTracker) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	tiers := make(map[string]int, len(t.perTier))
	for tier, n := range t.perTier {
		tiers[string(tier)] = n
	}
	return map[string]interface{}{
		"date":      t.date,
		"total":     t.total,
		"max_total": t.maxTotal,
		"per_tier":  tiers,
	}
}
