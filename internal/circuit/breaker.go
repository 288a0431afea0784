package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// BreakerState represents the data source circuit state
type BreakerState string

const (
	StateHealthy BreakerState = "HEALTHY"
	StateOpen    BreakerState = "CIRCUIT_OPEN"
)

// BreakerConfig holds per-source circuit breaker configuration
type BreakerConfig struct {
	FailureLimit int           `json:"failure_limit"` // consecutive failures before the circuit opens
	Cooldown     time.Duration `json:"cooldown"`      // how long the circuit stays open
	BackoffBase  time.Duration `json:"backoff_base"`  // base delay for retry backoff
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureLimit: 3,
		Cooldown:     300 * time.Second,
		BackoffBase:  500 * time.Millisecond,
	}
}

// Breaker tracks the health of a single upstream data source.
// After FailureLimit consecutive failures the circuit opens and the
// source is skipped until Cooldown elapses, then one probe is allowed.
type Breaker struct {
	source       string
	config       *BreakerConfig
	state        BreakerState
	failures     int
	openedAt     time.Time
	lastError    string
	lastSuccess  time.Time
	totalOpens   int
	mu           sync.RWMutex
	onStateChange func(source string, state BreakerState)
}

// NewBreaker creates a breaker for a named data source.
func NewBreaker(source string, config *BreakerConfig) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		source: source,
		config: config,
		state:  StateHealthy,
	}
}

// OnStateChange sets a callback invoked on open and close transitions.
func (b *Breaker) OnStateChange(handler func(source string, state BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = handler
}

// Allow reports whether the source may be tried right now. An open
// circuit past its cooldown allows a single probe attempt through.
func (b *Breaker) Allow() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHealthy {
		return true, ""
	}

	elapsed := time.Since(b.openedAt)
	if elapsed < b.config.Cooldown {
		remaining := b.config.Cooldown - elapsed
		return false, fmt.Sprintf("circuit open for %s, cooldown remaining: %v (last error: %s)",
			b.source, remaining.Round(time.Second), b.lastError)
	}

	// Cooldown elapsed, let one probe through. State stays open
	// until the probe succeeds.
	return true, ""
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	wasOpen := b.state == StateOpen
	b.state = StateHealthy
	b.failures = 0
	b.lastError = ""
	b.lastSuccess = time.Now()
	handler := b.onStateChange
	b.mu.Unlock()

	if wasOpen && handler != nil {
		handler(b.source, StateHealthy)
	}
}

// RecordFailure counts a failure and opens the circuit at the limit.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	b.failures++
	if err != nil {
		b.lastError = err.Error()
	}

	opened := false
	if b.failures >= b.config.FailureLimit && b.state == StateHealthy {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.totalOpens++
		opened = true
	} else if b.state == StateOpen {
		// Failed probe, restart the cooldown window.
		b.openedAt = time.Now()
	}
	handler := b.onStateChange
	b.mu.Unlock()

	if opened && handler != nil {
		handler(b.source, StateOpen)
	}
}

// Backoff returns the retry delay before attempt n (0-based),
// doubling from the configured base.
func (b *Breaker) Backoff(attempt int) time.Duration {
	return time.Duration(float64(b.config.BackoffBase) * math.Pow(2, float64(attempt)))
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Source returns the data source name this breaker guards.
func (b *Breaker) Source() string {
	return b.source
}

// Stats returns current statistics for the status API.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"source":       b.source,
		"state":        string(b.state),
		"failures":     b.failures,
		"last_error":   b.lastError,
		"last_success": b.lastSuccess,
		"total_opens":  b.totalOpens,
	}
}
