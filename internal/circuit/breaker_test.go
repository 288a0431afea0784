package circuit

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAtFailureLimit(t *testing.T) {
	b := NewBreaker("binance", &BreakerConfig{
		FailureLimit: 3,
		Cooldown:     300 * time.Second,
		BackoffBase:  500 * time.Millisecond,
	})

	err := errors.New("timeout")
	b.RecordFailure(err)
	b.RecordFailure(err)
	if b.State() != StateHealthy {
		t.Fatal("two failures must not open the circuit")
	}

	b.RecordFailure(err)
	if b.State() != StateOpen {
		t.Fatal("third consecutive failure should open the circuit")
	}

	if allowed, reason := b.Allow(); allowed || reason == "" {
		t.Errorf("open circuit inside cooldown must block with a reason, got allowed=%v", allowed)
	}
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	b := NewBreaker("kraken", &BreakerConfig{
		FailureLimit: 1,
		Cooldown:     10 * time.Millisecond,
		BackoffBase:  time.Millisecond,
	})

	b.RecordFailure(errors.New("boom"))
	if allowed, _ := b.Allow(); allowed {
		t.Fatal("freshly opened circuit must block")
	}

	time.Sleep(15 * time.Millisecond)
	if allowed, _ := b.Allow(); !allowed {
		t.Fatal("cooldown elapsed, one probe should pass")
	}
	// The probe passing does not close the circuit by itself.
	if b.State() != StateOpen {
		t.Error("state stays open until a probe succeeds")
	}

	// A failed probe restarts the cooldown.
	b.RecordFailure(errors.New("still down"))
	if allowed, _ := b.Allow(); allowed {
		t.Error("failed probe must restart the cooldown window")
	}

	time.Sleep(15 * time.Millisecond)
	b.RecordSuccess()
	if b.State() != StateHealthy {
		t.Error("successful probe should close the circuit")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker("coingecko", &BreakerConfig{FailureLimit: 3, Cooldown: time.Minute, BackoffBase: time.Millisecond})

	b.RecordFailure(errors.New("x"))
	b.RecordFailure(errors.New("x"))
	b.RecordSuccess()
	b.RecordFailure(errors.New("x"))
	b.RecordFailure(errors.New("x"))

	if b.State() != StateHealthy {
		t.Error("failure count must reset on success; circuit opened too early")
	}
}

func TestBackoffDoubles(t *testing.T) {
	b := NewBreaker("binance", &BreakerConfig{FailureLimit: 3, Cooldown: time.Minute, BackoffBase: 500 * time.Millisecond})

	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, w := range want {
		if got := b.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestStateChangeCallback(t *testing.T) {
	b := NewBreaker("binance", &BreakerConfig{FailureLimit: 1, Cooldown: time.Minute, BackoffBase: time.Millisecond})

	var transitions []BreakerState
	b.OnStateChange(func(source string, state BreakerState) {
		transitions = append(transitions, state)
	})

	b.RecordFailure(errors.New("x"))
	b.RecordSuccess()

	if len(transitions) != 2 || transitions[0] != StateOpen || transitions[1] != StateHealthy {
		t.Errorf("transitions = %v, want [CIRCUIT_OPEN HEALTHY]", transitions)
	}
}
