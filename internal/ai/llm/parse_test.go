package llm

import (
	"math"
	"strings"
	"testing"

	"crypto-signal-bot/internal/strategy"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare object",
			raw:  `{"decision":"APPROVE"}`,
			want: `{"decision":"APPROVE"}`,
		},
		{
			name: "json fence",
			raw:  "```json\n{\"decision\":\"APPROVE\"}\n```",
			want: `{"decision":"APPROVE"}`,
		},
		{
			name: "plain fence with prose",
			raw:  "Here is my verdict:\n```\n{\"decision\":\"REJECT\"}\n```\nLet me know.",
			want: `{"decision":"REJECT"}`,
		},
		{
			name: "prose around object",
			raw:  `Based on the data {"decision":"APPROVE","risk_score":40} overall.`,
			want: `{"decision":"APPROVE","risk_score":40}`,
		},
	}
	for _, tt := range tests {
		got, err := extractJSON(tt.raw)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtractJSONRejectsGarbage(t *testing.T) {
	if _, err := extractJSON("I cannot assess this signal."); err == nil {
		t.Error("prose without JSON should error")
	}
}

func TestRiskParseValidVerdict(t *testing.T) {
	e := NewRiskEvaluator(nil)
	eval, err := e.parse(`{"decision":"APPROVE_WITH_CAUTION","adjusted_confidence":61,"risk_score":48,"reasoning":"thin volume"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if eval.Decision != DecisionCaution || eval.AdjustedConfidence != 61 {
		t.Errorf("eval = %+v", eval)
	}
}

func TestRiskParseRejectsBadVerdicts(t *testing.T) {
	e := NewRiskEvaluator(nil)

	if _, err := e.parse(`{"decision":"MAYBE","adjusted_confidence":61}`); err == nil || !strings.Contains(err.Error(), "unknown decision") {
		t.Errorf("unknown decision should fail, got %v", err)
	}
	if _, err := e.parse(`{"decision":"APPROVE","adjusted_confidence":140}`); err == nil {
		t.Error("out-of-range confidence should fail")
	}
}

func TestFallbackRiskEvaluation(t *testing.T) {
	sig := &strategy.Signal{Symbol: "BTCUSDT", Confidence: 80}
	eval := FallbackRiskEvaluation(sig)

	if eval.Decision != DecisionCaution {
		t.Errorf("fallback decision = %s, want %s", eval.Decision, DecisionCaution)
	}
	if math.Abs(eval.AdjustedConfidence-68) > 1e-9 {
		t.Errorf("fallback confidence = %.1f, want 80*0.85 = 68", eval.AdjustedConfidence)
	}
	if eval.RiskScore != 55 {
		t.Errorf("fallback risk score = %.0f, want 55", eval.RiskScore)
	}
	if !eval.Fallback {
		t.Error("fallback flag must be set")
	}
}

func TestExitParseFallsBackToHold(t *testing.T) {
	e := NewExitEvaluator(nil)
	if _, err := e.parse("no json here"); err == nil {
		t.Error("unparseable exit verdict should error so the fallback applies")
	}

	eval := fallbackExitEvaluation()
	if eval.Decision != DecisionHoldAll || eval.Confidence != 50 {
		t.Errorf("exit fallback = %+v, want HOLD_ALL at confidence 50", eval)
	}
}
