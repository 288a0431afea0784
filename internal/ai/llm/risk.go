package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/strategy"
)

// Entry decisions the risk evaluator may return.
const (
	DecisionApprove = "APPROVE"
	DecisionCaution = "APPROVE_WITH_CAUTION"
	DecisionDelay   = "DELAY_ENTRY"
	DecisionReject  = "REJECT"
)

// RiskRequest carries the context the model reviews.
type RiskRequest struct {
	Signal        *strategy.Signal
	RegimeSummary string
	MemorySummary string
}

// RiskEvaluation is the model's (or the fallback's) verdict. The
// suggested stop and target are percent distances from entry; zero
// means the model offered no adjustment.
type RiskEvaluation struct {
	Decision               string   `json:"decision"`
	AdjustedConfidence     float64  `json:"adjusted_confidence"`
	RiskScore              float64  `json:"risk_score"`
	SuggestedStopPercent   float64  `json:"suggested_stop_pct,omitempty"`
	SuggestedTargetPercent float64  `json:"suggested_target_pct,omitempty"`
	Flags                  []string `json:"flags,omitempty"`
	Reasoning              string   `json:"reasoning,omitempty"`
	Fallback               bool     `json:"-"`
}

const riskSystemPrompt = `You are a conservative crypto risk officer reviewing long spot signals
produced by an automated technical system. You never invent market data; judge only what is
provided. Reply with a single JSON object and nothing else:
{"decision":"APPROVE|APPROVE_WITH_CAUTION|DELAY_ENTRY|REJECT",
 "adjusted_confidence":0-100,"risk_score":0-100,
 "suggested_stop_pct":number,"suggested_target_pct":number,
 "flags":["..."],"reasoning":"one short paragraph"}
suggested_stop_pct and suggested_target_pct are percent distances below and above the
entry price; use 0 when the proposed ladder is fine as is.`

// RiskEvaluator asks the LLM to second-guess a generated signal.
type RiskEvaluator struct {
	client *Client
	logger zerolog.Logger
}

// NewRiskEvaluator creates a risk evaluator over an LLM client.
func NewRiskEvaluator(client *Client) *RiskEvaluator {
	return &RiskEvaluator{
		client: client,
		logger: logging.Component("RiskEvaluator"),
	}
}

// Evaluate reviews one signal. Transport errors surface to the caller
// so the engine can apply its own fallback thresholds; malformed
// model output degrades to the conservative fallback verdict instead.
func (e *RiskEvaluator) Evaluate(ctx context.Context, req *RiskRequest) (*RiskEvaluation, error) {
	raw, err := e.client.Complete(ctx, riskSystemPrompt, e.buildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("risk evaluation request: %w", err)
	}

	eval, parseErr := e.parse(raw)
	if parseErr != nil {
		e.logger.Warn().Err(parseErr).Str("symbol", req.Signal.Symbol).Msg("unparseable risk verdict, using conservative fallback")
		return FallbackRiskEvaluation(req.Signal), nil
	}
	return eval, nil
}

func (e *RiskEvaluator) buildPrompt(req *RiskRequest) string {
	sig := req.Signal
	var b strings.Builder

	fmt.Fprintf(&b, "Proposed %s entry on %s (tier %s).\n", sig.Strategy, sig.Symbol, sig.Tier)
	fmt.Fprintf(&b, "Entry %.6f, stop %.6f, target %.6f, reward:risk %.2f.\n",
		sig.EntryPrice, sig.StopLoss, sig.TargetPrice, sig.RiskReward)
	fmt.Fprintf(&b, "System confidence %.1f (%s), risk score %.1f (%s).\n",
		sig.Confidence, sig.ConfidenceLevel, sig.RiskScore, sig.RiskLevel)
	fmt.Fprintf(&b, "Market regime: %s. RSI %.1f, volume %.2fx average.\n",
		req.RegimeSummary, sig.RSI, sig.VolumeRatio)
	if len(sig.Warnings) > 0 {
		fmt.Fprintf(&b, "Regime warnings: %s.\n", strings.Join(sig.Warnings, "; "))
	}
	if len(sig.Reasons) > 0 {
		fmt.Fprintf(&b, "Entry rationale: %s.\n", strings.Join(sig.Reasons, "; "))
	}
	fmt.Fprintf(&b, "Symbol history: %s.\n", req.MemorySummary)
	fmt.Fprintf(&b, "Planned hold: %s.\n", sig.HoldDuration)

	return b.String()
}

func (e *RiskEvaluator) parse(raw string) (*RiskEvaluation, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var eval RiskEvaluation
	if err := json.Unmarshal([]byte(jsonStr), &eval); err != nil {
		return nil, fmt.Errorf("decoding risk verdict: %w", err)
	}

	switch eval.Decision {
	case DecisionApprove, DecisionCaution, DecisionDelay, DecisionReject:
	default:
		return nil, fmt.Errorf("unknown decision %q", eval.Decision)
	}
	if eval.AdjustedConfidence < 0 || eval.AdjustedConfidence > 100 {
		return nil, fmt.Errorf("adjusted confidence %.1f out of range", eval.AdjustedConfidence)
	}
	return &eval, nil
}

// FallbackRiskEvaluation is the conservative verdict used when the
// model replies but cannot be understood.
func FallbackRiskEvaluation(sig *strategy.Signal) *RiskEvaluation {
	return &RiskEvaluation{
		Decision:           DecisionCaution,
		AdjustedConfidence: sig.Confidence * 0.85,
		RiskScore:          55,
		Flags:              []string{"fallback verdict, model output unreadable"},
		Fallback:           true,
	}
}
