package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
)

// Exit decisions the exit evaluator may return.
const (
	DecisionHoldAll     = "HOLD_ALL"
	DecisionTakePartial = "TAKE_PARTIAL"
	DecisionTakeFull    = "TAKE_FULL"
)

// ExitRequest describes an open position approaching its target.
type ExitRequest struct {
	Symbol         string
	Strategy       string
	EntryPrice     float64
	CurrentPrice   float64
	TargetPrice    float64
	StopLoss       float64
	ProfitPercent  float64
	TargetProgress float64
	HeldFor        string
	MemorySummary  string
}

// ExitEvaluation is the model's advisory on booking profits.
type ExitEvaluation struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Fallback   bool    `json:"-"`
}

const exitSystemPrompt = `You advise on profit taking for open long crypto positions that are
approaching their target. Reply with a single JSON object and nothing else:
{"decision":"HOLD_ALL|TAKE_PARTIAL|TAKE_FULL","confidence":0-100,"reasoning":"one sentence"}`

// ExitEvaluator asks the LLM whether to ring the register early.
type ExitEvaluator struct {
	client *Client
	logger zerolog.Logger
}

// NewExitEvaluator creates an exit evaluator over an LLM client.
func NewExitEvaluator(client *Client) *ExitEvaluator {
	return &ExitEvaluator{
		client: client,
		logger: logging.Component("ExitEvaluator"),
	}
}

// Evaluate returns the advisory, degrading to HOLD_ALL on any error.
// Exits never block on the model; the hard stop and target rules
// already protect the position.
func (e *ExitEvaluator) Evaluate(ctx context.Context, req *ExitRequest) *ExitEvaluation {
	raw, err := e.client.Complete(ctx, exitSystemPrompt, e.buildPrompt(req))
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", req.Symbol).Msg("exit advisory unavailable, holding")
		return fallbackExitEvaluation()
	}

	eval, parseErr := e.parse(raw)
	if parseErr != nil {
		e.logger.Warn().Err(parseErr).Str("symbol", req.Symbol).Msg("unparseable exit advisory, holding")
		return fallbackExitEvaluation()
	}
	return eval
}

func (e *ExitEvaluator) buildPrompt(req *ExitRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Open %s position on %s, held %s.\n", req.Strategy, req.Symbol, req.HeldFor)
	fmt.Fprintf(&b, "Entry %.6f, now %.6f (%.2f%% profit), target %.6f, stop %.6f.\n",
		req.EntryPrice, req.CurrentPrice, req.ProfitPercent, req.TargetPrice, req.StopLoss)
	fmt.Fprintf(&b, "Progress to target: %.0f%%.\n", req.TargetProgress*100)
	fmt.Fprintf(&b, "Symbol history: %s.\n", req.MemorySummary)
	return b.String()
}

func (e *ExitEvaluator) parse(raw string) (*ExitEvaluation, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var eval ExitEvaluation
	if err := json.Unmarshal([]byte(jsonStr), &eval); err != nil {
		return nil, fmt.Errorf("decoding exit advisory: %w", err)
	}

	switch eval.Decision {
	case DecisionHoldAll, DecisionTakePartial, DecisionTakeFull:
	default:
		return nil, fmt.Errorf("unknown decision %q", eval.Decision)
	}
	return &eval, nil
}

func fallbackExitEvaluation() *ExitEvaluation {
	return &ExitEvaluation{
		Decision:   DecisionHoldAll,
		Confidence: 50,
		Fallback:   true,
	}
}
