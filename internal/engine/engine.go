package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/api"
	"crypto-signal-bot/internal/events"
	"crypto-signal-bot/internal/gate"
	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
	"crypto-signal-bot/internal/memory"
	"crypto-signal-bot/internal/notification"
	"crypto-signal-bot/internal/position"
	"crypto-signal-bot/internal/regime"
	"crypto-signal-bot/internal/strategy"
	"crypto-signal-bot/internal/structure"
)

const recentSignalLimit = 100

// Engine runs the periodic scan loop: fetch indicators, classify the
// regime, build market structure, evaluate every strategy variant,
// gate the winner and pass it through the AI risk layer before
// anything is sent or opened.
type Engine struct {
	cfg        *config.Config
	provider   *market.Provider
	detector   *regime.Detector
	builder    *structure.Builder
	strategies []*strategy.Strategy
	gate       *gate.QualityGate
	positions  *position.Manager
	memory     *memory.Memory
	notifier   *notification.Manager
	bus        *events.Bus
	news       strategy.NewsProvider

	aiClient *llm.Client
	riskEval *llm.RiskEvaluator
	exitEval *llm.ExitEvaluator

	logger zerolog.Logger

	mu             sync.Mutex
	stats          scanStats
	sentByStrategy map[string]int64
	sentByTier     map[string]int64
	recent         []api.SignalRecord
	byName         map[string]*strategy.Strategy
}

type scanStats struct {
	ScansCompleted   int64         `json:"scans_completed"`
	SymbolsScanned   int64         `json:"symbols_scanned"`
	FetchFailures    int64         `json:"fetch_failures"`
	SignalsGenerated int64         `json:"signals_generated"`
	GateRejections   int64         `json:"gate_rejections"`
	AIRejections     int64         `json:"ai_rejections"`
	SignalsSent      int64         `json:"signals_sent"`
	LastScanAt       time.Time     `json:"last_scan_at"`
	LastScanDuration time.Duration `json:"last_scan_duration"`
}

// New wires the scan engine. news may be nil when the sentiment
// filter is disabled.
func New(
	cfg *config.Config,
	provider *market.Provider,
	detector *regime.Detector,
	builder *structure.Builder,
	strategies []*strategy.Strategy,
	qualityGate *gate.QualityGate,
	positions *position.Manager,
	mem *memory.Memory,
	notifier *notification.Manager,
	bus *events.Bus,
	news strategy.NewsProvider,
	aiClient *llm.Client,
) *Engine {
	e := &Engine{
		cfg:        cfg,
		provider:   provider,
		detector:   detector,
		builder:    builder,
		strategies: strategies,
		gate:       qualityGate,
		positions:  positions,
		memory:     mem,
		notifier:   notifier,
		bus:        bus,
		news:       news,
		aiClient:   aiClient,
		logger:     logging.Component("engine"),
		byName:     make(map[string]*strategy.Strategy, len(strategies)),

		sentByStrategy: make(map[string]int64),
		sentByTier:     make(map[string]int64),
	}
	for _, s := range strategies {
		e.byName[s.Name()] = s
	}
	if aiClient != nil {
		e.riskEval = llm.NewRiskEvaluator(aiClient)
		e.exitEval = llm.NewExitEvaluator(aiClient)
	}
	return e
}

// Run scans immediately, then on every tick until the context ends.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Dur("interval", e.cfg.EngineConfig.ScanInterval()).
		Int("symbols", len(e.cfg.UniverseConfig.Symbols())).
		Msg("Scan engine started")

	e.scan(ctx)

	ticker := time.NewTicker(e.cfg.EngineConfig.ScanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Scan engine stopped")
			return
		case <-ticker.C:
			e.scan(ctx)
		}
	}
}

func (e *Engine) scan(ctx context.Context) {
	started := time.Now()
	symbols := e.cfg.UniverseConfig.Symbols()

	for i, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		e.scanSymbol(ctx, symbol)

		if i < len(symbols)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.EngineConfig.SymbolDelay()):
			}
		}
	}

	e.mu.Lock()
	e.stats.ScansCompleted++
	e.stats.LastScanAt = started
	e.stats.LastScanDuration = time.Since(started)
	e.mu.Unlock()

	e.logger.Info().
		Dur("took", time.Since(started)).
		Int("symbols", len(symbols)).
		Msg("Scan pass complete")
}

// scanSymbol isolates one symbol's pass; a panic or failure in one
// symbol never stops the rest of the universe.
func (e *Engine) scanSymbol(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("symbol", symbol).Interface("panic", r).Msg("Recovered from symbol scan panic")
		}
	}()

	e.mu.Lock()
	e.stats.SymbolsScanned++
	e.mu.Unlock()

	if e.positions.HasOpenPosition(symbol) {
		return
	}

	snap, err := e.provider.Fetch(ctx, symbol)
	if err != nil {
		e.logger.Warn().Str("symbol", symbol).Err(err).Msg("Indicator fetch failed")
		e.countFetchFailure()
		return
	}
	if snap == nil {
		// every source is down or cooling off; skip quietly
		e.countFetchFailure()
		return
	}

	reg := e.detector.Detect(snap)
	ms := e.builder.Build(snap, reg)
	tier := e.cfg.UniverseConfig.TierFor(symbol)

	ec := &strategy.EvalContext{
		Snap:      snap,
		Regime:    reg,
		Structure: ms,
		Tier:      tier,
		TierConf:  e.cfg.UniverseConfig.Tiers[tier],
		News:      e.news,
	}

	sig := e.bestSignal(ec)
	if sig == nil {
		return
	}

	e.mu.Lock()
	e.stats.SignalsGenerated++
	e.mu.Unlock()

	if err := e.gate.Check(sig); err != nil {
		e.logger.Info().
			Str("symbol", symbol).
			Str("strategy", sig.Strategy).
			Err(err).
			Msg("Signal rejected by quality gate")
		e.mu.Lock()
		e.stats.GateRejections++
		e.mu.Unlock()
		return
	}

	if !e.approve(ctx, sig, reg) {
		e.mu.Lock()
		e.stats.AIRejections++
		e.mu.Unlock()
		return
	}

	e.send(ctx, sig)
}

// bestSignal evaluates every variant and keeps the highest
// confidence signal.
func (e *Engine) bestSignal(ec *strategy.EvalContext) *strategy.Signal {
	var best *strategy.Signal
	for _, s := range e.strategies {
		sig := s.Evaluate(ec)
		if sig == nil {
			continue
		}
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	return best
}

// approve runs the AI risk layer. Returns true when the signal may
// be sent.
func (e *Engine) approve(ctx context.Context, sig *strategy.Signal, reg *regime.Analysis) bool {
	ai := e.cfg.AIConfig

	if sig.Confidence < ai.MinConfidenceForAI {
		e.logger.Debug().
			Str("symbol", sig.Symbol).
			Float64("confidence", sig.Confidence).
			Msg("Below AI review floor, dropped")
		return false
	}

	if !ai.Enabled || e.riskEval == nil || !e.aiClient.IsConfigured() {
		if sig.Confidence >= ai.NoAISendThreshold {
			sig.AIDecision = "SKIPPED"
			e.applyRiskLadder(sig, nil)
			return true
		}
		e.logger.Debug().
			Str("symbol", sig.Symbol).
			Float64("confidence", sig.Confidence).
			Msg("AI disabled and confidence below unreviewed threshold")
		return false
	}

	req := &llm.RiskRequest{
		Signal:        sig,
		RegimeSummary: regimeSummary(reg),
		MemorySummary: e.memory.Summary(sig.Symbol),
	}

	eval, err := e.riskEval.Evaluate(ctx, req)
	if err != nil {
		e.logger.Warn().Str("symbol", sig.Symbol).Err(err).Msg("AI risk evaluation failed")
		if sig.Confidence < ai.ErrorSendThreshold {
			return false
		}
		eval = llm.FallbackRiskEvaluation(sig)
	}

	sig.AIDecision = eval.Decision
	sig.AIConfidence = eval.AdjustedConfidence
	sig.AIRiskScore = eval.RiskScore
	sig.AINotes = eval.Reasoning
	e.applyRiskLadder(sig, eval)

	switch eval.Decision {
	case llm.DecisionApprove:
		return true
	case llm.DecisionCaution:
		if eval.AdjustedConfidence >= ai.CautionThreshold {
			return true
		}
		e.logger.Info().
			Str("symbol", sig.Symbol).
			Float64("adjusted", eval.AdjustedConfidence).
			Msg("Cautioned signal below caution threshold")
		return false
	default:
		e.logger.Info().
			Str("symbol", sig.Symbol).
			Str("decision", eval.Decision).
			Str("reasoning", eval.Reasoning).
			Msg("Signal rejected by AI risk layer")
		return false
	}
}

// applyRiskLadder rewrites the signal's stop and target from the AI's
// suggested percent distances when sane. Without a real review the
// tier's configured stop percent, when set, replaces the strategy
// stop. The reward:risk ratio is recomputed to match the ladder that
// actually gets sent.
func (e *Engine) applyRiskLadder(sig *strategy.Signal, eval *llm.RiskEvaluation) {
	entry := sig.EntryPrice
	if entry <= 0 {
		return
	}

	if eval != nil && !eval.Fallback {
		if p := eval.SuggestedStopPercent; p > 0 && p <= 30 {
			sig.StopLoss = entry * (1 - p/100)
		}
		if p := eval.SuggestedTargetPercent; p > 0 && p <= 100 {
			sig.TargetPrice = entry * (1 + p/100)
		}
	} else if sp := e.cfg.UniverseConfig.Tiers[sig.Tier].StopPercent; sp > 0 {
		sig.StopLoss = entry * (1 - sp/100)
	}

	if risk := entry - sig.StopLoss; risk > 0 {
		sig.RiskReward = (sig.TargetPrice - entry) / risk
	}
}

func (e *Engine) send(ctx context.Context, sig *strategy.Signal) {
	strat, ok := e.byName[sig.Strategy]
	if !ok {
		e.logger.Error().Str("strategy", sig.Strategy).Msg("Signal from unknown strategy")
		return
	}

	e.notifier.NotifySignal(ctx, sig)
	e.gate.RecordSend(sig)

	if _, err := e.positions.Open(ctx, sig, strat.MaxHold()); err != nil {
		e.logger.Error().Str("symbol", sig.Symbol).Err(err).Msg("Failed to open tracked position")
	}
	e.memory.Record(ctx, sig.Symbol, sig.Strategy, string(sig.Tier), sig.EntryPrice, sig.FinalConfidence())

	e.mu.Lock()
	e.stats.SignalsSent++
	e.sentByStrategy[sig.Strategy]++
	e.sentByTier[string(sig.Tier)]++
	e.recent = append(e.recent, api.SignalRecord{
		Symbol:     sig.Symbol,
		Variant:    sig.Strategy,
		Tier:       string(sig.Tier),
		Entry:      sig.EntryPrice,
		Stop:       sig.StopLoss,
		Target:     sig.TargetPrice,
		Confidence: sig.FinalConfidence(),
		RiskLevel:  string(sig.RiskLevel),
		AIDecision: sig.AIDecision,
		SentAt:     time.Now(),
	})
	if len(e.recent) > recentSignalLimit {
		e.recent = e.recent[len(e.recent)-recentSignalLimit:]
	}
	e.mu.Unlock()

	e.bus.Publish(events.TypeSignalSent, sig.Symbol, sig)
	e.bus.Publish(events.TypePositionOpened, sig.Symbol, nil)

	e.logger.Info().
		Str("symbol", sig.Symbol).
		Str("strategy", sig.Strategy).
		Float64("confidence", sig.FinalConfidence()).
		Str("ai", sig.AIDecision).
		Msg("Signal sent")
}

// HandleExit is the position monitor's close callback.
func (e *Engine) HandleExit(ctx context.Context, result *position.CheckResult) {
	pos := result.Position
	profit := 0.0
	if pos.Analysis != nil {
		profit = pos.Analysis.ProfitPercent
	}

	e.notifier.NotifyExit(ctx, pos)
	e.memory.UpdateOutcome(ctx, pos.Symbol, pos.ExitPrice, profit > 0, profit, string(result.Reason))
	e.bus.Publish(events.TypePositionClosed, pos.Symbol, pos)

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("reason", string(result.Reason)).
		Float64("profit_pct", profit).
		Msg("Position closed")
}

// HandlePartial is the monitor's one-shot partial exit callback. The
// LLM exit advisory is best effort; its fallback is hold.
func (e *Engine) HandlePartial(ctx context.Context, pos *position.Position, price float64) {
	advice := llm.DecisionHoldAll
	if e.cfg.AIConfig.ExitEvaluatorEnabled && e.exitEval != nil && e.aiClient.IsConfigured() {
		eval := e.exitEval.Evaluate(ctx, &llm.ExitRequest{
			Symbol:         pos.Symbol,
			Strategy:       pos.Strategy,
			EntryPrice:     pos.EntryPrice,
			CurrentPrice:   price,
			TargetPrice:    pos.TargetPrice,
			StopLoss:       pos.StopLoss,
			ProfitPercent:  (price - pos.EntryPrice) / pos.EntryPrice * 100,
			TargetProgress: pos.TargetProgress(price),
			HeldFor:        time.Since(pos.OpenedAt).Round(time.Minute).String(),
			MemorySummary:  e.memory.Summary(pos.Symbol),
		})
		advice = eval.Decision
	}

	e.notifier.NotifyPartialExit(ctx, pos, price, advice)
	e.bus.Publish(events.TypePartialExit, pos.Symbol, map[string]interface{}{
		"price":  price,
		"advice": advice,
	})
}

// ScanStats implements the status API stats provider.
func (e *Engine) ScanStats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	byStrategy := make(map[string]int64, len(e.sentByStrategy))
	for k, v := range e.sentByStrategy {
		byStrategy[k] = v
	}
	byTier := make(map[string]int64, len(e.sentByTier))
	for k, v := range e.sentByTier {
		byTier[k] = v
	}

	return map[string]interface{}{
		"scans_completed":    e.stats.ScansCompleted,
		"symbols_scanned":    e.stats.SymbolsScanned,
		"fetch_failures":     e.stats.FetchFailures,
		"signals_generated":  e.stats.SignalsGenerated,
		"gate_rejections":    e.stats.GateRejections,
		"ai_rejections":      e.stats.AIRejections,
		"signals_sent":       e.stats.SignalsSent,
		"sent_by_strategy":   byStrategy,
		"sent_by_tier":       byTier,
		"last_scan_at":       e.stats.LastScanAt,
		"last_scan_duration": e.stats.LastScanDuration.String(),
	}
}

// RecentSignals returns the latest sent signals, newest last.
func (e *Engine) RecentSignals(limit int) []api.SignalRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := e.recent
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]api.SignalRecord, len(records))
	copy(out, records)
	return out
}

func (e *Engine) countFetchFailure() {
	e.mu.Lock()
	e.stats.FetchFailures++
	e.mu.Unlock()
}

func regimeSummary(reg *regime.Analysis) string {
	return fmt.Sprintf("%s (trend %.2f, volatility pct %.0f, confidence %.0f, warnings %d)",
		reg.Regime, reg.TrendStrength, reg.VolatilityPercentile, reg.Confidence, len(reg.Warnings))
}
