package strategy

import (
	"time"

	"crypto-signal-bot/config"
)

// ConfidenceLevel buckets a confidence score
type ConfidenceLevel string

const (
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceModerate ConfidenceLevel = "MODERATE"
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceVeryHigh ConfidenceLevel = "VERY_HIGH"
)

// LevelFor buckets a confidence score at the 60/75/90 boundaries.
// Scores below 60 can still reach here through the scalping floor.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 90:
		return ConfidenceVeryHigh
	case confidence >= 75:
		return ConfidenceHigh
	case confidence >= 60:
		return ConfidenceModerate
	default:
		return ConfidenceLow
	}
}

// RiskLevel labels a signal's risk score
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// Signal is a fully assembled entry recommendation.
type Signal struct {
	ID       string      `json:"id"`
	Symbol   string      `json:"symbol"`
	Strategy string      `json:"strategy"`
	Tier     config.Tier `json:"tier"`

	EntryPrice  float64 `json:"entry_price"`
	StopLoss    float64 `json:"stop_loss"`
	TargetPrice float64 `json:"target_price"`
	RiskReward  float64 `json:"risk_reward"`

	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	RiskScore       float64         `json:"risk_score"`
	RiskLevel       RiskLevel       `json:"risk_level"`

	Regime       string   `json:"regime"`
	VolumeRatio  float64  `json:"volume_ratio"`
	RSI          float64  `json:"rsi"`
	Warnings     []string `json:"warnings,omitempty"`
	Reasons      []string `json:"reasons,omitempty"`
	HoldDuration string   `json:"hold_duration"`

	GeneratedAt time.Time `json:"generated_at"`

	// AI review outcome, filled in by the engine when the LLM layer
	// runs.
	AIDecision   string  `json:"ai_decision,omitempty"`
	AIConfidence float64 `json:"ai_confidence,omitempty"`
	AIRiskScore  float64 `json:"ai_risk_score,omitempty"`
	AINotes      string  `json:"ai_notes,omitempty"`
}

// FinalConfidence returns the AI-adjusted confidence when present.
func (s *Signal) FinalConfidence() float64 {
	if s.AIConfidence > 0 {
		return s.AIConfidence
	}
	return s.Confidence
}
