package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/position"
	"crypto-signal-bot/internal/strategy"
)

// Notifier delivers rendered messages to one sink.
type Notifier interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// Manager fans messages out to every configured notifier. Delivery
// failures are logged and swallowed; a dead sink never blocks the
// engine.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
	sent      int
	failed    int
}

// NewManager creates a notification manager.
func NewManager(notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		logger:    logging.Component("NotificationManager"),
	}
}

// Add registers another notifier.
func (m *Manager) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Broadcast sends a message to all sinks.
func (m *Manager) Broadcast(ctx context.Context, message string) {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, message); err != nil {
			m.failed++
			m.logger.Error().Err(err).Str("notifier", n.Name()).Msg("notification delivery failed")
			continue
		}
		m.sent++
	}
}

// NotifySignal renders and broadcasts an entry signal.
func (m *Manager) NotifySignal(ctx context.Context, sig *strategy.Signal) {
	m.Broadcast(ctx, FormatSignal(sig))
}

// NotifyExit renders and broadcasts a position close.
func (m *Manager) NotifyExit(ctx context.Context, pos *position.Position) {
	m.Broadcast(ctx, FormatExit(pos))
}

// NotifyPartialExit renders and broadcasts the partial profit advisory.
func (m *Manager) NotifyPartialExit(ctx context.Context, pos *position.Position, price float64, advice string) {
	m.Broadcast(ctx, FormatPartialExit(pos, price, advice))
}

// FormatSignal renders an entry signal message.
func FormatSignal(sig *strategy.Signal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🟢 %s BUY SIGNAL | %s\n", strings.ToUpper(sig.Strategy), sig.Symbol)
	fmt.Fprintf(&b, "Tier: %s | Regime: %s\n", sig.Tier, sig.Regime)
	fmt.Fprintf(&b, "Entry: %s\n", formatPrice(sig.EntryPrice))
	fmt.Fprintf(&b, "Target: %s (+%.1f%%)\n", formatPrice(sig.TargetPrice),
		(sig.TargetPrice-sig.EntryPrice)/sig.EntryPrice*100)
	fmt.Fprintf(&b, "Stop: %s (%.1f%%)\n", formatPrice(sig.StopLoss),
		(sig.StopLoss-sig.EntryPrice)/sig.EntryPrice*100)
	fmt.Fprintf(&b, "R:R %.2f | Confidence %.0f (%s) | Risk %s\n",
		sig.RiskReward, sig.FinalConfidence(), sig.ConfidenceLevel, sig.RiskLevel)
	fmt.Fprintf(&b, "Hold: %s\n", sig.HoldDuration)

	if sig.AIDecision != "" {
		fmt.Fprintf(&b, "AI review: %s\n", sig.AIDecision)
	}
	for _, r := range sig.Reasons {
		fmt.Fprintf(&b, "• %s\n", r)
	}
	for _, w := range sig.Warnings {
		fmt.Fprintf(&b, "⚠ %s\n", w)
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatExit renders a close message with the exit analysis.
func FormatExit(pos *position.Position) string {
	var b strings.Builder

	icon := "🔴"
	if pos.Analysis != nil && pos.Analysis.ProfitPercent >= 0 {
		icon = "🟢"
	}

	fmt.Fprintf(&b, "%s EXIT | %s (%s)\n", icon, pos.Symbol, pos.Strategy)
	fmt.Fprintf(&b, "Reason: %s\n", pos.ExitReason)
	fmt.Fprintf(&b, "Entry: %s → Exit: %s\n", formatPrice(pos.EntryPrice), formatPrice(pos.ExitPrice))

	if a := pos.Analysis; a != nil {
		fmt.Fprintf(&b, "P/L: %+.2f%% | 100 units → %.2f\n", a.ProfitPercent, a.SimFinalValue)
		fmt.Fprintf(&b, "Peak during hold: %+.2f%% | Held: %s\n", a.MaxProfitDuringHold, a.Duration)
		if a.ExpectationMet {
			b.WriteString("Target reached as planned\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatPartialExit renders the one-shot partial profit advisory.
func FormatPartialExit(pos *position.Position, price float64, advice string) string {
	var b strings.Builder

	profit := 0.0
	if pos.EntryPrice > 0 {
		profit = (price - pos.EntryPrice) / pos.EntryPrice * 100
	}

	fmt.Fprintf(&b, "🟡 PARTIAL EXIT WINDOW | %s (%s)\n", pos.Symbol, pos.Strategy)
	fmt.Fprintf(&b, "Now %s, %+.2f%% from entry, %.0f%% of target covered\n",
		formatPrice(price), profit, pos.TargetProgress(price)*100)
	fmt.Fprintf(&b, "Consider banking part of the position; stop stays at %s\n", formatPrice(pos.StopLoss))
	if advice != "" {
		fmt.Fprintf(&b, "AI advisory: %s\n", advice)
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatPrice(p float64) string {
	switch {
	case p >= 1000:
		return fmt.Sprintf("$%.2f", p)
	case p >= 1:
		return fmt.Sprintf("$%.4f", p)
	default:
		return fmt.Sprintf("$%.8f", p)
	}
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// Send posts one message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, message string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
