package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/logging"
)

const fearGreedURL = "https://api.alternative.me/fng/?limit=1"

// Analyzer provides a coarse market sentiment score from the
// alternative.me Fear and Greed index. Scores are market-wide, not
// per symbol; the scalping variant uses them as a veto filter.
type Analyzer struct {
	client   *http.Client
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.RWMutex
	score     float64
	fetchedAt time.Time
	valid     bool
}

// NewAnalyzer creates a sentiment analyzer that refreshes at the
// given interval.
func NewAnalyzer(interval time.Duration) *Analyzer {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Analyzer{
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		logger:   logging.Component("sentiment"),
	}
}

// Sentiment returns the cached market sentiment in [-1, 1]. The bool
// is false until the first successful fetch or when the cached value
// has gone stale.
func (a *Analyzer) Sentiment(symbol string) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.valid || time.Since(a.fetchedAt) > 2*a.interval {
		return 0, false
	}
	return a.score, true
}

// Run refreshes the index until the context ends.
func (a *Analyzer) Run(ctx context.Context) {
	a.refresh(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refresh(ctx)
		}
	}
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

func (a *Analyzer) refresh(ctx context.Context) {
	index, label, err := a.fetchIndex(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Fear and greed fetch failed")
		return
	}

	// Map 0-100 onto [-1, 1] with 50 neutral.
	score := (float64(index) - 50) / 50

	a.mu.Lock()
	a.score = score
	a.fetchedAt = time.Now()
	a.valid = true
	a.mu.Unlock()

	a.logger.Debug().
		Int("index", index).
		Str("label", label).
		Float64("score", score).
		Msg("Sentiment updated")
}

func (a *Analyzer) fetchIndex(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fearGreedURL, nil)
	if err != nil {
		return 0, "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("fear and greed index returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, "", err
	}

	var parsed fearGreedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, "", fmt.Errorf("failed to parse fear and greed response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return 0, "", fmt.Errorf("fear and greed response had no data")
	}

	value, err := strconv.Atoi(parsed.Data[0].Value)
	if err != nil {
		return 0, "", fmt.Errorf("fear and greed value %q not numeric: %w", parsed.Data[0].Value, err)
	}
	return value, parsed.Data[0].ValueClassification, nil
}
