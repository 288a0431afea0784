package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
	"crypto-signal-bot/internal/position"
	"crypto-signal-bot/internal/regime"
)

// StatsProvider exposes the engine's scan counters to the API.
type StatsProvider interface {
	ScanStats() map[string]interface{}
	RecentSignals(limit int) []SignalRecord
}

// SignalRecord is one sent signal as shown by the status API.
type SignalRecord struct {
	Symbol     string    `json:"symbol"`
	Variant    string    `json:"variant"`
	Tier       string    `json:"tier"`
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`
	Confidence float64   `json:"confidence"`
	RiskLevel  string    `json:"risk_level"`
	AIDecision string    `json:"ai_decision,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// ExitStatsProvider reports aggregate trade outcomes, typically
// backed by the database. Nil when persistence is disabled.
type ExitStatsProvider interface {
	ExitStats(ctx context.Context) (map[string]interface{}, error)
}

// GateStats reports the daily quota tracker state.
type GateStats interface {
	Stats() map[string]interface{}
}

// Server is the read-only status HTTP server. It exposes what the
// bot is doing but accepts no commands.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	logger     zerolog.Logger

	positions *position.Manager
	detector  *regime.Detector
	provider  *market.Provider
	stats     StatsProvider
	gate      GateStats
	exits     ExitStatsProvider
	startedAt time.Time
}

// NewServer creates the status API server.
func NewServer(cfg config.ServerConfig, positions *position.Manager, detector *regime.Detector, provider *market.Provider, stats StatsProvider, gate GateStats, exits ExitStatsProvider) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:       cfg,
		logger:    logging.Component("api"),
		positions: positions,
		detector:  detector,
		provider:  provider,
		stats:     stats,
		gate:      gate,
		exits:     exits,
		startedAt: time.Now(),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	origins := strings.Split(cfg.AllowedOrigins, ",")
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/positions", s.handlePositions)
		apiGroup.GET("/signals", s.handleSignals)
		apiGroup.GET("/stats", s.handleStats)
		apiGroup.GET("/regimes", s.handleRegimes)
	}

	s.router = router
	return s
}

// Start runs the HTTP server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Status API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info().Msg("Status API stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"sources": s.provider.SourceStats(),
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"positions": s.positions.OpenPositions(),
		"summary":   s.positions.Stats(),
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	limit := 50
	signals := s.stats.RecentSignals(limit)
	c.JSON(http.StatusOK, gin.H{
		"count":   len(signals),
		"signals": signals,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	resp := gin.H{
		"engine":    s.stats.ScanStats(),
		"quota":     s.gate.Stats(),
		"positions": s.positions.Stats(),
		"sources":   s.provider.SourceStats(),
	}

	if s.exits != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if exitStats, err := s.exits.ExitStats(ctx); err == nil {
			resp["outcomes"] = exitStats
		} else {
			s.logger.Warn().Err(err).Msg("Failed to load exit stats")
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRegimes(c *gin.Context) {
	if symbol := c.Query("symbol"); symbol != "" {
		c.JSON(http.StatusOK, gin.H{
			"symbol":  symbol,
			"history": s.detector.History(symbol),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"regimes": s.detector.Latest()})
}
