package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MarketConfig       MarketConfig       `json:"market"`
	UniverseConfig     UniverseConfig     `json:"universe"`
	StrategyConfig     StrategyConfig     `json:"strategy"`
	GateConfig         GateConfig         `json:"gate"`
	EngineConfig       EngineConfig       `json:"engine"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	AIConfig           AIConfig           `json:"ai"`
	NotificationConfig NotificationConfig `json:"notification"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	VaultConfig        VaultConfig        `json:"vault"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// Tier identifies the risk bucket a symbol belongs to.
type Tier string

const (
	TierBlueChip   Tier = "BLUE_CHIP"
	TierHighGrowth Tier = "HIGH_GROWTH"
	TierMeme       Tier = "MEME"
	TierNarrative  Tier = "NARRATIVE"
	TierEmerging   Tier = "EMERGING"
)

// AllTiers lists tiers in scan order, safest first.
var AllTiers = []Tier{TierBlueChip, TierHighGrowth, TierMeme, TierNarrative, TierEmerging}

// MarketConfig holds the indicator data source configuration
type MarketConfig struct {
	BinanceBaseURL  string `json:"binance_base_url"`
	CoinGeckoURL    string `json:"coingecko_base_url"`
	KrakenBaseURL   string `json:"kraken_base_url"`
	Interval        string `json:"interval"`          // kline interval, e.g. "1h"
	KlineLimit      int    `json:"kline_limit"`       // candles per fetch
	CacheTTLSeconds int    `json:"cache_ttl_seconds"` // snapshot cache TTL
	RequestTimeout  int    `json:"request_timeout"`   // seconds
	MaxRetries      int    `json:"max_retries"`       // per-source retry attempts
	FailureLimit    int    `json:"failure_limit"`     // consecutive failures before circuit opens
	CooldownSeconds int    `json:"cooldown_seconds"`  // circuit open duration
	StreamEnabled   bool   `json:"stream_enabled"`    // websocket ticker stream for monitor
}

// TierSettings holds per-tier symbols and risk parameters
type TierSettings struct {
	Symbols       []string `json:"symbols"`
	MinConfidence float64  `json:"min_confidence"`
	StopPercent   float64  `json:"stop_percent"`
	TargetPercent float64  `json:"target_percent"`
	DailyCap      int      `json:"daily_cap"`
}

type UniverseConfig struct {
	Tiers map[Tier]TierSettings `json:"tiers"`
}

// TierFor returns the tier a symbol belongs to, EMERGING when unlisted.
func (u *UniverseConfig) TierFor(symbol string) Tier {
	for _, tier := range AllTiers {
		for _, s := range u.Tiers[tier].Symbols {
			if s == symbol {
				return tier
			}
		}
	}
	return TierEmerging
}

// Symbols returns the full scan universe in tier order.
func (u *UniverseConfig) Symbols() []string {
	var out []string
	for _, tier := range AllTiers {
		out = append(out, u.Tiers[tier].Symbols...)
	}
	return out
}

// StrategyConfig holds knobs shared by the strategy variants
type StrategyConfig struct {
	LongTermEnabled      bool `json:"long_term_enabled"`
	SwingEnabled         bool `json:"swing_enabled"`
	ScalpingEnabled      bool `json:"scalping_enabled"`
	OpportunisticEnabled bool `json:"opportunistic_enabled"`
	NewsFilterEnabled    bool `json:"news_filter_enabled"` // optional scalping news veto/boost
}

// GateConfig holds the signal quality gate configuration
type GateConfig struct {
	MinRiskReward  float64 `json:"min_risk_reward"`  // global minimum reward:risk
	MaxDailyTotal  int     `json:"max_daily_total"`  // global daily signal cap
	PumpRSI        float64 `json:"pump_rsi"`         // pump heuristic RSI threshold
	PumpVolumeRatio float64 `json:"pump_volume_ratio"`
}

// EngineConfig holds the scan loop configuration
type EngineConfig struct {
	ScanIntervalMinutes int `json:"scan_interval_minutes"`
	SymbolDelayMillis   int `json:"symbol_delay_millis"` // pause between symbols
}

// MonitorConfig holds the position monitor loop configuration
type MonitorConfig struct {
	CheckIntervalSeconds int     `json:"check_interval_seconds"`
	PartialExitProgress  float64 `json:"partial_exit_progress"` // fraction of target gain to advise partial exit
}

// AIConfig holds the LLM risk layer configuration
type AIConfig struct {
	Enabled              bool    `json:"enabled"`
	LLMProvider          string  `json:"llm_provider"` // "claude", "openai", or "deepseek"
	ClaudeAPIKey         string  `json:"claude_api_key"`
	OpenAIAPIKey         string  `json:"openai_api_key"`
	DeepSeekAPIKey       string  `json:"deepseek_api_key"`
	LLMModel             string  `json:"llm_model"`
	RequestTimeout       int     `json:"request_timeout"`        // seconds
	MinConfidenceForAI   float64 `json:"min_confidence_for_ai"`  // below this, signal drops without an AI call
	NoAISendThreshold    float64 `json:"no_ai_send_threshold"`   // send without AI when disabled
	ErrorSendThreshold   float64 `json:"error_send_threshold"`   // send on AI transport error
	CautionThreshold     float64 `json:"caution_threshold"`      // APPROVE_WITH_CAUTION floor after adjustment
	ExitEvaluatorEnabled bool    `json:"exit_evaluator_enabled"` // LLM advisory on partial exits
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
}

// DSN builds the pgx connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RedisConfig holds Redis configuration for snapshot caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // path prefix for bot secrets
}

// ServerConfig holds the status API server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

type LoggingConfig struct {
	Level      string `json:"level"`  // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"` // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MarketConfig.BinanceBaseURL == "" {
		cfg.MarketConfig.BinanceBaseURL = "https://api.binance.com"
	}
	if cfg.MarketConfig.CoinGeckoURL == "" {
		cfg.MarketConfig.CoinGeckoURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.MarketConfig.KrakenBaseURL == "" {
		cfg.MarketConfig.KrakenBaseURL = "https://api.kraken.com"
	}
	if cfg.MarketConfig.Interval == "" {
		cfg.MarketConfig.Interval = "1h"
	}
	if cfg.MarketConfig.KlineLimit == 0 {
		cfg.MarketConfig.KlineLimit = 250
	}
	if cfg.MarketConfig.CacheTTLSeconds == 0 {
		cfg.MarketConfig.CacheTTLSeconds = 120
	}
	if cfg.MarketConfig.RequestTimeout == 0 {
		cfg.MarketConfig.RequestTimeout = 15
	}
	if cfg.MarketConfig.MaxRetries == 0 {
		cfg.MarketConfig.MaxRetries = 3
	}
	if cfg.MarketConfig.FailureLimit == 0 {
		cfg.MarketConfig.FailureLimit = 3
	}
	if cfg.MarketConfig.CooldownSeconds == 0 {
		cfg.MarketConfig.CooldownSeconds = 300
	}

	if cfg.UniverseConfig.Tiers == nil {
		cfg.UniverseConfig.Tiers = defaultTiers()
	}

	if cfg.GateConfig.MinRiskReward == 0 {
		cfg.GateConfig.MinRiskReward = 1.5
	}
	if cfg.GateConfig.MaxDailyTotal == 0 {
		cfg.GateConfig.MaxDailyTotal = 12
	}
	if cfg.GateConfig.PumpRSI == 0 {
		cfg.GateConfig.PumpRSI = 72
	}
	if cfg.GateConfig.PumpVolumeRatio == 0 {
		cfg.GateConfig.PumpVolumeRatio = 2.5
	}

	if cfg.EngineConfig.ScanIntervalMinutes == 0 {
		cfg.EngineConfig.ScanIntervalMinutes = 15
	}
	if cfg.EngineConfig.SymbolDelayMillis == 0 {
		cfg.EngineConfig.SymbolDelayMillis = 500
	}

	if cfg.MonitorConfig.CheckIntervalSeconds == 0 {
		cfg.MonitorConfig.CheckIntervalSeconds = 60
	}
	if cfg.MonitorConfig.PartialExitProgress == 0 {
		cfg.MonitorConfig.PartialExitProgress = 0.70
	}

	if cfg.AIConfig.RequestTimeout == 0 {
		cfg.AIConfig.RequestTimeout = 30
	}
	if cfg.AIConfig.MinConfidenceForAI == 0 {
		cfg.AIConfig.MinConfidenceForAI = 60
	}
	if cfg.AIConfig.NoAISendThreshold == 0 {
		cfg.AIConfig.NoAISendThreshold = 72
	}
	if cfg.AIConfig.ErrorSendThreshold == 0 {
		cfg.AIConfig.ErrorSendThreshold = 75
	}
	if cfg.AIConfig.CautionThreshold == 0 {
		cfg.AIConfig.CautionThreshold = 55
	}
}

// defaultTiers seeds the scan universe when config.json carries none.
func defaultTiers() map[Tier]TierSettings {
	return map[Tier]TierSettings{
		TierBlueChip: {
			Symbols:       []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT"},
			MinConfidence: 55,
			StopPercent:   5,
			TargetPercent: 10,
			DailyCap:      3,
		},
		TierHighGrowth: {
			Symbols:       []string{"AVAXUSDT", "LINKUSDT", "DOTUSDT", "ADAUSDT", "MATICUSDT"},
			MinConfidence: 60,
			StopPercent:   6,
			TargetPercent: 12,
			DailyCap:      3,
		},
		TierMeme: {
			Symbols:       []string{"DOGEUSDT", "SHIBUSDT", "PEPEUSDT"},
			MinConfidence: 70,
			StopPercent:   8,
			TargetPercent: 18,
			DailyCap:      2,
		},
		TierNarrative: {
			Symbols:       []string{"FETUSDT", "RNDRUSDT", "INJUSDT"},
			MinConfidence: 65,
			StopPercent:   7,
			TargetPercent: 14,
			DailyCap:      2,
		},
		TierEmerging: {
			Symbols:       []string{"SEIUSDT", "TIAUSDT", "SUIUSDT"},
			MinConfidence: 68,
			StopPercent:   8,
			TargetPercent: 16,
			DailyCap:      2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Market config
	cfg.MarketConfig.BinanceBaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.MarketConfig.BinanceBaseURL)
	cfg.MarketConfig.StreamEnabled = getEnvOrDefault("PRICE_STREAM_ENABLED", boolStr(cfg.MarketConfig.StreamEnabled)) == "true"

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolStr(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolStr(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// AI config
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", boolStr(cfg.AIConfig.Enabled)) == "true"
	cfg.AIConfig.LLMProvider = getEnvOrDefault("AI_LLM_PROVIDER", defaultStr(cfg.AIConfig.LLMProvider, "claude"))
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("AI_CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("AI_DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.LLMModel = getEnvOrDefault("AI_LLM_MODEL", defaultStr(cfg.AIConfig.LLMModel, "claude-3-haiku-20240307"))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", boolStr(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", defaultStr(cfg.DatabaseConfig.User, "signalbot"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", defaultStr(cfg.DatabaseConfig.Database, "signalbot"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DATABASE_MAX_CONNS", defaultInt(cfg.DatabaseConfig.MaxConns, 10))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultStr(cfg.VaultConfig.SecretPath, "signal-bot/keys"))

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Strategy toggles default on
	cfg.StrategyConfig.LongTermEnabled = getEnvOrDefault("STRATEGY_LONG_TERM", "true") == "true"
	cfg.StrategyConfig.SwingEnabled = getEnvOrDefault("STRATEGY_SWING", "true") == "true"
	cfg.StrategyConfig.ScalpingEnabled = getEnvOrDefault("STRATEGY_SCALPING", "true") == "true"
	cfg.StrategyConfig.OpportunisticEnabled = getEnvOrDefault("STRATEGY_OPPORTUNISTIC", "true") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func defaultStr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func defaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

// ScanInterval returns the engine scan cadence as a duration.
func (e *EngineConfig) ScanInterval() time.Duration {
	return time.Duration(e.ScanIntervalMinutes) * time.Minute
}

// SymbolDelay returns the pause between successive symbol scans.
func (e *EngineConfig) SymbolDelay() time.Duration {
	return time.Duration(e.SymbolDelayMillis) * time.Millisecond
}

// CheckInterval returns the monitor polling cadence as a duration.
func (m *MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalSeconds) * time.Second
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.NotificationConfig = NotificationConfig{
		Enabled: false,
		Telegram: TelegramConfig{
			Enabled:  false,
			BotToken: "",
			ChatID:   "",
		},
	}
	cfg.LoggingConfig = LoggingConfig{
		Level:      "INFO",
		Output:     "stdout",
		JSONFormat: true,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
