package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-signal-bot/config"
	"crypto-signal-bot/internal/ai/llm"
	"crypto-signal-bot/internal/api"
	"crypto-signal-bot/internal/circuit"
	"crypto-signal-bot/internal/database"
	"crypto-signal-bot/internal/engine"
	"crypto-signal-bot/internal/events"
	"crypto-signal-bot/internal/gate"
	"crypto-signal-bot/internal/logging"
	"crypto-signal-bot/internal/market"
	"crypto-signal-bot/internal/memory"
	"crypto-signal-bot/internal/notification"
	"crypto-signal-bot/internal/position"
	"crypto-signal-bot/internal/regime"
	"crypto-signal-bot/internal/sentiment"
	"crypto-signal-bot/internal/strategy"
	"crypto-signal-bot/internal/structure"
	"crypto-signal-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Setup(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Secrets from Vault override whatever the env/file config carries.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Vault client")
	}
	secrets, err := vaultClient.FetchSecrets()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to fetch secrets from Vault")
	}
	applySecrets(cfg, secrets)

	// Persistence is optional; without it positions and memory live
	// only in process.
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.New(ctx, &cfg.DatabaseConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		logger.Info().Msg("Database connected")
	}

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, falling back to in-process cache")
			redisClient = nil
		}
	}

	// Data sources in failover order: Binance, CoinGecko, Kraken.
	timeout := time.Duration(cfg.MarketConfig.RequestTimeout) * time.Second
	sources := []market.Source{
		market.NewBinanceSource(cfg.MarketConfig.BinanceBaseURL, timeout),
		market.NewCoinGeckoSource(cfg.MarketConfig.CoinGeckoURL, timeout),
		market.NewKrakenSource(cfg.MarketConfig.KrakenBaseURL, timeout),
	}
	cache := market.NewSnapshotCache(redisClient, time.Duration(cfg.MarketConfig.CacheTTLSeconds)*time.Second)
	provider := market.NewProvider(sources, cache, market.ProviderConfig{
		Interval:   cfg.MarketConfig.Interval,
		KlineLimit: cfg.MarketConfig.KlineLimit,
		MaxRetries: cfg.MarketConfig.MaxRetries,
		CacheTTL:   time.Duration(cfg.MarketConfig.CacheTTLSeconds) * time.Second,
		BreakerConf: &circuit.BreakerConfig{
			FailureLimit: cfg.MarketConfig.FailureLimit,
			Cooldown:     time.Duration(cfg.MarketConfig.CooldownSeconds) * time.Second,
			BackoffBase:  500 * time.Millisecond,
		},
	})

	var stream *market.PriceStream
	if cfg.MarketConfig.StreamEnabled {
		stream = market.NewPriceStream(cfg.UniverseConfig.Symbols())
		go stream.Run(ctx)
	}

	var store position.Store
	var memStore memory.Store
	if db != nil {
		store = db
		memStore = db
	}

	positions := position.NewManager(store)
	if err := positions.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore open positions")
	}

	mem := memory.New(memStore)
	if err := mem.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore symbol memory")
	}

	var news strategy.NewsProvider
	if cfg.StrategyConfig.NewsFilterEnabled {
		analyzer := sentiment.NewAnalyzer(15 * time.Minute)
		go analyzer.Run(ctx)
		news = analyzer
	}

	detector := regime.NewDetector()
	builder := structure.NewBuilder()
	strategies := strategy.Variants(&cfg.StrategyConfig, positions)
	qualityGate := gate.NewQualityGate(&cfg.GateConfig, &cfg.UniverseConfig)

	aiClient := llm.NewClient(&llm.ClientConfig{
		Provider: llm.Provider(cfg.AIConfig.LLMProvider),
		APIKey:   llmAPIKey(cfg),
		Model:    cfg.AIConfig.LLMModel,
		Timeout:  time.Duration(cfg.AIConfig.RequestTimeout) * time.Second,
	})

	notifier := notification.NewManager()
	if cfg.NotificationConfig.Enabled && cfg.NotificationConfig.Telegram.Enabled {
		tg := cfg.NotificationConfig.Telegram
		notifier.Add(notification.NewTelegramNotifier(tg.BotToken, tg.ChatID))
	}

	bus := events.NewBus()
	provider.OnSourceStateChange(func(source string, state circuit.BreakerState) {
		if state == circuit.StateOpen {
			bus.Publish(events.TypeSourceDown, "", source)
		}
	})

	eng := engine.New(cfg, provider, detector, builder, strategies, qualityGate,
		positions, mem, notifier, bus, news, aiClient)

	monitor := position.NewMonitor(positions, provider, stream,
		cfg.MonitorConfig.CheckInterval(), cfg.MonitorConfig.PartialExitProgress)
	monitor.OnExit = eng.HandleExit
	monitor.OnPartial = eng.HandlePartial

	go monitor.Run(ctx)
	go eng.Run(ctx)

	if cfg.ServerConfig.Enabled {
		var exits api.ExitStatsProvider
		if db != nil {
			exits = db
		}
		server := api.NewServer(cfg.ServerConfig, positions, detector, provider,
			eng, qualityGate.Tracker(), exits)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Status API failed")
				stop()
			}
		}()
	}

	// Mirror lifecycle events into the log for operators tailing it.
	go func() {
		sub := bus.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sub:
				logger.Debug().Str("event", string(event.Type)).Str("symbol", event.Symbol).Msg("Event")
			}
		}
	}()

	logger.Info().Msg("Signal bot running")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	// Give in-flight notifications and the API server a moment.
	time.Sleep(time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second)
}

// applySecrets lets Vault-held credentials take precedence over the
// file and environment config.
func applySecrets(cfg *config.Config, secrets *vault.Secrets) {
	if secrets.LLMAPIKey != "" {
		switch cfg.AIConfig.LLMProvider {
		case "openai":
			cfg.AIConfig.OpenAIAPIKey = secrets.LLMAPIKey
		case "deepseek":
			cfg.AIConfig.DeepSeekAPIKey = secrets.LLMAPIKey
		default:
			cfg.AIConfig.ClaudeAPIKey = secrets.LLMAPIKey
		}
	}
	if secrets.TelegramToken != "" {
		cfg.NotificationConfig.Telegram.BotToken = secrets.TelegramToken
	}
	if secrets.TelegramChat != "" {
		cfg.NotificationConfig.Telegram.ChatID = secrets.TelegramChat
	}
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.AIConfig.LLMProvider {
	case "openai":
		return cfg.AIConfig.OpenAIAPIKey
	case "deepseek":
		return cfg.AIConfig.DeepSeekAPIKey
	default:
		return cfg.AIConfig.ClaudeAPIKey
	}
}
