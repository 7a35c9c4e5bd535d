package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/connector/doorloop"
	"github.com/NeverShitty/rental-manager-sub001/internal/connector/mercury"
	"github.com/NeverShitty/rental-manager-sub001/internal/connector/wave"
	"github.com/NeverShitty/rental-manager-sub001/internal/infra/postgres"
	infraRedis "github.com/NeverShitty/rental-manager-sub001/internal/infra/redis"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/category"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/ingest"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/match"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/push"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/sync"
	"github.com/NeverShitty/rental-manager-sub001/internal/transport/httpapi"
	"github.com/NeverShitty/rental-manager-sub001/internal/transport/httpapi/handler"
	"github.com/NeverShitty/rental-manager-sub001/pkg/config"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting reconciliation API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	store := postgres.NewStore(db.Pool)

	// Optional operator-maintained rules file replaces the seeded rule table
	if cfg.RulesFile != "" {
		rulesCfg, err := config.LoadRulesConfig(cfg.RulesFile)
		if err != nil {
			log.Error("Failed to load rules file", "path", cfg.RulesFile, "error", err)
			os.Exit(1)
		}
		rules := make([]ledger.CategoryRule, 0, len(rulesCfg.Rules))
		for _, r := range rulesCfg.Rules {
			rules = append(rules, ledger.CategoryRule{Pattern: r.Pattern, CategoryID: r.Category})
		}
		if err := store.ReplaceCategoryRules(ctx, rules); err != nil {
			log.Error("Failed to apply rules file", "path", cfg.RulesFile, "error", err)
			os.Exit(1)
		}
		log.Info("Categorization rules loaded", "path", cfg.RulesFile, "rules", len(rules))
	}

	// Redis is optional: without it, failure-streak alerting degrades to
	// per-run log lines only
	var alertSink sync.AlertSink = sync.NopAlertSink{}
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable, failure alerting disabled", "error", err)
		} else {
			alertSink = infraRedis.NewAlertSink(redisClient, log)
			log.Info("Redis connection established")
		}
	}

	// Initialize connectors. A missing credential disables that connector
	// (hard error in production, see config.Validate).
	var connectors []connector.Connector
	var waveAdapter *wave.Adapter

	if cfg.MercuryAPIToken != "" {
		client := mercury.NewClient(cfg.MercuryAPIToken, log)
		if cfg.MercuryBaseURL != "" {
			client.SetBaseURL(cfg.MercuryBaseURL)
		}
		connectors = append(connectors, mercury.NewAdapter(client))
		log.Info("Mercury connector initialized")
	}

	if cfg.WaveAPIToken != "" {
		client := wave.NewClient(cfg.WaveAPIToken, cfg.WaveBusinessID, log)
		if cfg.WaveBaseURL != "" {
			client.SetBaseURL(cfg.WaveBaseURL)
		}
		waveAdapter = wave.NewAdapter(client)
		connectors = append(connectors, waveAdapter)
		log.Info("Wave connector initialized")
	}

	if cfg.DoorLoopAPIKey != "" {
		client := doorloop.NewClient(cfg.DoorLoopAPIKey, log)
		if cfg.DoorLoopBaseURL != "" {
			client.SetBaseURL(cfg.DoorLoopBaseURL)
		}
		connectors = append(connectors, doorloop.NewAdapter(client))
		log.Info("DoorLoop connector initialized")
	}

	if len(connectors) == 0 {
		log.Warn("No connector credentials configured, sync will have nothing to do")
	}

	// Reconciliation pipeline
	canonicalizer := ingest.NewCanonicalizer(store, log)
	mapper := category.NewMapper(store, store, log)
	matcher := match.NewMatcher(store, match.DefaultPairs(), log)

	syncConfig := &sync.Config{
		PollInterval:          cfg.SyncPollInterval,
		ConcurrentConnectors:  cfg.ConcurrentConnectors,
		MaxPagesPerRun:        cfg.MaxPagesPerRun,
		ConnectorTimeout:      cfg.ConnectorTimeout,
		FailureAlertThreshold: cfg.FailureAlertThreshold,
		Enabled:               cfg.SyncEnabled,
	}
	syncSvc := sync.NewService(syncConfig, connectors, store, canonicalizer, mapper, matcher, alertSink, log)

	// Push gateway exports into the system of record (Wave)
	var pushGateway *push.Gateway
	if waveAdapter != nil {
		pushConfig := &push.Config{
			MaxAttempts: cfg.PushMaxAttempts,
			BaseBackoff: cfg.PushBaseBackoff,
		}
		pushGateway = push.NewGateway(pushConfig, store, waveAdapter, log)
		log.Info("Push gateway initialized", "max_attempts", cfg.PushMaxAttempts)
	} else {
		log.Warn("Wave connector not configured, push gateway disabled")
	}

	// Initialize HTTP handlers
	healthHandler := handler.NewHealthHandler(db.Pool)
	runHandler := handler.NewRunHandler(syncSvc, store)
	transactionHandler := handler.NewTransactionHandler(store, log)
	accountHandler := handler.NewAccountHandler(store)

	var pushHandler *handler.PushHandler
	if pushGateway != nil {
		pushHandler = handler.NewPushHandler(pushGateway, store)
	}

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AllowedOrigins:     allowedOrigins,
		HealthHandler:      healthHandler,
		RunHandler:         runHandler,
		TransactionHandler: transactionHandler,
		PushHandler:        pushHandler,
		AccountHandler:     accountHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background sync loop
	go syncSvc.Run(ctx)
	log.Info("Sync service started", "poll_interval", cfg.SyncPollInterval)

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	syncSvc.Stop()
	log.Info("Sync service stopped")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
