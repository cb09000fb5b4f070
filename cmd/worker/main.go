package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/visuluxe/visuluxe/internal/database"
	"github.com/visuluxe/visuluxe/internal/providers"
	"github.com/visuluxe/visuluxe/internal/tasks"
	"github.com/visuluxe/visuluxe/internal/vault"
	"github.com/visuluxe/visuluxe/pkg/config"
	"github.com/visuluxe/visuluxe/pkg/crypto"
	"github.com/visuluxe/visuluxe/pkg/queue"
	"github.com/visuluxe/visuluxe/pkg/util"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting Visuluxe worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Connect to Redis for the model catalog cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})

	// The worker needs the cipher to resolve encrypted provider keys
	var cipher *crypto.Cipher
	if cfg.Encryption.Key != "" {
		cipher, err = crypto.NewCipher(cfg.Encryption.Key)
		if err != nil {
			logger.Error("failed to create cipher", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set, encrypted provider keys will be unavailable")
	}

	vaultService := vault.NewService(db, cipher, nil, logger, cfg.Vault.DecryptLimit, cfg.Vault.DecryptWindow())

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, 10)

	// Create task handler
	handler := tasks.NewHandler(db, redisClient, vaultService, providers.NewClient(), logger)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.Register(mux)

	// Periodic jobs
	for _, expr := range []string{cfg.Jobs.CacheRefreshCron, cfg.Jobs.ProfileSyncCron} {
		if err := util.ValidateCronExpr(expr); err != nil {
			logger.Error("invalid job schedule", "expr", expr, "error", err)
			os.Exit(1)
		}
	}

	scheduler := queue.NewScheduler(&cfg.Redis)

	cacheTask, err := tasks.NewModelCacheRefreshTask(nil)
	if err != nil {
		logger.Error("failed to build cache refresh task", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register(cfg.Jobs.CacheRefreshCron, cacheTask); err != nil {
		logger.Error("failed to register cache refresh schedule", "error", err)
		os.Exit(1)
	}

	syncTask, err := tasks.NewProfileSyncTask()
	if err != nil {
		logger.Error("failed to build profile sync task", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.Register(cfg.Jobs.ProfileSyncCron, syncTask); err != nil {
		logger.Error("failed to register profile sync schedule", "error", err)
		os.Exit(1)
	}

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker...")
		scheduler.Shutdown()
		srv.Shutdown()
		cancel()
	}()

	logger.Info("worker started, waiting for tasks...")

	// Start the server
	if err := srv.Run(mux); err != nil {
		logger.Error("worker error", "error", err)
	}

	// Wait for context cancellation
	<-ctx.Done()

	// Close connections
	redisClient.Close()
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
