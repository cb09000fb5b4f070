package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/visuluxe/visuluxe/internal/api"
	"github.com/visuluxe/visuluxe/internal/auth"
	"github.com/visuluxe/visuluxe/internal/database"
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

	logger.Info("starting Visuluxe server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
	}

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)
	otpService := auth.NewOTPService(db, redisClient, jwtService, &auth.LogMailer{Logger: logger})

	// Initialize the credential cipher. Development tolerates a missing key
	// so the API can come up; key operations then answer 500 until one is
	// configured. Production refuses to start without it.
	var cipher *crypto.Cipher
	if cfg.Encryption.Key == "" {
		if !cfg.Server.IsDevelopment() {
			logger.Error("ENCRYPTION_KEY is required outside development")
			os.Exit(1)
		}
		logger.Warn("ENCRYPTION_KEY not set, provider key operations disabled")
	} else {
		cipher, err = crypto.NewCipher(cfg.Encryption.Key)
		if err != nil {
			logger.Error("failed to create cipher", "error", err)
			os.Exit(1)
		}
	}

	vaultService := vault.NewService(db, cipher, authService, logger, cfg.Vault.DecryptLimit, cfg.Vault.DecryptWindow())

	// Queue client for catalog refresh enqueues
	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()

	// Create router
	router := api.NewRouter(api.RouterDeps{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Redis:       redisClient,
		Queue:       queueClient,
		AuthService: authService,
		OTPService:  otpService,
		JWTService:  jwtService,
		Vault:       vaultService,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Redis connection
	redisClient.Close()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
