/**
 * @description
 * This is the main entry point for the Plutus ledger service. It is
 * responsible for initializing all components of the service: configuration,
 * the record store backend, the ledger, beneficiary directory and audit
 * trail, the optional Redis rate limiter and RabbitMQ producer, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service with graceful shutdown.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP serving.
 * - github.com/joho/godotenv: Optional .env loading for local development.
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL driver for the postgres backend.
 * - github.com/redis/go-redis/v9: Redis client for transfer rate limiting.
 * - internal/api, internal/app, internal/config, internal/store and friends.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hamza-sanaullah/Plutus/internal/api"
	"github.com/hamza-sanaullah/Plutus/internal/app"
	"github.com/hamza-sanaullah/Plutus/internal/audit"
	"github.com/hamza-sanaullah/Plutus/internal/beneficiary"
	"github.com/hamza-sanaullah/Plutus/internal/config"
	"github.com/hamza-sanaullah/Plutus/internal/ledger"
	"github.com/hamza-sanaullah/Plutus/internal/store"
	"github.com/hamza-sanaullah/Plutus/pkg/rabbitmq"
)

func main() {
	// Load .env if present; real deployments set environment variables.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "err", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger.Info("starting plutus ledger service",
		"port", cfg.ServerPort, "store_backend", cfg.StoreBackend)

	recordStore, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("store init failed", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer cleanup()

	ldg := ledger.New(recordStore, logger)
	directory := beneficiary.New(recordStore, logger)
	trail := audit.New(recordStore, logger)

	// Redis is optional; without it transfer rate limiting is disabled.
	var limiter app.TransferRateLimiter
	if cfg.TransferRateLimitPerMinute > 0 && cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed, rate limiting disabled", "err", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed, rate limiting disabled", "err", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisTransferRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				logger.Info("redis connected, transfer rate limiting enabled",
					"per_minute", cfg.TransferRateLimitPerMinute)
			}
		}
	}

	// RabbitMQ is optional; without it transfer events are skipped.
	var events rabbitmq.Publisher = &rabbitmq.NoopPublisher{Logger: logger}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		producer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.TransferEventExchange, logger)
		if prodErr != nil {
			logger.Warn("rabbitmq producer unavailable, using noop publisher", "err", prodErr)
		} else {
			events = producer
			logger.Info("rabbitmq producer connected", "exchange", cfg.TransferEventExchange)
		}
	}
	defer events.Close()

	service := app.NewService(recordStore, ldg, directory, trail, events, limiter, app.Config{
		DefaultBalance:     cfg.DefaultBalancePaisa,
		DefaultDailyLimit:  cfg.DefaultDailyLimitPaisa,
		MinTransferAmount:  cfg.MinTransferPaisa,
		MaxTransferAmount:  cfg.MaxTransferPaisa,
		AppendRetries:      cfg.StorageRetryAttempts,
		TransfersPerMinute: cfg.TransferRateLimitPerMinute,
	}, logger)

	handlers := api.NewLedgerHandlers(service, logger)
	router := api.LedgerRoutes(handlers)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
	logger.Info("shutdown complete")
}

// buildStore selects the record store backend from configuration. The
// returned cleanup releases backend resources and is safe to call once.
func buildStore(cfg config.Config, logger *slog.Logger) (store.RecordStore, func(), error) {
	switch cfg.StoreBackend {
	case "csv":
		st, err := store.NewCSVStore(cfg.DataDir, logger, store.AllCollections)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database url parse failed: %w", err)
		}
		poolConfig.MaxConns = 20
		poolConfig.MaxConnLifetime = 30 * time.Minute
		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		st, err := store.NewPostgresStore(context.Background(), dbpool)
		if err != nil {
			dbpool.Close()
			return nil, nil, err
		}
		logger.Info("database connected")
		return st, dbpool.Close, nil

	case "memory":
		// Volatile; intended for tests and demos only.
		return store.NewMemoryStore(store.AllCollections), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
