package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/api"
	"github.com/itsnelsonvargas/ClickTok/internal/app"
	"github.com/itsnelsonvargas/ClickTok/internal/config"
	"github.com/itsnelsonvargas/ClickTok/internal/database"
	"github.com/itsnelsonvargas/ClickTok/internal/logging"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.NewEngine(cfg, logger)
	if err != nil {
		logger.Error("failed to build discovery engine", "error", err)
		os.Exit(1)
	}

	deps := api.Deps{
		Engine:         engine,
		DefaultLimit:   cfg.Discovery.DefaultLimit,
		DefaultFilters: cfg.Filters,
	}

	// The product store and relay are optional.
	if cfg.Database.Enabled() {
		db, err := app.OpenDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		deps.Products = database.NewProductRepository(db)
		deps.OnFound = app.NewRecorder(ctx, db, logger).Record

		if cfg.Redis.Addr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}

			relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
				StreamMaxLen: cfg.Redis.StreamMaxLen,
			})
			deps.Backlog = relay
			go func() {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		} else {
			logger.Warn("REDIS_ADDR not set, discovery events stay in the outbox")
		}
	} else {
		logger.Warn("no database configured, product endpoints disabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(api.NewHandlers(deps, logger), cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
