package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itsnelsonvargas/ClickTok/internal/app"
	"github.com/itsnelsonvargas/ClickTok/internal/config"
	"github.com/itsnelsonvargas/ClickTok/internal/database"
	"github.com/itsnelsonvargas/ClickTok/internal/events"
	"github.com/itsnelsonvargas/ClickTok/internal/logging"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		stream         = flag.String("stream", database.DefaultTargetStream, "Redis stream to consume")
		group          = flag.String("group", "discovery-consumer-group", "Consumer group")
		name           = flag.String("name", "consumer-1", "Consumer name within the group")
		selectMinSales = flag.Int64("select-min-sales", 0, "Mark products with at least this many sales as selected (0 disables)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if cfg.Redis.Addr == "" {
		logger.Error("REDIS_ADDR is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	var products *database.ProductRepository
	if *selectMinSales > 0 {
		if !cfg.Database.Enabled() {
			logger.Error("-select-min-sales requires DATABASE_URL or DB_HOST")
			os.Exit(1)
		}
		db, err := app.OpenDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		products = database.NewProductRepository(db)
	}

	handler := func(ctx context.Context, p *events.ProductDiscoveredPayload) error {
		logger.Info("product discovered",
			"product_id", p.ProductID,
			"name", p.Name,
			"price", p.Price,
			"sales", p.Sales,
			"source", p.Source)

		if products == nil || p.Sales < *selectMinSales {
			return nil
		}
		if err := products.UpdateStatus(ctx, p.ProductID, models.StatusSelected); err != nil {
			return err
		}
		logger.Info("product selected", "product_id", p.ProductID)
		return nil
	}

	consumer := events.NewConsumer(rdb, handler, events.ConsumerConfig{
		Stream: *stream,
		Group:  *group,
		Name:   *name,
	}, logger)

	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
