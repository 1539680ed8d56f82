package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/itsnelsonvargas/ClickTok/internal/app"
	"github.com/itsnelsonvargas/ClickTok/internal/config"
	"github.com/itsnelsonvargas/ClickTok/internal/logging"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		limit         = flag.Int("limit", cfg.Discovery.DefaultLimit, "Number of products to discover")
		minPrice      = flag.Float64("min-price", cfg.Filters.MinPrice, "Minimum price")
		maxPrice      = flag.Float64("max-price", cfg.Filters.MaxPrice, "Maximum price (0 for no upper bound)")
		minCommission = flag.Float64("min-commission", cfg.Filters.MinCommissionRate, "Minimum commission rate in percent")
		minRating     = flag.Float64("min-rating", cfg.Filters.MinRating, "Minimum rating")
		categories    = flag.String("categories", "", "Comma separated categories to steer discovery")
		headless      = flag.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
		persist       = flag.Bool("persist", false, "Store discovered products in the database")
	)
	flag.Parse()

	cfg.Browser.Headless = *headless
	cfg.Filters.MinPrice = *minPrice
	cfg.Filters.MaxPrice = *maxPrice
	cfg.Filters.MinCommissionRate = *minCommission
	cfg.Filters.MinRating = *minRating
	if *categories != "" {
		cfg.Filters.Categories = config.SplitList(*categories)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(logging.Options{
		Writer: os.Stderr,
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info("Starting product discovery", "limit", *limit, "filters", cfg.Filters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := app.NewEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to build discovery engine", "error", err)
		os.Exit(1)
	}

	onFound := func(p models.Product) {
		fmt.Printf("found: %s  $%.2f  %d sold  %.1f stars\n", p.Name, p.Price, p.Sales, p.Rating)
	}

	if *persist {
		if !cfg.Database.Enabled() {
			logger.Error("-persist requires DATABASE_URL or DB_HOST")
			os.Exit(1)
		}
		db, err := app.OpenDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		recorder := app.NewRecorder(ctx, db, logger)
		report := onFound
		onFound = func(p models.Product) {
			report(p)
			recorder.Record(p)
		}
		defer func() {
			stats := recorder.Stats()
			logger.Info("Persisted products",
				"stored", stats.Stored,
				"duplicates", stats.Duplicates,
				"failed", stats.Failed)
		}()
	}

	// Enter on stdin resumes a run paused at a login wall.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if engine.ContinueLogin() {
				logger.Info("Continuing after login")
			}
		}
	}()

	products := engine.Discover(ctx, *limit, cfg.Filters, onFound)

	fmt.Printf("\nDiscovered %d products\n\n", len(products))
	printTable(products)
}

func printTable(products []models.Product) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tPRICE\tCOMMISSION\tSALES\tRATING\tSOURCE\tLINK")
	for i, p := range products {
		fmt.Fprintf(w, "%d\t%s\t$%.2f\t%.1f%% ($%.2f)\t%d\t%.1f\t%s\t%s\n",
			i+1, truncate(p.Name, 48), p.Price, p.CommissionRate, p.CommissionAmount,
			p.Sales, p.Rating, p.Source, p.AffiliateLink)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
