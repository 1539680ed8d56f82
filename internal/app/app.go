// Package app assembles the discovery engine and its optional product store
// from configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itsnelsonvargas/ClickTok/internal/acquirer"
	"github.com/itsnelsonvargas/ClickTok/internal/browser"
	"github.com/itsnelsonvargas/ClickTok/internal/cache"
	"github.com/itsnelsonvargas/ClickTok/internal/config"
	"github.com/itsnelsonvargas/ClickTok/internal/database"
	"github.com/itsnelsonvargas/ClickTok/internal/discovery"
	"github.com/itsnelsonvargas/ClickTok/internal/events"
	"github.com/itsnelsonvargas/ClickTok/internal/extract"
	"github.com/itsnelsonvargas/ClickTok/internal/normalize"
	"github.com/itsnelsonvargas/ClickTok/internal/official"
	"github.com/itsnelsonvargas/ClickTok/internal/storage"
	"github.com/itsnelsonvargas/ClickTok/internal/synthetic"
)

// NewEngine wires every strategy. The official channel is built even without
// credentials; the engine skips it when it reports itself disabled.
func NewEngine(cfg *config.Config, logger *slog.Logger) (*discovery.Engine, error) {
	client, err := official.New(
		official.Config{
			BaseURL:  cfg.Official.BaseURL,
			Timeout:  cfg.Official.Timeout,
			CacheTTL: cfg.Official.CacheTTL,
		},
		official.Credentials{
			AppKey:      cfg.Official.AppKey,
			AppSecret:   cfg.Official.AppSecret,
			AccessToken: cfg.Official.AccessToken,
		},
		newCache(cfg.Official.MemcacheAddr, logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create official client: %w", err)
	}

	launcher := browser.NewLauncher(BrowserOptions(cfg.Browser), storage.NewCookieJar(cfg.Discovery.CookieFile), logger)
	acq := acquirer.New(
		acquirer.Launch(launcher),
		extract.New(cfg.CardSelectors, logger),
		cfg.Targets,
		acquirer.Options{
			LoginWait:        cfg.Discovery.LoginWait,
			LoginPoll:        cfg.Discovery.LoginPoll,
			ManualNavigation: cfg.Discovery.ManualNavigation,
			ManualWait:       cfg.Discovery.ManualWait,
			LoadMoreCycles:   cfg.Discovery.LoadMoreCycles,
			LoadMoreDelay:    cfg.Discovery.LoadMoreDelay,
			EpisodeDelayMin:  cfg.Discovery.EpisodeDelayMin,
			EpisodeDelayMax:  cfg.Discovery.EpisodeDelayMax,
		},
		logger,
	)

	return discovery.New(discovery.Sources{
		Official:  client,
		Browser:   acq,
		Synthetic: synthetic.New(synthetic.DefaultConfig(), nil),
	}, normalize.New(cfg.Discovery.AffiliateID), logger), nil
}

// BrowserOptions overlays configured values on the launcher defaults.
func BrowserOptions(c config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Headless
	if c.NavigationTimeout > 0 {
		opts.NavigationTimeout = c.NavigationTimeout
	}
	if c.ViewportWidth > 0 && c.ViewportHeight > 0 {
		opts.ViewportWidth = c.ViewportWidth
		opts.ViewportHeight = c.ViewportHeight
	}
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	if c.AcceptLanguage != "" {
		opts.AcceptLanguage = c.AcceptLanguage
	}
	if c.TimezoneID != "" {
		opts.TimezoneID = c.TimezoneID
	}
	if c.Locale != "" {
		opts.Locale = c.Locale
	}
	opts.ProxyServer = c.ProxyServer
	return opts
}

// newCache prefers memcached and falls back to an in-process cache when the
// server is unset or unreachable.
func newCache(addr string, logger *slog.Logger) cache.Cache {
	if addr == "" {
		return cache.NewMemoryCache()
	}
	mc := cache.NewMemcacheService(addr)
	if err := mc.Ping(); err != nil {
		logger.Warn("memcached unreachable, using in-memory cache", "addr", addr, "error", err)
		return cache.NewMemoryCache()
	}
	return mc
}

// OpenDatabase connects and migrates the product store.
func OpenDatabase(ctx context.Context, c config.DatabaseConfig) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		URL:      c.URL,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Name,
		SSLMode:  c.SSLMode,
		MaxConns: c.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// NewRecorder persists every reported product through the outbox publisher.
func NewRecorder(ctx context.Context, db *database.DB, logger *slog.Logger) *events.Recorder {
	return events.NewRecorder(ctx, events.NewPublisher(db, logger), 0, logger)
}
