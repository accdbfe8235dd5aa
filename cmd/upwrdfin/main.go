package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"upwrdfin/config"
	"upwrdfin/internal/cache"
	"upwrdfin/internal/catalog"
	"upwrdfin/internal/feed"
	"upwrdfin/internal/metrics"
	"upwrdfin/internal/reader/psxterminal"
	"upwrdfin/internal/reconcile"
	"upwrdfin/internal/scrape"
	"upwrdfin/internal/series"
	"upwrdfin/internal/server"
	"upwrdfin/internal/signup"
	"upwrdfin/logger"
)

const (
	defaultConfigPath   = "config/config.yml"
	feedReportInterval  = 30 * time.Second
	shutdownWaitTimeout = 30 * time.Second
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath, defaultConfigPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	if config.IsProductionLike(env) {
		cfg.Server.DisableDebug = true
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": env,
	}).Info("starting upwrdfin")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Prometheus {
		metrics.Init()
	}
	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		metrics.InitCloudWatch(ctx, cw.Region, cw.Namespace, cfg.App.Name)
	}

	gen := series.NewGenerator()
	cat, err := catalog.Load(cfg.Catalog.Path, gen, cfg.Feed.SeriesPoints)
	if err != nil {
		log.WithError(err).Error("failed to load instrument catalog")
		os.Exit(1)
	}
	engine := reconcile.NewEngine(gen, cfg.Feed.SeriesPoints)

	store, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		log.WithComponent("main").WithError(err).Warn("redis unavailable; caching in memory")
	}
	defer store.Close()

	scraper := scrape.NewAdapter(cfg.Scrape.BaseURL, cfg.Scrape.Timeout,
		scrape.WithAllowedPrefixes(cfg.Scrape.AllowedPrefixes),
		scrape.WithCache(store, cfg.Scrape.CacheTTL),
	)

	client := psxterminal.NewClient(cfg.Feed.RestURL,
		psxterminal.WithTimeouts(cfg.Feed.PullTimeout, cfg.Feed.QuickTimeout),
		psxterminal.WithRateLimit(cfg.Feed.RateLimitPerMinute),
		psxterminal.WithLogger(log),
	)

	opts := []feed.Option{
		feed.WithLogger(log),
		feed.WithPollInterval(cfg.Feed.PollInterval),
		feed.WithKlines(cfg.Feed.KlineTimeframe, cfg.Feed.KlineLimit),
	}
	if cfg.Feed.StreamEnabled {
		opts = append(opts, feed.WithStream(psxterminal.NewStream(cfg.Feed.StreamURL,
			psxterminal.WithReconnectDelay(cfg.Feed.ReconnectDelay),
			psxterminal.WithKeepAlive(cfg.Feed.KeepAlive),
			psxterminal.WithStreamTimeout(cfg.Feed.PullTimeout),
		)))
	}
	if cfg.Feed.ScrapeFallback {
		opts = append(opts, feed.WithScraper(scraper))
	}
	session := feed.NewSession(cat, engine, client, opts...)

	api, err := server.NewServer(cfg.Server, cfg.Metrics.Prometheus, server.Deps{
		Market: session,
		Scrape: scraper,
		Signup: signup.NewRelay(cfg.Signup.RelayURL, cfg.Signup.Timeout),
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to create api server")
		os.Exit(1)
	}

	if err := session.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start feed session")
		os.Exit(1)
	}
	metrics.StartFeedReporter(ctx, log, session.Stats, feedReportInterval)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("api server stopped")
		}
		stop()
	}

	log.Info("starting graceful shutdown")
	done := make(chan struct{})
	go func() {
		session.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(shutdownWaitTimeout):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("upwrdfin stopped")
}
