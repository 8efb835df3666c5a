package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dealwatch/backend/config"
	httpDelivery "github.com/dealwatch/backend/internal/delivery/http"
	"github.com/dealwatch/backend/internal/domain"
	"github.com/dealwatch/backend/internal/infrastructure/scraper"
	"github.com/dealwatch/backend/internal/infrastructure/telegram"
	"github.com/dealwatch/backend/internal/logging"
	"github.com/dealwatch/backend/internal/ratelimit"
	"github.com/dealwatch/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("starting DealWatch Backend v1.0.0",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
		"channel", cfg.Telegram.ChannelID)

	clock := domain.SystemClock{}

	// Initialize infrastructure dependencies
	sender := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChannelID, cfg.Telegram.BaseURL, logger)

	// Enable debug mode in development environment
	if cfg.Server.Environment == "development" {
		sender.SetDebug(true)
		logger.Info("telegram client debug mode enabled")
	}

	limiter := ratelimit.New(
		cfg.RateLimit.WindowCapacity,
		cfg.RateLimit.WindowDuration,
		cfg.RateLimit.MinSpacing,
		clock,
	)
	logger.Info("rate limit configured",
		"capacity", cfg.RateLimit.WindowCapacity,
		"window", cfg.RateLimit.WindowDuration,
		"minSpacing", cfg.RateLimit.MinSpacing)

	// Initialize usecase layer
	validator := usecase.NewValidator(cfg.Pipeline.SpamPhrases, cfg.Pipeline.MinTitleLength)
	dedup := usecase.NewDeduplicator(cfg.Pipeline.DedupMaxEntries, clock)
	engine := usecase.NewDeliveryEngine(sender, limiter, clock, usecase.DeliveryConfig{
		MaxAttempts:   cfg.Delivery.MaxAttempts,
		BackoffBase:   cfg.Delivery.BackoffBase,
		BackoffFactor: cfg.Delivery.BackoffFactor,
		BackoffCap:    cfg.Delivery.BackoffCap,
		MaxRateWait:   cfg.Delivery.MaxRateWait,
	}, logger)
	pipeline := usecase.NewPipeline(validator, dedup, engine, usecase.PipelineConfig{
		Workers:        cfg.Pipeline.Workers,
		AlertThreshold: cfg.Pipeline.AlertThreshold,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Monitoring mode: poll configured listing pages and feed the pipeline
	var wg sync.WaitGroup
	if len(cfg.Monitor.Sites) > 0 {
		sites := make([]scraper.Site, 0, len(cfg.Monitor.Sites))
		for _, s := range cfg.Monitor.Sites {
			sites = append(sites, scraper.Site{
				Name:                s.Name,
				URL:                 s.URL,
				ItemSelector:        s.ItemSelector,
				TitleSelector:       s.TitleSelector,
				LinkSelector:        s.LinkSelector,
				PriceSelector:       s.PriceSelector,
				DescriptionSelector: s.DescriptionSelector,
			})
		}
		source := scraper.New(sites, cfg.Monitor.RequestTimeout, cfg.Monitor.UserAgent, logger, clock)
		candidates := make(chan domain.DealRecord)

		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(candidates)
			monitor(ctx, source, candidates, cfg.Monitor.Interval, logger)
		}()
		go func() {
			defer wg.Done()
			summary := pipeline.Process(ctx, candidates)
			logger.Info("monitor pipeline stopped",
				"received", summary.Received,
				"rejected", summary.Rejected,
				"duplicates", summary.Duplicates,
				"sent", summary.Sent,
				"failed", summary.Failed)
		}()
		logger.Info("monitoring listing pages",
			"sites", len(sites), "interval", cfg.Monitor.Interval)
	}

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(pipeline, sender)
	router := httpDelivery.SetupRouter(cfg, handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	wg.Wait()
	logger.Info("shutdown complete")
}

// monitor scrapes once immediately and then on every tick, pushing
// candidates into the pipeline channel until the context is canceled.
func monitor(ctx context.Context, source domain.DealSource, out chan<- domain.DealRecord, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scrape := func() {
		records, err := source.FetchDeals(ctx)
		if err != nil {
			logger.Warn("scrape cycle failed", "error", err)
			return
		}
		for _, record := range records {
			select {
			case <-ctx.Done():
				return
			case out <- record:
			}
		}
	}

	scrape()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scrape()
		}
	}
}
