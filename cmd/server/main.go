// Package main provides the entry point for the PubMed search service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helixir/pubmed-search-service/internal/aiquery"
	"github.com/helixir/pubmed-search-service/internal/config"
	"github.com/helixir/pubmed-search-service/internal/database"
	"github.com/helixir/pubmed-search-service/internal/events"
	"github.com/helixir/pubmed-search-service/internal/jobs"
	"github.com/helixir/pubmed-search-service/internal/observability"
	"github.com/helixir/pubmed-search-service/internal/pubmed"
	"github.com/helixir/pubmed-search-service/internal/repository"
	"github.com/helixir/pubmed-search-service/internal/scoring"
	httpserver "github.com/helixir/pubmed-search-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("pubmed-search-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the SQLite database.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("database opened")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(&cfg.Database, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		if err := migrator.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close migrator")
		}
	}

	// Metrics registry.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Repository.
	searchRepo := repository.NewSQLiteSearchRepository(db.SQL())

	// PubMed search client and detail fetcher.
	searchClient := pubmed.New(pubmed.Config{
		BaseURL:   cfg.PubMed.BaseURL,
		APIKey:    cfg.PubMed.APIKey,
		Timeout:   cfg.PubMed.Timeout,
		RateLimit: cfg.PubMed.RateLimit,
		BurstSize: cfg.PubMed.BurstSize,
	}, logger)

	normalizer := pubmed.NewNormalizer(cfg.PubMed.MainJournalsOnly, logger)
	fetcher := pubmed.NewFetcher(pubmed.FetcherConfig{
		BaseURL:         cfg.PubMed.BaseURL,
		APIKey:          cfg.PubMed.APIKey,
		BatchSize:       cfg.Fetcher.BatchSize,
		Timeout:         cfg.Fetcher.Timeout,
		RateLimit:       cfg.PubMed.RateLimit,
		BurstSize:       cfg.PubMed.BurstSize,
		InterBatchDelay: cfg.Fetcher.InterBatchDelay,
		RetryDelay:      cfg.Fetcher.RetryDelay,
		MaxAttempts:     cfg.Fetcher.MaxAttempts,
	}, normalizer, logger)

	if metrics != nil {
		searchClient.SetMetrics(metrics)
		fetcher.SetMetrics(metrics)
	}

	// AI query generator. Without an API key the HTTP layer falls back
	// to deterministic query construction.
	var generator httpserver.QueryGenerator
	if cfg.AIQuery.APIKey != "" {
		aiGen := aiquery.NewGenerator(aiquery.Config{
			APIKey:      cfg.AIQuery.APIKey,
			Model:       cfg.AIQuery.Model,
			BaseURL:     cfg.AIQuery.BaseURL,
			SiteURL:     cfg.AIQuery.SiteURL,
			SiteName:    cfg.AIQuery.SiteName,
			Temperature: cfg.AIQuery.Temperature,
			TopP:        cfg.AIQuery.TopP,
			Timeout:     cfg.AIQuery.Timeout,
			MaxRetries:  cfg.AIQuery.MaxRetries,
		}, logger)
		if metrics != nil {
			aiGen.SetMetrics(metrics)
		}
		generator = aiGen
	} else {
		logger.Info().Msg("AI query generation disabled, fallback query builder only")
	}

	// Completed-search event publisher.
	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	} else {
		publisher = events.NewNoopPublisher()
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	// Job store and runner.
	store := jobs.NewStore()
	store.StartCleanup(ctx, cfg.Jobs.RetentionTTL, cfg.Jobs.CleanupInterval, logger)

	runner := jobs.NewRunner(jobs.RunnerConfig{
		Store:      store,
		Searcher:   searchClient,
		Fetcher:    fetcher,
		Scorer:     scoring.NewEngine(),
		Repository: searchRepo,
		Publisher:  publisher,
		Metrics:    metrics,
		JobTimeout: cfg.Jobs.Timeout,
	}, logger)

	// HTTP API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	if cfg.Metrics.Enabled {
		httpCfg.MetricsPath = cfg.Metrics.Path
	}

	httpSrv := httpserver.NewServer(httpCfg, runner, generator, searchRepo, db, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Block until a shutdown signal or a server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}

	logger.Info().Msg("pubmed-search-service stopped")
	return nil
}
