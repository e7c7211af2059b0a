// Package main wires together the llms.txt crawl service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sitebrief/llmstxt-crawler/internal/api"
	"github.com/sitebrief/llmstxt-crawler/internal/config"
	"github.com/sitebrief/llmstxt-crawler/internal/controller"
	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
	"github.com/sitebrief/llmstxt-crawler/internal/extractor"
	collyfetcher "github.com/sitebrief/llmstxt-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/sitebrief/llmstxt-crawler/internal/fetcher/headless"
	"github.com/sitebrief/llmstxt-crawler/internal/generator"
	"github.com/sitebrief/llmstxt-crawler/internal/headless/detector"
	"github.com/sitebrief/llmstxt-crawler/internal/logging"
	"github.com/sitebrief/llmstxt-crawler/internal/progress"
	"github.com/sitebrief/llmstxt-crawler/internal/progress/sinks"
	memorypublisher "github.com/sitebrief/llmstxt-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/sitebrief/llmstxt-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/sitebrief/llmstxt-crawler/internal/storage/gcs"
	localstorage "github.com/sitebrief/llmstxt-crawler/internal/storage/local"
	memorystorage "github.com/sitebrief/llmstxt-crawler/internal/storage/memory"
	memorystore "github.com/sitebrief/llmstxt-crawler/internal/store/memory"
	postgresstore "github.com/sitebrief/llmstxt-crawler/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, closeStore, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer closeStore()

	docStore, err := buildDocumentStore(ctx, cfg)
	if err != nil {
		logger.Fatal("document store init failed", zap.Error(err))
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		promSink, sinks.NewLogSink(logger.Named("progress")))

	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxAttempts: cfg.HTTP.MaxAttempts,
		BackoffBase: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	})
	var headless crawl.Fetcher
	if cfg.Headless.Enabled {
		headlessFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headless = headlessFetcher
			defer headlessFetcher.Close()
		}
	}

	ctrl, err := controller.New(controller.Config{
		FetchConcurrency:  cfg.Crawler.FetchConcurrency,
		PageBudget:        cfg.Crawler.PageBudget,
		JobTimeout:        cfg.JobTimeout(),
		MaxConcurrentJobs: int64(cfg.Crawler.MaxConcurrentJobs),
		EventTopic:        cfg.Crawler.EventTopic,
		Generator: generator.Config{
			BatchSize:     cfg.Generator.BatchSize,
			MaxAttempts:   cfg.Generator.MaxAttempts,
			BackoffBase:   time.Duration(cfg.Generator.BackoffBaseSec) * time.Second,
			CallsPerPause: cfg.Generator.CallsPerPause,
			PauseDuration: time.Duration(cfg.Generator.PauseSec) * time.Second,
		},
	}, controller.Deps{
		Store:     jobStore,
		Documents: docStore,
		Publisher: publisher,
		Fetcher:   probeFetcher,
		Headless:  headless,
		Detector:  detector.NewHeuristic(cfg.Headless.PromotionThresh),
		Extractor: extractor.New(),
		Factory:   generator.NewGenerationClient(cfg.Generator.Model),
		Emitter:   hub,
		Logger:    logger.Named("controller"),
	})
	if err != nil {
		logger.Fatal("controller init failed", zap.Error(err))
	}

	apiServer := api.NewServer(ctrl, logger.Named("api"), registry)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildJobStore(ctx context.Context, cfg config.Config) (crawl.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystore.NewJobStore(), func() {}, nil
	}
	store, err := postgresstore.NewJobStore(ctx, postgresstore.JobStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildDocumentStore(ctx context.Context, cfg config.Config) (crawl.DocumentStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
	default:
		return memorystorage.NewDocumentStore(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (crawl.Publisher, error) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return pubsubpublisher.New(client)
}
