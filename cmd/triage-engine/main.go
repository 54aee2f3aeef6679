package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triagestack/triage-engine/internal/alert"
	"github.com/triagestack/triage-engine/internal/api"
	"github.com/triagestack/triage-engine/internal/cache"
	"github.com/triagestack/triage-engine/internal/catalog"
	"github.com/triagestack/triage-engine/internal/config"
	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/llm"
	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/repo"
	"github.com/triagestack/triage-engine/internal/services"
	"github.com/triagestack/triage-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting triage-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var cacheCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			cacheCloser = provider
		}
	}
	if cacheCloser != nil {
		defer cacheCloser.Close()
	}

	eventStore, err := repo.NewEventStore(repo.EventStoreConfig{
		URL:          cfg.Events.URL,
		Username:     cfg.Events.Username,
		Password:     cfg.Events.Password,
		Insecure:     cfg.Events.Insecure,
		Timeout:      cfg.Events.Timeout,
		SourcePrefix: cfg.Events.SourceIndexPrefix,
		DestPrefix:   cfg.Events.DestIndexPrefix,
		DestPattern:  cfg.Events.DestIndexPattern,
		BatchSizeCap: cfg.Pipeline.BatchSizeCap,
	}, logger)
	if err != nil {
		logger.Error("failed to create event store", slog.Any("error", err))
		os.Exit(1)
	}

	caseStore, err := repo.NewCaseStore(repo.CaseStoreConfig{
		URL:               cfg.Cases.URL,
		Username:          cfg.Cases.Username,
		Password:          cfg.Cases.Password,
		Insecure:          cfg.Cases.Insecure,
		Timeout:           cfg.Cases.Timeout,
		Index:             cfg.Cases.Index,
		TicketVectorIndex: cfg.Cases.TicketVectorIndex,
	}, logger)
	if err != nil {
		logger.Error("failed to create case store", slog.Any("error", err))
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	embedder, err := llm.NewTitanEmbedder(bootCtx, cfg.Embedding.Region, cfg.Embedding.ModelID, cfg.Embedding.Dimensions)
	bootCancel()
	if err != nil {
		logger.Error("failed to create embedder", slog.Any("error", err))
		os.Exit(1)
	}

	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout, logger)

	thresholds, err := engine.LoadThresholds(cfg.Cases.ThresholdsPath, cfg.Pipeline.DefaultThreshold)
	if err != nil {
		logger.Error("failed to load threshold pack", slog.Any("error", err))
		os.Exit(1)
	}

	classifier := engine.NewClassifier(logger, llmClient, embedder, caseStore, thresholds)
	stories := engine.NewStoryBuilder(logger, caseStore, cacheProvider, cfg.Cache.StoryTTL)
	grouper := engine.NewContextualGrouper(logger, llmClient, cfg.Pipeline.MaxGroupGap)
	allocator := engine.NewIDAllocator(logger, eventStore)

	pipeline := engine.NewPipeline(
		logger,
		eventStore,
		classifier,
		stories,
		grouper,
		allocator,
		cfg.Pipeline.ClassifyWorkers,
		cfg.Pipeline.GroupWorkers,
	)

	builder := catalog.NewBuilder(logger, llmClient, embedder, caseStore, cfg.Pipeline.CatalogWorkers)
	similar := engine.NewSimilarTicketFinder(logger, eventStore, caseStore, embedder,
		cfg.Pipeline.SimilarLimit, cfg.Pipeline.SimilarFloor)
	notifier := alert.NewNotifier(logger, cfg.Alert.SlackWebhookURL)

	triageService := services.NewTriageService(logger, pipeline, builder, similar, notifier)

	server := api.NewServer(logger, triageService, cfg.Server.Address)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("triage-engine stopped")
}
