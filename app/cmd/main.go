package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/lmittmann/tint"
	"go.mongodb.org/mongo-driver/mongo"

	"fixifox/app/config"
	"fixifox/app/usecase"
	"fixifox/internal/domain/repository"
	rediscache "fixifox/internal/infrastructure/cache/redis"
	"fixifox/internal/infrastructure/llm"
	"fixifox/internal/infrastructure/metrics"
	"fixifox/internal/infrastructure/store/filesystem"
	"fixifox/internal/infrastructure/store/memory"
	mongorepo "fixifox/internal/infrastructure/store/mongodb"
	"fixifox/internal/infrastructure/telemetry"
	"fixifox/internal/infrastructure/transport"
	"fixifox/internal/orchestration"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// logger
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// tracing
	var traceOut io.Writer
	if cfg.Tracing.Enabled {
		traceOut = os.Stdout
	}
	shutdownTracer := telemetry.InitTracer(ctx, cfg.Tracing.ServiceName, traceOut, logger)

	// LLM backends
	registry, err := buildRegistry(ctx, cfg.LLM, logger)
	if err != nil {
		log.Fatalf("init llm backends: %v", err)
	}
	logger.Info("llm providers registered", "providers", registry.Providers())

	limiter := orchestration.NewLimiter(cfg.Chain.Concurrency)
	if limiter != nil {
		if err := metrics.RegisterLimiter(limiter); err != nil {
			logger.Warn("register limiter metrics", "err", err)
		}
	}
	policy := orchestration.NewBackoffPolicy(cfg.Chain.TimeoutBackoff, cfg.Chain.RateLimitBackoff, cfg.Chain.MaxBackoff)
	dispatcher := orchestration.NewDispatcher(registry, policy,
		orchestration.WithLimiter(limiter),
		orchestration.WithDispatcherLogger(logger),
	)
	chain := orchestration.NewFallbackChain(dispatcher, orchestration.NewResponseExtractor(), logger)

	// storage
	var (
		jobRepo      repository.JobRepository
		artifactRepo repository.ArtifactRepository
		mirrors      []repository.ArtifactRepository
		mongoClient  *mongo.Client
	)
	fileRepo, err := filesystem.NewFileRepository(cfg.Artifacts.Dir)
	if err != nil {
		log.Fatalf("init file repo: %v", err)
	}
	if cfg.Mongo.URI != "" {
		mongoClient, err = mongorepo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
		if err != nil {
			logger.Error("mongo connect failed", "err", err)
			log.Fatalf("mongo: %v", err)
		}
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
		db := mongoClient.Database(cfg.Mongo.Database)
		jobRepo = mongorepo.NewMongoJobRepo(ctx, db, logger)
		artifactRepo = mongorepo.NewMongoArtifactRepo(ctx, db, logger)
		mirrors = append(mirrors, fileRepo)
	} else {
		logger.Warn("MONGO_URI not set, jobs are kept in memory")
		jobRepo = memory.NewJobRepo()
		artifactRepo = fileRepo
	}

	// usecases / services
	assistantCfg := usecase.AssistantConfig{
		ExplainBackends: usableBackends(registry, cfg.LLM.ExplainBackends, logger),
		CodeBackends:    usableBackends(registry, cfg.LLM.CodeBackends, logger),
		MaxTokens:       cfg.LLM.MaxTokens,
		TimeBudget:      cfg.Chain.TimeBudget,
		BackendBudget:   cfg.Chain.BackendBudget,
		MaxRetries:      cfg.Chain.MaxRetries,
	}
	var assistantOpts []usecase.AssistantOption
	var cache *rediscache.ResultCache
	if cfg.Redis.URL != "" {
		cache, err = rediscache.NewResultCache(ctx, rediscache.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			logger.Warn("redis unavailable, result cache disabled", "err", err)
		} else {
			assistantOpts = append(assistantOpts, usecase.WithCache(cache, rediscache.Fingerprint))
		}
	}

	events := usecase.NewJobEvents()
	assistantSvc := usecase.NewAssistantService(chain, assistantCfg, logger, assistantOpts...)
	artifactSvc := usecase.NewArtifactService(artifactRepo, logger, mirrors...)
	jobSvc := usecase.NewJobService(jobRepo, artifactSvc, assistantSvc, events, logger)

	worker := usecase.NewJobWorker(jobRepo, assistantSvc, artifactSvc, events, usecase.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval,
		JobTimeout:   cfg.Worker.JobTimeout,
	}, logger)
	worker.Start(ctx) // фоновый воркер

	// Transport (HTTP handlers)
	handler := transport.NewAssistantHandler(assistantSvc, jobSvc, events, registry.Providers(), logger)

	// Router and server
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Server.MetricsAddr != "" {
		go func() {
			logger.Info("starting metrics server", "addr", cfg.Server.MetricsAddr)
			if err := metrics.StartMetricsServer(cfg.Server.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// OS signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	// Shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	worker.Stop()

	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Error("redis close error", "err", err)
		}
	}
	if mongoClient != nil {
		logger.Info("disconnecting mongo")
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Error("mongo disconnect error", "err", err)
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "err", err)
	}

	logger.Info("service stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.Format == "text" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func buildRegistry(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	if cfg.GroqAPIKey != "" {
		registry.Register("groq", llm.NewOpenAIBackend(llm.OpenAIConfig{
			Name:    "groq",
			APIKey:  cfg.GroqAPIKey,
			BaseURL: cfg.GroqBaseURL,
			Stream:  cfg.Stream,
		}))
	}
	if cfg.OpenAIAPIKey != "" {
		registry.Register("openai", llm.NewOpenAIBackend(llm.OpenAIConfig{
			Name:    "openai",
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		}))
	}
	if cfg.GoogleAPIKey != "" {
		gemini, err := llm.NewGeminiBackend(ctx, cfg.GoogleAPIKey, cfg.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		registry.Register("gemini", gemini)
	}
	if cfg.Gateway.URL != "" {
		registry.Register(cfg.Gateway.Name, llm.NewHTTPBackend(llm.HTTPConfig{
			Name:       cfg.Gateway.Name,
			URL:        cfg.Gateway.URL,
			APIKey:     cfg.Gateway.APIKey,
			AuthHeader: cfg.Gateway.AuthHeader,
			Timeout:    cfg.Gateway.Timeout,
		}, logger))
	}
	return registry, nil
}

// usableBackends drops backends whose provider has no key. When nothing is
// left the list is kept so requests fail with a clear user message.
func usableBackends(registry *llm.Registry, ids []string, logger *slog.Logger) []string {
	usable := registry.Filter(ids)
	if len(usable) < len(ids) {
		logger.Warn("skipping backends without credentials", "configured", ids, "usable", usable)
	}
	if len(usable) == 0 {
		return ids
	}
	return usable
}
