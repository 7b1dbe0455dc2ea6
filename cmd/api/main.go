// Package main is the entry point for the API server.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/capitalize-ai/journal-coach/internal/analysis"
	"github.com/capitalize-ai/journal-coach/internal/config"
	"github.com/capitalize-ai/journal-coach/internal/extract"
	"github.com/capitalize-ai/journal-coach/internal/handler"
	"github.com/capitalize-ai/journal-coach/internal/llm"
	natsclient "github.com/capitalize-ai/journal-coach/internal/nats"
	"github.com/capitalize-ai/journal-coach/internal/repository"
	"github.com/capitalize-ai/journal-coach/internal/search"
	"github.com/capitalize-ai/journal-coach/internal/service"
	"github.com/capitalize-ai/journal-coach/internal/voice"
	"github.com/capitalize-ai/journal-coach/pkg/logger"
	"github.com/capitalize-ai/journal-coach/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.NewWithOptions(cfg.LogLevel, logger.Options{FilePath: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting journal coach API")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "journal-coach", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	var checks []handler.ReadinessCheck

	// Document storage
	var repo repository.DocumentRepository = repository.NewMemoryDocumentRepository()
	var chatOwners repository.ChatRepository = repository.NewMemoryChatRepository()
	if cfg.DatabaseURL != "" {
		db, err := repository.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("failed to get database handle", zap.Error(err))
		}
		defer sqlDB.Close()
		checks = append(checks, handler.ReadinessCheck{Name: "database", Check: sqlDB.PingContext})
		repo = repository.NewPostgresDocumentRepository(db)
		chatOwners = repository.NewPostgresChatRepository(db)
	} else {
		log.Warn("DATABASE_URL not set, documents are kept in memory")
	}

	// Transcript capture
	var recorder voice.Recorder
	var transcripts handler.TranscriptReader
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("NATS unavailable, transcripts disabled", zap.Error(err))
		} else {
			defer natsClient.Close()

			store := natsclient.NewTranscriptStore(natsClient)
			if err := store.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure transcript stream, transcripts disabled", zap.Error(err))
			} else {
				recorder = store
				transcripts = store
				checks = append(checks, handler.ReadinessCheck{Name: "nats", Check: func(context.Context) error {
					if !natsClient.IsConnected() {
						return errors.New("not connected")
					}
					return nil
				}})
			}
		}
	}

	// Initialize LLM clients
	keys := llm.Keys{
		Anthropic:     cfg.AnthropicAPIKey,
		OpenAI:        cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}
	summarizer, err := llm.NewClientFor(llm.Provider(cfg.SummaryProvider), keys, cfg.SummaryModel)
	if err != nil {
		log.Fatal("failed to create summarizer", zap.String("provider", cfg.SummaryProvider), zap.Error(err))
	}
	querier, err := llm.NewClientFor(llm.Provider(cfg.QueryProvider), keys, cfg.QueryModel)
	if err != nil {
		log.Fatal("failed to create query model", zap.String("provider", cfg.QueryProvider), zap.Error(err))
	}

	// Web search
	var cache search.Cache = search.NewMemoryCache(cfg.SearchCacheTTL)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cache = search.NewRedisCache(rdb, cfg.SearchCacheTTL)
	}
	searcher := search.NewCachedSearcher(
		search.NewGoogleSearcher(cfg.SearchEndpoint, cfg.SearchAPIKey, cfg.SearchEngineID, cfg.RemoteCallTimeout),
		cache,
		log,
	)

	// Voice
	var tokens oauth2.TokenSource
	if cfg.HumeSecretKey != "" {
		tokens = voice.NewTokenSource(ctx, cfg.HumeBaseURL, cfg.HumeAPIKey, cfg.HumeSecretKey)
	}
	transport := voice.NewEVITransport(voice.EVIConfig{
		BaseURL:  cfg.HumeBaseURL,
		APIKey:   cfg.HumeAPIKey,
		ConfigID: cfg.HumeConfigID,
		Tokens:   tokens,
	})
	var chats handler.ChatHistory
	if cfg.HumeAPIKey != "" {
		chats = voice.NewHistoryClient(cfg.HumeBaseURL, cfg.HumeAPIKey, cfg.RemoteCallTimeout)
	}

	// Initialize services
	coach := service.NewCoachService(service.Dependencies{
		Extractor:   extract.NewExtractor(cfg.TempDir, log),
		Analyzer:    analysis.NewAnalyzer(summarizer, summarizer.Name(), cfg.RemoteCallTimeout, log),
		Deriver:     search.NewDeriver(querier, searcher, cfg.RemoteCallTimeout, log),
		Repository:  repo,
		Transport:   transport,
		Recorder:    recorder,
		Chats:       chatOwners,
		TurnPause:   cfg.TurnPause,
		CallTimeout: cfg.RemoteCallTimeout,
		Logger:      log,
	}, cfg.WorkspaceIdleTTL)

	// Create router
	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		UploadRateLimit:   cfg.UploadRateLimit,
		Logger:            log,
	}, handler.Handlers{
		Health:    handler.NewHealthHandler(checks...),
		Documents: handler.NewDocumentHandler(coach, cfg.MaxUploadBytes, log),
		Session:   handler.NewSessionHandler(coach, log),
		Stream:    handler.NewStreamHandler(coach, log),
		Search:    handler.NewSearchHandler(coach, log),
		History:   handler.NewHistoryHandler(chats, chatOwners, transcripts, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	// Closing workspaces ends open event streams so Shutdown can drain.
	server.RegisterOnShutdown(func() {
		coach.Shutdown(context.Background())
	})

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
