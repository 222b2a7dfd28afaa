package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/config"
	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/handler"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/cache"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/extractor"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/store"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("extraction_provider", cfg.ExtractionProvider),
		zap.Duration("extraction_timeout", cfg.ExtractionTimeout),
		zap.Int("extraction_max_retries", cfg.ExtractionMaxRetries),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Bool("seed_demo", cfg.SeedDemo),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "brokerflow-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	extractionCache := cache.New[domain.CommissionBreakdown](cfg.CacheTTL)
	defer extractionCache.Close()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Collection store ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	collections, closeStore, err := openStore(startCtx, cfg, httpClient, logger)
	cancelStart()
	if err != nil {
		logger.Fatal("failed to open collection store", zap.Error(err))
	}
	defer closeStore()

	// --- Extraction ---
	ext, err := extractor.New(extractor.Settings{
		Provider: cfg.ExtractionProvider,
		AgentURL: cfg.AgentAPIURL,
		OpenAI: extractor.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		},
		Timeout:        cfg.ExtractionTimeout,
		MaxRetries:     cfg.ExtractionMaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}, &http.Client{}, metrics, logger)
	if err != nil {
		logger.Fatal("failed to configure extraction", zap.Error(err))
	}

	// --- Services ---
	repo := service.NewRepository(collections)
	sessions := service.NewSessionService(repo, service.SessionConfig{
		JWTSecret:       cfg.JWTSecret,
		SessionTTL:      cfg.SessionTTL,
		RequirePassword: cfg.AuthRequirePassword,
		DefaultOrgID:    cfg.DefaultOrgID,
	}, logger)

	if cfg.SeedDemo {
		if err := service.SeedDemo(context.Background(), repo, sessions, time.Now(), logger); err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
	}

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Sessions:     sessions,
		Listings:     service.NewListingService(repo, logger),
		Escrows:      service.NewEscrowService(repo, metrics, logger),
		Commissions:  service.NewCommissionService(repo, ext, extractionCache, metrics, cfg.ExtractionProvider, logger),
		Finance:      service.NewFinanceService(repo, logger),
		Dashboard:    service.NewDashboardService(repo, logger),
		Store:        collections,
		Metrics:      metrics,
		MaxStubBytes: cfg.MaxStubBytes,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore builds the collection store selected by STORE_BACKEND and a
// func that releases it.
func openStore(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *zap.Logger) (port.CollectionStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory, "":
		logger.Warn("using in-memory collection store, data is lost on restart")
		return store.NewMemory(), func() {}, nil

	case config.StoreRedis:
		r, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis collection store")
		return r, func() { _ = r.Close() }, nil

	case config.StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		p, err := store.NewPostgres(ctx, store.PostgresConfig{DSN: cfg.DatabaseURL, MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres collection store")
		return p, p.Close, nil

	case config.StoreSupabase:
		if cfg.SupabaseURL == "" {
			return nil, nil, fmt.Errorf("SUPABASE_URL is required for the supabase store")
		}
		client := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
			logger,
		)
		logger.Info("using Supabase collection store", zap.String("supabase_url", cfg.SupabaseURL))
		return supabase.NewCollectionStore(client), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}
