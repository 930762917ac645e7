package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/tollgate/internal"
	"github.com/DukeRupert/tollgate/internal/ai"
	"github.com/DukeRupert/tollgate/internal/ai/anthropic"
	"github.com/DukeRupert/tollgate/internal/ai/mock"
	"github.com/DukeRupert/tollgate/internal/catalog"
	"github.com/DukeRupert/tollgate/internal/middleware"
	"github.com/DukeRupert/tollgate/internal/policy"
	"github.com/DukeRupert/tollgate/internal/repository"
	"github.com/DukeRupert/tollgate/internal/service"
	"github.com/DukeRupert/tollgate/internal/token"
	"golang.org/x/sync/errgroup"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	pool, err := repository.Connect(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	// Run migrations
	if err := internal.RunMigrations(pool); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	plans := repository.NewPostgres(pool, cfg.StorageTimeout)

	// Usage counters live in PostgreSQL unless Redis is configured
	var usage service.UsageStore = plans
	if cfg.UsageBackend == "redis" {
		client, err := repository.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		usage = repository.NewRedisUsage(client, cfg.RedisPrefix, cfg.StorageTimeout)
		plans = plans.WithoutUsage()
	}
	logger.Info("Usage store ready", "backend", cfg.UsageBackend)

	// Load plan catalog and path policy
	cat, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("plan catalog: %w", err)
	}
	pol, err := loadPolicy(cfg)
	if err != nil {
		return fmt.Errorf("path policy: %w", err)
	}
	logger.Info("Entitlements loaded", "tiers", cat.Tiers(), "gated_paths", pol.Len())

	verifier, err := token.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("token verifier: %w", err)
	}

	provider, err := newAIProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider: %w", err)
	}

	// Initialize services
	entitlements := service.NewEntitlementService(service.EntitlementConfig{
		Verifier:    verifier,
		Plans:       plans,
		Catalog:     cat,
		Policy:      pol,
		AdminEmails: cfg.AdminEmails,
		Logger:      logger,
	})
	metering := service.NewMeteringService(usage, service.MeteringConfig{
		CharsPerUnit: cfg.TokenCharsPerUnit,
	}, logger)

	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("Metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}

	deps := routeDeps{
		cfg:          cfg,
		entitlements: entitlements,
		metering:     metering,
		provider:     provider,
		logger:       logger,
	}

	if cfg.UpstreamURL != "" {
		deps.upstream, err = url.Parse(cfg.UpstreamURL)
		if err != nil {
			return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
		}
	}

	// Development token endpoint (rate limited per IP)
	if cfg.DevTokenEndpoint {
		deps.issuer, err = token.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.DevTokenTTL)
		if err != nil {
			return fmt.Errorf("token issuer: %w", err)
		}
		deps.limiter = middleware.NewRateLimiter(10)
		defer deps.limiter.Stop()
		logger.Warn("Development token endpoint enabled")
	}

	app := newRouter(deps)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func loadCatalog(cfg *internal.Config) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if cfg.PlanCatalogFile != "" {
		var err error
		if cat, err = catalog.Load(cfg.PlanCatalogFile); err != nil {
			return nil, err
		}
	}
	if len(cfg.PriceTierMap) == 0 {
		return cat, nil
	}
	return cat.WithAliases(cfg.PriceTierMap)
}

func loadPolicy(cfg *internal.Config) (*policy.Table, error) {
	if cfg.PathPolicyFile == "" {
		return policy.Default(), nil
	}
	return policy.Load(cfg.PathPolicyFile)
}

func newAIProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	if cfg.AIProvider != "anthropic" {
		logger.Info("Using mock AI provider")
		return mock.New(logger), nil
	}
	return anthropic.New(anthropic.Config{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AIRequestTimeout,
		},
	}, logger)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
