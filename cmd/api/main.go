package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"server/internal/adapter/repo"
	"server/internal/adapter/repo/memory"
	"server/internal/catalog"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/ledger"
	"server/internal/provider"
	"server/internal/provider/genai"
	"server/internal/recovery"
	"server/internal/scheduler"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	// Repositories: PostgreSQL when configured, in-memory otherwise.
	var (
		pool    *pgxpool.Pool
		jobs    domain.JobRepository
		tasks   domain.TaskRepository
		users   domain.UserRepository
		ldgRepo domain.LedgerRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		jobs = repo.NewJobRepository(pool)
		tasks = repo.NewTaskRepository(pool)
		users = repo.NewUserRepository(pool)
		ldgRepo = repo.NewLedgerRepository(pool)
		logger.Info().Msg("using postgresql repositories")
	} else {
		store := memory.NewStore()
		jobs = store.Jobs()
		tasks = store.Tasks()
		users = store.Users()
		ldgRepo = store.Ledger()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory repositories")
	}

	ledgerSvc := ledger.NewService(ldgRepo, logger)

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	catalogReg := catalog.Default()
	if cfg.CatalogPath != "" {
		catalogReg, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load catalog")
		}
	}

	creds := credentials.NewStore(pool)
	creds.SetFallback(credentials.ProviderGemini, cfg.GeminiAPIKey)
	creds.SetFallback(credentials.ProviderQwen, cfg.QwenAPIKey)

	providers := buildProviderRegistry(cfg, creds, logger)

	// Settle tasks orphaned by the previous process before taking traffic.
	recoverer := recovery.NewManager(jobs, tasks, ledgerSvc, cfg.CreditPerImage, logger)
	if n, err := recoverer.RecoverStaleTasks(ctx); err != nil {
		logger.Fatal().Err(err).Msg("crash recovery failed")
	} else if n > 0 {
		logger.Info().Int("tasks", n).Msg("crash recovery settled stale tasks")
	}

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent:   cfg.MaxConcurrentGenerations,
		MaxScenesPerJob: cfg.MaxScenesPerJob,
		CreditPerImage:  cfg.CreditPerImage,
		Retry: scheduler.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			Backoff:     cfg.RetryBackoff,
			Retryable:   provider.IsTransient,
		},
	}, scheduler.Deps{
		Jobs:      jobs,
		Tasks:     tasks,
		Ledger:    ledgerSvc,
		Providers: providers,
		Catalog:   catalogReg,
		Store:     fileStore,
		Logger:    logger,
	})
	sched.Open()

	if pool == nil {
		seedDemoUser(ctx, users, ledgerSvc, cfg.FreeCredits, logger)
	}

	app := &handlers.App{
		Logger:      logger,
		Scheduler:   sched,
		Ledger:      ledgerSvc,
		Catalog:     catalogReg,
		Providers:   providers,
		Users:       users,
		Jobs:        jobs,
		Tasks:       tasks,
		Store:       fileStore,
		Credentials: creds,
		FreeCredits: cfg.FreeCredits,
		AdminToken:  cfg.AdminToken,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler did not drain in time")
	}
	logger.Info().Msg("server stopped")
}

// buildProviderRegistry wires every generation backend. The synthetic
// generator is always present so development environments work with no API
// keys at all; it also backs Gemini as the credential-less fallback.
func buildProviderRegistry(cfg *infra.Config, creds *credentials.Store, logger zerolog.Logger) *provider.Registry {
	registry := provider.NewRegistry()

	synthetic := provider.NewSyntheticGenerator()
	registry.Register(synthetic, cfg.DefaultProvider == synthetic.Name())

	geminiClient, err := genai.NewClient(genai.Options{
		KeySource: creds.KeySource(credentials.ProviderGemini),
		BaseURL:   cfg.GeminiBaseURL,
		Model:     cfg.GeminiModel,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build gemini client")
	}
	registry.Register(provider.NewGeminiGenerator(geminiClient, synthetic), cfg.DefaultProvider == "gemini")

	if cfg.QwenAPIKey != "" {
		qwen := provider.NewQwenGenerator(provider.QwenOptions{
			APIKey:  cfg.QwenAPIKey,
			BaseURL: cfg.QwenBaseURL,
			Model:   cfg.QwenModel,
		})
		registry.Register(qwen, cfg.DefaultProvider == qwen.Name())
	}

	logger.Info().Strs("providers", registry.Names()).Str("default", cfg.DefaultProvider).Msg("provider registry ready")
	return registry
}

// seedDemoUser gives memory mode a ready-to-use account so the API can be
// exercised immediately after boot.
func seedDemoUser(ctx context.Context, users domain.UserRepository, svc *ledger.Service, freeCredits int, logger zerolog.Logger) {
	user := &domain.User{ID: uuid.NewString(), Name: "Demo"}
	if err := users.Create(ctx, user); err != nil {
		logger.Error().Err(err).Msg("failed to seed demo user")
		return
	}
	if freeCredits > 0 {
		if _, err := svc.Grant(ctx, user.ID, freeCredits, "Welcome credits"); err != nil {
			logger.Error().Err(err).Msg("failed to grant demo credits")
			return
		}
	}
	logger.Info().Str("user_id", user.ID).Int("credits", freeCredits).Msg("seeded demo user")
}
