// Package main provides the entry point for the tutoring AI gateway server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"edu-ai-gateway/internal/api/handlers"
	"edu-ai-gateway/internal/api/middleware"
	"edu-ai-gateway/internal/api/routes"
	"edu-ai-gateway/internal/config"
	"edu-ai-gateway/internal/crypto"
	"edu-ai-gateway/internal/database"
	"edu-ai-gateway/internal/metrics"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/aiconfig"
	"edu-ai-gateway/internal/service/calllog"
	"edu-ai-gateway/internal/service/gateway"
	"edu-ai-gateway/internal/service/provider"
	"edu-ai-gateway/internal/service/tutor"
	"edu-ai-gateway/internal/service/user"
	"edu-ai-gateway/internal/storage"
	"edu-ai-gateway/internal/telemetry"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(&cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	tel, err := telemetry.Init(ctx, &cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := migrateSchema(cfg, db, logger); err != nil {
		return err
	}

	enc, err := crypto.New(cfg.Encryption.Key)
	if err != nil {
		return err
	}
	if !enc.Enabled() {
		logger.Warn("ENCRYPTION_KEY not set, provider credentials are stored in plain text")
	}

	if err := db.SeedDefaultProviders(&cfg.Providers, cfg.AI.DefaultProvider, enc); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	services, prober, err := initServices(ctx, cfg, db, enc, rdb, logger)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	routes.Setup(engine, cfg, services, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Photo correction can take as long as the AI request timeout.
		WriteTimeout: cfg.AI.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.HealthCheck.Enabled {
		scheduler := aiconfig.NewScheduler(prober, cfg.HealthCheck.Interval, logger)
		g.Go(func() error {
			scheduler.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg *config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// migrateSchema applies the versioned SQL migrations, or GORM auto-migration
// when DB_AUTO_MIGRATE is set.
func migrateSchema(cfg *config.Config, db *database.Database, logger *zap.Logger) error {
	if cfg.Database.AutoMigrate {
		return db.Migrate()
	}

	migrator, err := database.NewMigrator(cfg.Database.GetURL(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()
	return migrator.Up()
}

func initServices(
	ctx context.Context,
	cfg *config.Config,
	db *database.Database,
	enc *crypto.Encryptor,
	rdb *redis.Client,
	logger *zap.Logger,
) (*routes.Services, *aiconfig.Service, error) {
	userRepo := repository.NewUserRepository(db.DB)
	configRepo := repository.NewProviderConfigRepository(db.DB)
	callRepo := repository.NewCallRecordRepository(db.DB)
	exerciseRepo := repository.NewExerciseRepository(db.DB)
	errorRepo := repository.NewErrorRecordRepository(db.DB)

	userService := user.NewService(userRepo, logger)
	if err := userService.EnsureAdmin(ctx, &cfg.Admin); err != nil {
		return nil, nil, err
	}

	tokens := provider.NewTiktokenCounter(logger)
	registry := provider.NewRegistry(logger)
	registry.Register(provider.TongyiName, provider.NewTongyiAdapter(cfg.AI.RequestTimeout, tokens, logger))
	registry.Register(provider.DeepSeekName, provider.NewDeepSeekAdapter(cfg.AI.RequestTimeout, tokens, logger))

	collector := metrics.NewCollector("edu_ai_gateway")
	callLog := calllog.NewService(callRepo, logger)
	gw := gateway.NewService(configRepo, registry, enc, callLog, logger, gateway.WithRecorder(collector))

	archiver, err := storage.New(&cfg.OSS, logger)
	if err != nil {
		return nil, nil, err
	}

	tutorService := tutor.NewService(gw, exerciseRepo, errorRepo, archiver, logger)
	adminService := aiconfig.NewService(configRepo, enc, gw, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(rdb, cfg.RateLimit.RequestsPerMinute, collector, logger)
	}

	return &routes.Services{
		User:     userService,
		Tutor:    tutorService,
		Provider: adminService,
		Usage:    callLog,
		Checks: map[string]handlers.Check{
			"database": db.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		RateLimiter: limiter,
		Metrics:     collector,
	}, adminService, nil
}
