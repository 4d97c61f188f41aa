package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/warden-authz/warden/internal/app"
	"github.com/warden-authz/warden/internal/audit"
	"github.com/warden-authz/warden/internal/groups"
	"github.com/warden-authz/warden/internal/observability"
	"github.com/warden-authz/warden/internal/permissions"
	"github.com/warden-authz/warden/internal/platform/cache"
	"github.com/warden-authz/warden/internal/platform/db"
	"github.com/warden-authz/warden/internal/registry"
	"github.com/warden-authz/warden/internal/users"
	"github.com/warden-authz/warden/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	recorder := jobs.NewRecorder(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn("recorder close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	registryRepo := registry.NewRepository(pool)
	registryService := registry.NewService(registryRepo, recorder, logger)
	registryHandler := registry.NewHandler(logger, registryService)

	permRepo := permissions.NewRepository(pool)
	engine := permissions.NewEngine(permRepo, registryService)
	permCache := permissions.NewCache(redisClient, permissions.CacheConfig{
		TTL:     cfg.PermCacheTTL,
		Enabled: cfg.PermCacheEnabled,
	})
	permService := permissions.NewService(permRepo, engine, permCache, recorder, metrics, logger)
	permHandler := permissions.NewHandler(logger, permService)

	groupsRepo := groups.NewRepository(pool)
	groupsService := groups.NewService(groupsRepo, permService, recorder, logger)
	groupsHandler := groups.NewHandler(logger, groupsService)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		UsersHandler:       usersHandler,
		GroupsHandler:      groupsHandler,
		PermissionsHandler: permHandler,
		RegistryHandler:    registryHandler,
		AuditHandler:       auditHandler,
		JobsHandler:        jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
