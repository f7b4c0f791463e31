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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovr-admin/ovr-admin/internal/app"
	jobmetrics "github.com/ovr-admin/ovr-admin/internal/jobs"
	"github.com/ovr-admin/ovr-admin/internal/permissions"
	"github.com/ovr-admin/ovr-admin/internal/platform/cache"
	"github.com/ovr-admin/ovr-admin/internal/platform/db"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	"github.com/ovr-admin/ovr-admin/internal/shared"
	"github.com/ovr-admin/ovr-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	authzCache := cache.NewVersioned(redisClient, "authz", cfg.AuthzCacheTTL, logger)

	metrics := jobmetrics.NewMetrics(nil)
	auditStore := shared.NewAuditLogger(pool)

	permissionService := permissions.NewService(permissions.NewRepository(pool), authzCache, auditStore)
	roleService := roles.NewService(roles.NewRepository(pool), permissionService, authzCache, auditStore)

	auditJob := jobs.NewAuditRecordJob(auditStore, logger, metrics)
	bootstrapJob := jobs.NewRBACBootstrapJob(permissionService, roleService, logger, metrics)

	bootstrapTask, err := jobs.NewRBACBootstrapTask(jobs.RBACBootstrapPayload{})
	if err != nil {
		logger.Error("build bootstrap task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.BootstrapCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.BootstrapCron, Task: bootstrapTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: auditJob.Handle},
			{Type: jobs.TaskRBACBootstrap, Handler: bootstrapJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: ":9091", Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
