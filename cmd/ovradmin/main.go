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
	"github.com/redis/go-redis/v9"

	"github.com/ovr-admin/ovr-admin/internal/app"
	"github.com/ovr-admin/ovr-admin/internal/audit"
	audithttp "github.com/ovr-admin/ovr-admin/internal/audit/http"
	"github.com/ovr-admin/ovr-admin/internal/auth"
	"github.com/ovr-admin/ovr-admin/internal/authz"
	"github.com/ovr-admin/ovr-admin/internal/observability"
	"github.com/ovr-admin/ovr-admin/internal/permissions"
	permissionshttp "github.com/ovr-admin/ovr-admin/internal/permissions/http"
	"github.com/ovr-admin/ovr-admin/internal/platform/cache"
	"github.com/ovr-admin/ovr-admin/internal/platform/db"
	"github.com/ovr-admin/ovr-admin/internal/policies"
	policieshttp "github.com/ovr-admin/ovr-admin/internal/policies/http"
	"github.com/ovr-admin/ovr-admin/internal/roles"
	roleshttp "github.com/ovr-admin/ovr-admin/internal/roles/http"
	"github.com/ovr-admin/ovr-admin/internal/shared"
	"github.com/ovr-admin/ovr-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("apply schema", slog.Any("error", err))
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.AuthzCacheEnabled {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, authz cache disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}
	authzCache := cache.NewVersioned(redisClient, "authz", cfg.AuthzCacheTTL, logger)
	if err := authzCache.Subscribe(ctx, func(version int64) {
		logger.Debug("authz cache version", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("authz cache subscribe", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()

	var auditRecorder shared.AuditRecorder = shared.NewAuditLogger(dbpool)
	if cfg.AuditAsync {
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		auditRecorder = jobs.NewAuditSink(jobClient, auditRecorder, metrics.Jobs(), logger)
	}

	permissionRepo := permissions.NewRepository(dbpool)
	permissionService := permissions.NewService(permissionRepo, authzCache, auditRecorder)

	roleRepo := roles.NewRepository(dbpool)
	roleService := roles.NewService(roleRepo, permissionService, authzCache, auditRecorder)

	policyRepo := policies.NewRepository(dbpool)
	policyService := policies.NewService(policyRepo, roleService, authzCache, auditRecorder)

	if cfg.BootstrapOnStart {
		if _, err := permissionService.Bootstrap(ctx); err != nil {
			logger.Error("bootstrap permissions", slog.Any("error", err))
			os.Exit(1)
		}
		if _, err := roleService.Bootstrap(ctx, logger); err != nil {
			logger.Error("bootstrap roles", slog.Any("error", err))
			os.Exit(1)
		}
	}

	roleLookup := roles.NewCachedLookup(roleService, authzCache)
	engine := authz.NewEngine(authz.EngineConfig{
		Roles:    roleLookup,
		Policies: policies.NewEvaluator(policies.NewCachedSource(policyRepo, authzCache)),
		Logger:   logger,
		Observer: metrics,
		Audit:    auditRecorder,
	})
	guard := authz.NewMiddleware(engine)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	authMiddleware := auth.NewMiddleware(verifier, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	health := map[string]app.HealthChecker{
		"postgres": app.HealthFunc(func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return dbpool.Ping(pingCtx)
		}),
	}
	if redisClient != nil {
		health["redis"] = app.HealthFunc(func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(pingCtx).Err()
		})
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Authenticate:       authMiddleware.Handler,
		Guard:              guard,
		AuthzHandler:       authz.NewHandler(logger, engine, roleLookup),
		PermissionsHandler: permissionshttp.NewHandler(logger, permissionService, roleService, guard),
		RolesHandler:       roleshttp.NewHandler(logger, roleService, guard),
		PoliciesHandler:    policieshttp.NewHandler(logger, policyService, guard),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Health:             health,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
