package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pagodirecto/crm/internal/app"
	"github.com/pagodirecto/crm/internal/auth"
	jobmetrics "github.com/pagodirecto/crm/internal/jobs"
	"github.com/pagodirecto/crm/internal/platform/cache"
	"github.com/pagodirecto/crm/internal/platform/db"
	"github.com/pagodirecto/crm/internal/rbac"
	"github.com/pagodirecto/crm/internal/shared"
	"github.com/pagodirecto/crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditRecorder := shared.NewAuditRecorder(pool, redisClient, logger)

	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Error("configure tokens", slog.Any("error", err))
		os.Exit(1)
	}
	hasher := auth.NewHasher(cfg.BcryptCost)

	rbacService := rbac.NewService(rbac.NewRepository(pool))
	authService := auth.NewService(auth.NewRepository(pool), rbacService, tokens, hasher, auditRecorder, logger, auth.ServiceConfig{
		RotateRefresh:  cfg.RefreshRotation,
		PurgeRetention: cfg.TokenPurgeRetention,
	})

	metrics := jobmetrics.NewMetrics(nil)
	purgeJob := jobs.NewTokenPurgeJob(authService, logger, metrics)
	replayJob := jobs.NewAuditReplayJob(auditRecorder, logger, metrics)

	purgeTask, err := jobs.NewTokenPurgeTask(jobs.TokenPurgePayload{})
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}
	replayTask, err := jobs.NewAuditReplayTask(jobs.AuditReplayPayload{})
	if err != nil {
		logger.Error("build replay task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTokenPurge, Handler: purgeJob.Handle},
			{Type: jobs.TaskAuditReplay, Handler: replayJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/5 * * * *", Task: replayTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
