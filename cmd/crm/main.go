package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagodirecto/crm/internal/app"
	"github.com/pagodirecto/crm/internal/auth"
	"github.com/pagodirecto/crm/internal/customers"
	"github.com/pagodirecto/crm/internal/observability"
	"github.com/pagodirecto/crm/internal/platform/cache"
	"github.com/pagodirecto/crm/internal/platform/db"
	"github.com/pagodirecto/crm/internal/rbac"
	"github.com/pagodirecto/crm/internal/shared"
	"github.com/pagodirecto/crm/internal/users"
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
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()

	auditRecorder := shared.NewAuditRecorder(pool, redisClient, logger).
		WithSpoolObserver(metrics.ObserveAuditSpooled)

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

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, rbacService, tokens, hasher, auditRecorder, logger, auth.ServiceConfig{
		Lockout: auth.LockoutPolicy{
			Threshold:    cfg.LockoutThreshold,
			LockDuration: cfg.LockoutDuration,
		},
		RotateRefresh:  cfg.RefreshRotation,
		PurgeRetention: cfg.TokenPurgeRetention,
	}).WithMetrics(metrics)
	authHandler := auth.NewHandler(logger, authService)

	sessions := shared.NewTenantSessions(pool, logger)
	authMiddleware := auth.Middleware{Tokens: tokens, Sessions: sessions, Logger: logger}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, hasher, authService, authService, auditRecorder, logger).
		WithPasswordVerifier(authService)
	usersHandler := users.NewHandler(logger, usersService)

	rbacHandler := rbac.NewHandler(logger, rbacService)

	customersRepo := customers.NewRepository(pool)
	customersService := customers.NewService(customersRepo, auditRecorder, logger)
	customersHandler := customers.NewHandler(logger, customersService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
		RBACMiddleware:   rbacMiddleware,
		UsersHandler:     usersHandler,
		RBACHandler:      rbacHandler,
		CustomersHandler: customersHandler,
		Metrics:          metrics,
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
