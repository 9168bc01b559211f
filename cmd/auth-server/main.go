package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"codementor-backend/internal/config"
	"codementor-backend/internal/database"
	"codementor-backend/internal/handlers"
	"codementor-backend/internal/logging"
	"codementor-backend/internal/metrics"
	"codementor-backend/internal/middleware"
	"codementor-backend/internal/repository"
	"codementor-backend/internal/router"
	"codementor-backend/internal/sanitize"
	"codementor-backend/internal/services"
	"codementor-backend/internal/token"
	"codementor-backend/internal/worker"
)

const serviceName = "auth-service"

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.LoadAuth()

	logger := logging.New(logging.Config{
		Service: serviceName,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Debug:   cfg.Log.Debug,
	})
	defer logger.Sync()
	logger.Info("starting CodementorX auth service", zap.String("environment", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("PostgreSQL connection failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}
	defer rdb.Close()
	logger.Info("Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, logger.Named("migrations")); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	// ──── Step 5: Tokens ────
	issuer, err := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Algorithm, time.Duration(cfg.AccessTTLMinutes)*time.Minute)
	if err != nil {
		logger.Fatal("invalid JWT configuration", zap.Error(err))
	}
	verifier, err := token.NewVerifier(cfg.JWT.Secret, cfg.JWT.Algorithm, logger.Named("token"))
	if err != nil {
		logger.Fatal("invalid JWT configuration", zap.Error(err))
	}

	// ──── Step 6: Repositories, Services & Workers ────
	m := metrics.New(serviceName)
	userRepo := repository.NewUserRepo(pool)
	tokenRepo := repository.NewTokenRepo(rdb)
	emailQueue := repository.NewEmailQueue(rdb)

	emailService := services.NewEmailService(services.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		User:        cfg.SMTPUser,
		Pass:        cfg.SMTPPass,
		From:        cfg.SMTPFrom,
		FrontendURL: cfg.FrontendURL,
	}, logger.Named("email"))

	authService := services.NewAuthService(userRepo, tokenRepo, emailQueue, issuer, services.AuthOptions{
		BcryptCost: cfg.BcryptCost,
		RefreshTTL: time.Duration(cfg.RefreshTTLHours) * time.Hour,
	}, logger.Named("auth"))

	workerPool := worker.NewPool(emailQueue, emailService, cfg.EmailWorkers, logger.Named("worker"), m)
	workerPool.Start(ctx)

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute, middleware.KeyByIP, m)
	defer authLimiter.Stop()

	// ──── Step 7: Start HTTP Server ────
	trustedProxies, err := sanitize.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}
	r := router.NewAuth(router.AuthDeps{
		Logger:  logger.Named("http"),
		Metrics: m,
		Gate:    middleware.NewAuthGate(verifier, logger.Named("gate"), m),
		Limiter: authLimiter,
		Auth:    handlers.NewAuthHandler(authService, logger.Named("auth")),
		Health: handlers.NewHealthHandler(serviceName, cfg.Env, map[string]string{
			"auth":    "/api/auth",
			"profile": "/api/auth/profile",
			"health":  "/health",
		}),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: trustedProxies,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		workerPool.Stop()
	}()

	logger.Info("auth service ready", zap.String("addr", cfg.Addr()))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	<-shutdownDone
	logger.Info("server stopped")
}
