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
	"codementor-backend/internal/handlers"
	"codementor-backend/internal/logging"
	"codementor-backend/internal/metrics"
	"codementor-backend/internal/middleware"
	"codementor-backend/internal/provider"
	"codementor-backend/internal/router"
	"codementor-backend/internal/sanitize"
	"codementor-backend/internal/services"
	"codementor-backend/internal/token"
)

const serviceName = "chat-service"

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.LoadChat()

	logger := logging.New(logging.Config{
		Service: serviceName,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Debug:   cfg.Log.Debug,
	})
	defer logger.Sync()
	logger.Info("starting CodementorX chat service", zap.String("environment", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Token Verification ────
	verifier, err := token.NewVerifier(cfg.JWT.Secret, cfg.JWT.Algorithm, logger.Named("token"))
	if err != nil {
		logger.Fatal("invalid JWT configuration", zap.Error(err))
	}
	logger.Info("token verifier ready", zap.String("algorithm", verifier.Algorithm()))

	// ──── Step 3: Completion Provider ────
	timeout := time.Duration(cfg.ProviderTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = services.DefaultProviderTimeout
	}
	llm, closeProvider, err := provider.New(ctx, provider.Config{
		Name:          cfg.Provider,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIAPIBase: cfg.OpenAIAPIBase,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		Timeout:       timeout,
	})
	if err != nil {
		logger.Fatal("provider initialization failed", zap.Error(err))
	}
	defer closeProvider()
	logger.Info("completion provider ready",
		zap.String("provider", llm.Name()),
		zap.String("default_model", cfg.DefaultModel),
	)

	// ──── Step 4: Services & Handlers ────
	m := metrics.New(serviceName)
	chatService := services.NewChatService(llm, services.ChatOptions{
		DefaultModel: cfg.DefaultModel,
		Timeout:      timeout,
		MaxRetries:   cfg.ProviderMaxRetries,
	}, logger.Named("chat"), m)

	limiter := middleware.NewRateLimiter(
		cfg.RateLimitRequests,
		time.Duration(cfg.RateLimitWindowSeconds)*time.Second,
		middleware.KeyByUser,
		m,
	)
	defer limiter.Stop()
	if limiter.Enabled() {
		logger.Info("per-user rate limit enabled",
			zap.Int("requests", cfg.RateLimitRequests),
			zap.Int("window_seconds", cfg.RateLimitWindowSeconds),
		)
	}

	// ──── Step 5: Start HTTP Server ────
	trustedProxies, err := sanitize.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}
	r := router.NewChat(router.ChatDeps{
		Logger:  logger.Named("http"),
		Metrics: m,
		Gate:    middleware.NewAuthGate(verifier, logger.Named("auth"), m),
		Limiter: limiter,
		Chat:    handlers.NewChatHandler(chatService, logger.Named("chat")),
		Health: handlers.NewHealthHandler(serviceName, cfg.Env, map[string]string{
			"chat":   "/api/chat/message",
			"models": "/api/chat/models",
			"health": "/health",
		}),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: trustedProxies,
	})

	// Completions may take every retry at the full provider timeout.
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: chatService.MaxDuration() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

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
	}()

	logger.Info("chat service ready", zap.String("addr", cfg.Addr()))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	<-shutdownDone
	logger.Info("server stopped")
}
