// Parley - synthetic two-party call orchestrator
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/parleylabs/parley/completion"
	"github.com/parleylabs/parley/config"
	"github.com/parleylabs/parley/history"
	"github.com/parleylabs/parley/lifecycle"
	"github.com/parleylabs/parley/logger"
	"github.com/parleylabs/parley/persona"
	"github.com/parleylabs/parley/ratelimit"
	"github.com/parleylabs/parley/resilience"
	"github.com/parleylabs/parley/server"
	"github.com/parleylabs/parley/statestore"
	"github.com/parleylabs/parley/telephony"
	"github.com/parleylabs/parley/turn"
)

const telephonyAPIURL = "https://api.twilio.com"

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting parley",
		"port", cfg.Port, "validation_mode", cfg.Telephony.ValidationMode)

	// Storage backends: Redis when configured, in-memory otherwise.
	var (
		store   statestore.Store
		limiter ratelimit.Limiter
	)
	health := server.NewHealthChecker()
	health.Add("telephony", server.HTTPProbe(telephonyAPIURL))

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisStore := statestore.NewRedisStore(client,
			statestore.WithTTL(cfg.Limits.ConversationTTL))
		store = redisStore
		limiter = ratelimit.NewRedisLimiter(client,
			ratelimit.WithWindowTTL(cfg.Limits.RateLimitWindowTTL))
		health.Add("store", redisStore.Ping)
		logger.Info("using redis backends", "addr", cfg.RedisAddr)
	} else {
		store = statestore.NewMemoryStore(
			statestore.WithMemoryTTL(cfg.Limits.ConversationTTL))
		limiter = ratelimit.NewMemoryLimiter()
		// In-process store: healthy whenever the process is.
		health.Add("store", func(context.Context) error { return nil })
		logger.Warn("REDIS_ADDR not set, using in-memory backends")
	}

	completer := completion.NewHTTPClient(
		completion.WithAPIKey(cfg.Completion.APIKey),
		completion.WithBaseURL(cfg.Completion.BaseURL),
		completion.WithModel(cfg.Completion.Model),
	)

	retryCfg := resilience.RetryConfig{
		MaxAttempts: cfg.Resilience.RetryMaxAttempts,
		BaseDelay:   cfg.Resilience.RetryBaseDelay,
		MaxDelay:    cfg.Resilience.RetryMaxDelay,
	}
	breakerOpts := []resilience.BreakerOption{
		resilience.WithFailureThreshold(cfg.Resilience.BreakerFailureThreshold),
		resilience.WithResetTimeout(cfg.Resilience.BreakerResetTimeout),
	}

	engine := turn.NewEngine(store, limiter, completer, persona.NewCache(cfg.PersonaDir),
		turn.WithSanitizer(history.NewSanitizer(
			history.WithMaxMessages(cfg.Limits.MaxHistoryMessages),
			history.WithMaxContentLength(cfg.Limits.MaxMessageContentLength),
		)),
		turn.WithBreaker(resilience.NewBreaker("completion", breakerOpts...)),
		turn.WithRetryConfig(retryCfg),
		turn.WithDailyLimit(cfg.Limits.DailyTurnLimit),
		turn.WithConversationTTL(cfg.Limits.ConversationTTL),
	)

	var enricher lifecycle.Enricher
	if cfg.Enrichment.BaseURL != "" {
		enricher = lifecycle.NewHTTPEnricher(cfg.Enrichment.BaseURL)
		// The transcript API is hosted by the analytics platform; one
		// liveness probe covers both names.
		health.Add("analytics", server.HTTPProbe(cfg.Enrichment.BaseURL))
		health.Add("enrichment", server.HTTPProbe(cfg.Enrichment.BaseURL))
	} else {
		logger.Warn("ENRICHMENT_BASE_URL not set, transcript enrichment disabled")
	}
	dispatcher := lifecycle.NewDispatcher(enricher,
		lifecycle.WithBreaker(resilience.NewBreaker("enrichment", breakerOpts...)),
		lifecycle.WithRetryConfig(retryCfg),
	)

	validator := telephony.NewValidator(cfg.Telephony.AuthToken,
		telephony.ValidationMode(cfg.Telephony.ValidationMode), cfg.PublicBaseURL)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(engine, dispatcher, validator, health).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
