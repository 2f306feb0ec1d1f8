package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/alertops/alertd/internal/auth"
	"github.com/alertops/alertd/internal/cache"
	"github.com/alertops/alertd/internal/config"
	"github.com/alertops/alertd/internal/database"
	"github.com/alertops/alertd/internal/handlers"
	"github.com/alertops/alertd/internal/jobs"
	"github.com/alertops/alertd/internal/middleware"
	"github.com/alertops/alertd/internal/notify"
	"github.com/alertops/alertd/internal/rules"
	"github.com/alertops/alertd/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting alertd...")

	// Database
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Cache: Redis when configured, otherwise a single-process fallback
	var cacheClient cache.Cache
	var redisClient *cache.Redis
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			log.Printf("Warning: Redis not reachable yet: %v", err)
		}
		cancel()
		cacheClient = redisClient
		log.Printf("Cache: Redis at %s", cfg.RedisURL)
	} else {
		memoryCache := cache.NewMemory()
		defer memoryCache.Stop()
		cacheClient = memoryCache
		log.Printf("Cache: in-memory (no REDIS_URL set; sweep lock is process-local)")
	}

	// Core services
	ruleStore := rules.NewStore(cfg.RulesPath)
	alertStore := database.NewAlertStore(database.GetDB())
	engine := rules.NewEngine(ruleStore, alertStore)
	dashboards := services.NewDashboardService(alertStore, cacheClient)

	var notifier services.Notifier
	if slackNotifier := notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel); slackNotifier != nil {
		notifier = slackNotifier
		log.Printf("Slack notifications enabled for channel %s", cfg.SlackAlertChannel)
	}

	alertService := services.NewAlertService(alertStore, engine, dashboards, notifier)

	// Auth
	tokens := auth.NewTokenManager(
		cfg.JWTSecret,
		cfg.RefreshSecret,
		time.Duration(cfg.AccessTokenExpiresMins)*time.Minute,
		time.Duration(cfg.RefreshTokenExpireDays)*24*time.Hour,
	)
	authService := auth.NewService(database.GetDB(), cacheClient, tokens)
	jwtAuth := middleware.NewJWTAuth(tokens)
	loginLimiter := middleware.NewLoginRateLimiter(
		cacheClient,
		time.Duration(cfg.RateLimitWindowSecs)*time.Second,
		cfg.RateLimitMaxAttempts,
	)

	// Auto-close sweeper
	sweeper := jobs.NewAutoCloseSweeper(cacheClient, alertStore, engine, alertService)
	stopSweeper := make(chan struct{})
	go sweeper.Start(time.Duration(cfg.SweepIntervalMins)*time.Minute, stopSweeper)
	log.Printf("Auto-close sweeper started (every %d minutes)", cfg.SweepIntervalMins)

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHTTPHandler().SetupRoutes(mux)
	handlers.NewAlertHandler(alertService, dashboards, jwtAuth).SetupRoutes(mux)
	handlers.NewAuthHandler(authService, loginLimiter, tokens.RefreshTTL()).SetupRoutes(mux)

	handler := middleware.RequestIDMiddleware(middleware.NewCORSMiddleware().Wrap(mux))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("HTTP server listening on :%d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down...")

	close(stopSweeper)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}
	if err := database.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}
	log.Println("Shutdown complete")
}
