package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/storyweave/consentd/internal/adapters/api"
	"github.com/storyweave/consentd/internal/adapters/cache"
	"github.com/storyweave/consentd/internal/adapters/repository"
	"github.com/storyweave/consentd/internal/config"
	"github.com/storyweave/consentd/internal/core/ports"
	"github.com/storyweave/consentd/internal/core/services"
	"github.com/storyweave/consentd/internal/infrastructure/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		logger.Error("unable to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Warn("could not ping database", "error", err)
	}

	repo := repository.NewPostgresRepository(db)

	go func() {
		for range time.Tick(15 * time.Second) {
			metrics.DBConnectionsActive.Set(float64(db.Stats().OpenConnections))
		}
	}()

	var validationCache ports.ValidationCache
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		// Mirror peer revocations into the in-process tombstone set.
		go redisCache.Listen(context.Background())
		validationCache = redisCache
		logger.Info("validation cache enabled", "addr", cfg.Redis.Addr)
	}

	tokenSvc := services.NewTokenService(repo, repo, repo, validationCache, cfg.Server.BaseURL, cfg.Tokens.DefaultTTLDays, logger)
	webhookSvc := services.NewWebhookService(repo, repo, services.DeliveryConfig{
		Timeout:    cfg.Webhooks.Timeout,
		MaxWorkers: cfg.Webhooks.MaxWorkers,
	}, logger)
	revocationSvc := services.NewRevocationService(tokenSvc, repo, repo, repo, webhookSvc, nil, logger)
	auditSvc := services.NewAuditService(repo)

	handler := api.NewAPIHandler(tokenSvc, webhookSvc, revocationSvc, auditSvc, repo, validationCache)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("consent API listening", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Let in-flight webhook deliveries finish before the process exits.
	webhookSvc.Drain()
	logger.Info("shutdown complete")
}
