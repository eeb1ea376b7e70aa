package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/natalyineu/db-sub000/internal/auth"
	"github.com/natalyineu/db-sub000/internal/config"
	"github.com/natalyineu/db-sub000/internal/gateway"
	transporthttp "github.com/natalyineu/db-sub000/internal/http"
	"github.com/natalyineu/db-sub000/internal/metrics"
	"github.com/natalyineu/db-sub000/internal/platform/database"
	"github.com/natalyineu/db-sub000/internal/platform/logging"
	"github.com/natalyineu/db-sub000/internal/platform/migrate"
	"github.com/natalyineu/db-sub000/internal/profile"
	"github.com/natalyineu/db-sub000/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	gw, store, cleanup, err := buildBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize backends", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	cache := profile.NewCache(profile.DefaultCacheTTL)
	fetcher := session.NewFetcher(store, cache, logger, session.WithMetrics(collector))
	manager := session.NewManager(gw, fetcher, logger)
	svc := auth.NewService(gw, manager, logger)

	opts := transporthttp.RouterOptions{Gatherer: registry}
	if cfg.GoogleSignInEnabled() {
		googleAuth, err := gateway.NewGoogleAuthenticator(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
			cfg.GoogleAllowedDomains,
			cfg.GoogleAllowedEmails,
		)
		if err != nil {
			logger.Error("failed to initialize google sign-in", "error", err)
			os.Exit(1)
		}
		opts.OAuth = transporthttp.NewOAuthHandler(googleAuth, svc, cfg.FrontendURL, cfg.Environment, logger)
	}

	router := transporthttp.NewRouter(cfg, svc, logger, opts)

	manager.Initialize(ctx)
	defer manager.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("dashboard API listening", "addr", srv.Addr, "store", cfg.ProfileStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (gateway.Gateway, profile.Store, func(), error) {
	httpClient := &http.Client{Timeout: 20 * time.Second}

	var gw gateway.Gateway
	if cfg.BackendURL != "" {
		gw = gateway.NewHTTPClient(httpClient, cfg.BackendURL, cfg.BackendAPIKey)
	} else {
		logger.Info("using in-memory credential gateway")
		memory := gateway.NewMemoryGateway()
		memory.Register("demo@example.com", "demo-password")
		gw = memory
	}

	switch cfg.ProfileStore {
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			_ = db.Close()
		}
		if err := migrate.Apply(ctx, db, logger); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		logger.Info("connected to postgres")
		return gw, profile.NewPostgresStore(db), cleanup, nil

	case "hosted":
		var storeOpts []profile.HostedOption
		if cfg.ProvisionURL != "" {
			storeOpts = append(storeOpts, profile.WithProvisionClient(
				profile.NewProvisionClient(httpClient, cfg.ProvisionURL),
			))
		}
		return gw, profile.NewHostedStore(httpClient, cfg.BackendURL, cfg.BackendAPIKey, storeOpts...), nil, nil

	default:
		logger.Info("using in-memory profile store")
		return gw, profile.NewMemoryStore(nil), nil, nil
	}
}
