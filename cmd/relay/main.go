package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/league-scorekeeper/internal/cache"
	"github.com/DoyleJ11/league-scorekeeper/internal/config"
	"github.com/DoyleJ11/league-scorekeeper/internal/httpapi"
	"github.com/DoyleJ11/league-scorekeeper/internal/hub"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/session"
	"github.com/DoyleJ11/league-scorekeeper/internal/ws"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel).With("app", "relay", "env", cfg.AppEnv)
	logging.SetDefault(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store session.Cache = cache.NewMemoryStore(logger)
	if cfg.DatabaseURL != "" {
		pg, err := cache.OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	}

	h := hub.NewHub(ctx, store, logger)
	handler := httpapi.SetupRoutes(h, ws.Options{
		DefaultGames:   cfg.GameCount(),
		OriginPatterns: cfg.WSOriginPatterns,
		Logger:         logger,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("relay starting", "addr", cfg.HTTPAddr, "games", cfg.GameCount())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	select {
	case <-h.Done():
	case <-shutdownCtx.Done():
		logger.Warn("hub did not stop in time")
	}
	logger.Info("relay stopped")
}
