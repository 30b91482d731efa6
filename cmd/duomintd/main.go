package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/colinwb/duomint/internal/config"
	"github.com/colinwb/duomint/internal/httpapi"
	"github.com/colinwb/duomint/internal/log"
	"github.com/colinwb/duomint/internal/observability"
	"github.com/colinwb/duomint/internal/session"
)

func main() {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "duomint"})
	logger := log.Logger()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	registry := session.NewRegistry(session.Options{
		Expiry:          cfg.SessionExpiry,
		SweepInterval:   cfg.SweepInterval,
		CompletionDelay: cfg.CompletionDelay,
		Logger:          log.With("registry"),
	})
	registry.SetEventHook(func(event string) {
		metrics.SessionEvents.WithLabelValues(event).Inc()
	})

	api := httpapi.New(cfg, registry, metrics, log.With("httpapi"))
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartJanitor(runCtx)

	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Msg("relay listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}
