package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piyushdaiya/nonce-checker/internal/api"
	"github.com/piyushdaiya/nonce-checker/internal/app"
	"github.com/piyushdaiya/nonce-checker/internal/config"
	"github.com/piyushdaiya/nonce-checker/internal/logging"
	"github.com/piyushdaiya/nonce-checker/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Configure(cfg.LogLevel, cfg.Environment)
	metrics.RegisterMetrics()

	engineLog := logging.Component("engine")
	engineLog.Info().Msg("starting nonce engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgers, err := app.LoadLedgers(ctx, cfg)
	if err != nil {
		engineLog.Fatal().Err(err).Msg("failed to load ledger registry")
	}
	if len(ledgers) == 0 {
		engineLog.Warn().Msg("ledger registry is empty; every query will fail")
	}

	ctrl, closeApp, err := app.Build(ctx, cfg, ledgers)
	if err != nil {
		engineLog.Fatal().Err(err).Msg("failed to build controller")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.New(ctrl, logging.Component("http")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		engineLog.Info().Str("addr", srv.Addr).Int("ledgers", len(ledgers)).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			engineLog.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	engineLog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Close subscriptions first so open websocket handlers return.
	closeApp()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		engineLog.Error().Err(err).Msg("graceful shutdown failed")
	}
}
