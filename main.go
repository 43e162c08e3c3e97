package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piyushdaiya/nonce-checker/internal/app"
	"github.com/piyushdaiya/nonce-checker/internal/config"
	"github.com/piyushdaiya/nonce-checker/internal/controller"
	"github.com/piyushdaiya/nonce-checker/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: noncecheck <address-or-name>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Configure(cfg.LogLevel, cfg.Environment)

	// Resolution plus the slowest ledger, with headroom.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ResolveTimeout+cfg.FetchTimeout+5*time.Second)
	defer cancel()

	ledgers, err := app.LoadLedgers(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load ledger registry")
	}
	ctrl, closeApp, err := app.Build(ctx, cfg, ledgers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build controller")
	}

	session := ctrl.Run(ctx, os.Args[1])
	closeApp()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(session); err != nil {
		log.Error().Err(err).Msg("failed to encode session")
	}
	if session.State == controller.StateFailed {
		os.Exit(1)
	}
}
