// Package app assembles the controller and its dependencies from Config.
// Both the CLI and the engine start here.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/piyushdaiya/nonce-checker/internal/config"
	"github.com/piyushdaiya/nonce-checker/internal/controller"
	"github.com/piyushdaiya/nonce-checker/internal/core"
	"github.com/piyushdaiya/nonce-checker/internal/fanout"
	"github.com/piyushdaiya/nonce-checker/internal/fetcher"
	"github.com/piyushdaiya/nonce-checker/internal/logging"
	"github.com/piyushdaiya/nonce-checker/internal/registry"
	"github.com/piyushdaiya/nonce-checker/internal/resolver"
)

// LoadLedgers returns the registry named by cfg. With a database configured
// the database is authoritative; an empty one is seeded from the registry
// file, or the built-in default, first.
func LoadLedgers(ctx context.Context, cfg *config.Config) ([]core.LedgerDescriptor, error) {
	if cfg.RegistryDB == "" {
		return fileOrDefault(cfg.RegistryFile)
	}

	db, err := sql.Open("sqlite3", cfg.RegistryDB)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping registry db: %w", err)
	}

	store := registry.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	n, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		seed, err := fileOrDefault(cfg.RegistryFile)
		if err != nil {
			return nil, err
		}
		if err := store.Seed(ctx, seed); err != nil {
			return nil, err
		}
		log := logging.Component("registry")
		log.Info().Int("ledgers", len(seed)).Str("db", cfg.RegistryDB).Msg("seeded registry database")
	}
	return store.Load(ctx)
}

func fileOrDefault(path string) ([]core.LedgerDescriptor, error) {
	if path == "" {
		return registry.Default(), nil
	}
	return registry.LoadFile(path)
}

// Build wires resolver, fetcher, aggregator and controller over ledgers.
// The returned func releases the controller and the resolution client.
func Build(ctx context.Context, cfg *config.Config, ledgers []core.LedgerDescriptor) (*controller.Controller, func(), error) {
	resolverLog := logging.Component("resolver")
	ens, closeENS, err := resolver.Dial(ctx, cfg.ENSRPCURL, resolver.Config{
		UniversalResolver: cfg.UniversalResolver,
		Timeout:           cfg.ResolveTimeout,
		Logger:            &resolverLog,
	})
	if err != nil {
		return nil, nil, err
	}

	fetcherLog := logging.Component("fetcher")
	nonces := fetcher.New(fetcher.EthDialer, fetcher.Config{
		Timeout:       cfg.FetchTimeout,
		BlockTag:      cfg.BlockTag,
		VerifyChainID: cfg.VerifyChainID,
		Logger:        &fetcherLog,
	})

	fanoutLog := logging.Component("fanout")
	agg := fanout.New(nonces, fanout.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         &fanoutLog,
	})

	controllerLog := logging.Component("controller")
	ctrl := controller.New(ens, agg, ledgers, controller.Config{
		NameSuffix: cfg.NameSuffix,
		Logger:     &controllerLog,
	})
	return ctrl, func() {
		ctrl.Close()
		closeENS()
	}, nil
}
