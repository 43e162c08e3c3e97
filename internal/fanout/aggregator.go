// Package fanout queries every registry ledger concurrently and assembles
// the outcomes into one report.
package fanout

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/piyushdaiya/nonce-checker/internal/core"
)

// NonceFetcher must always return an outcome; failures are outcomes too.
type NonceFetcher interface {
	FetchNonce(ctx context.Context, identifier string, ledger core.LedgerDescriptor) core.NonceOutcome
}

type Config struct {
	// MaxConcurrency bounds in-flight fetches; zero means one per ledger.
	MaxConcurrency int
	Logger         *zerolog.Logger
}

type Aggregator struct {
	fetcher NonceFetcher
	limit   int
	log     zerolog.Logger
}

func New(fetcher NonceFetcher, cfg Config) *Aggregator {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Aggregator{fetcher: fetcher, limit: cfg.MaxConcurrency, log: logger}
}

// QueryAll fetches identifier's nonce from every ledger and waits for all of
// them. The report has one entry per ledger name; with duplicate names the
// later registry entry wins. The only error is ErrEmptyRegistry.
func (a *Aggregator) QueryAll(ctx context.Context, identifier string, ledgers []core.LedgerDescriptor) (core.QueryReport, error) {
	if len(ledgers) == 0 {
		return nil, core.ErrEmptyRegistry
	}
	start := time.Now()

	outcomes := make([]core.NonceOutcome, len(ledgers))
	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i, ledger := range ledgers {
		g.Go(func() error {
			outcomes[i] = a.fetcher.FetchNonce(ctx, identifier, ledger)
			return nil
		})
	}
	_ = g.Wait()

	report := make(core.QueryReport, len(ledgers))
	for i, ledger := range ledgers {
		report[ledger.Name] = outcomes[i]
	}

	a.log.Debug().
		Str("identifier", identifier).
		Int("ledgers", len(ledgers)).
		Int("failed", len(report.Failed())).
		Dur("elapsed", time.Since(start)).
		Msg("fan-out complete")
	return report, nil
}
