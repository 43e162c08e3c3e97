// Package fetcher reads one ledger's account nonce. Every failure is turned
// into an error outcome so one bad endpoint cannot affect another.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/piyushdaiya/nonce-checker/internal/core"
	"github.com/piyushdaiya/nonce-checker/internal/metrics"
)

// Block tags accepted for the nonce query.
const (
	BlockLatest  = "latest"
	BlockPending = "pending"
)

const DefaultTimeout = 10 * time.Second

// NonceClient is the per-ledger transport. *ethclient.Client satisfies it.
type NonceClient interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Dialer opens a NonceClient for an endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (NonceClient, error)
}

type DialerFunc func(ctx context.Context, rawURL string) (NonceClient, error)

func (f DialerFunc) Dial(ctx context.Context, rawURL string) (NonceClient, error) {
	return f(ctx, rawURL)
}

// EthDialer dials an ethclient for every call.
var EthDialer = DialerFunc(func(ctx context.Context, rawURL string) (NonceClient, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
})

type Config struct {
	Timeout       time.Duration
	BlockTag      string
	VerifyChainID bool
	Logger        *zerolog.Logger
}

type Fetcher struct {
	dialer        Dialer
	timeout       time.Duration
	pending       bool
	verifyChainID bool
	log           zerolog.Logger
}

func New(dialer Dialer, cfg Config) *Fetcher {
	if dialer == nil {
		dialer = EthDialer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Fetcher{
		dialer:        dialer,
		timeout:       timeout,
		pending:       cfg.BlockTag == BlockPending,
		verifyChainID: cfg.VerifyChainID,
		log:           logger,
	}
}

// FetchNonce queries one ledger for the identifier's nonce. It makes a
// single attempt and never panics.
func (f *Fetcher) FetchNonce(ctx context.Context, identifier string, ledger core.LedgerDescriptor) (out core.NonceOutcome) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			f.log.Error().Str("ledger", ledger.Name).Interface("panic", p).Msg("nonce fetch panicked")
			out = core.Failure(core.MarkerError)
		}
		label := "ok"
		if out.Failed() {
			label = out.Error
		}
		metrics.RecordFetch(ledger.Name, label, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	nonce, err := f.fetch(ctx, identifier, ledger)
	if err != nil {
		marker := Classify(err)
		f.log.Warn().
			Str("ledger", ledger.Name).
			Int64("chain_id", ledger.ChainID).
			Str("marker", marker).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("nonce fetch failed")
		return core.Failure(marker)
	}
	f.log.Debug().
		Str("ledger", ledger.Name).
		Uint64("nonce", nonce).
		Dur("elapsed", time.Since(start)).
		Msg("nonce fetched")
	return core.Success(nonce)
}

func (f *Fetcher) fetch(ctx context.Context, identifier string, ledger core.LedgerDescriptor) (uint64, error) {
	client, err := f.dialer.Dial(ctx, ledger.RPCURL)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", ledger.Name, err)
	}
	defer client.Close()

	if f.verifyChainID {
		id, err := client.ChainID(ctx)
		if err != nil {
			return 0, fmt.Errorf("chain id: %w", err)
		}
		if id == nil || id.Cmp(big.NewInt(ledger.ChainID)) != 0 {
			return 0, &ChainMismatchError{Want: ledger.ChainID, Got: id}
		}
	}

	account := common.HexToAddress(identifier)
	if f.pending {
		return client.PendingNonceAt(ctx, account)
	}
	return client.NonceAt(ctx, account, nil)
}

// ChainMismatchError is returned when an endpoint serves a different chain
// than its registry entry claims.
type ChainMismatchError struct {
	Want int64
	Got  *big.Int
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("chain id mismatch: want %d, got %v", e.Want, e.Got)
}

// Classify maps a fetch error to its outcome marker.
func Classify(err error) string {
	var (
		mismatch  *ChainMismatchError
		rpcErr    rpc.Error
		httpErr   rpc.HTTPError
		netErr    net.Error
		urlErr    *url.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &mismatch):
		return core.MarkerChainMismatch
	case errors.Is(err, context.DeadlineExceeded):
		return core.MarkerTimeout
	case errors.Is(err, context.Canceled):
		return core.MarkerCanceled
	case errors.As(err, &rpcErr):
		return core.MarkerRPCError
	case errors.As(err, &httpErr):
		return core.MarkerUnreachable
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return core.MarkerMalformed
	case errors.As(err, &netErr) && netErr.Timeout():
		return core.MarkerTimeout
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return core.MarkerUnreachable
	case strings.Contains(err.Error(), "no known transport"):
		return core.MarkerUnreachable
	default:
		return core.MarkerError
	}
}
