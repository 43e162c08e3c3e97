// Package ledgertest runs in-process JSON-RPC ledgers for tests.
package ledgertest

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Ledger answers eth_getTransactionCount and eth_chainId.
type Ledger struct {
	URL string

	mu      sync.Mutex
	nonces  map[common.Address]uint64
	chainID int64
	fail    error
	tags    []string
	calls   int
}

type ethService struct {
	l *Ledger
}

func (s *ethService) GetTransactionCount(ctx context.Context, addr common.Address, block string) (hexutil.Uint64, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.calls++
	s.l.tags = append(s.l.tags, block)
	if s.l.fail != nil {
		return 0, s.l.fail
	}
	return hexutil.Uint64(s.l.nonces[addr]), nil
}

func (s *ethService) ChainId() *hexutil.Big {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	return (*hexutil.Big)(big.NewInt(s.l.chainID))
}

// New starts a ledger for chainID. Accounts not set with SetNonce report 0.
func New(t *testing.T, chainID int64) *Ledger {
	t.Helper()
	l := &Ledger{nonces: make(map[common.Address]uint64), chainID: chainID}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethService{l: l}); err != nil {
		t.Fatalf("register eth service: %v", err)
	}
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		server.Stop()
	})
	l.URL = ts.URL
	return l
}

func (l *Ledger) SetNonce(account string, nonce uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonces[common.HexToAddress(account)] = nonce
}

// FailWith makes every nonce query return err as a JSON-RPC error.
func (l *Ledger) FailWith(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = errors.New(msg)
}

func (l *Ledger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Tags returns the block tags seen so far.
func (l *Ledger) Tags() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tags...)
}

// Stalled starts an endpoint that holds every request until the client
// gives up or the test ends.
func Stalled(t *testing.T) string {
	t.Helper()
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		ts.Close()
	})
	return ts.URL
}

// Raw starts an endpoint that always answers with status and body.
func Raw(t *testing.T, status int, body string) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

// Unreachable returns the URL of a server that is no longer listening.
func Unreachable(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	return url
}
