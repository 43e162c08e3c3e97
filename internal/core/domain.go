package core

import "sort"

// LedgerDescriptor is one entry of the endpoint registry.
type LedgerDescriptor struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	RPCURL  string `json:"rpc_url" yaml:"rpc_url" toml:"rpc_url"`
	ChainID int64  `json:"chain_id" yaml:"chain_id" toml:"chain_id"`
}

// Error markers carried by a failed NonceOutcome.
const (
	MarkerTimeout       = "timeout"
	MarkerCanceled      = "canceled"
	MarkerUnreachable   = "unreachable"
	MarkerRPCError      = "rpc-error"
	MarkerMalformed     = "malformed-response"
	MarkerChainMismatch = "chain-mismatch"
	MarkerError         = "error"
)

// NonceOutcome is the per-ledger result of a nonce query. Exactly one of
// Value and Error is set.
type NonceOutcome struct {
	Value *uint64 `json:"value,omitempty"`
	Error string  `json:"error,omitempty"`
}

func Success(nonce uint64) NonceOutcome {
	return NonceOutcome{Value: &nonce}
}

func Failure(marker string) NonceOutcome {
	if marker == "" {
		marker = MarkerError
	}
	return NonceOutcome{Error: marker}
}

func (o NonceOutcome) Failed() bool {
	return o.Value == nil
}

// Nonce returns the value and whether the fetch succeeded.
func (o NonceOutcome) Nonce() (uint64, bool) {
	if o.Value == nil {
		return 0, false
	}
	return *o.Value, true
}

// QueryReport maps ledger name to its outcome. A complete report has one
// entry per registry ledger, failures included.
type QueryReport map[string]NonceOutcome

// Names returns the ledger names in lexical order.
func (r QueryReport) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed returns the names of ledgers whose fetch did not succeed.
func (r QueryReport) Failed() []string {
	var failed []string
	for _, name := range r.Names() {
		if r[name].Failed() {
			failed = append(failed, name)
		}
	}
	return failed
}

// Equal reports whether both reports hold the same outcomes.
func (r QueryReport) Equal(other QueryReport) bool {
	if len(r) != len(other) {
		return false
	}
	for name, a := range r {
		b, ok := other[name]
		if !ok || a.Error != b.Error {
			return false
		}
		av, aok := a.Nonce()
		bv, bok := b.Nonce()
		if aok != bok || av != bv {
			return false
		}
	}
	return true
}

// LedgerOutcome is one report entry together with its ledger.
type LedgerOutcome struct {
	Name    string `json:"name"`
	ChainID int64  `json:"chain_id"`
	NonceOutcome
}

// InOrder lists the report in registry order. A name that appears more than
// once is listed at its first position with the outcome the report holds.
func (r QueryReport) InOrder(ledgers []LedgerDescriptor) []LedgerOutcome {
	out := make([]LedgerOutcome, 0, len(r))
	seen := make(map[string]int, len(ledgers))
	for _, l := range ledgers {
		outcome, ok := r[l.Name]
		if !ok {
			continue
		}
		if i, dup := seen[l.Name]; dup {
			out[i].ChainID = l.ChainID
			continue
		}
		seen[l.Name] = len(out)
		out = append(out, LedgerOutcome{Name: l.Name, ChainID: l.ChainID, NonceOutcome: outcome})
	}
	return out
}

// ResolutionResult is the outcome of resolving a name. It is resolved when
// Err is nil.
type ResolutionResult struct {
	Identifier string
	Err        error
}

func Resolved(identifier string) ResolutionResult {
	return ResolutionResult{Identifier: identifier}
}

func ResolutionFailed(err error) ResolutionResult {
	if err == nil {
		err = ErrUnresolved
	}
	return ResolutionResult{Err: err}
}

func (r ResolutionResult) OK() bool {
	return r.Err == nil
}
