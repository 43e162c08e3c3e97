package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/piyushdaiya/nonce-checker/internal/core"
)

const (
	addrV1 = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	addrV2 = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

var testLedgers = []core.LedgerDescriptor{
	{Name: "A", RPCURL: "http://a.invalid", ChainID: 1},
	{Name: "B", RPCURL: "http://b.invalid", ChainID: 2},
}

type fakeResolver struct {
	mu     sync.Mutex
	result map[string]core.ResolutionResult
	calls  []string
}

func (f *fakeResolver) Resolve(_ context.Context, name string) core.ResolutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if res, ok := f.result[name]; ok {
		return res
	}
	return core.ResolutionFailed(core.ErrUnresolved)
}

func (f *fakeResolver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeAggregator struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, identifier string) (core.QueryReport, error)
}

func (f *fakeAggregator) QueryAll(ctx context.Context, identifier string, ledgers []core.LedgerDescriptor) (core.QueryReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identifier)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, identifier)
	}
	if len(ledgers) == 0 {
		return nil, core.ErrEmptyRegistry
	}
	report := core.QueryReport{}
	for i, l := range ledgers {
		report[l.Name] = core.Success(uint64(i))
	}
	return report, nil
}

func (f *fakeAggregator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestRunInvalidInputMakesNoCalls(t *testing.T) {
	inputs := []string{"", "alice", "0x1234", "alice.com", "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "bob..eth"}
	for _, input := range inputs {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			r := &fakeResolver{}
			a := &fakeAggregator{}
			c := New(r, a, testLedgers, Config{})
			defer c.Close()

			s := c.Run(context.Background(), input)
			if s.State != StateFailed || s.Error != "invalid input" {
				t.Fatalf("session = %s/%q, want failed/invalid input", s.State, s.Error)
			}
			if s.ErrorKind != core.KindInput {
				t.Errorf("kind = %q, want input", s.ErrorKind)
			}
			if len(r.Calls()) != 0 || len(a.Calls()) != 0 {
				t.Errorf("expected no calls, got resolver=%v aggregator=%v", r.Calls(), a.Calls())
			}
		})
	}
}

func TestRunIdentifier(t *testing.T) {
	a := &fakeAggregator{}
	c := New(&fakeResolver{}, a, testLedgers, Config{})
	defer c.Close()

	s := c.Run(context.Background(), "  "+addrV1+" ")
	if s.State != StateDone {
		t.Fatalf("state = %s, want done (error %q)", s.State, s.Error)
	}
	if s.Identifier != addrV1 {
		t.Errorf("identifier = %s, want %s", s.Identifier, addrV1)
	}
	if len(s.Report) != len(testLedgers) {
		t.Errorf("report has %d entries, want %d", len(s.Report), len(testLedgers))
	}
	if calls := a.Calls(); len(calls) != 1 || calls[0] != addrV1 {
		t.Errorf("aggregator calls = %v", calls)
	}
	if s.StartedAt == nil || s.FinishedAt == nil {
		t.Error("expected start and finish times")
	}
	if len(s.Results) != len(testLedgers) {
		t.Fatalf("results = %+v", s.Results)
	}
	for i, l := range testLedgers {
		if s.Results[i].Name != l.Name || s.Results[i].ChainID != l.ChainID {
			t.Errorf("results[%d] = %+v, want ledger %s", i, s.Results[i], l.Name)
		}
	}
	if got := c.Current(); got.Version != s.Version || got.State != StateDone {
		t.Errorf("current = %+v", got)
	}
}

func TestRunResolvesNameBeforeFetching(t *testing.T) {
	r := &fakeResolver{result: map[string]core.ResolutionResult{"alice.tld": core.Resolved(addrV2)}}
	a := &fakeAggregator{}
	c := New(r, a, testLedgers, Config{NameSuffix: ".tld"})
	defer c.Close()

	s := c.Run(context.Background(), "alice.tld")
	if s.State != StateDone {
		t.Fatalf("state = %s, want done (error %q)", s.State, s.Error)
	}
	if s.Identifier != addrV2 {
		t.Errorf("identifier = %s, want %s", s.Identifier, addrV2)
	}
	if calls := a.Calls(); len(calls) != 1 || calls[0] != addrV2 {
		t.Errorf("aggregator calls = %v, want [%s]", calls, addrV2)
	}
}

func TestRunResolutionFailures(t *testing.T) {
	tests := []struct {
		name   string
		result core.ResolutionResult
		reason string
		kind   core.ErrorKind
	}{
		{"unresolved", core.ResolutionFailed(core.ErrUnresolved), "unresolved", core.KindResolution},
		{"transport", core.ResolutionFailed(fmt.Errorf("%w: dial: refused", core.ErrResolutionTransport)), "transport-error", core.KindResolution},
		{"invalid identifier", core.Resolved("0xnothex"), "invalid input", core.KindInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResolver{result: map[string]core.ResolutionResult{"bob.tld": tt.result}}
			a := &fakeAggregator{}
			c := New(r, a, testLedgers, Config{NameSuffix: ".tld"})
			defer c.Close()

			s := c.Run(context.Background(), "bob.tld")
			if s.State != StateFailed || s.Error != tt.reason {
				t.Fatalf("session = %s/%q, want failed/%q", s.State, s.Error, tt.reason)
			}
			if s.ErrorKind != tt.kind {
				t.Errorf("kind = %q, want %q", s.ErrorKind, tt.kind)
			}
			if calls := a.Calls(); len(calls) != 0 {
				t.Errorf("expected no fan-out, got %v", calls)
			}
			if s.Report != nil {
				t.Errorf("expected no report, got %+v", s.Report)
			}
		})
	}
}

func TestRunEmptyRegistry(t *testing.T) {
	c := New(&fakeResolver{}, &fakeAggregator{}, nil, Config{})
	defer c.Close()

	s := c.Run(context.Background(), addrV1)
	if s.State != StateFailed || s.ErrorKind != core.KindAggregate {
		t.Fatalf("session = %s/%q, want failed aggregate", s.State, s.ErrorKind)
	}
	if s.Error != core.ErrEmptyRegistry.Error() {
		t.Errorf("error = %q", s.Error)
	}
}

func TestNewerSessionWins(t *testing.T) {
	started := make(chan struct{})
	var canceled bool
	a := &fakeAggregator{}
	a.fn = func(ctx context.Context, identifier string) (core.QueryReport, error) {
		if identifier == addrV1 {
			close(started)
			select {
			case <-ctx.Done():
				canceled = true
			case <-time.After(5 * time.Second):
			}
			return core.QueryReport{"A": core.Success(1), "B": core.Success(1)}, nil
		}
		return core.QueryReport{"A": core.Success(2), "B": core.Success(2)}, nil
	}
	c := New(&fakeResolver{}, a, testLedgers, Config{})
	defer c.Close()

	first := make(chan Session, 1)
	go func() { first <- c.Run(context.Background(), addrV1) }()
	<-started

	s2 := c.Run(context.Background(), addrV2)
	s1 := <-first

	if !canceled {
		t.Error("expected superseded session to be canceled")
	}
	if s1.Version >= s2.Version {
		t.Errorf("versions: first=%d second=%d", s1.Version, s2.Version)
	}
	cur := c.Current()
	if cur.Version != s2.Version || cur.Identifier != addrV2 || cur.State != StateDone {
		t.Fatalf("current = %+v, want second session", cur)
	}
	if n, _ := cur.Report["A"].Nonce(); n != 2 {
		t.Errorf("current report = %+v, want second session's report", cur.Report)
	}
}

func TestSubmitPublishesSnapshots(t *testing.T) {
	c := New(&fakeResolver{result: map[string]core.ResolutionResult{"alice.eth": core.Resolved(addrV1)}}, &fakeAggregator{}, testLedgers, Config{})
	defer c.Close()

	updates, unsubscribe := c.Subscribe(8)
	defer unsubscribe()

	if s := <-updates; s.State != StateIdle {
		t.Fatalf("first snapshot = %s, want idle", s.State)
	}

	first := c.Submit("alice.eth")
	if first.State != StateResolving {
		t.Fatalf("submit returned %s, want resolving", first.State)
	}

	var states []State
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.Version != first.Version {
				t.Fatalf("unexpected version %d", s.Version)
			}
			states = append(states, s.State)
			if s.State.Terminal() {
				want := []State{StateResolving, StateFetching, StateDone}
				if fmt.Sprint(states) != fmt.Sprint(want) {
					t.Errorf("states = %v, want %v", states, want)
				}
				return
			}
		case <-timeout:
			t.Fatalf("timed out; states so far %v", states)
		}
	}
}

func TestSubmitInvalidIsImmediatelyTerminal(t *testing.T) {
	a := &fakeAggregator{}
	c := New(&fakeResolver{}, a, testLedgers, Config{})
	defer c.Close()

	s := c.Submit("not-an-address")
	if s.State != StateFailed {
		t.Fatalf("state = %s, want failed", s.State)
	}
	if cur := c.Current(); cur.Version != s.Version || cur.State != StateFailed {
		t.Errorf("current = %+v", cur)
	}
	if len(a.Calls()) != 0 {
		t.Errorf("expected no fan-out")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	c := New(&fakeResolver{}, &fakeAggregator{}, testLedgers, Config{})
	updates, unsubscribe := c.Subscribe(1)
	<-updates
	c.Close()
	if _, ok := <-updates; ok {
		t.Error("expected channel to be closed")
	}
	unsubscribe()
}

func TestSubscribeAfterClose(t *testing.T) {
	c := New(&fakeResolver{}, &fakeAggregator{}, testLedgers, Config{})
	c.Close()

	updates, unsubscribe := c.Subscribe(1)
	defer unsubscribe()
	select {
	case s, ok := <-updates:
		if !ok || s.State != StateIdle {
			t.Fatalf("first receive = %+v, %v; want the idle snapshot", s, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after Close")
	}
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription left open after Close")
	}
}

func TestIdleSessionOmitsStartTime(t *testing.T) {
	c := New(&fakeResolver{}, &fakeAggregator{}, testLedgers, Config{})
	defer c.Close()
	data, err := json.Marshal(c.Current())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "started_at") {
		t.Errorf("idle session encodes a start time: %s", data)
	}
}
