package controller

import (
	"time"

	"github.com/piyushdaiya/nonce-checker/internal/core"
)

type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateFetching  State = "fetching"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Session is a snapshot of one query cycle. Snapshots are values; a later
// input produces a new session with a higher Version.
type Session struct {
	ID         string           `json:"id,omitempty"`
	Version    uint64           `json:"version"`
	Input      string           `json:"input,omitempty"`
	State      State            `json:"state"`
	Identifier string           `json:"identifier,omitempty"`
	Report     core.QueryReport `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorKind  core.ErrorKind   `json:"error_kind,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`

	// Results holds Report in registry order.
	Results []core.LedgerOutcome `json:"results,omitempty"`
}

func (s Session) fail(err error) Session {
	now := time.Now()
	s.State = StateFailed
	s.Error = core.Reason(err)
	s.ErrorKind = core.KindOf(err)
	if detail := err.Error(); detail != s.Error {
		s.Detail = detail
	}
	s.FinishedAt = &now
	return s
}

func (s Session) done(report core.QueryReport, ledgers []core.LedgerDescriptor) Session {
	now := time.Now()
	s.State = StateDone
	s.Report = report
	s.Results = report.InOrder(ledgers)
	s.FinishedAt = &now
	return s
}
