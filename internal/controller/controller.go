// Package controller sequences validation, name resolution and the ledger
// fan-out for each submitted input, and publishes the resulting sessions.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/piyushdaiya/nonce-checker/internal/core"
	"github.com/piyushdaiya/nonce-checker/internal/metrics"
	"github.com/piyushdaiya/nonce-checker/internal/validator"
)

type Resolver interface {
	Resolve(ctx context.Context, name string) core.ResolutionResult
}

type Aggregator interface {
	QueryAll(ctx context.Context, identifier string, ledgers []core.LedgerDescriptor) (core.QueryReport, error)
}

type Config struct {
	NameSuffix string
	Logger     *zerolog.Logger
}

// Controller owns the current session. A new input cancels the previous
// session's work, and results from superseded sessions are dropped.
type Controller struct {
	resolver   Resolver
	aggregator Aggregator
	ledgers    []core.LedgerDescriptor
	suffix     string
	log        zerolog.Logger

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	version uint64
	cancel  context.CancelFunc
	current Session
	subs    map[int]chan Session
	nextSub int
	closed  bool
}

func New(resolver Resolver, aggregator Aggregator, ledgers []core.LedgerDescriptor, cfg Config) *Controller {
	suffix := cfg.NameSuffix
	if suffix == "" {
		suffix = validator.DefaultNameSuffix
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	base, stop := context.WithCancel(context.Background())
	return &Controller{
		resolver:   resolver,
		aggregator: aggregator,
		ledgers:    append([]core.LedgerDescriptor(nil), ledgers...),
		suffix:     suffix,
		log:        logger,
		base:       base,
		stop:       stop,
		current:    Session{State: StateIdle},
		subs:       make(map[int]chan Session),
	}
}

// Ledgers returns the registry the controller fans out to.
func (c *Controller) Ledgers() []core.LedgerDescriptor {
	return append([]core.LedgerDescriptor(nil), c.ledgers...)
}

// Current returns the latest committed snapshot.
func (c *Controller) Current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Submit starts a cycle in the background and returns its first snapshot.
func (c *Controller) Submit(raw string) Session {
	s, ctx, cancel := c.begin(c.base, raw)
	if s.State.Terminal() {
		cancel()
		return s
	}
	go func() {
		defer cancel()
		c.execute(ctx, s)
	}()
	return s
}

// Run performs a full cycle and returns its terminal snapshot, whether or
// not a newer input superseded it meanwhile.
func (c *Controller) Run(ctx context.Context, raw string) Session {
	s, runCtx, cancel := c.begin(ctx, raw)
	defer cancel()
	if s.State.Terminal() {
		return s
	}
	return c.execute(runCtx, s)
}

// Close cancels in-flight work and closes every subscription.
func (c *Controller) Close() {
	c.stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Subscribe streams committed snapshots, starting with the current one.
// Slow subscribers lose intermediate snapshots but always see the newest.
// After Close the channel yields the current snapshot and is closed.
func (c *Controller) Subscribe(buffer int) (<-chan Session, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Session, buffer)
	c.mu.Lock()
	if c.closed {
		ch <- c.current
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.current
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				close(ch)
				delete(c.subs, id)
			}
		})
	}
}

func (c *Controller) begin(parent context.Context, raw string) (Session, context.Context, context.CancelFunc) {
	input := strings.TrimSpace(raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.version++

	now := time.Now()
	s := Session{
		ID:        uuid.NewString(),
		Version:   c.version,
		Input:     input,
		State:     StateIdle,
		StartedAt: &now,
	}
	switch validator.Classify(input, c.suffix) {
	case validator.KindIdentifier:
		s.State = StateFetching
		s.Identifier = input
	case validator.KindName:
		s.State = StateResolving
	default:
		s = s.fail(core.ErrInvalidInput)
	}
	c.commitLocked(s)
	return s, ctx, cancel
}

func (c *Controller) execute(ctx context.Context, s Session) Session {
	if s.State == StateResolving {
		res := c.resolver.Resolve(ctx, s.Input)
		if !res.OK() {
			return c.commit(s.fail(res.Err))
		}
		if !validator.IsValidIdentifier(res.Identifier) {
			return c.commit(s.fail(fmt.Errorf("%w: %q resolved to %q", core.ErrInvalidInput, s.Input, res.Identifier)))
		}
		s.State = StateFetching
		s.Identifier = res.Identifier
		c.commit(s)
	}

	report, err := c.aggregator.QueryAll(ctx, s.Identifier, c.ledgers)
	if err != nil {
		return c.commit(s.fail(err))
	}
	return c.commit(s.done(report, c.ledgers))
}

func (c *Controller) commit(s Session) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitLocked(s)
	return s
}

func (c *Controller) commitLocked(s Session) {
	if s.Version != c.version {
		c.log.Debug().
			Str("session", s.ID).
			Uint64("version", s.Version).
			Uint64("current", c.version).
			Str("state", string(s.State)).
			Msg("discarding superseded session result")
		return
	}
	c.current = s
	if s.State.Terminal() {
		metrics.RecordSession(string(s.State))
		event := c.log.Info()
		if s.State == StateFailed {
			event = c.log.Warn().Str("error", s.Error).Str("kind", string(s.ErrorKind))
		}
		event.Str("session", s.ID).Str("input", s.Input).Str("state", string(s.State)).Msg("session finished")
	}
	for _, ch := range c.subs {
		publish(ch, s)
	}
}

// publish never blocks; when ch is full the oldest pending snapshot is
// replaced.
func publish(ch chan Session, s Session) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
