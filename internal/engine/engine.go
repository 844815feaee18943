package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/epmem/internal/config"
	"github.com/roach88/epmem/internal/rit"
	"github.com/roach88/epmem/internal/store"
	"github.com/roach88/epmem/internal/wm"
)

// Status is the connection state of the engine's store.
type Status int

const (
	// StatusDisconnected means the store has not been opened yet, or was
	// closed. The next command opens it.
	StatusDisconnected Status = iota
	// StatusConnected means the store is open and consistent.
	StatusConnected
	// StatusProblem means a store operation failed. Every entry point
	// fails until Reinit.
	StatusProblem
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusProblem:
		return "problem"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Opener opens the engine's store. Tests inject failing openers.
type Opener func(ctx context.Context, opts store.Options) (*store.Store, error)

// Engine records and retrieves episodes of one working-memory graph.
//
// It owns every piece of state that outlives a single tick: the store
// connection, both RIT layouts, the hash caches, identifier bindings, the
// reference table and id pool, and the per-anchor retrieval state.
type Engine struct {
	cfg        config.Config
	graph      wm.Graph
	observer   Observer
	activation Activation
	requests   RequestIDGenerator
	open       Opener

	status    Status
	statusErr error

	st     *store.Store
	nodes  *rit.Tree
	edges  *rit.Tree
	hashes *hasher
	clock  *Clock

	// Writer state. Rebuilt from the store on connect.
	nextID   int64
	binds    *bindings
	refs     *refTable
	live     *refScope
	pool     *idPool
	nodeNow  map[int64]int64
	edgeNow  map[int64]edgeNow
	nodeTags map[uint64]nodeRef
	edgeTags map[uint64]edgeRef
	ltis     map[int64]ltiRecord
	ltiIDs   map[ltiKey]int64

	retrievals map[wm.Identifier]*retrieval
	stats      Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver replaces the default slog observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithActivation sets the source of cue leaf weights used when balance is
// below 1.
func WithActivation(a Activation) Option {
	return func(e *Engine) {
		e.activation = a
	}
}

// WithRequestIDs sets the generator for Result.RequestID.
//
// Default: UUIDv7Generator.
// Use WithRequestIDs(NewFixedGenerator(...)) for golden tests.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(e *Engine) {
		e.requests = g
	}
}

// WithOpener replaces store.Open.
func WithOpener(open Opener) Option {
	return func(e *Engine) {
		e.open = open
	}
}

// New creates an engine recording graph. The store is opened lazily by the
// first tick or command.
func New(graph wm.Graph, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hashes, err := newHasher(cfg.HashCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		graph:      graph,
		observer:   NewSlogObserver(nil),
		activation: UniformActivation{},
		requests:   UUIDv7Generator{},
		open:       store.Open,
		hashes:     hashes,
		clock:      NewClock(),
		retrievals: make(map[wm.Identifier]*retrieval),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resetWriter()
	return e, nil
}

// Status returns the connection state.
func (e *Engine) Status() Status {
	return e.status
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Store returns the open store, or nil when disconnected.
func (e *Engine) Store() *store.Store {
	return e.st
}

// Connect opens the store if it is not open yet. Commands call it
// implicitly.
func (e *Engine) Connect(ctx context.Context) error {
	return e.ready(ctx)
}

func (e *Engine) ready(ctx context.Context) error {
	switch e.status {
	case StatusConnected:
		return nil
	case StatusProblem:
		return fmt.Errorf("%w: %v", ErrStoreProblem, e.statusErr)
	}
	if err := e.connect(ctx); err != nil {
		e.fail(err)
		return fmt.Errorf("%w: %v", ErrStoreProblem, err)
	}
	return nil
}

// fail moves the engine to the problem state.
func (e *Engine) fail(err error) {
	if e.status == StatusProblem {
		return
	}
	e.status = StatusProblem
	e.statusErr = err
	e.observer.StoreFailed(err)
}

func (e *Engine) connect(ctx context.Context) error {
	st, err := e.open(ctx, e.cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	e.st = st
	if err := e.load(ctx); err != nil {
		st.Close()
		e.st = nil
		return err
	}
	e.status = StatusConnected
	e.statusErr = nil
	return nil
}

// load rebuilds in-memory state from a freshly opened store and closes the
// now intervals a previous run left open.
func (e *Engine) load(ctx context.Context) error {
	st := e.st
	if err := st.Prepare(ctx, preparedStatements...); err != nil {
		return err
	}
	if err := e.hashes.attach(ctx, st); err != nil {
		return err
	}

	e.nodes = rit.New(st, rit.NodeAxis)
	e.edges = rit.New(st, rit.EdgeAxis)
	if err := e.nodes.Load(ctx); err != nil {
		return err
	}
	if err := e.edges.Load(ctx); err != nil {
		return err
	}

	last, _, err := st.Int64(ctx, maxTimeSQL)
	if err != nil {
		return fmt.Errorf("load last episode: %w", err)
	}
	e.clock = NewClockAt(last)

	e.resetWriter()
	if e.nextID, err = st.VarOr(ctx, store.VarNextID, RootID+1); err != nil {
		return err
	}
	if err := e.loadLTIs(ctx); err != nil {
		return err
	}
	return e.closeOpenIntervals(ctx, last)
}

func (e *Engine) resetWriter() {
	e.binds = newBindings(e.graph.Root())
	e.refs = newRefTable()
	e.live = e.refs.Scope()
	e.pool = newIDPool()
	e.nodeNow = make(map[int64]int64)
	e.edgeNow = make(map[int64]edgeNow)
	e.nodeTags = make(map[uint64]nodeRef)
	e.edgeTags = make(map[uint64]edgeRef)
	e.ltis = make(map[int64]ltiRecord)
	e.ltiIDs = make(map[ltiKey]int64)
}

// Close retracts every installed retrieval and closes the store.
func (e *Engine) Close() error {
	for anchor := range e.retrievals {
		e.Release(anchor)
	}
	clear(e.retrievals)
	if e.st == nil {
		e.status = StatusDisconnected
		return nil
	}
	err := e.st.Close()
	e.st = nil
	e.status = StatusDisconnected
	e.statusErr = nil
	return err
}

// Reinit closes and reopens the store. It is the way out of StatusProblem:
// the reopen replays the now-interval fixup and starts a new hash
// generation.
func (e *Engine) Reinit(ctx context.Context) error {
	closeErr := e.Close()
	if err := e.ready(ctx); err != nil {
		return errors.Join(closeErr, err)
	}
	return nil
}
