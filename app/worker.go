// Package app is the engine of the bridge: a single worker goroutine that
// owns the local event store and the relay pool, answers commands from the
// front end and routes what the relays send back.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore/badger"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"github.com/Hubmakerlabs/bridgr/pkg/units"
)

var log, chk = slog.New(os.Stderr)

var ErrClosed = errors.New("engine is closed")

// StoreFactory opens the event store for one run of the worker. The store is
// closed when the run ends.
type StoreFactory func() (eventstore.Store, error)

// BadgerStore opens the badger store configured in cfg.
func BadgerStore(cfg *Config) StoreFactory {
	return func() (s eventstore.Store, err error) {
		var b *badger.Backend
		if cfg.InMemory {
			b = badger.GetMemBackend()
		} else {
			b = badger.GetBackend(cfg.DataDir, units.Megabytes(cfg.BlockCacheSize))
		}
		if err = b.Init(); err != nil {
			return
		}
		return b, nil
	}
}

// Engine runs the worker. Commands go in with Send, responses come out of
// the Emitter it was made with.
type Engine struct {
	cfg          *Config
	newStore     StoreFactory
	newTransport TransportFactory
	out          Emitter
	dedup        Deduper
	stats        *Stats

	cmds        chan Command
	inMx        sync.RWMutex
	inputClosed bool
	done        chan struct{}
}

type Option func(e *Engine)

// WithDeduper replaces the default IDMarker.
func WithDeduper(d Deduper) Option { return func(e *Engine) { e.dedup = d } }

// WithStats makes the engine count into s, which may already be exported.
func WithStats(s *Stats) Option { return func(e *Engine) { e.stats = s } }

func New(cfg *Config, store StoreFactory, transport TransportFactory,
	out Emitter, opts ...Option) (e *Engine) {

	e = &Engine{
		cfg:          cfg,
		newStore:     store,
		newTransport: transport,
		out:          out,
		dedup:        IDMarker{},
		stats:        NewStats(),
		cmds:         make(chan Command, cfg.QueueSize),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return
}

func (e *Engine) Stats() *Stats { return e.stats }

// Done is closed when the worker has exited for good.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Send queues a command, as returned by ParseCommand, for the worker. It
// only fails once the worker has exited or the input was closed.
func (e *Engine) Send(cmd Command) (err error) {
	e.inMx.RLock()
	defer e.inMx.RUnlock()
	if e.inputClosed {
		return ErrClosed
	}
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.cmds <- cmd:
		return
	case <-e.done:
		return ErrClosed
	}
}

// CloseInput ends the command stream. The worker handles what is already
// queued and exits as it would on a Close command.
func (e *Engine) CloseInput() {
	e.inMx.Lock()
	defer e.inMx.Unlock()
	if !e.inputClosed {
		e.inputClosed = true
		close(e.cmds)
	}
}

// Run is the worker. It returns when a Close command arrives, the input is
// closed or ctx is canceled; a fault in between restarts it from scratch
// after the configured delay.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		if e.runOnce(ctx) {
			log.I.Ln("worker stopped")
			return
		}
		e.stats.Restarts.Inc()
		log.W.F("restarting worker in %v", e.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.RestartDelay):
		}
	}
}

// runOnce returns true when the worker is to stop rather than restart.
func (e *Engine) runOnce(ctx context.Context) (stop bool) {
	en := e.newEngine()
	defer en.shutdown()
	var err error
	if err = en.guard(func() error { return en.init(ctx) }); chk.E(err) {
		return false
	}
	for {
		if ctx.Err() != nil {
			return true
		}
		var busy bool
		if err = en.guard(func() error {
			busy, stop = en.tick()
			return nil
		}); err != nil {
			log.E.Ln(err)
			return false
		}
		if stop {
			return true
		}
		if !busy {
			time.Sleep(e.cfg.IdleBackoff)
		}
	}
}

type sessionKey struct{ url, subID string }

// engine is the state owned by one run of the worker. Nothing else touches
// it, so none of it is locked.
type engine struct {
	*Engine
	store  eventstore.Store
	relays Transport
	subs   map[string]*subscription
	// byHandle maps store subscription handles back to subscription ids.
	byHandle map[uint64]string
	sessions map[sessionKey]struct{}
	// fetches maps the ids of the REQs a sync sends for missing events to
	// the sync they deliver to.
	fetches  map[string]fetch
	fetchSeq uint64
}

func (e *Engine) newEngine() *engine {
	return &engine{
		Engine:   e,
		subs:     make(map[string]*subscription),
		byHandle: make(map[uint64]string),
		sessions: make(map[sessionKey]struct{}),
		fetches:  make(map[string]fetch),
	}
}

// guard runs fn, turning a panic into an error.
func (en *engine) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker fault: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

func (en *engine) init(ctx context.Context) (err error) {
	en.stats.reset()
	if en.store, err = en.newStore(); err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	if en.relays, err = en.newTransport(ctx); err != nil {
		return fmt.Errorf("failed to start relay pool: %w", err)
	}
	for _, u := range en.cfg.Relays {
		if _, _, err = en.relays.Add(u); chk.E(err) {
			err = nil
		}
	}
	log.I.F("worker started with %d relays", len(en.relays.Conns()))
	return
}

func (en *engine) shutdown() {
	if en.relays != nil {
		en.relays.Close()
	}
	if en.store != nil {
		chk.E(en.store.Close())
	}
	en.stats.setGauges(0, 0, 0)
}

// tick drains everything the relays have queued, then handles at most one
// command. busy is false when there was nothing to do.
func (en *engine) tick() (busy, stop bool) {
	for _, c := range en.relays.Conns() {
		for {
			in, ok := c.TryRecv()
			if !ok {
				break
			}
			busy = true
			en.route(c, in)
		}
		for {
			rc, ok := c.TryRecvReconcile()
			if !ok {
				break
			}
			busy = true
			en.reconcile(c, rc)
		}
	}
	select {
	case cmd, ok := <-en.cmds:
		if !ok {
			log.I.Ln("command input closed")
			return busy, true
		}
		busy = true
		stop = en.dispatch(cmd)
	default:
	}
	if busy {
		en.stats.setGauges(len(en.subs), len(en.relays.Conns()),
			len(en.sessions))
	}
	return
}
