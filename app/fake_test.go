package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
	"github.com/stretchr/testify/require"
)

const (
	relayA = "wss://a.example"
	relayB = "wss://b.example"
)

// fakeConn records what the engine does to a relay and hands it whatever a
// test queues.
type fakeConn struct {
	sync.Mutex
	url        string
	status     relay.Status
	up         bool
	closed     bool
	woken      int
	sent       [][]byte
	inbound    []relay.Inbound
	reconciles []relay.Reconcile
	// syncing holds the filters of the sessions started with Reconcile.
	syncing  map[string]*filter.T
	supplied map[string][]*event.T
	aborted  []string
}

func (c *fakeConn) URL() string { return c.url }

func (c *fakeConn) Status() relay.Status {
	c.Lock()
	defer c.Unlock()
	return c.status
}

func (c *fakeConn) SetStatus(s relay.Status) {
	c.Lock()
	defer c.Unlock()
	c.status = s
}

func (c *fakeConn) Wake() {
	c.Lock()
	defer c.Unlock()
	c.woken++
}

func (c *fakeConn) Send(msg []byte) error {
	c.Lock()
	defer c.Unlock()
	if !c.up {
		return fmt.Errorf("%w: %s", relay.ErrNotConnected, c.url)
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) TryRecv() (in relay.Inbound, ok bool) {
	c.Lock()
	defer c.Unlock()
	if len(c.inbound) == 0 {
		return
	}
	in, c.inbound = c.inbound[0], c.inbound[1:]
	return in, true
}

func (c *fakeConn) TryRecvReconcile() (rc relay.Reconcile, ok bool) {
	c.Lock()
	defer c.Unlock()
	if len(c.reconciles) == 0 {
		return
	}
	rc, c.reconciles = c.reconciles[0], c.reconciles[1:]
	return rc, true
}

func (c *fakeConn) Reconcile(subID string, f *filter.T) error {
	c.Lock()
	defer c.Unlock()
	if !c.up {
		return fmt.Errorf("%w: %s", relay.ErrNotConnected, c.url)
	}
	c.syncing[subID] = f
	return nil
}

func (c *fakeConn) SupplyLocalEvents(subID string, evs []*event.T) error {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.syncing[subID]; !ok {
		return fmt.Errorf("%w: %s", relay.ErrNoSession, subID)
	}
	c.supplied[subID] = evs
	return nil
}

func (c *fakeConn) CloseReconcile(subID string) {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.syncing[subID]; ok {
		delete(c.syncing, subID)
		c.aborted = append(c.aborted, subID)
	}
}

func (c *fakeConn) push(in ...relay.Inbound) {
	c.Lock()
	defer c.Unlock()
	c.inbound = append(c.inbound, in...)
}

func (c *fakeConn) pushText(msg string) { c.push(relay.Inbound{Kind: relay.Text, Text: []byte(msg)}) }

// frames returns the parsed frames sent to the relay.
func (c *fakeConn) frames(t *testing.T) (out []*envelopes.Frame) {
	c.Lock()
	defer c.Unlock()
	for _, b := range c.sent {
		fr, err := envelopes.Parse(b)
		require.NoError(t, err)
		out = append(out, fr)
	}
	return
}

func (c *fakeConn) clearSent() {
	c.Lock()
	defer c.Unlock()
	c.sent = nil
}

type fakeTransport struct {
	sync.Mutex
	conns  []*fakeConn
	closed bool
}

func (ft *fakeTransport) Conns() (cs []Conn) {
	ft.Lock()
	defer ft.Unlock()
	for _, c := range ft.conns {
		cs = append(cs, c)
	}
	return
}

func (ft *fakeTransport) conn(url string) *fakeConn {
	ft.Lock()
	defer ft.Unlock()
	u := normalize.URL(url)
	for _, c := range ft.conns {
		if c.url == u {
			return c
		}
	}
	return nil
}

func (ft *fakeTransport) Get(url string) (Conn, bool) {
	if c := ft.conn(url); c != nil {
		return c, true
	}
	return nil, false
}

func (ft *fakeTransport) Add(url string) (Conn, bool, error) {
	if c := ft.conn(url); c != nil {
		return c, false, nil
	}
	u := normalize.URL(url)
	if u == "" {
		return nil, false, fmt.Errorf("%w: '%s'", relay.ErrInvalidURL, url)
	}
	c := &fakeConn{url: u, status: relay.Connecting, up: true,
		syncing: make(map[string]*filter.T), supplied: make(map[string][]*event.T)}
	ft.Lock()
	ft.conns = append(ft.conns, c)
	ft.Unlock()
	return c, true, nil
}

func (ft *fakeTransport) Remove(url string) (n int) {
	ft.Lock()
	defer ft.Unlock()
	u := normalize.URL(url)
	var keep []*fakeConn
	for _, c := range ft.conns {
		if c.url == u {
			c.closed = true
			n++
			continue
		}
		keep = append(keep, c)
	}
	ft.conns = keep
	return
}

func (ft *fakeTransport) Broadcast(msg []byte) (sent int) {
	for _, c := range ft.Conns() {
		if c.Send(msg) == nil {
			sent++
		}
	}
	return
}

func (ft *fakeTransport) Close() {
	ft.Lock()
	defer ft.Unlock()
	ft.closed = true
}

// fakeNet makes a fresh fakeTransport for every run of the worker.
type fakeNet struct {
	sync.Mutex
	made []*fakeTransport
}

func (n *fakeNet) factory(context.Context) (Transport, error) {
	n.Lock()
	defer n.Unlock()
	ft := &fakeTransport{}
	n.made = append(n.made, ft)
	return ft, nil
}

func (n *fakeNet) count() int {
	n.Lock()
	defer n.Unlock()
	return len(n.made)
}

func (n *fakeNet) last() *fakeTransport {
	n.Lock()
	defer n.Unlock()
	return n.made[len(n.made)-1]
}

// recorder is an Emitter keeping everything.
type recorder struct {
	sync.Mutex
	rs []Response
}

func (r *recorder) Emit(x Response) {
	r.Lock()
	defer r.Unlock()
	r.rs = append(r.rs, x)
}

func (r *recorder) all() []Response {
	r.Lock()
	defer r.Unlock()
	return append([]Response(nil), r.rs...)
}

func (r *recorder) clear() {
	r.Lock()
	defer r.Unlock()
	r.rs = nil
}

func (r *recorder) events() (out []*EventMsg) {
	for _, x := range r.all() {
		if ev, ok := x.(*EventMsg); ok {
			out = append(out, ev)
		}
	}
	return
}

func (r *recorder) types() (out []string) {
	for _, x := range r.all() {
		out = append(out, x.ResponseType())
	}
	return
}

// waitFor polls the recorder until a response of type typ shows up.
func (r *recorder) waitFor(t *testing.T, typ string) (got Response) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, x := range r.all() {
			if x.ResponseType() == typ {
				got = x
				return true
			}
		}
		return false
	}, 5*time.Second, time.Millisecond, "no %s response", typ)
	return
}

func testConfig() *Config {
	cfg := Defaults()
	cfg.Relays = []string{relayA, relayB}
	cfg.InMemory = true
	cfg.IdleBackoff = time.Millisecond
	cfg.RestartDelay = 10 * time.Millisecond
	return cfg
}

// newTestEngine returns the state of one worker run, initialized with an
// in memory store and a fake transport with relays a and b, for tests that
// drive it by hand.
func newTestEngine(t *testing.T, cfg *Config) (en *engine, rec *recorder,
	ft *fakeTransport) {

	if cfg == nil {
		cfg = testConfig()
	}
	rec = &recorder{}
	n := &fakeNet{}
	e := New(cfg, BadgerStore(cfg), n.factory, rec)
	en = e.newEngine()
	require.NoError(t, en.init(context.Background()))
	t.Cleanup(en.shutdown)
	return en, rec, n.last()
}

func rawFilters(ff ...string) (out []json.RawMessage) {
	for _, f := range ff {
		out = append(out, json.RawMessage(f))
	}
	return
}

func eventFrame(subID string, ev *event.T) string {
	return fmt.Sprintf(`["EVENT","%s",%s]`, subID, ev.Serialize())
}
