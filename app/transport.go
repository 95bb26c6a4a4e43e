package app

import (
	"context"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/pool"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
)

// Conn is one relay as the worker sees it. Everything it returns is already
// queued; none of the methods block.
type Conn interface {
	URL() string
	Status() relay.Status
	SetStatus(s relay.Status)
	// Wake nudges the connection to redial now if it is down.
	Wake()
	Send(msg []byte) error
	TryRecv() (in relay.Inbound, ok bool)
	TryRecvReconcile() (rc relay.Reconcile, ok bool)
	Reconcile(subID string, f *filter.T) error
	SupplyLocalEvents(subID string, evs []*event.T) error
	CloseReconcile(subID string)
}

// Transport is the set of relays, keyed by normalized URL and in the order
// they were added.
type Transport interface {
	Conns() []Conn
	Get(url string) (c Conn, ok bool)
	Add(url string) (c Conn, added bool, err error)
	Remove(url string) (n int)
	// Broadcast sends msg to every relay that is up and returns how many
	// took it.
	Broadcast(msg []byte) (sent int)
	Close()
}

// TransportFactory makes the transport for one run of the worker.
type TransportFactory func(ctx context.Context) (Transport, error)

// PoolTransport returns a factory for transports over a relay pool.
func PoolTransport(opts relay.Options) TransportFactory {
	return func(ctx context.Context) (Transport, error) {
		return &poolTransport{pool.NewSimplePool(ctx, opts)}, nil
	}
}

type poolTransport struct{ p *pool.Simple }

func (t *poolTransport) Conns() (cs []Conn) {
	cs = make([]Conn, len(t.p.Relays))
	for i, r := range t.p.Relays {
		cs[i] = r
	}
	return
}

func (t *poolTransport) Get(url string) (c Conn, ok bool) {
	var r *relay.Relay
	if r, ok = t.p.Get(url); ok {
		c = r
	}
	return
}

func (t *poolTransport) Add(url string) (c Conn, added bool, err error) {
	var r *relay.Relay
	if r, added, err = t.p.EnsureRelay(url); err != nil {
		return
	}
	return r, added, nil
}

func (t *poolTransport) Remove(url string) int { return t.p.Remove(url) }

func (t *poolTransport) Broadcast(msg []byte) int { return t.p.Send(msg) }

func (t *poolTransport) Close() { t.p.Close() }
