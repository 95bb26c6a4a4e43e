// Package pool is the set of relays the bridge is connected to, keyed by
// normalized URL and kept in the order they were added.
package pool

import (
	"context"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

// Simple is not safe for concurrent use; it belongs to one goroutine, while
// the relays in it each run their own.
type Simple struct {
	Relays  []*relay.Relay
	Options relay.Options
	Context context.Context
	cancel  context.CancelFunc
}

func NewSimplePool(c context.Context, opts relay.Options) (p *Simple) {
	c, cancel := context.WithCancel(c)
	return &Simple{Options: opts, Context: c, cancel: cancel}
}

// Get returns the relay for url, if it is in the pool.
func (p *Simple) Get(url string) (r *relay.Relay, ok bool) {
	nm := normalize.URL(url)
	for _, r = range p.Relays {
		if r.URL() == nm {
			return r, true
		}
	}
	return nil, false
}

// EnsureRelay adds url to the pool unless it is already there. added is
// false when the relay was already present.
func (p *Simple) EnsureRelay(url string) (r *relay.Relay, added bool, err error) {
	if r, ok := p.Get(url); ok {
		return r, false, nil
	}
	if r, err = relay.New(p.Context, url, p.Options); err != nil {
		return nil, false, fmt.Errorf("failed to add relay: %w", err)
	}
	p.Relays = append(p.Relays, r)
	return r, true, nil
}

// Remove closes and drops every relay matching url, returning how many there
// were.
func (p *Simple) Remove(url string) (n int) {
	nm := normalize.URL(url)
	p.Relays = slices.DeleteFunc(p.Relays, func(r *relay.Relay) bool {
		if r.URL() != nm {
			return false
		}
		chk.D(r.Close())
		n++
		return true
	})
	return
}

// Send writes msg to every relay, returning how many took it. Relays that
// are down are skipped and logged.
func (p *Simple) Send(msg []byte) (sent int) {
	for _, r := range p.Relays {
		if err := r.Send(msg); err != nil {
			log.D.Ln(err)
			continue
		}
		sent++
	}
	return
}

// Close disconnects every relay.
func (p *Simple) Close() {
	p.cancel()
	for _, r := range p.Relays {
		chk.D(r.Close())
	}
	p.Relays = nil
}
