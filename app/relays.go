package app

import (
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
)

func (en *engine) addRelay(url string) {
	c, added, err := en.relays.Add(url)
	if err != nil {
		log.E.F("failed to add relay '%s': %v", url, err)
		return
	}
	if added {
		log.I.F("{%s} relay added", c.URL())
	}
	en.out.Emit(NewRelayAdded(url))
}

func (en *engine) removeRelay(url string) {
	n := en.relays.Remove(url)
	if u := normalize.URL(url); u != "" {
		en.dropSessions(u)
	}
	log.I.F("removed %d relays matching '%s'", n, url)
}

func (en *engine) connectRelay(url string) {
	c, ok := en.relays.Get(url)
	if !ok {
		log.D.F("connect: relay '%s' is not in the pool", url)
		return
	}
	c.SetStatus(relay.Connecting)
	c.Wake()
	log.I.F("{%s} reconnecting", c.URL())
}

func (en *engine) disconnectRelay(url string) {
	c, ok := en.relays.Get(url)
	if !ok {
		log.D.F("disconnect: relay '%s' is not in the pool", url)
		return
	}
	c.SetStatus(relay.Disconnected)
	log.I.F("{%s} marked disconnected", c.URL())
}

func (en *engine) reconnectDisconnected(reason string) {
	var n int
	for _, c := range en.relays.Conns() {
		if c.Status() == relay.Disconnected {
			c.SetStatus(relay.Connecting)
			c.Wake()
			n++
		}
	}
	log.I.F("reconnecting %d disconnected relays, reason: '%s'", n, reason)
}

func (en *engine) relayStatus(id string) {
	conns := en.relays.Conns()
	st := make([]RelayStatusInfo, 0, len(conns))
	for _, c := range conns {
		st = append(st, RelayStatusInfo{URL: c.URL(), Status: c.Status().Code()})
	}
	log.D.F("relay status %s: %d relays", id, len(st))
	en.out.Emit(NewRelayStatus(id, st))
}
