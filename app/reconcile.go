package app

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
)

var ErrNoSyncRelay = errors.New("no relay to sync with")

// fetch is one REQ for events a relay reported we lack. Each round of a
// session gets its own, a REQ under an id already open would replace the
// one before it.
type fetch struct{ subID, url string }

// sync starts negentropy sessions for the first filter. What the relays have
// and we lack is fetched under c.ID and delivered like subscription events.
func (en *engine) sync(c *Sync) {
	ff := translate(c.Filters)
	if len(ff) == 0 {
		en.out.Emit(NewError(c.ID, ErrNoFilters))
		return
	}
	if old, ok := en.subs[c.ID]; ok {
		en.release(old)
	}
	var conns []Conn
	if len(c.Relays) == 0 {
		conns = en.relays.Conns()
	} else {
		for _, u := range c.Relays {
			if conn, ok := en.relays.Get(u); ok {
				conns = append(conns, conn)
			} else {
				log.W.F("sync %s: relay %s is not in the pool", c.ID, u)
			}
		}
	}
	var started int
	for _, conn := range conns {
		if err := conn.Reconcile(c.ID, ff[0]); chk.D(err) {
			continue
		}
		started++
	}
	if started == 0 {
		en.out.Emit(NewError(c.ID, ErrNoSyncRelay))
		return
	}
	en.subs[c.ID] = &subscription{id: c.ID, filters: ff[:1], sync: true}
	log.I.F("sync %s started with %d relays", c.ID, started)
}

// endSync abandons the sessions of subID on every relay and closes the
// fetches still open for it.
func (en *engine) endSync(subID string) {
	for _, c := range en.relays.Conns() {
		c.CloseReconcile(subID)
	}
	for k := range en.sessions {
		if k.subID == subID {
			delete(en.sessions, k)
		}
	}
	for id, f := range en.fetches {
		if f.subID != subID {
			continue
		}
		if c, ok := en.relays.Get(f.url); ok {
			if err := c.Send(envelopes.Close(id)); !chk.D(err) {
				en.stats.ClosesSent.Inc()
			}
		}
		delete(en.fetches, id)
	}
}

// dropSessions forgets the sessions and fetches of a relay that went away;
// the relay reports the sessions as failed itself.
func (en *engine) dropSessions(url string) {
	for k := range en.sessions {
		if k.url == url {
			delete(en.sessions, k)
		}
	}
	for id, f := range en.fetches {
		if f.url == url {
			delete(en.fetches, id)
		}
	}
}

// startFetch asks c for the events with the given ids under a REQ id of
// their own that routes back to subID.
func (en *engine) startFetch(c Conn, subID string, rc relay.Reconcile) {
	en.fetchSeq++
	id := fmt.Sprintf("%s:%d", subID, en.fetchSeq)
	req := envelopes.Req(id, filter.Filters{filter.IDsOnly(rc.IDs...)})
	if err := c.Send(req); chk.E(err) {
		return
	}
	en.stats.ReqsSent.Inc()
	en.fetches[id] = fetch{subID: subID, url: c.URL()}
}

// endFetch closes a fetch once its relay has sent everything it has.
func (en *engine) endFetch(c Conn, id string) {
	delete(en.fetches, id)
	if err := c.Send(envelopes.Close(id)); !chk.D(err) {
		en.stats.ClosesSent.Inc()
	}
}

// reconcile handles one negentropy callback from a relay.
func (en *engine) reconcile(c Conn, rc relay.Reconcile) {
	url := c.URL()
	key := sessionKey{url, rc.SubID}
	switch rc.Kind {
	case relay.NeedLocalEvents:
		en.sessions[key] = struct{}{}
		evs := en.query(filter.Filters{rc.Filter}, en.cfg.QueryLimit)
		log.D.F("{%s} sync %s: %d local events", url, rc.SubID, len(evs))
		if err := c.SupplyLocalEvents(rc.SubID, evs); chk.E(err) {
			delete(en.sessions, key)
		}
	case relay.NeedRemoteEvents:
		en.sessions[key] = struct{}{}
		log.D.F("{%s} sync %s: fetching %d events", url, rc.SubID, len(rc.IDs))
		en.startFetch(c, rc.SubID, rc)
	case relay.HaveLocalOnly:
		// nothing is uploaded
		log.D.F("{%s} sync %s: %d events only held locally", url, rc.SubID,
			len(rc.IDs))
	case relay.Complete:
		delete(en.sessions, key)
		log.I.F("{%s} sync %s complete", url, rc.SubID)
	case relay.Failed:
		delete(en.sessions, key)
		log.W.F("{%s} sync %s failed: %v", url, rc.SubID, rc.Err)
	}
}
