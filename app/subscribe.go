package app

import (
	"encoding/json"
	"errors"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"golang.org/x/exp/slices"
)

var ErrNoFilters = errors.New("no valid filters")

type subscription struct {
	id      string
	filters filter.Filters
	// live is true when handle is a store subscription.
	live        bool
	handle      uint64
	closeOnEose bool
	// sync is set for subscriptions started by a Sync command.
	sync bool
	// eosed holds the relays that have sent EOSE.
	eosed map[string]struct{}
}

func (o *SubscribeOpts) cacheOnly() bool {
	if o == nil || o.Destinations == nil {
		return false
	}
	return slices.Contains(o.Destinations, "cache") &&
		!slices.Contains(o.Destinations, "relay")
}

func translate(raws []json.RawMessage) filter.Filters {
	bs := make([][]byte, len(raws))
	for i := range raws {
		bs[i] = raws[i]
	}
	return filter.TranslateAll(bs)
}

func (en *engine) subscribe(c *Subscribe) {
	ff := translate(c.Filters)
	if len(ff) == 0 {
		log.W.F("subscription %s has no valid filters", c.ID)
		en.out.Emit(NewError(c.ID, ErrNoFilters))
		return
	}
	for _, f := range ff {
		if f.IsEmpty() {
			log.D.F("subscription %s has a filter without constraints, "+
				"results are bounded by the query limit only", c.ID)
			break
		}
	}
	if c.Opts != nil && c.Opts.Groupable {
		log.D.F("subscription %s is groupable", c.ID)
	}
	cacheOnly := c.Opts.cacheOnly()
	old, replaced := en.subs[c.ID]
	if replaced {
		log.D.F("subscription %s replaced", c.ID)
		en.release(old)
	}
	sub := &subscription{id: c.ID, filters: ff,
		closeOnEose: c.Opts != nil && c.Opts.CloseOnEose}
	log.D.F("subscribe %s %s cache only %v", c.ID, ff, cacheOnly)
	// an id lookup in the first filter decides the path, and the filters
	// after it are not used
	if ff[0].IsIDOnly() {
		en.resolveIDs(sub, ff[0], cacheOnly)
	} else {
		en.resolveGeneral(sub, ff, cacheOnly)
	}
	// a new REQ replaces the old one on the relays, without one the old one
	// has to be closed
	if _, open := en.subs[c.ID]; replaced && !open {
		en.sendClose(c.ID)
	}
}

// resolveGeneral answers from the store what it can and asks the relays for
// the rest with the whole filter set.
func (en *engine) resolveGeneral(sub *subscription, ff filter.Filters,
	cacheOnly bool) {

	evs := en.query(ff, en.cfg.QueryLimit)
	for _, ev := range evs {
		en.out.Emit(NewEvent(sub.id, ev, ""))
	}
	en.stats.EventsCached.Add(int64(len(evs)))
	log.D.F("subscription %s: %d events from cache", sub.id, len(evs))
	if cacheOnly {
		return
	}
	handle, err := en.store.Subscribe(ff)
	if chk.E(err) {
		log.E.F("subscription %s has no live store subscription", sub.id)
	} else {
		sub.live, sub.handle = true, handle
		en.byHandle[handle] = sub.id
	}
	en.subs[sub.id] = sub
	en.sendReq(sub.id, ff)
}

// resolveIDs looks each id up directly. Only the ids that are missing are
// asked of the relays, and when none are the request is already answered.
func (en *engine) resolveIDs(sub *subscription, f *filter.T, cacheOnly bool) {
	var missing []eventid.T
	txn, err := en.store.Begin()
	if chk.E(err) {
		missing = f.IDs
	} else {
		for _, id := range f.IDs {
			var ev *event.T
			if ev, err = txn.Get(id); err != nil {
				if !errors.Is(err, eventstore.ErrEventNotExists) {
					log.E.F("lookup of %s: %v", id, err)
				}
				missing = append(missing, id)
				continue
			}
			en.out.Emit(NewEvent(sub.id, ev, ""))
			en.stats.EventsCached.Inc()
		}
		txn.Discard()
	}
	log.D.F("subscription %s: %d of %d ids missing", sub.id, len(missing),
		len(f.IDs))
	if cacheOnly || len(missing) == 0 {
		return
	}
	sub.filters = filter.Filters{filter.IDsOnly(missing...)}
	en.subs[sub.id] = sub
	en.sendReq(sub.id, sub.filters)
}

// query runs a bounded query in a read transaction of its own.
func (en *engine) query(ff filter.Filters, limit int) (evs []*event.T) {
	txn, err := en.store.Begin()
	if chk.E(err) {
		return
	}
	defer txn.Discard()
	if evs, err = txn.Query(ff, limit); chk.E(err) {
		return
	}
	return
}

func (en *engine) sendReq(subID string, ff filter.Filters) {
	n := en.relays.Broadcast(envelopes.Req(subID, ff))
	en.stats.ReqsSent.Add(int64(n))
	log.D.F("REQ %s sent to %d relays", subID, n)
}

// release drops the bookkeeping of a subscription without telling the
// relays.
func (en *engine) release(sub *subscription) {
	if sub.live {
		en.store.Unsubscribe(sub.handle)
		delete(en.byHandle, sub.handle)
	}
	delete(en.subs, sub.id)
	if sub.sync {
		en.endSync(sub.id)
	}
}

func (en *engine) unsubscribe(subID string) {
	if sub, ok := en.subs[subID]; ok {
		en.release(sub)
	}
	en.sendClose(subID)
}

func (en *engine) sendClose(subID string) {
	n := en.relays.Broadcast(envelopes.Close(subID))
	en.stats.ClosesSent.Add(int64(n))
	log.D.F("CLOSE %s sent to %d relays", subID, n)
}
