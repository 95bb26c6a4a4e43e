package app

import (
	"errors"
	"testing"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncFlow(t *testing.T) {
	en, rec, ft := newTestEngine(t, nil)
	local := storeEvents(t, en, 3)
	en.dispatch(&Sync{ID: "sync", Filters: rawFilters(`{"kinds":[1]}`)})
	a, b := ft.conn(relayA), ft.conn(relayB)
	require.Contains(t, a.syncing, "sync")
	require.Contains(t, b.syncing, "sync")
	assert.EqualValues(t, 1, a.syncing["sync"].Kinds[0])
	sub := en.subs["sync"]
	require.NotNil(t, sub)
	assert.True(t, sub.sync)
	assert.False(t, sub.live)
	assert.Empty(t, rec.all())

	// the relay asks for our side of the set
	a.reconciles = append(a.reconciles, relay.Reconcile{
		Kind: relay.NeedLocalEvents, SubID: "sync", Filter: a.syncing["sync"]})
	en.tick()
	require.Len(t, a.supplied["sync"], len(local))
	assert.Contains(t, en.sessions, sessionKey{a.url, "sync"})

	// and reports what it has that we lack
	remote := eventest.New(eventest.NewKey(), timestamp.Now(), "remote")
	a.reconciles = append(a.reconciles,
		relay.Reconcile{Kind: relay.HaveLocalOnly, SubID: "sync",
			IDs: []eventid.T{local[0].ID}},
		relay.Reconcile{Kind: relay.NeedRemoteEvents, SubID: "sync",
			IDs: []eventid.T{remote.ID}})
	en.tick()
	frames := a.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, envelopes.LReq, frames[0].Label)
	fetchID := frames[0].SubID()
	assert.Equal(t, "sync:1", fetchID)
	ids := frames[0].Elems[2].Get("ids").Array()
	require.Len(t, ids, 1)
	assert.Equal(t, remote.ID.String(), ids[0].String())
	assert.Empty(t, b.frames(t))

	// the fetched event is delivered under the sync id
	a.pushText(eventFrame(fetchID, remote))
	en.tick()
	got := rec.events()
	require.Len(t, got, 1)
	assert.Equal(t, "sync", got[0].SubID)
	assert.Equal(t, remote.ID, got[0].Event.ID)

	// the fetch is closed at its EOSE, which is not forwarded
	a.clearSent()
	a.pushText(`["EOSE","` + fetchID + `"]`)
	en.tick()
	frames = a.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, envelopes.LClose, frames[0].Label)
	assert.Equal(t, fetchID, frames[0].SubID())
	assert.Empty(t, en.fetches)
	assert.Len(t, rec.all(), 1)

	a.reconciles = append(a.reconciles,
		relay.Reconcile{Kind: relay.Complete, SubID: "sync"})
	en.tick()
	assert.Empty(t, en.sessions)
}

func TestSyncFailureReleasesSession(t *testing.T) {
	en, _, ft := newTestEngine(t, nil)
	en.dispatch(&Sync{ID: "sync", Filters: rawFilters(`{}`)})
	a := ft.conn(relayA)
	a.reconciles = append(a.reconciles,
		relay.Reconcile{Kind: relay.NeedLocalEvents, SubID: "sync", Filter: a.syncing["sync"]},
		relay.Reconcile{Kind: relay.Failed, SubID: "sync", Err: errors.New("refused")})
	en.tick()
	assert.Empty(t, en.sessions)
}

func TestSyncOnlyNamedRelays(t *testing.T) {
	en, _, ft := newTestEngine(t, nil)
	en.dispatch(&Sync{ID: "sync", Filters: rawFilters(`{}`),
		Relays: []string{relayB, "wss://unknown.example"}})
	assert.NotContains(t, ft.conn(relayA).syncing, "sync")
	assert.Contains(t, ft.conn(relayB).syncing, "sync")
}

func TestSyncWithoutRelays(t *testing.T) {
	en, rec, ft := newTestEngine(t, nil)
	for _, c := range []*fakeConn{ft.conn(relayA), ft.conn(relayB)} {
		c.up = false
	}
	en.dispatch(&Sync{ID: "sync", Filters: rawFilters(`{}`)})
	rs := rec.all()
	require.Len(t, rs, 1)
	assert.Equal(t, ErrNoSyncRelay.Error(), rs[0].(*ErrorMsg).Error)
	assert.Empty(t, en.subs)
}

func TestUnsubscribeEndsSync(t *testing.T) {
	en, _, ft := newTestEngine(t, nil)
	en.dispatch(&Sync{ID: "sync", Filters: rawFilters(`{}`)})
	en.sessions[sessionKey{relayA, "sync"}] = struct{}{}
	en.dispatch(&Unsubscribe{ID: "sync"})
	assert.Equal(t, []string{"sync"}, ft.conn(relayA).aborted)
	assert.Equal(t, []string{"sync"}, ft.conn(relayB).aborted)
	assert.Empty(t, en.sessions)
	assert.Empty(t, en.subs)
}

func TestDisconnectDropsSessions(t *testing.T) {
	en, _, ft := newTestEngine(t, nil)
	en.sessions[sessionKey{relayA, "x"}] = struct{}{}
	en.sessions[sessionKey{relayB, "x"}] = struct{}{}
	en.fetches["x:1"] = fetch{subID: "x", url: relayA}
	ft.conn(relayA).push(relay.Inbound{Kind: relay.Closed})
	en.tick()
	assert.Equal(t, map[sessionKey]struct{}{{relayB, "x"}: {}}, en.sessions)
	assert.Empty(t, en.fetches)
}

func TestSyncRoundsFetchSeparately(t *testing.T) {
	en, rec, ft := newTestEngine(t, nil)
	en.dispatch(&Sync{ID: "sync", Filters: rawFilters(`{}`)})
	a := ft.conn(relayA)
	sk := eventest.NewKey()
	r1 := eventest.New(sk, timestamp.Now(), "one")
	r2 := eventest.New(sk, timestamp.Now(), "two")
	a.reconciles = append(a.reconciles,
		relay.Reconcile{Kind: relay.NeedRemoteEvents, SubID: "sync",
			IDs: []eventid.T{r1.ID}},
		relay.Reconcile{Kind: relay.NeedRemoteEvents, SubID: "sync",
			IDs: []eventid.T{r2.ID}})
	en.tick()
	frames := a.frames(t)
	require.Len(t, frames, 2)
	assert.NotEqual(t, frames[0].SubID(), frames[1].SubID())
	assert.Equal(t, r1.ID.String(), frames[0].Elems[2].Get("ids.0").String())
	assert.Equal(t, r2.ID.String(), frames[1].Elems[2].Get("ids.0").String())

	// both rounds deliver, in whatever order the relay answers
	a.pushText(eventFrame(frames[1].SubID(), r2))
	a.pushText(eventFrame(frames[0].SubID(), r1))
	en.tick()
	got := rec.events()
	require.Len(t, got, 2)
	assert.Equal(t, "sync", got[0].SubID)
	assert.Equal(t, "sync", got[1].SubID)
	assert.Equal(t, r2.ID, got[0].Event.ID)
	assert.Equal(t, r1.ID, got[1].Event.ID)

	// ending the sync closes what is still open
	a.clearSent()
	en.dispatch(&Unsubscribe{ID: "sync"})
	var closed []string
	for _, fr := range a.frames(t) {
		if fr.Label == envelopes.LClose {
			closed = append(closed, fr.SubID())
		}
	}
	assert.ElementsMatch(t, []string{frames[0].SubID(), frames[1].SubID(),
		"sync"}, closed)
	assert.Empty(t, en.fetches)
}
