package badger

import (
	"fmt"
	"testing"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Backend {
	b := GetMemBackend()
	require.NoError(t, b.Init())
	t.Cleanup(func() { assert.NoError(t, b.Close()) })
	return b
}

func mustFilter(t *testing.T, raw string) *filter.T {
	f, ok := filter.Translate([]byte(raw))
	require.True(t, ok)
	return f
}

func TestIngestAndGet(t *testing.T) {
	b := open(t)
	ev := eventest.New(eventest.NewKey(), 100, "hello")
	got, matched, err := b.Ingest(ev.Serialize())
	require.NoError(t, err)
	assert.Empty(t, matched)
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, b.Has(ev.ID))
	assert.False(t, b.Has(eventid.T{1}))

	_, _, err = b.Ingest(ev.Serialize())
	assert.ErrorIs(t, err, eventstore.ErrDupEvent)

	txn, err := b.Begin()
	require.NoError(t, err)
	defer txn.Discard()
	back, err := txn.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev, back)
	_, err = txn.Get(eventid.T{2})
	assert.ErrorIs(t, err, eventstore.ErrEventNotExists)
}

func TestIngestRejectsInvalid(t *testing.T) {
	b := open(t)
	ev := eventest.New(eventest.NewKey(), 100, "hello")
	ev.Content = "tampered"
	_, _, err := b.Ingest(ev.Serialize())
	assert.ErrorIs(t, err, eventstore.ErrInvalidEvent)
	assert.False(t, b.Has(ev.ID))

	_, _, err = b.Ingest([]byte(`{"id":"nope"}`))
	assert.ErrorIs(t, err, eventstore.ErrInvalidEvent)
}

func TestQuery(t *testing.T) {
	b := open(t)
	alice, bob := eventest.NewKey(), eventest.NewKey()
	aliceNotes := eventest.Batch(alice, 1000, 20)
	bobNotes := eventest.Batch(bob, 1005, 10)
	for _, ev := range append(aliceNotes, bobNotes...) {
		_, err := b.Save(ev)
		require.NoError(t, err)
	}
	tagged := eventest.New(bob, 2000, "tagged", tags.Tag{"t", "go"})
	_, err := b.Save(tagged)
	require.NoError(t, err)

	txn, err := b.Begin()
	require.NoError(t, err)
	defer txn.Discard()

	evs, err := txn.Query(filter.Filters{mustFilter(t, `{}`)}, 1000)
	require.NoError(t, err)
	require.Len(t, evs, 31)
	assert.Equal(t, tagged.ID, evs[0].ID, "newest first")
	for i := 1; i < len(evs); i++ {
		assert.GreaterOrEqual(t, evs[i-1].CreatedAt, evs[i].CreatedAt)
	}

	evs, err = txn.Query(filter.Filters{mustFilter(t, `{}`)}, 5)
	require.NoError(t, err)
	assert.Len(t, evs, 5)

	evs, err = txn.Query(filter.Filters{mustFilter(t,
		`{"authors":["`+aliceNotes[0].PubKey+`"],"since":1010}`)}, 1000)
	require.NoError(t, err)
	assert.Len(t, evs, 10)

	evs, err = txn.Query(filter.Filters{mustFilter(t,
		`{"since":1005,"until":1009,"limit":3}`)}, 1000)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
	assert.EqualValues(t, 1009, evs[0].CreatedAt)

	evs, err = txn.Query(filter.Filters{mustFilter(t, `{"#t":["go"]}`),
		filter.IDsOnly(aliceNotes[3].ID, eventid.T{9})}, 1000)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, tagged.ID, evs[0].ID)
	assert.Equal(t, aliceNotes[3].ID, evs[1].ID)

	// overlapping filters do not return an event twice
	evs, err = txn.Query(filter.Filters{mustFilter(t, `{"kinds":[1]}`),
		mustFilter(t, `{"authors":["`+tagged.PubKey+`"]}`)}, 1000)
	require.NoError(t, err)
	assert.Len(t, evs, 31)
}

func TestSubscriptions(t *testing.T) {
	b := open(t)
	sk := eventest.NewKey()
	first := eventest.New(sk, 1, "first")
	h1, err := b.Subscribe(filter.Filters{mustFilter(t, `{"kinds":[1]}`)})
	require.NoError(t, err)
	h2, err := b.Subscribe(filter.Filters{mustFilter(t, `{"kinds":[7]}`),
		mustFilter(t, `{"authors":["`+first.PubKey+`"]}`)})
	require.NoError(t, err)
	h3, err := b.Subscribe(filter.Filters{mustFilter(t, `{"kinds":[7]}`)})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	matched, err := b.Save(first)
	require.NoError(t, err)
	assert.Equal(t, []uint64{h1, h2}, matched)

	b.Unsubscribe(h1)
	_, matched, err = b.Ingest(eventest.New(sk, 2, "second").Serialize())
	require.NoError(t, err)
	assert.Equal(t, []uint64{h2}, matched)

	_, err = b.Save(first)
	assert.ErrorIs(t, err, eventstore.ErrDupEvent)
	_ = h3
}

func TestOnDisk(t *testing.T) {
	dir := t.TempDir()
	b := GetBackend(dir, 0)
	require.NoError(t, b.Init())
	evs := eventest.Batch(eventest.NewKey(), 10, 3)
	for _, ev := range evs {
		_, err := b.Save(ev)
		require.NoError(t, err)
	}
	require.NoError(t, b.Close())

	b = GetBackend(dir, 0)
	require.NoError(t, b.Init())
	defer b.Close()
	for i, ev := range evs {
		assert.True(t, b.Has(ev.ID), fmt.Sprint(i))
	}
}
