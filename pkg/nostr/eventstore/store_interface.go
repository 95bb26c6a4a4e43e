package eventstore

import (
	"errors"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
)

var (
	// ErrDupEvent is returned for an event that is already stored.
	ErrDupEvent = errors.New("duplicate: event already stored")
	// ErrEventNotExists is returned by Get for an id that is not stored.
	ErrEventNotExists = errors.New("no such event in the store")
	// ErrInvalidEvent wraps the reason an event was refused.
	ErrInvalidEvent = errors.New("invalid event")
)

// Store is the local validating event cache.
//
// Besides plain storage it keeps live filter subscriptions: each ingested
// event is matched against them and the handles of the ones it satisfies are
// returned to the caller, which does the actual delivery.
type Store interface {
	// Init is called before any other method, allowing a storage to
	// initialize its internal resources.
	Init() (err error)
	// Close must be called after you're done using the store, to free up
	// resources and so on.
	Close() (err error)
	// Begin opens a read only snapshot. It must be discarded by the caller
	// and is not meant to be held for longer than one unit of work.
	Begin() (txn Txn, err error)
	// Has reports whether an event with the given id is stored.
	Has(id eventid.T) bool
	// Ingest parses, validates and stores the JSON of one event, returning
	// the handles of the live subscriptions that match it. A duplicate
	// returns ErrDupEvent and matches nothing.
	Ingest(raw []byte) (ev *event.T, matched []uint64, err error)
	// Save is Ingest for an event that is already parsed; it is still
	// validated.
	Save(ev *event.T) (matched []uint64, err error)
	// Subscribe registers a live filter subscription.
	Subscribe(ff filter.Filters) (handle uint64, err error)
	// Unsubscribe releases a handle returned by Subscribe.
	Unsubscribe(handle uint64)
}

// Txn is a read snapshot of the store.
type Txn interface {
	// Query returns the events matching any of the filters, newest first, at
	// most limit of them.
	Query(ff filter.Filters, limit int) (evs []*event.T, err error)
	// Get returns the event with the given id, or ErrEventNotExists.
	Get(id eventid.T) (ev *event.T, err error)
	// Discard releases the snapshot.
	Discard()
}
