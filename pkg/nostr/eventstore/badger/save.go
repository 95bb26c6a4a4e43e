package badger

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/dgraph-io/badger/v4"
)

// Ingest parses, verifies and stores raw event JSON.
func (b *Backend) Ingest(raw []byte) (ev *event.T, matched []uint64, err error) {
	if ev, err = event.Unmarshal(raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", eventstore.ErrInvalidEvent, err)
	}
	matched, err = b.Save(ev)
	return
}

// Save verifies and stores an event and matches it against the live
// subscriptions.
func (b *Backend) Save(ev *event.T) (matched []uint64, err error) {
	if err = ev.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", eventstore.ErrInvalidEvent, err)
	}
	err = b.Update(func(txn *badger.Txn) (err error) {
		// query event by id to ensure we don't save duplicates
		if _, err = txn.Get(idKey(ev.ID)); err == nil {
			return eventstore.ErrDupEvent
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return
		}
		var ser []byte
		if ser, err = b.Serial(); err != nil {
			return
		}
		// raw event store
		if err = txn.Set(eventKey(ser), ev.Serialize()); chk.D(err) {
			return
		}
		if err = txn.Set(idKey(ev.ID), ser); chk.D(err) {
			return
		}
		for _, k := range indexKeysForEvent(ev, ser) {
			if err = txn.Set(k, nil); chk.D(err) {
				return
			}
		}
		log.T.F("event %s saved", ev.ID)
		return
	})
	if err != nil {
		return
	}
	return b.match(ev), nil
}
