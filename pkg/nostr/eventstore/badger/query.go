package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/dgraph-io/badger/v4"
)

type txn struct {
	*badger.Txn
}

var _ eventstore.Txn = txn{}

func (b *Backend) Begin() (t eventstore.Txn, err error) {
	if b.DB == nil {
		return nil, errors.New("event store is not open")
	}
	return txn{b.DB.NewTransaction(false)}, nil
}

func (b *Backend) Has(id eventid.T) bool {
	err := b.View(func(txn *badger.Txn) (err error) {
		_, err = txn.Get(idKey(id))
		return
	})
	return err == nil
}

func (t txn) Discard() { t.Txn.Discard() }

func (t txn) eventBySerial(ser []byte) (ev *event.T, err error) {
	var item *badger.Item
	if item, err = t.Txn.Get(eventKey(ser)); err != nil {
		return
	}
	var v []byte
	if v, err = item.ValueCopy(nil); err != nil {
		return
	}
	return event.Unmarshal(v)
}

func (t txn) Get(id eventid.T) (ev *event.T, err error) {
	var item *badger.Item
	if item, err = t.Txn.Get(idKey(id)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = eventstore.ErrEventNotExists
		}
		return
	}
	var ser []byte
	if ser, err = item.ValueCopy(nil); err != nil {
		return
	}
	if ev, err = t.eventBySerial(ser); err != nil {
		return nil, fmt.Errorf("event %s index without record: %w", id, err)
	}
	return
}

// Query runs each filter with the index that suits it best, merges the
// results without duplicates and returns the newest limit of them.
func (t txn) Query(ff filter.Filters, limit int) (evs []*event.T, err error) {
	seen := make(map[eventid.T]struct{})
	for _, f := range ff {
		var found []*event.T
		if found, err = t.queryFilter(f, f.LimitOr(limit)); err != nil {
			return
		}
		for _, ev := range found {
			if _, ok := seen[ev.ID]; ok {
				continue
			}
			seen[ev.ID] = struct{}{}
			evs = append(evs, ev)
		}
	}
	sort.Stable(event.Descending(evs))
	if len(evs) > limit {
		evs = evs[:limit]
	}
	return
}

func (t txn) queryFilter(f *filter.T, limit int) (evs []*event.T, err error) {
	if limit <= 0 {
		return
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			var ev *event.T
			if ev, err = t.Get(id); errors.Is(err, eventstore.ErrEventNotExists) {
				err = nil
				continue
			} else if err != nil {
				return
			}
			if f.Matches(ev) {
				evs = append(evs, ev)
			}
		}
		sort.Stable(event.Descending(evs))
		if len(evs) > limit {
			evs = evs[:limit]
		}
		return
	}
	if len(f.Authors) > 0 {
		for _, pk := range f.Authors {
			var found []*event.T
			if found, err = t.scan(pubkeyPrefix(pk[:]), f, limit); err != nil {
				return
			}
			evs = append(evs, found...)
		}
		sort.Stable(event.Descending(evs))
		if len(evs) > limit {
			evs = evs[:limit]
		}
		return
	}
	return t.scan([]byte{prefixCreatedAt}, f, limit)
}

// scan walks an index of [prefix][created_at][serial] keys newest first,
// starting at the filter's until and stopping at its since.
func (t txn) scan(prefix []byte, f *filter.T, limit int) (evs []*event.T, err error) {
	until := uint64(1<<63 - 1)
	if f.Until != nil {
		until = f.Until.U64()
	}
	start := make([]byte, len(prefix)+TimestampLen+SerialLen)
	copy(start, prefix)
	binary.BigEndian.PutUint64(start[len(prefix):], until)
	binary.BigEndian.PutUint64(start[len(prefix)+TimestampLen:], 1<<64-1)
	it := t.Txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: prefix})
	defer it.Close()
	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		k := it.Item().Key()
		if f.Since != nil && timestampFromKey(k) < timestamp.T(*f.Since) {
			break
		}
		var ev *event.T
		if ev, err = t.eventBySerial(serialFromKey(k)); chk.E(err) {
			return
		}
		if !f.Matches(ev) {
			continue
		}
		if evs = append(evs, ev); len(evs) >= limit {
			break
		}
	}
	return
}
