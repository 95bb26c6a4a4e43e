package badger

import (
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"golang.org/x/exp/slices"
)

func (b *Backend) Subscribe(ff filter.Filters) (handle uint64, err error) {
	handle = b.lastHandle.Add(1)
	b.subs.Store(handle, ff)
	log.T.F("store subscription %d registered with %d filters", handle, len(ff))
	return
}

func (b *Backend) Unsubscribe(handle uint64) { b.subs.Delete(handle) }

// match returns the handles of the live subscriptions the event satisfies, in
// ascending order.
func (b *Backend) match(ev *event.T) (handles []uint64) {
	b.subs.Range(func(h uint64, ff filter.Filters) bool {
		if ff.Matches(ev) {
			handles = append(handles, h)
		}
		return true
	})
	slices.Sort(handles)
	return
}
