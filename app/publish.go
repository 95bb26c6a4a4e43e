package app

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"golang.org/x/exp/slices"
)

var defaultPublishTo = []string{"relay"}

// publish stores the event locally and delivers it to matching
// subscriptions when asked to, then sends it to the relays unless it was
// only meant for local use.
func (en *engine) publish(c *Publish) {
	to, verify, source := defaultPublishTo, false, ""
	if c.Opts != nil {
		if len(c.Opts.PublishTo) > 0 {
			to = c.Opts.PublishTo
		}
		verify, source = c.Opts.VerifySignature, c.Opts.Source
	}
	ev, err := event.Unmarshal(c.Event)
	if err != nil {
		en.out.Emit(NewError(c.ID, fmt.Errorf("invalid event: %w", err)))
		return
	}
	toRelay := slices.Contains(to, "relay")
	if toRelay && verify {
		if err = ev.Verify(); err != nil {
			log.W.F("publish %s: %v", c.ID, err)
			en.out.Emit(NewError(c.ID, fmt.Errorf("invalid event: %w", err)))
			return
		}
	}
	if slices.Contains(to, "subscriptions") || slices.Contains(to, "cache") {
		if source != "" {
			log.D.F("publish %s: event %s from %s", c.ID, ev.ID, source)
		}
		var matched []uint64
		switch matched, err = en.store.Save(ev); {
		case err == nil:
			en.fanOut(ev, matched, nil)
		case errors.Is(err, eventstore.ErrDupEvent):
			log.D.F("publish %s: %v", c.ID, err)
		default:
			log.W.F("publish %s: %v", c.ID, err)
			if !toRelay {
				en.out.Emit(NewError(c.ID, err))
				return
			}
		}
	}
	if toRelay {
		n := en.relays.Broadcast(envelopes.Event(ev))
		log.I.F("published %s to %d relays", ev.ID, n)
	}
	en.stats.Published.Inc()
	en.out.Emit(NewPublished(c.ID))
}
