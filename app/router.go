package app

import (
	"bytes"
	"errors"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventstore"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
	"github.com/Hubmakerlabs/bridgr/pkg/wire/text"
)

var eventLabel = []byte(`"EVENT"`)

// isEventFrame looks for the EVENT label without parsing the frame.
func isEventFrame(b []byte) bool {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 || b[0] != '[' {
		return false
	}
	return bytes.HasPrefix(bytes.TrimLeft(b[1:], " \t\r\n"), eventLabel)
}

// route handles one item from a relay's queue.
func (en *engine) route(c Conn, in relay.Inbound) {
	url := c.URL()
	switch in.Kind {
	case relay.Opened:
		log.I.F("{%s} connected", url)
		c.SetStatus(relay.Connected)
		en.out.Emit(NewRelayConnected(url))
	case relay.Closed:
		log.I.F("{%s} disconnected", url)
		c.SetStatus(relay.Disconnected)
		en.dropSessions(url)
		en.out.Emit(NewRelayDisconnected(url))
	case relay.Error:
		log.E.F("{%s} relay error: %v", url, in.Err)
		c.SetStatus(relay.Disconnected)
	case relay.Text:
		en.stats.FramesReceived.Inc()
		en.routeFrame(c, in.Text)
	}
}

func (en *engine) routeFrame(c Conn, b []byte) {
	url := c.URL()
	if isEventFrame(b) && en.dedup.IsDuplicate(b, en.store.Has) {
		en.stats.DuplicatesDropped.Inc()
		log.T.F("{%s} dropped duplicate event", url)
		return
	}
	fr, err := envelopes.Parse(b)
	if err != nil {
		log.T.F("{%s} %v: %s", url, err, text.Trunc(string(b)))
		return
	}
	switch fr.Label {
	case envelopes.LEvent:
		en.onEvent(c, fr)
	case envelopes.LEOSE:
		en.onEose(c, fr.SubID())
	case envelopes.LNotice:
		log.I.F("{%s} NOTICE: %s", url, fr.Message())
	case envelopes.LOK:
		id, accepted := fr.OK()
		log.D.F("{%s} OK %s %v %s", url, id, accepted, fr.Message())
	case envelopes.LClosed:
		log.D.F("{%s} CLOSED %s: %s", url, fr.SubID(), fr.Message())
	case envelopes.LAuth:
		log.D.F("{%s} AUTH challenge %s", url, fr.Message())
	default:
		log.T.F("{%s} ignoring %s frame", url, fr.Name)
	}
}

func (en *engine) onEvent(c Conn, fr *envelopes.Frame) {
	url, subID := c.URL(), fr.SubID()
	if !fr.FromRelay() {
		en.stats.EventsRejected.Inc()
		log.D.F("{%s} EVENT without subscription id", url)
		return
	}
	if f, ok := en.fetches[subID]; ok {
		subID = f.subID
	}
	sub, ok := en.subs[subID]
	if !ok {
		log.D.F("{%s} event for unknown subscription %s", url, subID)
		return
	}
	ev, matched, err := en.store.Ingest(fr.Event())
	if err != nil {
		if errors.Is(err, eventstore.ErrDupEvent) {
			en.stats.DuplicatesDropped.Inc()
			log.T.F("{%s} %v", url, err)
			return
		}
		en.stats.EventsRejected.Inc()
		log.W.F("{%s} event rejected: %v", url, err)
		return
	}
	en.out.Emit(NewEvent(sub.id, ev, url))
	en.stats.EventsForwarded.Inc()
	en.fanOut(ev, matched, sub)
}

// fanOut delivers a newly stored event to the live subscriptions the store
// matched it to, except the one it was already delivered to.
func (en *engine) fanOut(ev *event.T, matched []uint64, except *subscription) {
	for _, h := range matched {
		if except != nil && except.live && except.handle == h {
			continue
		}
		subID, ok := en.byHandle[h]
		if !ok {
			continue
		}
		en.out.Emit(NewEvent(subID, ev, ""))
		en.stats.EventsForwarded.Inc()
	}
}

func (en *engine) onEose(c Conn, subID string) {
	url := c.URL()
	if _, ok := en.fetches[subID]; ok {
		log.T.F("{%s} fetch %s done", url, subID)
		en.endFetch(c, subID)
		return
	}
	sub, ok := en.subs[subID]
	if !ok {
		log.T.F("{%s} EOSE for unknown subscription %s", url, subID)
		return
	}
	if sub.eosed == nil {
		sub.eosed = make(map[string]struct{})
	}
	_, again := sub.eosed[url]
	sub.eosed[url] = struct{}{}
	if sub.closeOnEose && !again {
		if err := c.Send(envelopes.Close(subID)); !chk.D(err) {
			en.stats.ClosesSent.Inc()
		}
	}
	if en.cfg.SuppressEOSE {
		log.T.F("{%s} EOSE %s suppressed", url, subID)
		return
	}
	en.out.Emit(NewEose(subID))
}
