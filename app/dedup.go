package app

import (
	"bytes"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
)

// Deduper decides, before an EVENT frame is parsed, whether its event is
// already stored and the frame can be dropped. It may answer false for a
// duplicate: the store rejects those anyway.
type Deduper interface {
	IsDuplicate(frame []byte, has func(id eventid.T) bool) bool
}

var idMarker = []byte(`"id":"`)

// IDMarker finds the event id by the first "id":" in the frame. Inside a
// JSON string a quote is always escaped, so the first match is the id key
// of the event object.
type IDMarker struct{}

func (IDMarker) IsDuplicate(frame []byte, has func(id eventid.T) bool) bool {
	i := bytes.Index(frame, idMarker)
	if i < 0 {
		return false
	}
	i += len(idMarker)
	if i+2*eventid.Len > len(frame) {
		return false
	}
	id, err := eventid.New(string(frame[i : i+2*eventid.Len]))
	if err != nil {
		return false
	}
	return has(id)
}

// NoDedup passes every frame on to the store.
type NoDedup struct{}

func (NoDedup) IsDuplicate([]byte, func(eventid.T) bool) bool { return false }
