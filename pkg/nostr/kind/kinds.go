// Package kind is the event type number of nostr events.
package kind

// T is an event kind. Kinds are 16 bit on the wire, larger numbers in a
// filter match nothing and are dropped when the filter is translated.
type T uint16

func (ki T) ToUint16() uint16 { return uint16(ki) }

// Max is the largest kind value an event may carry.
const Max = 65535

// TextNote is a plain short text note.
const TextNote T = 1
