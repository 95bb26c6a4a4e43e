package badger

import (
	"encoding/hex"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
)

const (
	// SerialLen is the length of serial values used for conflict resistant
	// keys.
	SerialLen = 8

	// TimestampLen is the standard 64 bit, 8 byte unix timestamp
	TimestampLen = 8

	// PubkeyPrefixLen is the length of the prefix trimmed out of a public key
	// field of an event used in index keys.
	PubkeyPrefixLen = 8
)

// key prefixes, one byte each.
const (
	// prefixEvent is [0][serial] -> event JSON
	prefixEvent byte = iota
	// prefixID is [1][id] -> serial
	prefixID
	// prefixCreatedAt is [2][created_at][serial] -> nil
	prefixCreatedAt
	// prefixPubkey is [3][pubkey prefix][created_at][serial] -> nil
	prefixPubkey
)

func eventKey(ser []byte) []byte {
	return append([]byte{prefixEvent}, ser...)
}

func idKey(id eventid.T) []byte {
	return append([]byte{prefixID}, id[:]...)
}

func pubkeyPrefix(pk []byte) []byte {
	k := make([]byte, 1, 1+PubkeyPrefixLen)
	k[0] = prefixPubkey
	return append(k, pk[:PubkeyPrefixLen]...)
}

func indexKeysForEvent(ev *event.T, ser []byte) (keys [][]byte) {
	ts := ev.CreatedAt.Bytes()
	ca := append([]byte{prefixCreatedAt}, ts...)
	keys = append(keys, append(ca, ser...))
	if pk, err := hex.DecodeString(ev.PubKey); err == nil &&
		len(pk) >= PubkeyPrefixLen {

		k := append(pubkeyPrefix(pk), ts...)
		keys = append(keys, append(k, ser...))
	}
	return
}

// serialFromKey takes the serial off the end of an index key.
func serialFromKey(k []byte) []byte {
	ser := make([]byte, SerialLen)
	copy(ser, k[len(k)-SerialLen:])
	return ser
}

// timestampFromKey reads the created_at that precedes the serial at the end
// of an index key.
func timestampFromKey(k []byte) timestamp.T {
	end := len(k) - SerialLen
	return timestamp.FromBytes(k[end-TimestampLen : end])
}
