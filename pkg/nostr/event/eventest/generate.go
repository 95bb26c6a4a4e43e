// Package eventest generates signed events for tests.
package eventest

import (
	"fmt"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/btcsuite/btcd/btcec/v2"
	"lukechampine.com/frand"
)

// NewKey makes a random secret key.
func NewKey() (sk *btcec.PrivateKey) {
	for {
		if sk, _ = btcec.PrivKeyFromBytes(frand.Bytes(32)); sk.Key.IsZero() {
			continue
		}
		return
	}
}

// New makes a signed text note with the given timestamp and content.
func New(sk *btcec.PrivateKey, at timestamp.T, content string,
	t ...tags.Tag) (ev *event.T) {

	ev = &event.T{
		CreatedAt: at,
		Kind:      kind.TextNote,
		Tags:      append(tags.T{}, t...),
		Content:   content,
	}
	if err := ev.SignWithSecKey(sk); err != nil {
		panic(err)
	}
	return
}

// Batch makes n signed notes with ascending timestamps starting at start.
func Batch(sk *btcec.PrivateKey, start timestamp.T, n int) (evs []*event.T) {
	for i := 0; i < n; i++ {
		evs = append(evs, New(sk, start+timestamp.T(i), fmt.Sprintf("note %d", i)))
	}
	return
}
