// Package negentropy implements the range based set reconciliation protocol
// of NIP-77, by which a client and a relay work out which events each has that
// the other lacks without exchanging the full id lists.
package negentropy

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
)

const (
	ProtocolVersion = 0x61

	modeSkip        = 0
	modeFingerprint = 1
	modeIdList      = 2

	buckets = 16
)

var ErrVersion = errors.New("unsupported negentropy protocol version")

// Session is one side of a reconciliation over a sealed Vector.
type Session struct {
	v         *Vector
	initiator bool
	codec
}

// New creates a session over v, sealing it if that was not done yet.
func New(v *Vector) *Session {
	v.Seal()
	return &Session{v: v}
}

// Initiate produces the first message, covering the whole vector, and makes
// this session the initiator.
func (s *Session) Initiate() []byte {
	s.initiator = true
	s.codec = codec{}
	out := []byte{ProtocolVersion}
	return s.splitRange(out, 0, s.v.Len(), Bound{Timestamp: Infinity})
}

// Reconcile processes a message from the other side. For the initiator it
// returns the ids only this side has and the ids only the other side has
// that were learned from this message, and a nil next message once the
// reconciliation is complete. The responder never learns have and need and
// always has a reply.
func (s *Session) Reconcile(msg []byte) (next []byte, have, need []eventid.T,
	err error) {

	s.codec = codec{}
	r := &reader{b: msg}
	var version []byte
	if version, err = r.bytes(1); err != nil {
		return
	}
	if version[0] != ProtocolVersion {
		if s.initiator {
			err = fmt.Errorf("%w: %#x", ErrVersion, version[0])
			return
		}
		// tell the initiator which version we speak
		return []byte{ProtocolVersion}, nil, nil, nil
	}
	out := []byte{ProtocolVersion}
	var prevBound Bound
	prevIndex := 0
	skip := false
	for !r.empty() {
		var o []byte
		doSkip := func() {
			if skip {
				skip = false
				o = s.appendBound(o, prevBound)
				o = appendVarint(o, modeSkip)
			}
		}
		var curr Bound
		if curr, err = s.readBound(r); err != nil {
			return
		}
		var mode uint64
		if mode, err = r.varint(); err != nil {
			return
		}
		lower := prevIndex
		upper := s.v.lowerBound(prevIndex, s.v.Len(), curr)
		switch mode {
		case modeSkip:
			skip = true
		case modeFingerprint:
			var theirs []byte
			if theirs, err = r.bytes(FingerprintSize); err != nil {
				return
			}
			ours := s.v.fingerprint(lower, upper)
			if bytes.Equal(theirs, ours[:]) {
				skip = true
			} else {
				doSkip()
				o = s.splitRange(o, lower, upper, curr)
			}
		case modeIdList:
			var n uint64
			if n, err = r.varint(); err != nil {
				return
			}
			theirs := make(map[eventid.T]struct{}, n)
			for i := uint64(0); i < n; i++ {
				var b []byte
				if b, err = r.bytes(eventid.Len); err != nil {
					return
				}
				theirs[eventid.T(b)] = struct{}{}
			}
			for _, it := range s.v.items[lower:upper] {
				if _, ok := theirs[it.ID]; ok {
					delete(theirs, it.ID)
				} else if s.initiator {
					have = append(have, it.ID)
				}
			}
			if s.initiator {
				skip = true
				for id := range theirs {
					need = append(need, id)
				}
			} else {
				doSkip()
				o = s.appendIDList(o, lower, upper, curr)
			}
		default:
			err = fmt.Errorf("unknown negentropy mode %d", mode)
			return
		}
		out = append(out, o...)
		prevIndex = upper
		prevBound = curr
	}
	if s.initiator && len(out) == 1 {
		return nil, have, need, nil
	}
	return out, have, need, nil
}

func (s *Session) appendIDList(o []byte, lower, upper int, b Bound) []byte {
	o = s.appendBound(o, b)
	o = appendVarint(o, modeIdList)
	o = appendVarint(o, uint64(upper-lower))
	for _, it := range s.v.items[lower:upper] {
		o = append(o, it.ID[:]...)
	}
	return o
}

// splitRange describes [lower,upper) either as a plain id list, when it is
// small, or as fingerprints of evenly sized buckets.
func (s *Session) splitRange(o []byte, lower, upper int, upperBound Bound) []byte {
	n := upper - lower
	if n < buckets*2 {
		return s.appendIDList(o, lower, upper, upperBound)
	}
	per, extra := n/buckets, n%buckets
	curr := lower
	for i := 0; i < buckets; i++ {
		size := per
		if i < extra {
			size++
		}
		fp := s.v.fingerprint(curr, curr+size)
		curr += size
		next := upperBound
		if curr != upper {
			next = minimalBound(s.v.items[curr-1], s.v.items[curr])
		}
		o = s.appendBound(o, next)
		o = appendVarint(o, modeFingerprint)
		o = append(o, fp[:]...)
	}
	return o
}
