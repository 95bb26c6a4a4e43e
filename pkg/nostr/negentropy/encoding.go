package negentropy

import (
	"errors"
	"math"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
)

var ErrTruncated = errors.New("negentropy message truncated")

// Infinity is the timestamp of the bound that closes the last range.
const Infinity = math.MaxUint64

// appendVarint writes n base 128, most significant group first, with the high
// bit set on every byte but the last.
func appendVarint(dst []byte, n uint64) []byte {
	if n == 0 {
		return append(dst, 0)
	}
	var tmp [10]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n & 0x7f)
		n >>= 7
	}
	for j := i; j < len(tmp)-1; j++ {
		tmp[j] |= 0x80
	}
	return append(dst, tmp[i:]...)
}

type reader struct {
	b []byte
}

func (r *reader) empty() bool { return len(r.b) == 0 }

func (r *reader) varint() (n uint64, err error) {
	for {
		if len(r.b) == 0 {
			return 0, ErrTruncated
		}
		c := r.b[0]
		r.b = r.b[1:]
		n = n<<7 | uint64(c&0x7f)
		if c&0x80 == 0 {
			return
		}
	}
}

func (r *reader) bytes(n uint64) (b []byte, err error) {
	if uint64(len(r.b)) < n {
		return nil, ErrTruncated
	}
	b, r.b = r.b[:n], r.b[n:]
	return
}

// Bound is the exclusive upper end of a range: items sort below it when their
// timestamp is lower, or equal with an id below the prefix padded with zeros.
type Bound struct {
	Timestamp uint64
	Prefix    []byte
}

func (b Bound) item() (it Item) {
	it.Timestamp = b.Timestamp
	copy(it.ID[:], b.Prefix)
	return
}

// minimalBound is the shortest bound that sorts above prev and not above curr.
func minimalBound(prev, curr Item) Bound {
	if curr.Timestamp != prev.Timestamp {
		return Bound{Timestamp: curr.Timestamp}
	}
	shared := 0
	for shared < eventid.Len && curr.ID[shared] == prev.ID[shared] {
		shared++
	}
	return Bound{Timestamp: curr.Timestamp, Prefix: curr.ID[:shared+1]}
}

// codec carries the delta state for timestamps, which restarts with every
// message.
type codec struct {
	lastIn, lastOut uint64
}

func (c *codec) appendBound(dst []byte, b Bound) []byte {
	if b.Timestamp == Infinity {
		c.lastOut = Infinity
		dst = appendVarint(dst, 0)
	} else {
		dst = appendVarint(dst, b.Timestamp-c.lastOut+1)
		c.lastOut = b.Timestamp
	}
	dst = appendVarint(dst, uint64(len(b.Prefix)))
	return append(dst, b.Prefix...)
}

func (c *codec) readBound(r *reader) (b Bound, err error) {
	var ts uint64
	if ts, err = r.varint(); err != nil {
		return
	}
	switch {
	case ts == 0 || c.lastIn == Infinity:
		b.Timestamp, c.lastIn = Infinity, Infinity
	default:
		b.Timestamp = c.lastIn + ts - 1
		c.lastIn = b.Timestamp
	}
	var l uint64
	if l, err = r.varint(); err != nil {
		return
	}
	if l > eventid.Len {
		return b, errors.New("negentropy bound prefix too long")
	}
	b.Prefix, err = r.bytes(l)
	return
}
