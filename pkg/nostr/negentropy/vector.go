package negentropy

import (
	"sort"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/minio/sha256-simd"
)

// FingerprintSize is the length of a range fingerprint.
const FingerprintSize = 16

// Item is one element of the reconciled set.
type Item struct {
	Timestamp uint64
	ID        eventid.T
}

// Less orders items by timestamp, then id.
func (it Item) Less(o Item) bool {
	if it.Timestamp != o.Timestamp {
		return it.Timestamp < o.Timestamp
	}
	return it.ID.Compare(o.ID) < 0
}

// Vector is a sorted set of items.
type Vector struct {
	items  []Item
	sealed bool
}

// Insert adds an item, which is only allowed before Seal.
func (v *Vector) Insert(ts uint64, id eventid.T) {
	if v.sealed {
		panic("negentropy: insert into sealed vector")
	}
	v.items = append(v.items, Item{Timestamp: ts, ID: id})
}

// Seal sorts the items and drops duplicates.
func (v *Vector) Seal() {
	if v.sealed {
		return
	}
	sort.Slice(v.items, func(i, j int) bool { return v.items[i].Less(v.items[j]) })
	out := v.items[:0]
	for i, it := range v.items {
		if i > 0 && it == v.items[i-1] {
			continue
		}
		out = append(out, it)
	}
	v.items = out
	v.sealed = true
}

func (v *Vector) Len() int { return len(v.items) }

// lowerBound finds the first index in [first,last) not below b.
func (v *Vector) lowerBound(first, last int, b Bound) int {
	if b.Timestamp == Infinity {
		return last
	}
	bi := b.item()
	return first + sort.Search(last-first, func(i int) bool {
		return !v.items[first+i].Less(bi)
	})
}

// fingerprint of the items in [begin,end): the ids are summed as 256 bit
// little endian integers, and the sum, followed by the count as a varint, is
// hashed.
func (v *Vector) fingerprint(begin, end int) (fp [FingerprintSize]byte) {
	var acc [32]byte
	for _, it := range v.items[begin:end] {
		var carry uint16
		for i := 0; i < 32; i++ {
			s := uint16(acc[i]) + uint16(it.ID[i]) + carry
			acc[i] = byte(s)
			carry = s >> 8
		}
	}
	h := sha256.Sum256(appendVarint(acc[:], uint64(end-begin)))
	copy(fp[:], h[:FingerprintSize])
	return
}
