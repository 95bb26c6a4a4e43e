// Package timestamp is the created_at time of events, whole seconds since
// the unix epoch.
package timestamp

import (
	"encoding/binary"
	"time"
)

type T int64

func Now() T { return T(time.Now().Unix()) }

func (t T) U64() uint64 { return uint64(t) }

func (t T) I64() int64 { return int64(t) }

// Bytes is the big endian form used in store index keys, it sorts in time
// order for all timestamps after the epoch.
func (t T) Bytes() (b []byte) {
	b = make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t))
	return
}

func FromBytes(b []byte) T { return T(binary.BigEndian.Uint64(b)) }
