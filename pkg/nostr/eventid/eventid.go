// Package eventid holds the 32 byte binary form of event ids. Public keys use
// the same encoding, 64 hexadecimal characters on the wire, so filters use
// this type for every key they match on.
package eventid

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/Hubmakerlabs/bridgr/pkg/wire/text"
)

const Len = 32

// T is the SHA256 hash of the canonical form of an event.
type T [Len]byte

// New decodes a string that must be exactly 64 hexadecimal characters.
func New(s string) (ei T, err error) {
	if len(s) != 2*Len {
		err = fmt.Errorf("event ID invalid length: got %d expect %d", len(s), 2*Len)
		return
	}
	if _, err = hex.Decode(ei[:], []byte(s)); err != nil {
		err = fmt.Errorf("event ID invalid hex: %w", err)
	}
	return
}


func (ei T) String() string { return hex.EncodeToString(ei[:]) }

func (ei T) Bytes() []byte { return ei[:] }

func (ei T) IsZero() bool { return ei == T{} }

// Compare orders ids by their bytes.
func (ei T) Compare(o T) int { return bytes.Compare(ei[:], o[:]) }

func (ei T) MarshalJSON() (b []byte, err error) {
	return text.EscapeJSONStringAndWrap(ei.String()), nil
}

func (ei *T) UnmarshalJSON(b []byte) (err error) {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("event ID is not a JSON string: %s", b)
	}
	*ei, err = New(string(b[1 : len(b)-1]))
	return
}
