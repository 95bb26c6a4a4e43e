// Package envelopes classifies the JSON array frames exchanged with relays
// and builds the ones a client sends.
package envelopes

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Label identifies the type of a frame by its first element.
type Label byte

const (
	LUnknown Label = iota
	LEvent
	LEOSE
	LNotice
	LOK
	LClosed
	LAuth
	LReq
	LClose
	LCount
	LNegOpen
	LNegMsg
	LNegErr
	LNegClose
)

var labelNames = map[Label]string{
	LEvent:    "EVENT",
	LEOSE:     "EOSE",
	LNotice:   "NOTICE",
	LOK:       "OK",
	LClosed:   "CLOSED",
	LAuth:     "AUTH",
	LReq:      "REQ",
	LClose:    "CLOSE",
	LCount:    "COUNT",
	LNegOpen:  "NEG-OPEN",
	LNegMsg:   "NEG-MSG",
	LNegErr:   "NEG-ERR",
	LNegClose: "NEG-CLOSE",
}

var labelsByName = func() map[string]Label {
	m := make(map[string]Label, len(labelNames))
	for l, s := range labelNames {
		m[s] = l
	}
	return m
}()

func (l Label) String() string {
	if s, ok := labelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsNegentropy is true for the NIP-77 set reconciliation frames.
func (l Label) IsNegentropy() bool { return l >= LNegOpen && l <= LNegClose }

var ErrMalformed = errors.New("malformed frame")

// Frame is a frame received from a relay, split into its elements.
type Frame struct {
	Label Label
	// Name is the label as it was received, kept for unknown labels.
	Name  string
	Elems []gjson.Result
	Raw   []byte
}

// minElems is the number of elements each label needs to be usable. EVENT
// has two forms: ["EVENT",<event>] from a client and ["EVENT",<subID>,<event>]
// from a relay.
var minElems = map[Label]int{
	LEvent:  2,
	LEOSE:   2,
	LNotice: 2,
	LOK:     3,
	LClosed: 2,
	LAuth:   2,
	LNegMsg: 3,
	LNegErr: 3,
}

// Parse splits a frame into its elements and identifies its label. A frame
// with a label this package does not know is returned with LUnknown and no
// error, it is up to the caller whether to care.
func Parse(b []byte) (fr *Frame, err error) {
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	r := gjson.ParseBytes(b)
	if !r.IsArray() {
		return nil, fmt.Errorf("%w: not an array", ErrMalformed)
	}
	elems := r.Array()
	if len(elems) == 0 || elems[0].Type != gjson.String {
		return nil, fmt.Errorf("%w: no label", ErrMalformed)
	}
	fr = &Frame{Label: labelsByName[elems[0].Str], Name: elems[0].Str,
		Elems: elems, Raw: b}
	if n := minElems[fr.Label]; len(elems) < n {
		return nil, fmt.Errorf("%w: %s has %d elements, want %d",
			ErrMalformed, fr.Name, len(elems), n)
	}
	return
}

func (fr *Frame) str(i int) string {
	if i < len(fr.Elems) {
		return fr.Elems[i].String()
	}
	return ""
}

// SubID is the subscription id of EVENT, EOSE, CLOSED and NEG-* frames. It
// is empty for an EVENT frame in the client form.
func (fr *Frame) SubID() string {
	switch fr.Label {
	case LEvent:
		if fr.FromRelay() {
			return fr.str(1)
		}
	case LEOSE, LClosed, LNegMsg, LNegErr, LNegOpen, LNegClose, LReq,
		LClose, LCount:
		return fr.str(1)
	}
	return ""
}

// FromRelay is true for an EVENT frame that carries a subscription id.
func (fr *Frame) FromRelay() bool { return fr.Label == LEvent && len(fr.Elems) >= 3 }

// Event is the raw event object of an EVENT frame of either form.
func (fr *Frame) Event() []byte {
	if fr.Label != LEvent {
		return nil
	}
	if fr.FromRelay() {
		return []byte(fr.Elems[2].Raw)
	}
	return []byte(fr.Elems[1].Raw)
}

// Message is the human readable text of NOTICE, OK, CLOSED and NEG-ERR
// frames, the payload of a NEG-MSG, or the challenge of an AUTH.
func (fr *Frame) Message() string {
	switch fr.Label {
	case LNotice, LAuth:
		return fr.str(1)
	case LClosed, LNegErr, LNegMsg:
		return fr.str(2)
	case LOK:
		return fr.str(3)
	}
	return ""
}

// OK returns the event id and acceptance of an OK frame.
func (fr *Frame) OK() (id string, accepted bool) {
	if fr.Label != LOK {
		return
	}
	return fr.str(1), fr.Elems[2].Bool()
}
