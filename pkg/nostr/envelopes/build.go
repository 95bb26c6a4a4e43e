package envelopes

import (
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/wire/text"
	"github.com/mailru/easyjson/jwriter"
)

func open(l Label) *jwriter.Writer {
	w := &jwriter.Writer{}
	w.RawString(`["`)
	w.RawString(l.String())
	w.RawByte('"')
	return w
}

func str(w *jwriter.Writer, s string) {
	w.RawByte(',')
	w.Raw(text.EscapeJSONStringAndWrap(s), nil)
}

func done(w *jwriter.Writer) []byte {
	w.RawByte(']')
	b, _ := w.BuildBytes()
	return b
}

// Req builds ["REQ",<subID>,<filter>...].
func Req(subID string, ff filter.Filters) []byte {
	w := open(LReq)
	str(w, subID)
	for _, f := range ff {
		w.RawByte(',')
		f.MarshalTo(w)
	}
	return done(w)
}

// Close builds ["CLOSE",<subID>].
func Close(subID string) []byte {
	w := open(LClose)
	str(w, subID)
	return done(w)
}

// Event builds ["EVENT",<event>].
func Event(ev *event.T) []byte {
	w := open(LEvent)
	w.RawByte(',')
	w.Raw(ev.Serialize(), nil)
	return done(w)
}

// NegOpen builds ["NEG-OPEN",<subID>,<filter>,<hex message>].
func NegOpen(subID string, f *filter.T, msg string) []byte {
	w := open(LNegOpen)
	str(w, subID)
	w.RawByte(',')
	f.MarshalTo(w)
	str(w, msg)
	return done(w)
}

// NegMsg builds ["NEG-MSG",<subID>,<hex message>].
func NegMsg(subID string, msg string) []byte {
	w := open(LNegMsg)
	str(w, subID)
	str(w, msg)
	return done(w)
}

// NegClose builds ["NEG-CLOSE",<subID>].
func NegClose(subID string) []byte {
	w := open(LNegClose)
	str(w, subID)
	return done(w)
}
