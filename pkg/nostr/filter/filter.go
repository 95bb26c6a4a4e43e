// Package filter holds the normalized form of a nostr subscription filter,
// the translation from its wire form, and matching of events against it.
package filter

import (
	"sort"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/bridgr/pkg/wire/text"
	"github.com/mailru/easyjson/jwriter"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// T is a query where one or all elements can be filled in. A nil set means
// the constraint is absent; a set that ended up empty on the wire is also left
// nil by the translator.
//
// The e and p tags are given their own fields because their values are keys
// and are decoded like ids and authors. Every other single letter tag lives
// in Tags, keyed by the letter without the leading '#'.
type T struct {
	IDs     []eventid.T
	Authors []eventid.T
	Kinds   []kind.T
	E       []eventid.T
	P       []eventid.T
	Tags    TagMap
	Since   *timestamp.T
	Until   *timestamp.T
	Limit   *uint64
}

type TagMap map[string][]string

// Filters is the list of filters of one subscription, an event matches it if
// it matches any of them.
type Filters []*T

// IDsOnly returns a filter that selects exactly the given ids.
func IDsOnly(ids ...eventid.T) *T { return &T{IDs: ids} }

// IsIDOnly is true when the only constraint is a non-empty id set. The limit
// is ignored, an id set is already a bound.
func (f *T) IsIDOnly() bool {
	return len(f.IDs) > 0 && f.Authors == nil && f.Kinds == nil &&
		f.E == nil && f.P == nil && len(f.Tags) == 0 &&
		f.Since == nil && f.Until == nil
}

// IsEmpty is true for a filter with no constraints at all.
func (f *T) IsEmpty() bool {
	return f.IDs == nil && f.Authors == nil && f.Kinds == nil &&
		f.E == nil && f.P == nil && len(f.Tags) == 0 &&
		f.Since == nil && f.Until == nil && f.Limit == nil
}

// LimitOr returns the filter limit if it is set and smaller than max.
func (f *T) LimitOr(max int) int {
	if f.Limit != nil && *f.Limit < uint64(max) {
		return int(*f.Limit)
	}
	return max
}

func containsKey(set []eventid.T, hexKey string) bool {
	k, err := eventid.New(hexKey)
	if err != nil {
		return false
	}
	return slices.Contains(set, k)
}

func tagMatches(ev *event.T, key string, set []eventid.T) bool {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == key && containsKey(set, t[1]) {
			return true
		}
	}
	return false
}

// Matches returns true if the event satisfies every constraint of the filter.
// The limit plays no part in this.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Authors != nil && !containsKey(f.Authors, ev.PubKey) {
		return false
	}
	if f.E != nil && !tagMatches(ev, "e", f.E) {
		return false
	}
	if f.P != nil && !tagMatches(ev, "p", f.P) {
		return false
	}
	for k, v := range f.Tags {
		if v != nil && !ev.Tags.ContainsAny(k, v) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Matches returns true if any of the filters matches the event.
func (ff Filters) Matches(ev *event.T) bool {
	for _, f := range ff {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

type writer struct {
	*jwriter.Writer
	comma bool
}

func (w *writer) key(name string) {
	if w.comma {
		w.RawByte(',')
	}
	w.Raw(text.EscapeJSONStringAndWrap(name), nil)
	w.RawByte(':')
	w.comma = true
}

func (w *writer) keys(name string, set []eventid.T) {
	if set == nil {
		return
	}
	w.key(name)
	w.RawByte('[')
	for i, k := range set {
		if i > 0 {
			w.RawByte(',')
		}
		w.Raw(k.MarshalJSON())
	}
	w.RawByte(']')
}

// MarshalTo writes the wire form of the filter, with the keys in a fixed
// order so equal filters produce equal bytes.
func (f *T) MarshalTo(jw *jwriter.Writer) {
	w := &writer{Writer: jw}
	w.RawByte('{')
	w.keys("ids", f.IDs)
	w.keys("authors", f.Authors)
	if f.Kinds != nil {
		w.key("kinds")
		w.RawByte('[')
		for i, k := range f.Kinds {
			if i > 0 {
				w.RawByte(',')
			}
			w.Uint16(k.ToUint16())
		}
		w.RawByte(']')
	}
	w.keys("#e", f.E)
	w.keys("#p", f.P)
	names := maps.Keys(f.Tags)
	sort.Strings(names)
	for _, k := range names {
		w.key("#" + k)
		w.RawByte('[')
		for i, v := range f.Tags[k] {
			if i > 0 {
				w.RawByte(',')
			}
			w.Raw(text.EscapeJSONStringAndWrap(v), nil)
		}
		w.RawByte(']')
	}
	if f.Since != nil {
		w.key("since")
		w.Int64(f.Since.I64())
	}
	if f.Until != nil {
		w.key("until")
		w.Int64(f.Until.I64())
	}
	if f.Limit != nil {
		w.key("limit")
		w.Uint64(*f.Limit)
	}
	w.RawByte('}')
}

func (f *T) MarshalJSON() (b []byte, err error) {
	w := &jwriter.Writer{}
	f.MarshalTo(w)
	return w.BuildBytes()
}

func (f *T) String() string {
	b, _ := f.MarshalJSON()
	return string(b)
}
