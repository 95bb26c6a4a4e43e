package tags

import (
	"github.com/Hubmakerlabs/bridgr/pkg/wire/text"
	"github.com/mailru/easyjson/jwriter"
	"golang.org/x/exp/slices"
)

// Tag is a list of strings, the first of which is the key.
type Tag []string

// Key returns the first element, or an empty string.
func (t Tag) Key() string {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Value returns the second element, or an empty string.
func (t Tag) Value() string {
	if len(t) > 1 {
		return t[1]
	}
	return ""
}

// T is a list of Tag - which are lists of string elements with ordering and
// no uniqueness constraint (not a set).
type T []Tag

// ContainsAny returns true if any tag with the given key has a value found in
// values.
func (t T) ContainsAny(key string, values []string) bool {
	for _, v := range t {
		if len(v) < 2 || v[0] != key {
			continue
		}
		if slices.Contains(values, v[1]) {
			return true
		}
	}
	return false
}

// MarshalTo writes the tags as a JSON array of arrays of strings.
func (t T) MarshalTo(w *jwriter.Writer) {
	w.RawByte('[')
	for i, tag := range t {
		if i > 0 {
			w.RawByte(',')
		}
		w.RawByte('[')
		for j, s := range tag {
			if j > 0 {
				w.RawByte(',')
			}
			w.Raw(text.EscapeJSONStringAndWrap(s), nil)
		}
		w.RawByte(']')
	}
	w.RawByte(']')
}
