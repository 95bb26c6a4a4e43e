package event

import (
	"errors"
	"fmt"
	"math"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/tidwall/gjson"
)

var ErrMalformed = errors.New("malformed event")

func malformed(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, a...)...)
}

// Unmarshal decodes the JSON form of an event. All seven fields must be
// present with the right JSON types, but neither the ID nor the signature is
// verified here, see T.Verify.
func Unmarshal(b []byte) (ev *T, err error) {
	if !gjson.ValidBytes(b) {
		return nil, malformed("invalid JSON")
	}
	return FromResult(gjson.ParseBytes(b))
}

// FromResult decodes an event from an already parsed JSON value, as found
// inside an envelope.
func FromResult(r gjson.Result) (ev *T, err error) {
	if !r.IsObject() {
		return nil, malformed("not an object")
	}
	ev = &T{}
	id := r.Get("id")
	if id.Type != gjson.String {
		return nil, malformed("id is not a string")
	}
	if ev.ID, err = eventid.New(id.Str); err != nil {
		return nil, malformed("%s", err)
	}
	pk := r.Get("pubkey")
	if pk.Type != gjson.String || len(pk.Str) != 64 {
		return nil, malformed("pubkey is not a 64 character string")
	}
	ev.PubKey = pk.Str
	var n int64
	if n, err = integer(r.Get("created_at"), math.MaxInt64); err != nil {
		return nil, malformed("created_at: %s", err)
	}
	ev.CreatedAt = timestamp.T(n)
	if n, err = integer(r.Get("kind"), kind.Max); err != nil {
		return nil, malformed("kind: %s", err)
	}
	ev.Kind = kind.T(n)
	tg := r.Get("tags")
	if !tg.IsArray() {
		return nil, malformed("tags is not an array")
	}
	ev.Tags = make(tags.T, 0, len(tg.Array()))
	for _, t := range tg.Array() {
		if !t.IsArray() {
			return nil, malformed("tag is not an array")
		}
		elems := t.Array()
		tag := make(tags.Tag, 0, len(elems))
		for _, s := range elems {
			if s.Type != gjson.String {
				return nil, malformed("tag element is not a string")
			}
			tag = append(tag, s.Str)
		}
		ev.Tags = append(ev.Tags, tag)
	}
	c := r.Get("content")
	if c.Type != gjson.String {
		return nil, malformed("content is not a string")
	}
	ev.Content = c.Str
	sig := r.Get("sig")
	if sig.Type != gjson.String || len(sig.Str) != 128 {
		return nil, malformed("sig is not a 128 character string")
	}
	ev.Sig = sig.Str
	return ev, nil
}

// integer reads a non-negative JSON integer no larger than max.
func integer(r gjson.Result, max int64) (n int64, err error) {
	if r.Type != gjson.Number {
		return 0, errors.New("not a number")
	}
	if r.Num < 0 || r.Num != math.Trunc(r.Num) || r.Num > float64(max) {
		return 0, fmt.Errorf("%s is not an integer in range", r.Raw)
	}
	return r.Int(), nil
}
