package filter

import (
	"math"
	"os"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"github.com/tidwall/gjson"
)

var log, chk = slog.New(os.Stderr)

// Translate converts one wire format filter into its normalized form. Fields
// with the wrong type, and individual entries that are not valid, are skipped
// rather than failing the filter: an object with no usable field at all still
// yields an empty filter. Only a value that is not a JSON object yields
// nothing.
func Translate(raw []byte) (f *T, ok bool) {
	if !gjson.ValidBytes(raw) {
		log.D.F("filter is not valid JSON: %s", raw)
		return nil, false
	}
	return FromResult(gjson.ParseBytes(raw))
}

// TranslateAll translates every filter, dropping the ones that fail.
func TranslateAll(raws [][]byte) (ff Filters) {
	for _, raw := range raws {
		if f, ok := Translate(raw); ok {
			ff = append(ff, f)
		}
	}
	return
}

// FromResult is Translate for a value already parsed by gjson.
func FromResult(r gjson.Result) (f *T, ok bool) {
	if !r.IsObject() {
		log.D.F("filter is not an object: %s", r.Raw)
		return nil, false
	}
	f = &T{}
	r.ForEach(func(key, value gjson.Result) bool {
		switch k := key.Str; k {
		case "ids":
			f.IDs = keySet(k, value)
		case "authors":
			f.Authors = keySet(k, value)
		case "#e":
			f.E = keySet(k, value)
		case "#p":
			f.P = keySet(k, value)
		case "kinds":
			f.Kinds = kindSet(value)
		case "since":
			f.Since = ts(value)
		case "until":
			f.Until = ts(value)
		case "limit":
			if n, ok := uinteger(value); ok {
				f.Limit = &n
			}
		default:
			if len(k) == 2 && k[0] == '#' {
				if vals := stringSet(value); vals != nil {
					if f.Tags == nil {
						f.Tags = make(TagMap)
					}
					f.Tags[k[1:]] = vals
				}
			} else {
				log.T.F("ignoring filter field %q", k)
			}
		}
		return true
	})
	return f, true
}

func keySet(name string, r gjson.Result) (set []eventid.T) {
	if !r.IsArray() {
		return
	}
	for _, v := range r.Array() {
		if v.Type != gjson.String {
			continue
		}
		k, err := eventid.New(v.Str)
		if err != nil {
			log.T.F("dropping %s entry %q: %v", name, v.Str, err)
			continue
		}
		set = append(set, k)
	}
	return
}

func kindSet(r gjson.Result) (set []kind.T) {
	if !r.IsArray() {
		return
	}
	for _, v := range r.Array() {
		// kinds beyond 16 bits cannot be carried by any event
		if n, ok := uinteger(v); ok && n <= kind.Max {
			set = append(set, kind.T(n))
		}
	}
	return
}

func stringSet(r gjson.Result) (set []string) {
	if !r.IsArray() {
		return
	}
	for _, v := range r.Array() {
		if v.Type == gjson.String {
			set = append(set, v.Str)
		}
	}
	return
}

func ts(r gjson.Result) *timestamp.T {
	n, ok := uinteger(r)
	if !ok || n > math.MaxInt64 {
		return nil
	}
	t := timestamp.T(n)
	return &t
}

func uinteger(r gjson.Result) (n uint64, ok bool) {
	if r.Type != gjson.Number || r.Num < 0 || r.Num != math.Trunc(r.Num) {
		return 0, false
	}
	return r.Uint(), true
}
