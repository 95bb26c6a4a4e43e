package filter

import (
	"strings"
	"testing"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	idA = strings.Repeat("aa", 32)
	idB = strings.Repeat("bb", 32)
)

func TestTranslateDropsBadEntries(t *testing.T) {
	f, ok := Translate([]byte(`{
		"ids":["` + idA + `","short",7,"` + idB + `"],
		"authors":"notalist",
		"kinds":[1,-3,1.5,"x",70000,30023],
		"#e":["zz"],
		"#t":["go",1,"nostr"],
		"#long":["ignored"],
		"since":10,"until":-1,"limit":20,
		"search":"ignored"}`))
	require.True(t, ok)
	a, _ := eventid.New(idA)
	b, _ := eventid.New(idB)
	assert.Equal(t, []eventid.T{a, b}, f.IDs)
	assert.Nil(t, f.Authors)
	assert.Equal(t, 2, len(f.Kinds))
	assert.Nil(t, f.E, "an empty set after dropping leaves the constraint unset")
	assert.Equal(t, TagMap{"t": {"go", "nostr"}}, f.Tags)
	require.NotNil(t, f.Since)
	assert.EqualValues(t, 10, *f.Since)
	assert.Nil(t, f.Until)
	assert.EqualValues(t, 20, *f.Limit)
}

func TestTranslateEmptyAndInvalid(t *testing.T) {
	f, ok := Translate([]byte(`{}`))
	require.True(t, ok)
	assert.True(t, f.IsEmpty())

	f, ok = Translate([]byte(`{"ids":5,"kinds":{}}`))
	require.True(t, ok)
	assert.True(t, f.IsEmpty())

	for _, raw := range []string{`[]`, `"x"`, `12`, `{"ids":`} {
		_, ok = Translate([]byte(raw))
		assert.False(t, ok, raw)
	}
	ff := TranslateAll([][]byte{[]byte(`1`), []byte(`{"kinds":[1]}`), []byte(`null`)})
	assert.Len(t, ff, 1)
}

func TestIsIDOnly(t *testing.T) {
	f, _ := Translate([]byte(`{"ids":["` + idA + `"],"limit":3}`))
	assert.True(t, f.IsIDOnly())
	f, _ = Translate([]byte(`{"ids":["` + idA + `"],"kinds":[1]}`))
	assert.False(t, f.IsIDOnly())
	f, _ = Translate([]byte(`{"ids":["bad"]}`))
	assert.False(t, f.IsIDOnly())
}

func TestMatches(t *testing.T) {
	sk := eventest.NewKey()
	ref := strings.Repeat("cd", 32)
	ev := eventest.New(sk, 100, "hi", tags.Tag{"e", ref}, tags.Tag{"t", "go"})

	match := func(raw string) bool {
		f, ok := Translate([]byte(raw))
		require.True(t, ok)
		return f.Matches(ev)
	}
	assert.True(t, match(`{}`))
	assert.True(t, match(`{"ids":["`+ev.ID.String()+`"]}`))
	assert.False(t, match(`{"ids":["`+idA+`"]}`))
	assert.True(t, match(`{"authors":["`+ev.PubKey+`"],"kinds":[1]}`))
	assert.False(t, match(`{"kinds":[7]}`))
	assert.True(t, match(`{"#e":["`+ref+`"]}`))
	assert.False(t, match(`{"#p":["`+ref+`"]}`))
	assert.True(t, match(`{"#t":["rust","go"]}`))
	assert.False(t, match(`{"#t":["rust"]}`))
	assert.True(t, match(`{"since":100,"until":100}`))
	assert.False(t, match(`{"since":101}`))
	assert.False(t, match(`{"until":99}`))
	assert.True(t, Filters{IDsOnly(), IDsOnly(ev.ID)}.Matches(ev))
}

func TestMarshalRoundTrip(t *testing.T) {
	raw := `{"ids":["` + idA + `"],"authors":["` + idB + `"],"kinds":[1,7],` +
		`"#e":["` + idA + `"],"#p":["` + idB + `"],"#a":["x"],"#t":["go"],` +
		`"since":1,"until":2,"limit":3}`
	f, ok := Translate([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, raw, f.String())
	assert.Equal(t, `{}`, (&T{}).String())
	assert.Equal(t, `{"ids":[]}`, IDsOnly([]eventid.T{}...).String())
}
