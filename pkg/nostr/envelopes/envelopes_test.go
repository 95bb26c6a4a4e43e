package envelopes

import (
	"strings"
	"testing"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event/eventest"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	ev := eventest.New(eventest.NewKey(), 1, "x")
	for raw, want := range map[string]Label{
		`["EVENT","s",` + ev.String() + `]`:       LEvent,
		`["EOSE","s"]`:                            LEOSE,
		`["NOTICE","hello"]`:                      LNotice,
		`["OK","` + ev.ID.String() + `",true,""]`: LOK,
		`["CLOSED","s","auth-required: x"]`:       LClosed,
		`["AUTH","challenge"]`:                    LAuth,
		`["NEG-MSG","s","6100"]`:                  LNegMsg,
		`["NEG-ERR","s","blocked: too big"]`:      LNegErr,
		`["WHAT","s"]`:                            LUnknown,
	} {
		fr, err := Parse([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, fr.Label, raw)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{``, `{}`, `[]`, `[1]`, `["EVENT"]`,
		`["EOSE"]`, `["OK","x"]`, `["EVENT",`} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestAccessors(t *testing.T) {
	ev := eventest.New(eventest.NewKey(), 1, "x")
	fr, err := Parse([]byte(`["EVENT","sub1",` + ev.String() + `]`))
	require.NoError(t, err)
	assert.Equal(t, "sub1", fr.SubID())
	assert.Equal(t, ev.String(), string(fr.Event()))

	fr, _ = Parse([]byte(`["OK","abc",false,"duplicate:"]`))
	id, ok := fr.OK()
	assert.Equal(t, "abc", id)
	assert.False(t, ok)
	assert.Equal(t, "duplicate:", fr.Message())

	fr, _ = Parse([]byte(`["CLOSED","s","error: x"]`))
	assert.Equal(t, "s", fr.SubID())
	assert.Equal(t, "error: x", fr.Message())
	assert.True(t, LNegErr.IsNegentropy())
	assert.False(t, LEOSE.IsNegentropy())
}

func TestBuild(t *testing.T) {
	id := strings.Repeat("ab", 32)
	f, _ := filter.Translate([]byte(`{"ids":["` + id + `"]}`))
	k, _ := filter.Translate([]byte(`{"kinds":[1]}`))
	assert.Equal(t, `["REQ","s",{"ids":["`+id+`"]},{"kinds":[1]}]`,
		string(Req("s", filter.Filters{f, k})))
	assert.Equal(t, `["CLOSE","a\"b"]`, string(Close(`a"b`)))
	assert.Equal(t, `["NEG-OPEN","s",{"kinds":[1]},"61"]`, string(NegOpen("s", k, "61")))
	assert.Equal(t, `["NEG-MSG","s","6100"]`, string(NegMsg("s", "6100")))
	assert.Equal(t, `["NEG-CLOSE","s"]`, string(NegClose("s")))

	ev := eventest.New(eventest.NewKey(), 1, "x")
	fr, err := Parse(Event(ev))
	require.NoError(t, err)
	assert.Equal(t, LEvent, fr.Label)
	assert.False(t, fr.FromRelay())
	assert.Empty(t, fr.SubID())
	assert.Equal(t, ev.String(), string(fr.Event()))
}

func TestEventForms(t *testing.T) {
	ev := eventest.New(eventest.NewKey(), 1, "x")
	fr, err := Parse([]byte(`["EVENT","s",` + ev.String() + `]`))
	require.NoError(t, err)
	assert.True(t, fr.FromRelay())
	assert.Equal(t, "s", fr.SubID())
	assert.Equal(t, ev.String(), string(fr.Event()))

	fr, err = Parse([]byte(`["EVENT",` + ev.String() + `]`))
	require.NoError(t, err)
	assert.False(t, fr.FromRelay())
	assert.Empty(t, fr.SubID())
	assert.Equal(t, ev.String(), string(fr.Event()))
}
