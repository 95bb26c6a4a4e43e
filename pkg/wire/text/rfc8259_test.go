package text

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/minio/sha256-simd"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"
)

var seed = sha256.Sum256([]byte(`
The tao that can be told
is not the eternal Tao
The name that can be named
is not the eternal Name.
`))

// genASCII returns random 7 bit text, so that the result is always valid
// UTF-8 and survives a round trip through encoding/json unchanged.
func genASCII(l int, src *frand.RNG) string {
	b := src.Bytes(l)
	for i := range b {
		b[i] &= 0x7f
	}
	return string(b)
}

func TestRandomEscapeJSONStringAndWrap(t *testing.T) {
	src := frand.NewCustom(seed[:], 32, 12)
	for i := 0; i < 1000; i++ {
		s := genASCII(src.Intn(64)+1, src)
		esc := EscapeJSONStringAndWrap(s)
		require.Len(t, esc, EscapedLen(s))
		var back string
		require.NoError(t, json.Unmarshal(esc, &back), "%q", esc)
		require.Equal(t, s, back)
	}
}

func TestEscapeForms(t *testing.T) {
	cases := map[string]string{
		"plain":      `"plain"`,
		"a\"b":       `"a\"b"`,
		`back\slash`: `"back\\slash"`,
		"\b\t\n\f\r": `"\b\t\n\f\r"`,
		"\x00\x1f":   `"\u0000\u001f"`,
		"<&>":        `"<&>"`,
		"\u2028":     "\"\u2028\"",
	}
	for in, want := range cases {
		require.Equal(t, want, string(EscapeJSONStringAndWrap(in)), "%q", in)
	}
}

func TestTrunc(t *testing.T) {
	short := strings.Repeat("a", TruncLen)
	require.Equal(t, short, Trunc(short))
	long := strings.Repeat("b", TruncLen+10)
	require.Equal(t, strings.Repeat("b", TruncLen)+"...", Trunc(long))
}
