// Package text implements the string escaping used for the canonical JSON
// form of nostr events, which must be byte-exact across implementations for
// event ids to agree.
package text

const (
	QuotationMark  = 0x22
	ReverseSolidus = 0x5c
	Backspace      = 0x08
	FormFeed       = 0x0c
	LineFeed       = 0x0a
	CarriageReturn = 0x0d
	Tab            = 0x09
	Space          = 0x20
)

const hexDigits = "0123456789abcdef"

// EscapeJSONStringAndWrap escapes s as per rfc8259 section 7 and wraps it in
// double quotes: the quotation mark, reverse solidus and the control
// characters U+0000 through U+001F are escaped, with the short two character
// forms used where one exists. Nothing else is touched, in particular "<",
// ">", "&", U+2028 and U+2029 pass through unchanged, unlike json.Marshal.
//
// The length of the result is computed first so only one allocation is made.
func EscapeJSONStringAndWrap(s string) (escaped []byte) {
	return AppendEscaped(make([]byte, 0, EscapedLen(s)), s)
}

// EscapedLen returns the length of s once escaped and wrapped in quotes.
func EscapedLen(s string) (length int) {
	length = len(s) + 2
	// index the string as bytes, ranging over it would decode UTF-8
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == QuotationMark, c == ReverseSolidus, c == Backspace,
			c == Tab, c == LineFeed, c == FormFeed, c == CarriageReturn:
			length++
		case c < Space:
			length += 5
		}
	}
	return
}

// AppendEscaped appends the escaped and quoted form of s to dst.
func AppendEscaped(dst []byte, s string) []byte {
	dst = append(dst, QuotationMark)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == QuotationMark:
			dst = append(dst, ReverseSolidus, QuotationMark)
		case c == ReverseSolidus:
			dst = append(dst, ReverseSolidus, ReverseSolidus)
		case c == Backspace:
			dst = append(dst, ReverseSolidus, 'b')
		case c == Tab:
			dst = append(dst, ReverseSolidus, 't')
		case c == LineFeed:
			dst = append(dst, ReverseSolidus, 'n')
		case c == FormFeed:
			dst = append(dst, ReverseSolidus, 'f')
		case c == CarriageReturn:
			dst = append(dst, ReverseSolidus, 'r')
		case c < Space:
			dst = append(dst, ReverseSolidus, 'u', '0', '0',
				hexDigits[c>>4], hexDigits[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, QuotationMark)
}
