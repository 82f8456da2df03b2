package format

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// DecodeName converts a stored entry name to UTF-8.
//
// Valid UTF-8 (including plain ASCII) is returned unchanged. Anything else
// is decoded as Shift-JIS, which is what titles storing non-ASCII names
// almost always use; bytes that are not valid Shift-JIS either become
// U+FFFD.
func DecodeName(raw string) string {
	if utf8.ValidString(raw) {
		return raw
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return decoded
}
