// Package canonical turns a record into the deterministic byte string that
// its leaf hash is computed over.
//
// The encoding is a compact JSON object whose keys appear in ascending
// UTF-16 code unit order. Values are JSON strings, or the literal null for
// absent fields, so "" and null never collide and any separator character
// inside a value is escaped by JSON string quoting. String escaping matches
// JSON.stringify: only the quote, the backslash and control characters are
// escaped, so HTML-sensitive characters and U+2028/U+2029 are written raw.
// This keeps roots byte-compatible with batches committed by JavaScript
// issuers (JSON.stringify with a sorted key list).
//
// Bytes that are not valid UTF-8 cannot come from a JavaScript issuer. Each
// such byte is written as its own \u00XX escape. Valid text never produces
// those escapes, so distinct strings always encode differently.
package canonical

import (
	"bytes"
	"sort"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/Layr-Labs/forj-go/pkg/types"
)

const hexDigits = "0123456789abcdef"

// Canonicalize returns the canonical encoding of record. Two records encode
// identically only when they hold the same field to value content.
func Canonicalize(record types.Record) []byte {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(keys[i], keys[j])
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteByte(':')
		if v := record[k]; v != nil {
			writeString(&buf, *v)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// lessUTF16 orders keys the way JavaScript's default sort does. Keys that
// only differ in invalid bytes decode alike and fall back to byte order.
func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	if len(ua) != len(ub) {
		return len(ua) < len(ub)
	}
	return a < b
}

// writeString appends s as a JSON string literal.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				if c < 0x20 {
					writeByteEscape(buf, c)
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			writeByteEscape(buf, c)
			i++
			continue
		}
		buf.WriteString(s[i : i+size])
		i += size
	}
	buf.WriteByte('"')
}

func writeByteEscape(buf *bytes.Buffer, c byte) {
	buf.WriteString(`\u00`)
	buf.WriteByte(hexDigits[c>>4])
	buf.WriteByte(hexDigits[c&0xf])
}
