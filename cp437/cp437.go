// Package cp437 implements the legacy IBM code page 437 text encoding spec.md §4.4 requires for
// file names and comments whose general-purpose UTF-8 bit (11) is unset and whose Unicode Path/
// Comment extra field (if any) doesn't apply.
//
// spec.md §1 lists "text encoding conversion (CP437 ↔ UTF-8)" among the external collaborators
// whose interface is merely specified, not implemented, by this library. No repo in the reference
// pack exposes a pluggable text-codec interface for archive readers/writers to delegate to - every
// pack ZIP implementation that touches CP437 (see e.g. martin-sucha-zipserve's detectUTF8, which
// assumes CP437-compatibility rather than performing the conversion) hand-rolls the mapping inline.
// Given that, this package supplies a minimal, self-contained CP437 codec rather than inventing a
// pluggable external interface the rest of the corpus never exercises; it is a leaf package with no
// dependents outside cd/entryreader/entrysource.
package cp437

import "github.com/nguyengg/minizip/zerrors"

// table437 maps CP437 byte values 0x80-0xFF to their Unicode code points. Bytes 0x00-0x7F are
// identical to ASCII and are not listed.
var table437 = [128]rune{
	0x00C7, 0x00FC, 0x00E9, 0x00E2, 0x00E4, 0x00E0, 0x00E5, 0x00E7,
	0x00EA, 0x00EB, 0x00E8, 0x00EF, 0x00EE, 0x00EC, 0x00C4, 0x00C5,
	0x00C9, 0x00E6, 0x00C6, 0x00F4, 0x00F6, 0x00F2, 0x00FB, 0x00F9,
	0x00FF, 0x00D6, 0x00DC, 0x00A2, 0x00A3, 0x00A5, 0x20A7, 0x0192,
	0x00E1, 0x00ED, 0x00F3, 0x00FA, 0x00F1, 0x00D1, 0x00AA, 0x00BA,
	0x00BF, 0x2310, 0x00AC, 0x00BD, 0x00BC, 0x00A1, 0x00AB, 0x00BB,
	0x2591, 0x2592, 0x2593, 0x2502, 0x2524, 0x2561, 0x2562, 0x2556,
	0x2555, 0x2563, 0x2551, 0x2557, 0x255D, 0x255C, 0x255B, 0x2510,
	0x2514, 0x2534, 0x252C, 0x251C, 0x2500, 0x253C, 0x255E, 0x255F,
	0x255A, 0x2554, 0x2569, 0x2566, 0x2560, 0x2550, 0x256C, 0x2567,
	0x2568, 0x2564, 0x2565, 0x2559, 0x2558, 0x2552, 0x2553, 0x256B,
	0x256A, 0x2518, 0x250C, 0x2588, 0x2584, 0x258C, 0x2590, 0x2580,
	0x03B1, 0x00DF, 0x0393, 0x03C0, 0x03A3, 0x03C3, 0x00B5, 0x03C4,
	0x03A6, 0x0398, 0x03A9, 0x03B4, 0x221E, 0x03C6, 0x03B5, 0x2229,
	0x2261, 0x00B1, 0x2265, 0x2264, 0x2320, 0x2321, 0x00F7, 0x2248,
	0x00B0, 0x2219, 0x00B7, 0x221A, 0x207F, 0x00B2, 0x25A0, 0x00A0,
}

var reverse437 map[rune]byte

func init() {
	reverse437 = make(map[rune]byte, 128)
	for i, r := range table437 {
		reverse437[r] = byte(0x80 + i)
	}
}

// Decode converts CP437-encoded bytes to a UTF-8 string. Every byte is representable, so Decode
// never fails.
func Decode(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		if c < 0x80 {
			runes[i] = rune(c)
		} else {
			runes[i] = table437[c-0x80]
		}
	}
	return string(runes)
}

// Encode converts a UTF-8 string to CP437 bytes. Fails with zerrors.EncodingUnsupported if s
// contains a code point with no CP437 representation, per spec.md §4.4.
func Encode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x80:
			out = append(out, byte(r))
		default:
			c, ok := reverse437[r]
			if !ok {
				return nil, zerrors.New(zerrors.EncodingUnsupported, "cp437.Encode")
			}
			out = append(out, c)
		}
	}
	return out, nil
}
