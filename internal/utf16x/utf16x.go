/*
Package utf16x decodes UTF-16LE code units into UTF-8. fat32sd only ever
reads VFAT long names off disk, never writes them, so this package keeps
just the decode direction: there is no FromUTF8/EncodeRune, since nothing
in fat32sd encodes a name back to UTF-16.
*/
package utf16x

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// 0xd800-0xdc00 encodes the high 10 bits of a pair.
	// 0xdc00-0xe000 encodes the low 10 bits of a pair.
	// the value is those 20 bits plus 0x10000.
	surr1 = 0xd800
	surr2 = 0xdc00
	surr3 = 0xe000
)

const replacementChar = '�' // Unicode replacement character

var (
	errMultiple2    = errors.New("utf16x: length must be a multiple of 2")
	errShortDst     = errors.New("utf16x: short destination buffer")
	errInvalidUTF16 = errors.New("utf16x: invalid utf16 sequence")
)

// ToUTF8 decodes srcUTF16 (UTF-16 code units in the given byte order) into
// dstUTF8 and returns the number of bytes written.
func ToUTF8(dstUTF8, srcUTF16 []byte, order16 binary.ByteOrder) (int, error) {
	if len(srcUTF16)%2 != 0 {
		return 0, errMultiple2
	}
	n := 0
	for len(srcUTF16) > 1 {
		r, size := decodeRune(srcUTF16, order16)
		if r == utf8.RuneError {
			return n, errInvalidUTF16
		} else if utf8.RuneLen(r) > len(dstUTF8[n:]) {
			return n, errShortDst
		}
		srcUTF16 = srcUTF16[size:]
		n += utf8.EncodeRune(dstUTF8[n:], r)
	}
	return n, nil
}

// decodeRune decodes one rune, possibly a surrogate pair, from the front of
// srcUTF16, reporting its size in bytes (2 or 4).
func decodeRune(srcUTF16 []byte, order16 binary.ByteOrder) (r rune, size int) {
	_ = srcUTF16[1] // Eliminate bounds check.
	if len(srcUTF16) == 0 {
		return replacementChar, 1
	}
	r = rune(order16.Uint16(srcUTF16))
	switch {
	case r < surr1, surr3 <= r:
		// normal rune
		return r, 2
	case surr1 <= r && r < surr2:
		if len(srcUTF16) < 4 {
			return replacementChar, 2
		}
		r2 := rune(order16.Uint16(srcUTF16[2:]))
		if !(surr2 <= r2 && r2 < surr3) {
			// Invalid surrogate sequence.
			return replacementChar, 2
		}
		// valid surrogate sequence
		return utf16.DecodeRune(r, r2), 4
	default:
		// invalid surrogate sequence
		return replacementChar, 2
	}
}
