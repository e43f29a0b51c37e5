package fat32

import (
	"testing"
	"unicode/utf8"
)

// FuzzDecodeLFNUnits throws arbitrary byte sequences at the code path
// that reconstructs a long file name from raw directory bytes and
// requires it to never panic and always produce valid UTF-8, regardless
// of how a corrupted or adversarial LFN group is laid out on disk.
func FuzzDecodeLFNUnits(f *testing.F) {
	f.Add([]byte("longname.txt"))
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x00})
	f.Add([]byte("\xff\xff\xff\xff"))
	f.Add([]byte("caf\xc3\xa9.txt")) // "café.txt", exercises >126 code units

	f.Fuzz(func(t *testing.T, raw []byte) {
		units := make([]uint16, len(raw)/2)
		for i := range units {
			units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		}
		got := decodeLFNUnits(units)
		if !utf8.ValidString(got) {
			t.Fatalf("decodeLFNUnits produced invalid UTF-8 for input %v: %q", raw, got)
		}
	})
}
