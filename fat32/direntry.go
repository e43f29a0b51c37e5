package fat32

import (
	"encoding/binary"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Byte offsets within a 32-byte on-disk directory entry.
const (
	deShortName    = 0
	deAttributes   = 11
	deCreateTime   = 14
	deCreateDate   = 16
	deLastAccDate  = 18
	deFirstClustHi = 20
	deWriteTime    = 22
	deWriteDate    = 24
	deFirstClustLo = 26
	deFileSize     = 28

	lfnOrder      = 0
	lfnAttr       = 11
	lfnChecksum   = 13
	lfnName1      = 1
	lfnName2      = 14
	lfnName3      = 28
	lfnName1Chars = 5
	lfnName2Chars = 6
	lfnName3Chars = 2

	lfnOrderLast    = 0x40
	lfnOrderDeleted = 0xE5
	lfnMaxOrdinal   = 0x3F
)

// Attribute bits of a directory entry's attribute byte.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
	attrLongName       = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

func (a Attr) IsLongNamePart() bool { return a&attrLongName == attrLongName }
func (a Attr) IsDirectory() bool    { return a&AttrDirectory != 0 }
func (a Attr) IsVolumeID() bool     { return a&AttrVolumeID != 0 }
func (a Attr) IsHidden() bool       { return a&AttrHidden != 0 }
func (a Attr) IsReadOnly() bool     { return a&AttrReadOnly != 0 }
func (a Attr) IsSystem() bool       { return a&AttrSystem != 0 }
func (a Attr) IsArchive() bool      { return a&AttrArchive != 0 }

const (
	deFreeMarker    = 0x00
	deDeletedMarker = 0xE5
)

// rawEntry is one 32-byte slot from a directory's data region: either a
// short-name entry, one fragment of a long-name entry, or free space.
type rawEntry [directoryEntrySz]byte

func (e rawEntry) isFree() bool     { return e[deShortName] == deFreeMarker }
func (e rawEntry) isDeleted() bool  { return e[deShortName] == deDeletedMarker }
func (e rawEntry) attr() Attr       { return Attr(e[deAttributes]) }
func (e rawEntry) isLongNamePart() bool { return e.attr().IsLongNamePart() }

func (e rawEntry) firstCluster() uint32 {
	hi := binary.LittleEndian.Uint16(e[deFirstClustHi:])
	lo := binary.LittleEndian.Uint16(e[deFirstClustLo:])
	return uint32(hi)<<16 | uint32(lo)
}

func (e rawEntry) fileSize() uint32 { return binary.LittleEndian.Uint32(e[deFileSize:]) }

func (e rawEntry) createdAt() time.Time {
	return combineDateTime(binary.LittleEndian.Uint16(e[deCreateDate:]), binary.LittleEndian.Uint16(e[deCreateTime:]))
}

func (e rawEntry) modifiedAt() time.Time {
	return combineDateTime(binary.LittleEndian.Uint16(e[deWriteDate:]), binary.LittleEndian.Uint16(e[deWriteTime:]))
}

func (e rawEntry) accessedAt() time.Time {
	return combineDateTime(binary.LittleEndian.Uint16(e[deLastAccDate:]), 0)
}

// shortName reconstructs the 8.3 name as a dotted string, e.g. "README.TXT",
// or "README" with no extension. Trailing spaces in each field are trimmed,
// and the remaining bytes are decoded as IBM code page 437, the OEM
// encoding the FAT specification mandates for short names, so accented and
// box-drawing bytes above 0x7F render correctly instead of as mojibake.
func (e rawEntry) shortName() string {
	base := trimTrailingSpaces(e[deShortName : deShortName+8])
	ext := trimTrailingSpaces(e[deShortName+8 : deShortName+11])
	if len(base) > 0 && base[0] == 0x05 {
		// 0x05 stands in for a leading 0xE5 byte that would otherwise look
		// like a deleted-entry marker; translate it back.
		base = append([]byte{0xE5}, base[1:]...)
	}
	name := decodeOEM(base)
	if len(ext) == 0 {
		return name
	}
	return name + "." + decodeOEM(ext)
}

func trimTrailingSpaces(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return b[:end]
}

func decodeOEM(b []byte) string {
	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// lfnFragment extracts the UTF-16 code units held by one long-filename
// directory entry fragment, in on-disk (little-endian) order.
func (e rawEntry) lfnFragment() []uint16 {
	units := make([]uint16, 0, lfnName1Chars+lfnName2Chars+lfnName3Chars)
	for i := 0; i < lfnName1Chars; i++ {
		units = append(units, binary.LittleEndian.Uint16(e[lfnName1+2*i:]))
	}
	for i := 0; i < lfnName2Chars; i++ {
		units = append(units, binary.LittleEndian.Uint16(e[lfnName2+2*i:]))
	}
	for i := 0; i < lfnName3Chars; i++ {
		units = append(units, binary.LittleEndian.Uint16(e[lfnName3+2*i:]))
	}
	return units
}

func (e rawEntry) lfnOrdinal() int  { return int(e[lfnOrder] &^ lfnOrderLast) }
func (e rawEntry) lfnIsLast() bool  { return e[lfnOrder]&lfnOrderLast != 0 }
func (e rawEntry) lfnIsDeleted() bool { return e[lfnOrder] == lfnOrderDeleted }
func (e rawEntry) lfnChecksumByte() byte { return e[lfnChecksum] }

// shortNameChecksum computes the checksum an LFN group's fragments must
// agree with, from the raw 11-byte short-name field of the short entry that
// terminates the group.
func shortNameChecksum(shortName11 []byte) byte {
	var sum byte
	for _, c := range shortName11 {
		sum = (sum>>1 | sum<<7) + c
	}
	return sum
}
