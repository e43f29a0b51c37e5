package fat32

import (
	"encoding/binary"
	"time"

	"github.com/go-fat32/fat32sd/internal/utf16x"
)

// EntryFilter is a bitmask selecting which fields List and the directory
// iterator populate and which entries they yield, replacing a run of
// positional boolean parameters with a single composable value.
type EntryFilter uint8

const (
	FilterShortName EntryFilter = 1 << iota
	FilterLongName
	FilterHidden // include entries with AttrHidden set
	FilterCreationTime
	FilterLastAccessTime
	FilterLastModifiedTime

	FilterAll = FilterShortName | FilterLongName | FilterHidden |
		FilterCreationTime | FilterLastAccessTime | FilterLastModifiedTime
)

// DirEntry is one resolved directory entry: a short 8.3 name merged with
// its VFAT long name, if any. It is the shared result type produced by the
// single traversal iterator that backs ChangeDirectory, List and ReadFile.
type DirEntry struct {
	ShortName    string
	LongName     string // empty if the entry has no LFN fragments
	Attr         Attr
	FirstCluster uint32
	Size         uint32
	CreatedAt    time.Time
	ModifiedAt   time.Time
	AccessedAt   time.Time

	// shortNameRaw is the undecoded 11-byte 8.3 field, kept alongside the
	// human-readable ShortName so name matching can compare raw bytes
	// instead of the OEM-decoded, dot-joined display string.
	shortNameRaw [11]byte
}

// Name returns LongName if present, else ShortName.
func (d DirEntry) Name() string {
	if d.LongName != "" {
		return d.LongName
	}
	return d.ShortName
}

func (d DirEntry) IsDir() bool { return d.Attr.IsDirectory() }

// dirIterator walks the 32-byte slots of a directory's cluster chain,
// assembling VFAT long-name groups and yielding one DirEntry per
// short-name entry.
type dirIterator struct {
	vol    *Volume
	chain  *clusterChainSectors
	filter EntryFilter

	sectorBuf [sectorSize]byte
	haveSect  bool
	offset    int // byte offset of next unread entry within sectorBuf

	pendingUnits []uint16 // LFN code units accumulated so far, in name order
	pendingChk   byte
	haveLFN      bool
	expectOrd    int

	// prevOrdinal1 records whether the immediately preceding raw slot was a
	// long-name fragment with ordinal 1, the invariant a short-name entry
	// with a pending long-name group must satisfy.
	prevOrdinal1 bool
}

func (v *Volume) newDirIterator(firstCluster uint32, filter EntryFilter) *dirIterator {
	return &dirIterator{vol: v, chain: v.chainFrom(firstCluster), filter: filter}
}

// next returns the next resolved entry, or ok=false at end of directory.
// Deleted and volume-label entries are skipped transparently, as are hidden
// entries unless the filter includes FilterHidden; a free (0x00) entry ends
// the directory.
func (it *dirIterator) next() (DirEntry, bool, error) {
	for {
		raw, ok, err := it.nextRaw()
		if err != nil {
			return DirEntry{}, false, err
		}
		if !ok {
			return DirEntry{}, false, nil
		}
		wasOrdinal1 := raw.isLongNamePart() && !raw.lfnIsDeleted() && raw.lfnOrdinal() == 1
		if raw.isFree() {
			// A free marker (0x00) ends the directory in the source driver;
			// entries never follow a free slot.
			return DirEntry{}, false, nil
		}
		if raw.isDeleted() {
			it.resetLFN()
			continue
		}
		if raw.isLongNamePart() {
			it.accumulateLFN(raw)
			it.prevOrdinal1 = wasOrdinal1
			continue
		}
		if raw.attr().IsVolumeID() {
			it.resetLFN()
			continue
		}

		if it.haveLFN && !it.prevOrdinal1 {
			it.resetLFN()
			return DirEntry{}, false, ErrCorruptFATEntry
		}

		var shortNameRaw [11]byte
		copy(shortNameRaw[:], raw[deShortName:deShortName+11])
		entry := DirEntry{
			ShortName:    raw.shortName(),
			Attr:         raw.attr(),
			FirstCluster: raw.firstCluster(),
			Size:         raw.fileSize(),
			shortNameRaw: shortNameRaw,
		}
		if it.filter&FilterCreationTime != 0 {
			entry.CreatedAt = raw.createdAt()
		}
		if it.filter&FilterLastModifiedTime != 0 {
			entry.ModifiedAt = raw.modifiedAt()
		}
		if it.filter&FilterLastAccessTime != 0 {
			entry.AccessedAt = raw.accessedAt()
		}
		if it.filter&FilterLongName != 0 && it.haveLFN {
			if it.pendingChk == shortNameChecksum(raw[deShortName:deShortName+11]) {
				entry.LongName = decodeLFNUnits(it.pendingUnits)
			} else {
				// A checksum mismatch means the long-name group belongs to
				// a different (deleted) short entry; silently fall back to
				// the short name, matching the source driver's tolerance
				// of stale LFN fragments left behind by careless deletion.
				it.vol.warn("fat32: LFN checksum mismatch, discarding stale fragment",
					"shortName", raw.shortName())
			}
		}
		it.resetLFN()

		if entry.Attr.IsHidden() && it.filter&FilterHidden == 0 {
			continue
		}
		return entry, true, nil
	}
}

func (it *dirIterator) resetLFN() {
	it.pendingUnits = nil
	it.haveLFN = false
	it.expectOrd = 0
	it.prevOrdinal1 = false
}

// accumulateLFN folds one long-name fragment into the pending name buffer.
// Fragments arrive in descending ordinal order (last logical fragment
// first).
func (it *dirIterator) accumulateLFN(raw rawEntry) {
	if raw.lfnIsDeleted() {
		return
	}
	ord := raw.lfnOrdinal() & lfnMaxOrdinal
	if raw.lfnIsLast() {
		it.resetLFN()
		it.pendingUnits = make([]uint16, ord*13)
		it.pendingChk = raw.lfnChecksumByte()
		it.haveLFN = true
		it.expectOrd = ord
	}
	if !it.haveLFN || ord != it.expectOrd || ord == 0 {
		return
	}
	frag := raw.lfnFragment()
	start := (ord - 1) * 13
	copy(it.pendingUnits[start:start+13], frag)
	it.expectOrd--
}

// decodeLFNUnits converts the assembled UTF-16LE code units to a string,
// preserving the source driver's long-standing quirk of silently dropping
// (not truncating on) any unit that is 0x0000 mid-string or exceeds 126,
// rather than treating either as end-of-name. The one exception is the
// 0xFFFF padding unit, which ends the name.
func decodeLFNUnits(units []uint16) string {
	filtered := make([]uint16, 0, len(units))
	for _, u := range units {
		if u == 0xFFFF {
			break // padding after the terminating NUL in a partial fragment
		}
		if u == 0x0000 || u > 126 {
			continue
		}
		filtered = append(filtered, u)
	}
	raw := make([]byte, len(filtered)*2)
	for i, u := range filtered {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	dst := make([]byte, len(raw)*3)
	// n is the valid encoded prefix even when ToUTF8 stops early on a bad
	// surrogate pair, so a truncated name beats dropping it entirely.
	n, _ := utf16x.ToUTF8(dst, raw, binary.LittleEndian)
	return string(dst[:n])
}

// nextRaw returns the next 32-byte slot across the directory's cluster
// chain, transparently crossing sector and cluster boundaries.
func (it *dirIterator) nextRaw() (rawEntry, bool, error) {
	if !it.haveSect || it.offset >= sectorSize {
		sector, ok, err := it.chain.next()
		if err != nil {
			return rawEntry{}, false, err
		}
		if !ok {
			return rawEntry{}, false, nil
		}
		if _, err := it.vol.dev.ReadBlocks(it.sectorBuf[:], int64(sector)); err != nil {
			return rawEntry{}, false, err
		}
		it.haveSect = true
		it.offset = 0
	}
	var raw rawEntry
	copy(raw[:], it.sectorBuf[it.offset:it.offset+directoryEntrySz])
	it.offset += directoryEntrySz
	return raw, true, nil
}
