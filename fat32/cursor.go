package fat32

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Cursor is an explicit handle to a directory within a mounted Volume. It
// replaces the original driver's single mutable global "current directory":
// callers thread a Cursor value through ChangeDirectory/List/ReadFile
// explicitly instead of relying on shared process state, so two goroutines
// (or two shells) can hold independent positions in the same Volume.
type Cursor struct {
	firstCluster uint32

	shortName string
	longName  string

	// shortParentPath and longParentPath are the accumulated path
	// components down to but excluding this cursor's own name, kept in
	// both name flavors so callers can render either.
	shortParentPath string
	longParentPath  string
}

// ShortName returns the cursor's 8.3 directory name ("/" for the root).
func (c Cursor) ShortName() string { return c.shortName }

// LongName returns the cursor's long name if it had one, else its short
// name.
func (c Cursor) LongName() string {
	if c.longName != "" {
		return c.longName
	}
	return c.shortName
}

// ShortPath returns the full short-name path from the root to this cursor.
func (c Cursor) ShortPath() string { return path.Join(c.shortParentPath, c.shortName) }

// LongPath returns the full long-name path from the root to this cursor.
func (c Cursor) LongPath() string { return path.Join(c.longParentPath, c.LongName()) }

// ChangeDirectory resolves name (matched against both the short and long
// name of each entry, byte-exact) within cur and returns a Cursor positioned
// there. "." is handled without a directory scan; ".." is resolved by
// parentOf, which re-walks cur's short parent path from the root.
//
// It is built on the same dirIterator that backs List and ReadFile, so
// there is one directory traversal implementation, not three.
func (v *Volume) ChangeDirectory(cur Cursor, name string) (Cursor, error) {
	if !nameIsValid(name) {
		return Cursor{}, ErrInvalidDirName
	}
	if name == "." {
		return cur, nil
	}
	if name == ".." {
		return v.parentOf(cur)
	}

	it := v.newDirIterator(cur.firstCluster, FilterShortName|FilterLongName)
	for {
		entry, ok, err := it.next()
		if err != nil {
			return Cursor{}, err
		}
		if !ok {
			return Cursor{}, ErrDirNotFound
		}
		if !entry.IsDir() {
			continue
		}
		if !nameMatches(entry, name) {
			continue
		}
		return Cursor{
			firstCluster:    resolveDirCluster(v, entry),
			shortName:       entry.ShortName,
			longName:        entry.LongName,
			shortParentPath: cur.ShortPath(),
			longParentPath:  cur.LongPath(),
		}, nil
	}
}

// parentOf walks from the volume root to find cur's parent, since a
// directory's ".." entry only stores a first cluster, not a name; the
// engine must re-derive the parent's own name for path rendering.
func (v *Volume) parentOf(cur Cursor) (Cursor, error) {
	if cur.firstCluster == v.bpb.RootCluster || cur.shortParentPath == "" {
		return v.Root(), nil
	}
	parentPath := cur.shortParentPath
	c := v.Root()
	for _, comp := range strings.Split(strings.Trim(parentPath, "/"), "/") {
		if comp == "" {
			continue
		}
		next, err := v.ChangeDirectory(c, comp)
		if err != nil {
			return Cursor{}, err
		}
		c = next
	}
	return c, nil
}

func resolveDirCluster(v *Volume, entry DirEntry) uint32 {
	if entry.FirstCluster == 0 {
		// A subdirectory's first cluster is occasionally recorded as 0 for
		// FAT12/16 root-relative entries; on FAT32 this only legitimately
		// happens for a corrupt entry, so route to volume root as the
		// least-surprising fallback rather than failing the whole walk.
		return v.bpb.RootCluster
	}
	return entry.FirstCluster
}

// illegalNameChars are the characters ChangeDirectory/ReadFile refuse
// to resolve in a user-supplied name.
const illegalNameChars = `\/:*?"<>|`

// nameIsValid reports whether name is non-empty, does not start with a
// space, is not all spaces, and contains none of illegalNameChars.
func nameIsValid(name string) bool {
	if name == "" || name[0] == ' ' {
		return false
	}
	allSpaces := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != ' ' {
			allSpaces = false
		}
		if strings.IndexByte(illegalNameChars, c) >= 0 {
			return false
		}
	}
	return !allSpaces
}

// nameMatches compares name against entry's long name, if it has one, and
// against the raw 11-byte short-name field otherwise or as a fallback.
// Both comparisons are byte-exact: matches are never case-folded.
func nameMatches(entry DirEntry, name string) bool {
	if entry.LongName != "" && entry.LongName == name {
		return true
	}
	return shortNameRawMatches(entry.shortNameRaw, name)
}

// shortNameRawMatches implements the 8.3 short-name match rule against the
// raw on-disk name field: if name is at most 8 characters and has no dot,
// its bytes must match bytes 0..len exactly and the remaining name bytes
// (up to 8) must be spaces. If name has a dot, it is split there, the name
// portion is padded to 8 bytes with spaces and matched against bytes 0..7,
// and the extension is padded to 3 bytes with spaces and matched against
// bytes 8..10.
func shortNameRawMatches(raw [11]byte, name string) bool {
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		if len(name) > 8 {
			return false
		}
		for i := 0; i < len(name); i++ {
			if raw[i] != name[i] {
				return false
			}
		}
		for i := len(name); i < 8; i++ {
			if raw[i] != ' ' {
				return false
			}
		}
		return true
	}

	base, ext := name[:dot], name[dot+1:]
	if len(base) > 8 || len(ext) > 3 {
		return false
	}
	for i := 0; i < 8; i++ {
		want := byte(' ')
		if i < len(base) {
			want = base[i]
		}
		if raw[i] != want {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		want := byte(' ')
		if i < len(ext) {
			want = ext[i]
		}
		if raw[8+i] != want {
			return false
		}
	}
	return true
}

// List returns every entry of cur matching filter, and additionally
// streams a header row plus one line per live entry to w, if w is non-nil.
// The header and each entry's date/time columns are selected by filter;
// SIZE and TYPE are always printed, tagged "<DIR>" or "<FILE>".
func (v *Volume) List(cur Cursor, filter EntryFilter, w io.Writer) ([]DirEntryInfo, error) {
	it := v.newDirIterator(cur.firstCluster, filter)
	if w != nil {
		if _, err := io.WriteString(w, listHeader(filter)); err != nil {
			return nil, err
		}
	}
	var out []DirEntryInfo
	for {
		entry, ok, err := it.next()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, DirEntryInfo{entry: entry})
		if w != nil {
			if _, err := io.WriteString(w, listLine(entry, filter)); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// listHeader renders the column header for the date/time fields filter
// selects, followed by the always-present " SIZE, TYPE, NAME" columns.
func listHeader(filter EntryFilter) string {
	var b strings.Builder
	b.WriteString("\n")
	if filter&FilterCreationTime != 0 {
		b.WriteString(" CREATION DATE & TIME,")
	}
	if filter&FilterLastAccessTime != 0 {
		b.WriteString(" LAST ACCESS DATE,")
	}
	if filter&FilterLastModifiedTime != 0 {
		b.WriteString(" LAST MODIFIED DATE & TIME,")
	}
	b.WriteString(" SIZE, TYPE, NAME\n")
	return b.String()
}

// listLine renders one directory entry's row, in the same column order as
// listHeader.
func listLine(entry DirEntry, filter EntryFilter) string {
	var b strings.Builder
	if filter&FilterCreationTime != 0 {
		fmt.Fprintf(&b, "    %s", formatDateTime(entry.CreatedAt))
	}
	if filter&FilterLastAccessTime != 0 {
		fmt.Fprintf(&b, "     %s", formatDate(entry.AccessedAt))
	}
	if filter&FilterLastModifiedTime != 0 {
		fmt.Fprintf(&b, "     %s", formatDateTime(entry.ModifiedAt))
	}
	fmt.Fprintf(&b, "     %7dB  ", entry.Size)
	if entry.IsDir() {
		b.WriteString(" <DIR>   ")
	} else {
		b.WriteString(" <FILE>  ")
	}
	name := entry.ShortName
	if filter&FilterLongName != 0 {
		name = entry.Name()
	}
	b.WriteString(name)
	b.WriteString("\n")
	return b.String()
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "00/00/0000  00:00:00"
	}
	return t.Format("01/02/2006  15:04:05")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "00/00/0000"
	}
	return t.Format("01/02/2006")
}

// ReadFile locates name within cur and streams its contents to w,
// translating each LF to CRLF and dropping NUL bytes, matching the source
// driver's plain-text console output. It stops after Volume.MaxFileClusters
// clusters if that limit is non-zero, preserving the original driver's
// historical print-length cap unless the caller overrode it with
// WithMaxFileClusters.
func (v *Volume) ReadFile(cur Cursor, name string, w io.Writer) (DirEntryInfo, error) {
	if !nameIsValid(name) {
		return DirEntryInfo{}, ErrInvalidFileName
	}
	it := v.newDirIterator(cur.firstCluster, FilterShortName|FilterLongName)
	var found DirEntry
	ok := false
	for {
		entry, more, err := it.next()
		if err != nil {
			return DirEntryInfo{}, err
		}
		if !more {
			break
		}
		if entry.IsDir() {
			continue
		}
		if nameMatches(entry, name) {
			found, ok = entry, true
			break
		}
	}
	if !ok {
		return DirEntryInfo{}, ErrFileNotFound
	}

	if found.FirstCluster == 0 || found.Size == 0 {
		return DirEntryInfo{entry: found}, nil
	}

	chain := v.chainFrom(found.FirstCluster)
	remaining := int64(found.Size)
	var buf [sectorSize]byte
	clustersSeen := 0
	sectorsPerCluster := int(v.bpb.SectorsPerCluster)
	sectorInCluster := 0
	for remaining > 0 {
		sector, more, err := chain.next()
		if err != nil {
			return DirEntryInfo{entry: found}, err
		}
		if !more {
			break
		}
		if sectorInCluster == 0 {
			clustersSeen++
			if v.MaxFileClusters > 0 && clustersSeen > v.MaxFileClusters {
				break
			}
		}
		sectorInCluster = (sectorInCluster + 1) % sectorsPerCluster

		if _, err := v.dev.ReadBlocks(buf[:], int64(sector)); err != nil {
			return DirEntryInfo{entry: found}, err
		}
		n := int64(sectorSize)
		if n > remaining {
			n = remaining
		}
		if err := writeTextTranslated(w, buf[:n]); err != nil {
			return DirEntryInfo{entry: found}, err
		}
		remaining -= n
	}
	return DirEntryInfo{entry: found}, nil
}

// writeTextTranslated writes chunk to w the way the source driver's console
// print loop does: '\n' becomes "\r\n" and 0x00 bytes are dropped rather
// than written.
func writeTextTranslated(w io.Writer, chunk []byte) error {
	var out bytes.Buffer
	out.Grow(len(chunk))
	for _, b := range chunk {
		switch b {
		case 0:
			continue
		case '\n':
			out.WriteString("\r\n")
		default:
			out.WriteByte(b)
		}
	}
	if out.Len() == 0 {
		return nil
	}
	_, err := w.Write(out.Bytes())
	return err
}

// ReadFileBytes is a convenience wrapper over ReadFile that returns the
// file's content as a byte slice, bounded the same way ReadFile is.
func (v *Volume) ReadFileBytes(cur Cursor, name string) ([]byte, DirEntryInfo, error) {
	var buf bytes.Buffer
	info, err := v.ReadFile(cur, name, &buf)
	return buf.Bytes(), info, err
}
