package fat32

import (
	"io/fs"
	"time"
)

// DirEntryInfo adapts a DirEntry to os.FileInfo, so fat32fs and
// fat32afero can hand entries straight to their io/fs.FS and afero.Fs
// callers without a second parsing pass.
type DirEntryInfo struct {
	entry DirEntry
}

func (i DirEntryInfo) Name() string       { return i.entry.Name() }
func (i DirEntryInfo) Size() int64        { return int64(i.entry.Size) }
func (i DirEntryInfo) ModTime() time.Time { return i.entry.ModifiedAt }
func (i DirEntryInfo) IsDir() bool        { return i.entry.IsDir() }
func (i DirEntryInfo) Sys() any           { return i.entry }

func (i DirEntryInfo) Mode() fs.FileMode {
	var m fs.FileMode
	if i.entry.IsDir() {
		m |= fs.ModeDir
	}
	if i.entry.Attr.IsReadOnly() {
		m |= 0444
	} else {
		m |= 0644
	}
	if i.entry.IsDir() {
		m |= 0111
	}
	return m
}

// ShortName and LongName expose the raw name pair backing this info, for
// callers that need to render both.
func (i DirEntryInfo) ShortName() string { return i.entry.ShortName }
func (i DirEntryInfo) LongName() string  { return i.entry.LongName }
func (i DirEntryInfo) Attr() Attr        { return i.entry.Attr }
func (i DirEntryInfo) CreatedAt() time.Time { return i.entry.CreatedAt }
func (i DirEntryInfo) AccessedAt() time.Time { return i.entry.AccessedAt }
