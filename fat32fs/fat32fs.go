// Package fat32fs adapts a mounted fat32.Volume to the standard io/fs.FS
// interface, so a FAT32 image can be handed to anything that consumes
// io/fs.FS: text/template, embed-style asset loaders, archive/zip's
// io/fs-based writers, and so on.
package fat32fs

import (
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/go-fat32/fat32sd/fat32"
)

// FS wraps a *fat32.Volume as a read-only io/fs.FS rooted at the volume's
// root directory.
type FS struct {
	vol *fat32.Volume
}

// New returns an FS backed by vol.
func New(vol *fat32.Volume) *FS { return &FS{vol: vol} }

var _ fs.FS = (*FS)(nil)
var _ fs.ReadDirFS = (*FS)(nil)
var _ fs.StatFS = (*FS)(nil)

// Open implements fs.FS. Directories are opened for Stat/ReadDir only;
// reading from a directory's File returns fs.ErrInvalid, matching
// io/fs.FS's contract.
func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	dir, base, err := f.resolveParent(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if base == "." {
		return &dirFile{fs: f, cur: dir, name: name}, nil
	}

	entries, err := f.vol.List(dir, fat32.FilterShortName|fat32.FilterLongName, nil)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	for _, e := range entries {
		if !nameEq(e.Name(), base) {
			continue
		}
		if e.IsDir() {
			sub, err := f.vol.ChangeDirectory(dir, base)
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: name, Err: err}
			}
			return &dirFile{fs: f, cur: sub, name: name}, nil
		}
		buf, info, err := f.vol.ReadFileBytes(dir, base)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &regularFile{name: name, data: buf, info: info}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// ReadDir implements fs.ReadDirFS.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	dir, base, err := f.resolveParent(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if base != "." {
		next, err := f.vol.ChangeDirectory(dir, base)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
		}
		dir = next
	}
	entries, err := f.vol.List(dir, fat32.FilterShortName|fat32.FilterLongName, nil)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	out := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = fs.FileInfoToDirEntry(e)
	}
	return out, nil
}

// Stat implements fs.StatFS.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return file.Stat()
}

// resolveParent walks name's directory components (all but the last) from
// the volume root and returns the resulting Cursor plus the final path
// component ("." for the root itself).
func (f *FS) resolveParent(name string) (fat32.Cursor, string, error) {
	cur := f.vol.Root()
	if name == "." {
		return cur, ".", nil
	}
	dir, base := path.Split(name)
	for _, comp := range strings.Split(strings.Trim(dir, "/"), "/") {
		if comp == "" {
			continue
		}
		next, err := f.vol.ChangeDirectory(cur, comp)
		if err != nil {
			return fat32.Cursor{}, "", err
		}
		cur = next
	}
	return cur, base, nil
}

// nameEq compares two path components byte-exact, matching
// fat32.ChangeDirectory/ReadFile: this adapter never case-folds a name on
// the caller's behalf.
func nameEq(a, b string) bool { return a == b }

type regularFile struct {
	name   string
	data   []byte
	info   fat32.DirEntryInfo
	offset int
}

func (r *regularFile) Stat() (fs.FileInfo, error) { return fsFileInfo{r.info, path.Base(r.name)}, nil }
func (r *regularFile) Close() error               { return nil }

func (r *regularFile) Read(p []byte) (int, error) {
	if r.offset >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.offset:])
	r.offset += n
	return n, nil
}

// Seek lets fat32afero.File satisfy afero.File's io.Seeker requirement
// without re-reading the file from the volume.
func (r *regularFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(r.offset)
	case io.SeekEnd:
		base = int64(len(r.data))
	default:
		return 0, fs.ErrInvalid
	}
	pos := base + offset
	if pos < 0 || pos > int64(len(r.data)) {
		return 0, fs.ErrInvalid
	}
	r.offset = int(pos)
	return pos, nil
}

type dirFile struct {
	fs   *FS
	cur  fat32.Cursor
	name string

	entries []fs.DirEntry // lazily loaded on the first ReadDir call
	loaded  bool
	pos     int
}

func (d *dirFile) Stat() (fs.FileInfo, error) {
	return dirFileInfo{name: path.Base(d.name)}, nil
}
func (d *dirFile) Close() error             { return nil }
func (d *dirFile) Read([]byte) (int, error) { return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid} }
func (d *dirFile) Seek(int64, int) (int64, error) { return 0, nil }

// ReadDir implements fs.ReadDirFile, letting afero's Readdir/Readdirnames
// bridge work through the plain fs.File interface. Successive calls with
// n > 0 page through the directory; n <= 0 returns everything remaining.
func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		entries, err := d.fs.ReadDir(d.name)
		if err != nil {
			return nil, err
		}
		d.entries = entries
		d.loaded = true
	}
	remaining := d.entries[d.pos:]
	if n <= 0 {
		d.pos = len(d.entries)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	d.pos += n
	return remaining[:n], nil
}

type fsFileInfo struct {
	fat32.DirEntryInfo
	base string
}

func (i fsFileInfo) Name() string { return i.base }

type dirFileInfo struct{ name string }

func (dirFileInfo) Size() int64        { return 0 }
func (dirFileInfo) Mode() fs.FileMode  { return fs.ModeDir | 0555 }
func (dirFileInfo) ModTime() time.Time { return time.Time{} }
func (dirFileInfo) IsDir() bool        { return true }
func (dirFileInfo) Sys() any           { return nil }
func (i dirFileInfo) Name() string     { return i.name }
