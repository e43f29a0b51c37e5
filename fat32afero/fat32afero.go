// Package fat32afero adapts a mounted fat32.Volume to the afero.Fs
// interface as a read-only filesystem. This package wraps fat32.Volume
// instead of reimplementing traversal, and rejects every mutating call
// with syscall.EROFS since fat32.Volume never writes to the FAT.
package fat32afero

import (
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/go-fat32/fat32sd/fat32"
	"github.com/go-fat32/fat32sd/fat32fs"
	"github.com/spf13/afero"
)

// Fs adapts a *fat32.Volume to afero.Fs.
type Fs struct {
	inner *fat32fs.FS
	vol   *fat32.Volume
}

// New returns a read-only afero.Fs backed by vol.
func New(vol *fat32.Volume) afero.Fs {
	return &Fs{inner: fat32fs.New(vol), vol: vol}
}

var _ afero.Fs = (*Fs)(nil)

func (f *Fs) Name() string { return "fat32afero" }

func (f *Fs) Open(name string) (afero.File, error) {
	name = trimLeadingSlash(name)
	file, err := f.inner.Open(name)
	if err != nil {
		return nil, err
	}
	return &File{name: name, f: file, vol: f.vol}, nil
}

func (f *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_TRUNC) != 0 {
		return nil, syscall.EROFS
	}
	return f.Open(name)
}

func (f *Fs) Stat(name string) (os.FileInfo, error) {
	return f.inner.Stat(trimLeadingSlash(name))
}

func (f *Fs) Create(string) (afero.File, error)          { return nil, syscall.EROFS }
func (f *Fs) Mkdir(string, os.FileMode) error            { return syscall.EROFS }
func (f *Fs) MkdirAll(string, os.FileMode) error         { return syscall.EROFS }
func (f *Fs) Remove(string) error                        { return syscall.EROFS }
func (f *Fs) RemoveAll(string) error                     { return syscall.EROFS }
func (f *Fs) Rename(string, string) error                { return syscall.EROFS }
func (f *Fs) Chmod(string, os.FileMode) error            { return syscall.EROFS }
func (f *Fs) Chtimes(string, time.Time, time.Time) error { return syscall.EROFS }
func (f *Fs) Chown(string, int, int) error               { return syscall.EROFS }

func trimLeadingSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == "" {
		return "."
	}
	return name
}

// File adapts an fs.File opened through fat32fs to afero.File. Only the
// read-oriented subset of afero.File is meaningfully implemented; write
// operations return syscall.EROFS.
type File struct {
	name string
	f    fs.File
	vol  *fat32.Volume
}

func (f *File) Close() error               { return f.f.Close() }
func (f *File) Read(p []byte) (int, error) { return f.f.Read(p) }
func (f *File) Name() string               { return f.name }
func (f *File) Stat() (os.FileInfo, error) { return f.f.Stat() }

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	seeker, ok := f.f.(interface {
		Seek(offset int64, whence int) (int64, error)
	})
	if !ok {
		return 0, syscall.ENOTSUP
	}
	if _, err := seeker.Seek(off, 0); err != nil {
		return 0, err
	}
	return f.f.Read(p)
}

func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	dir, ok := f.f.(fs.ReadDirFile)
	if !ok {
		return nil, syscall.ENOTDIR
	}
	entries, err := dir.ReadDir(count)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, len(entries))
	for i, e := range entries {
		infos[i], err = e.Info()
		if err != nil {
			return infos[:i], err
		}
	}
	return infos, nil
}

func (f *File) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

func (f *File) Sync() error { return nil }

func (f *File) Seek(offset int64, whence int) (int64, error) {
	seeker, ok := f.f.(interface {
		Seek(offset int64, whence int) (int64, error)
	})
	if !ok {
		return 0, syscall.ENOTSUP
	}
	return seeker.Seek(offset, whence)
}

func (f *File) Write([]byte) (int, error)         { return 0, syscall.EROFS }
func (f *File) WriteAt([]byte, int64) (int, error) { return 0, syscall.EROFS }
func (f *File) WriteString(string) (int, error)    { return 0, syscall.EROFS }
func (f *File) Truncate(int64) error               { return syscall.EROFS }
