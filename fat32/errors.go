package fat32

// Error is a FAT-semantic fault returned by the directory engine or the
// boot-sector loader. It replaces the packed upper-byte flag codes of the
// original driver with a small set of comparable sentinel values.
type Error struct {
	kind string
}

func (e Error) Error() string { return "fat32: " + e.kind }

// Is reports whether target is the same Error kind, so callers can use
// errors.Is(err, fat32.ErrFileNotFound) instead of comparing packed codes.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.kind == e.kind
}

// FAT-semantic faults returned by the directory engine and boot-sector
// loader.
var (
	ErrInvalidFileName          = Error{"invalid file name"}
	ErrInvalidDirName           = Error{"invalid directory name"}
	ErrFileNotFound             = Error{"file not found"}
	ErrDirNotFound              = Error{"directory not found"}
	ErrEndOfDirectory           = Error{"end of directory"}
	ErrEndOfFile                = Error{"end of file"}
	ErrCorruptFATEntry          = Error{"corrupt FAT entry: long-name group missing ordinal 1"}
	ErrNotADirectory            = Error{"entry is not a directory"}
	ErrIsADirectory             = Error{"entry is a directory"}
	ErrBootSectorNotFound       = Error{"boot sector not found"}
	ErrNotBootSector            = Error{"not a boot sector: missing 0x55AA signature"}
	ErrInvalidBytesPerSector    = Error{"invalid bytes per sector: must be 512"}
	ErrInvalidSectorsPerCluster = Error{"invalid sectors per cluster: must be a power of two in [1,128]"}
	ErrInvalidCluster           = Error{"cluster index out of range"}
)
