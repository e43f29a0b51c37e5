package fat32

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildSample assembles a volume on the testImage geometry described in
// image_test.go's doc comment: a root directory with README.TXT, a
// long-named file and a SUBDIR containing INSIDE.TXT.
func buildSample(t *testing.T) *Volume {
	t.Helper()
	img := newTestImage(64)

	readme := []byte("Hello from README\n")
	inside := []byte("Hello from inside\n")
	longContent := bytes.Repeat([]byte("0123456789"), 60) // 600 bytes, spans clusters 6,7

	img.putContent(3, readme)
	img.putContent(5, inside)
	img.putContent(6, longContent[:512])
	img.putContent(7, longContent[512:])

	img.setFAT(2, EndOfCluster)
	img.setFAT(3, EndOfCluster)
	img.setFAT(4, EndOfCluster)
	img.setFAT(5, EndOfCluster)
	img.setFAT(6, 7)
	img.setFAT(7, EndOfCluster)

	root := newDirBuilder()
	root.shortEntry("README", "TXT", AttrArchive, 3, uint32(len(readme)))
	root.lfnEntry("longname.txt", shortNameChecksumOf("LONGNA~1", "TXT"))
	root.shortEntry("LONGNA~1", "TXT", AttrArchive, 6, uint32(len(longContent)))
	root.shortEntry("SUBDIR", "", AttrDirectory, 4, 0)
	root.end()
	img.putContent(2, root.buf)

	sub := newDirBuilder()
	sub.shortEntry(".", "", AttrDirectory, 4, 0)
	sub.shortEntry("..", "", AttrDirectory, 0, 0)
	sub.shortEntry("INSIDE", "TXT", AttrArchive, 5, uint32(len(inside)))
	sub.end()
	img.putContent(4, sub.buf)

	vol, err := Mount(img.dev, FixedBootSector(0))
	require.NoError(t, err)
	return vol
}

func TestReadBPB(t *testing.T) {
	vol := buildSample(t)
	bpb := vol.BPB()
	require.EqualValues(t, 512, bpb.BytesPerSector)
	require.EqualValues(t, 1, bpb.SectorsPerCluster)
	require.EqualValues(t, 2, bpb.RootCluster)
	require.EqualValues(t, testDataFirstSector, bpb.DataRegionFirstSector())
}

func TestNextCluster(t *testing.T) {
	vol := buildSample(t)
	next, err := vol.nextCluster(6)
	require.NoError(t, err)
	require.EqualValues(t, 7, next)

	next, err = vol.nextCluster(7)
	require.NoError(t, err)
	require.GreaterOrEqual(t, next, EndOfCluster)
}

func TestListRoot(t *testing.T) {
	vol := buildSample(t)
	entries, err := vol.List(vol.Root(), FilterAll, nil)
	require.NoError(t, err)

	names := map[string]DirEntry{}
	for _, e := range entries {
		names[e.Name()] = e.entry
	}
	require.Contains(t, names, "README.TXT")
	require.Contains(t, names, "longname.txt")
	require.Contains(t, names, "SUBDIR")
	require.True(t, names["SUBDIR"].IsDir())
	require.False(t, names["README.TXT"].IsDir())
}

func TestListRootRendering(t *testing.T) {
	vol := buildSample(t)
	var buf bytes.Buffer
	entries, err := vol.List(vol.Root(), FilterShortName|FilterLongName, &buf)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	out := buf.String()
	require.Contains(t, out, " SIZE, TYPE, NAME")
	require.Contains(t, out, " <DIR>   SUBDIR")
	require.Contains(t, out, " <FILE>  README.TXT")
	require.Contains(t, out, " <FILE>  longname.txt")
}

func TestChangeDirectoryAndDotDot(t *testing.T) {
	vol := buildSample(t)
	sub, err := vol.ChangeDirectory(vol.Root(), "SUBDIR")
	require.NoError(t, err)
	require.Equal(t, "SUBDIR", sub.ShortName())

	back, err := vol.ChangeDirectory(sub, "..")
	require.NoError(t, err)
	require.Equal(t, "/", back.ShortName())

	_, err = vol.ChangeDirectory(vol.Root(), "NOPE")
	require.ErrorIs(t, err, ErrDirNotFound)
}

func TestReadFileShortName(t *testing.T) {
	vol := buildSample(t)
	var buf bytes.Buffer
	_, err := vol.ReadFile(vol.Root(), "README.TXT", &buf)
	require.NoError(t, err)
	require.Equal(t, "Hello from README\r\n", buf.String())
}

func TestReadFileLongName(t *testing.T) {
	vol := buildSample(t)
	var buf bytes.Buffer
	_, err := vol.ReadFile(vol.Root(), "longname.txt", &buf)
	require.NoError(t, err)
	require.Len(t, buf.Bytes(), 600)
}

func TestReadFileInSubdirectory(t *testing.T) {
	vol := buildSample(t)
	sub, err := vol.ChangeDirectory(vol.Root(), "SUBDIR")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = vol.ReadFile(sub, "INSIDE.TXT", &buf)
	require.NoError(t, err)
	require.Equal(t, "Hello from inside\r\n", buf.String())
}

func TestReadFileNotFound(t *testing.T) {
	vol := buildSample(t)
	var buf bytes.Buffer
	_, err := vol.ReadFile(vol.Root(), "MISSING.TXT", &buf)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestMaxFileClustersCap(t *testing.T) {
	img := newTestImage(64)
	content := bytes.Repeat([]byte("x"), 512*3)
	img.putContent(3, content[:512])
	img.putContent(4, content[512:1024])
	img.putContent(5, content[1024:])
	img.setFAT(2, EndOfCluster)
	img.setFAT(3, 4)
	img.setFAT(4, 5)
	img.setFAT(5, EndOfCluster)

	root := newDirBuilder()
	root.shortEntry("BIG", "BIN", AttrArchive, 3, uint32(len(content)))
	root.end()
	img.putContent(2, root.buf)

	vol, err := Mount(img.dev, FixedBootSector(0), WithMaxFileClusters(2))
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = vol.ReadFile(vol.Root(), "BIG.BIN", &buf)
	require.NoError(t, err)
	require.Len(t, buf.Bytes(), 1024) // capped at 2 clusters, not the full 3
}

func TestMBRBootSector(t *testing.T) {
	dev := newMemDevice(64)
	mbrSector := dev.sector(0)
	// Partition entry 0 at offset 446: bootable flag, CHS start (unused),
	// type 0x0C (FAT32 LBA), CHS end (unused), start LBA, size.
	mbrSector[446] = 0x80
	mbrSector[446+4] = 0x0C
	putLE32(mbrSector[446+8:], 40)
	putLE32(mbrSector[446+12:], 1000)
	mbrSector[510] = 0x55
	mbrSector[511] = 0xAA

	// The FAT32 boot sector itself lives at LBA 40 in this scenario.
	bs := dev.sector(40)
	putLE16(bs[bpbBytesPerSector:], 512)
	bs[bpbSectorsPerCluster] = 1
	putLE16(bs[bpbReservedSectorCount:], 8)
	bs[bpbNumberOfFATs] = 1
	putLE32(bs[bpbFATSize32:], 1)
	putLE32(bs[bpbRootCluster:], 2)
	bs[bsSignatureOffset] = 0x55
	bs[bsSignatureOffset+1] = 0xAA

	bpb, err := ReadBPB(dev, MBRBootSector())
	require.NoError(t, err)
	require.EqualValues(t, 40, bpb.BootSectorLBA)
}

func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
