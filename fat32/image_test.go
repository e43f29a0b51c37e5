package fat32

import "encoding/binary"

// testImage builds a small synthetic FAT32 volume in memory for exercising
// ReadBPB, the cluster-chain walker and the directory engine end to end,
// hand-assembling boot sectors and directory blocks rather than shipping a
// binary fixture.
//
// Geometry: 512-byte sectors, 1 sector per cluster, 1 FAT, boot sector at
// LBA 0, FAT at LBA 32..39, data region starting at LBA 40 (cluster 2).
type testImage struct {
	dev *memDevice
}

const (
	testReservedSectors = 32
	testFATSize         = 8
	testDataFirstSector = testReservedSectors + testFATSize // 40
)

func newTestImage(totalSectors int) *testImage {
	dev := newMemDevice(totalSectors)
	bs := dev.sector(0)
	binary.LittleEndian.PutUint16(bs[bpbBytesPerSector:], 512)
	bs[bpbSectorsPerCluster] = 1
	binary.LittleEndian.PutUint16(bs[bpbReservedSectorCount:], testReservedSectors)
	bs[bpbNumberOfFATs] = 1
	binary.LittleEndian.PutUint32(bs[bpbFATSize32:], testFATSize)
	binary.LittleEndian.PutUint32(bs[bpbRootCluster:], 2)
	bs[bsSignatureOffset] = bootSectorSigLo
	bs[bsSignatureOffset+1] = bootSectorSigHi
	return &testImage{dev: dev}
}

// setFAT writes a chain entry, cluster -> next, into the (only) FAT.
func (ti *testImage) setFAT(cluster, next uint32) {
	fatSector := ti.dev.sector(testReservedSectors)
	binary.LittleEndian.PutUint32(fatSector[cluster*4:], next)
}

func (ti *testImage) clusterSector(cluster uint32) []byte {
	return ti.dev.sector(int64(testDataFirstSector) + int64(cluster-2))
}

func (ti *testImage) putContent(cluster uint32, data []byte) {
	copy(ti.clusterSector(cluster), data)
}

// dirBuilder accumulates 32-byte entries for one directory cluster.
type dirBuilder struct {
	buf []byte
}

func newDirBuilder() *dirBuilder { return &dirBuilder{} }

func (d *dirBuilder) shortEntry(name8, ext3 string, attr Attr, cluster, size uint32) {
	var e [32]byte
	copy(e[0:8], padRight(name8, 8))
	copy(e[8:11], padRight(ext3, 3))
	e[11] = byte(attr)
	binary.LittleEndian.PutUint16(e[20:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(e[26:], uint16(cluster))
	binary.LittleEndian.PutUint32(e[28:], size)
	d.buf = append(d.buf, e[:]...)
}

// lfnEntry appends a single-fragment long-name entry (sufficient for
// names up to 13 UTF-16 units, which covers every name exercised here).
func (d *dirBuilder) lfnEntry(name string, checksum byte) {
	units := utf16Units(name)
	var padded [13]uint16
	for i := range padded {
		padded[i] = 0xFFFF
	}
	for i, u := range units {
		padded[i] = u
	}
	if len(units) < 13 {
		padded[len(units)] = 0x0000
	}
	var e [32]byte
	e[0] = 0x40 | 0x01 // last, ordinal 1
	e[11] = byte(attrLongName)
	e[13] = checksum
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(e[1+2*i:], padded[i])
	}
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(e[14+2*i:], padded[5+i])
	}
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(e[28+2*i:], padded[11+i])
	}
	d.buf = append(d.buf, e[:]...)
}

func (d *dirBuilder) end() {
	d.buf = append(d.buf, make([]byte, 32)...) // free marker (all zero)
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func utf16Units(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r > 0xFFFF {
			r = '?'
		}
		out = append(out, uint16(r))
	}
	return out
}

func shortNameChecksumOf(name8, ext3 string) byte {
	full := append(padRight(name8, 8), padRight(ext3, 3)...)
	return shortNameChecksum(full)
}
