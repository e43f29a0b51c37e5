// Package fat32 implements a read-oriented FAT32 directory traversal and
// name-resolution engine on top of a generic block device. It walks cluster
// chains through the File Allocation Table, parses on-disk directory
// entries including the VFAT long-name extension, and exposes operations to
// change directories, list directory contents and stream file contents.
//
// The package never mutates the FAT itself: it does not create, rename or
// delete files, and it does not allocate clusters. Raw block-level
// read/write/erase, when needed, is provided by a companion BlockDevice
// implementation such as package sdspi.
package fat32

import (
	"encoding/binary"
	"fmt"
)

// Byte offsets into a FAT32 boot sector, per the Microsoft FAT32
// on-disk format.
const (
	bpbBytesPerSector      = 11
	bpbSectorsPerCluster   = 13
	bpbReservedSectorCount = 14
	bpbNumberOfFATs        = 16
	bpbFATSize32           = 36
	bpbRootCluster         = 44
	bsSignatureOffset      = 510

	bootSectorSize   = 512
	bootSectorSigLo  = 0x55
	bootSectorSigHi  = 0xAA
	invalidBootLBA   = 0xFFFFFFFF // sentinel: no boot sector found.
	fatEntrySize     = 4
	directoryEntrySz = 32
)

// BPB is the geometry record extracted from a FAT32 volume's boot sector.
// It is populated once by ReadBPB and is immutable thereafter.
type BPB struct {
	// BootSectorLBA is the absolute LBA of the FAT32 boot sector, usually
	// found via an MBR partition table scan.
	BootSectorLBA uint32
	// BytesPerSector must equal 512.
	BytesPerSector uint16
	// SectorsPerCluster is a power of two in [1, 128].
	SectorsPerCluster uint8
	// ReservedSectorCount is the number of sectors preceding the first FAT.
	ReservedSectorCount uint16
	// NumberOfFATs is typically 2.
	NumberOfFATs uint8
	// FATSize32 is the number of sectors occupied by one FAT.
	FATSize32 uint32
	// RootCluster is the FAT index of the root directory's first cluster.
	RootCluster uint32
}

// DataRegionFirstSector returns the LBA of the first sector of the data
// region, where cluster 2 begins.
func (b BPB) DataRegionFirstSector() uint32 {
	return b.BootSectorLBA + uint32(b.ReservedSectorCount) + uint32(b.NumberOfFATs)*b.FATSize32
}

// ClusterToSector returns the first sector LBA occupied by cluster idx. idx
// must be >= 2; the cluster occupies SectorsPerCluster consecutive sectors.
func (b BPB) ClusterToSector(idx uint32) uint32 {
	return b.DataRegionFirstSector() + (idx-2)*uint32(b.SectorsPerCluster)
}

// FATSectorAndOffset returns the FAT sector containing the entry for
// cluster, along with the byte offset of the 4-byte little-endian entry
// within that sector.
//
// The driver this is derived from computes the FAT sector as
// ReservedSectorCount+fatSectorOffset, omitting BootSectorLBA. That is only
// correct when the volume starts at LBA 0. Volume.PartitionRelativeFAT
// controls whether BootSectorLBA is folded in; see DESIGN.md for the
// tradeoffs of each default.
func (b BPB) FATSectorAndOffset(cluster uint32, partitionRelative bool) (sector uint32, byteOffset uint32) {
	entriesPerSector := uint32(b.BytesPerSector) / fatEntrySize
	fatSectorOffset := cluster / entriesPerSector
	byteOffset = fatEntrySize * (cluster % entriesPerSector)
	sector = uint32(b.ReservedSectorCount) + fatSectorOffset
	if partitionRelative {
		sector += b.BootSectorLBA
	}
	return sector, byteOffset
}

// BootSectorFinder locates the LBA of a FAT32 boot sector, e.g. by scanning
// an MBR partition table. It reports failure via ErrBootSectorNotFound
// rather than the sentinel 0xFFFFFFFF value the original C driver returned.
type BootSectorFinder func(dev BlockDevice) (lba uint32, err error)

// ReadBPB locates the FAT32 boot sector using find, validates it, and
// returns the populated geometry record.
func ReadBPB(dev BlockDevice, find BootSectorFinder) (BPB, error) {
	lba, err := find(dev)
	if err != nil {
		return BPB{}, fmt.Errorf("%w: %w", ErrBootSectorNotFound, err)
	}

	buf := make([]byte, bootSectorSize)
	if _, err := dev.ReadBlocks(buf, int64(lba)); err != nil {
		return BPB{}, fmt.Errorf("fat32: reading boot sector: %w", err)
	}

	if buf[bsSignatureOffset] != bootSectorSigLo || buf[bsSignatureOffset+1] != bootSectorSigHi {
		return BPB{}, ErrNotBootSector
	}

	bytesPerSector := binary.LittleEndian.Uint16(buf[bpbBytesPerSector:])
	if bytesPerSector != bootSectorSize {
		return BPB{}, ErrInvalidBytesPerSector
	}

	sectorsPerCluster := buf[bpbSectorsPerCluster]
	if !isPowerOfTwoInRange(sectorsPerCluster, 1, 128) {
		return BPB{}, ErrInvalidSectorsPerCluster
	}

	bpb := BPB{
		BootSectorLBA:       lba,
		BytesPerSector:      bytesPerSector,
		SectorsPerCluster:   sectorsPerCluster,
		ReservedSectorCount: binary.LittleEndian.Uint16(buf[bpbReservedSectorCount:]),
		NumberOfFATs:        buf[bpbNumberOfFATs],
		FATSize32:           binary.LittleEndian.Uint32(buf[bpbFATSize32:]),
		RootCluster:         binary.LittleEndian.Uint32(buf[bpbRootCluster:]),
	}
	return bpb, nil
}

func isPowerOfTwoInRange(v uint8, lo, hi int) bool {
	n := int(v)
	if n < lo || n > hi {
		return false
	}
	return n&(n-1) == 0
}
