package fat32

import (
	"github.com/go-fat32/fat32sd/internal/mbr"
)

// FixedBootSector returns a BootSectorFinder that always reports lba,
// skipping any partition-table scan. Use it for volumes formatted without
// a partition table, e.g. many SD cards below 2 GiB shipped SDSC.
func FixedBootSector(lba uint32) BootSectorFinder {
	return func(BlockDevice) (uint32, error) { return lba, nil }
}

// MBRBootSector returns a BootSectorFinder that reads the Master Boot
// Record at LBA 0 and returns the start LBA of the first FAT32 partition
// it finds (type 0x0B or 0x0C), scanning all four primary partition
// entries in order. It is built on internal/mbr rather than reimplementing
// MBR parsing here.
func MBRBootSector() BootSectorFinder {
	return func(dev BlockDevice) (uint32, error) {
		buf := make([]byte, bootSectorSize)
		if _, err := dev.ReadBlocks(buf, 0); err != nil {
			return 0, err
		}
		bs, err := mbr.ToBootSector(buf)
		if err != nil {
			return 0, err
		}
		if bs.BootSignature() != mbr.BootSignature {
			return 0, ErrNotBootSector
		}
		for i := 0; i < 4; i++ {
			pte := bs.PartitionTable(i)
			switch pte.PartitionType() {
			case mbr.PartitionTypeFAT32CHS, mbr.PartitionTypeFAT32LBA:
				return pte.StartLBA(), nil
			}
		}
		return 0, ErrBootSectorNotFound
	}
}
