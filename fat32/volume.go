package fat32

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// EndOfCluster is the sentinel FAT32 entry value (and above) denoting the
// last cluster of a chain.
const EndOfCluster uint32 = 0x0FFFFFF8

const clusterValueMask = 0x0FFFFFFF

// Volume is a mounted FAT32 filesystem: an immutable BPB paired with the
// BlockDevice it was read from. It owns the FAT chain walker below and
// hosts the directory-engine operations in cursor.go.
//
// A Volume has no mutable process-wide state; the "current directory" is an
// explicit Cursor value passed to each operation, rather than a shared
// mutable field the way the original driver's FatDir worked.
type Volume struct {
	dev BlockDevice
	bpb BPB
	log *slog.Logger
	fat window

	// PartitionRelativeFAT controls whether FAT sector addresses include
	// BootSectorLBA. See BPB.FATSectorAndOffset and DESIGN.md. Defaults to
	// false, reproducing the original driver's behavior.
	PartitionRelativeFAT bool

	// MaxFileClusters bounds how many clusters ReadFile will stream before
	// stopping, reproducing the original driver's historical 5-cluster
	// cap by default. Zero means unbounded. Override with
	// WithMaxFileClusters at Mount time.
	MaxFileClusters int
}

// Option configures a Volume at Mount time.
type Option func(*Volume)

// WithLogger sets the structured logger used for mount/traversal
// diagnostics. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Volume) { v.log = l }
}

// WithPartitionRelativeFAT toggles whether FAT-sector addressing folds in
// BootSectorLBA. See DESIGN.md for the tradeoffs.
func WithPartitionRelativeFAT(enabled bool) Option {
	return func(v *Volume) { v.PartitionRelativeFAT = enabled }
}

// WithMaxFileClusters overrides the default 5-cluster streaming cap that
// ReadFile inherits from the source driver's known limitation. Pass 0 for
// unbounded streaming.
func WithMaxFileClusters(n int) Option {
	return func(v *Volume) { v.MaxFileClusters = n }
}

// DefaultMaxFileClusters preserves the original driver's historical
// (buggy) cap on clusters streamed per file.
const DefaultMaxFileClusters = 5

// Mount validates and reads the FAT32 boot sector via find and returns a
// ready-to-use Volume.
func Mount(dev BlockDevice, find BootSectorFinder, opts ...Option) (*Volume, error) {
	bpb, err := ReadBPB(dev, find)
	if err != nil {
		return nil, err
	}
	v := &Volume{
		dev:             dev,
		bpb:             bpb,
		log:             slog.Default(),
		MaxFileClusters: DefaultMaxFileClusters,
	}
	v.fat.dev = dev
	for _, opt := range opts {
		opt(v)
	}
	v.log.Info("fat32: mounted",
		slog.Uint64("rootCluster", uint64(bpb.RootCluster)),
		slog.Int("sectorsPerCluster", int(bpb.SectorsPerCluster)),
		slog.Uint64("dataRegionFirstSector", uint64(bpb.DataRegionFirstSector())))
	return v, nil
}

// BPB returns the volume's geometry record.
func (v *Volume) BPB() BPB { return v.bpb }

// Root returns a Cursor positioned at the volume's root directory.
func (v *Volume) Root() Cursor {
	return Cursor{
		firstCluster: v.bpb.RootCluster,
		shortName:    "/",
		longName:     "/",
	}
}

// nextCluster returns the cluster that follows current in its chain, or
// EndOfCluster (or above) if current is the last cluster.
func (v *Volume) nextCluster(current uint32) (uint32, error) {
	if current < 2 {
		return 0, ErrInvalidCluster
	}
	sector, byteOffset := v.bpb.FATSectorAndOffset(current, v.PartitionRelativeFAT)
	if err := v.fat.load(int64(sector)); err != nil {
		return 0, fmt.Errorf("fat32: reading FAT sector %d: %w", sector, err)
	}
	raw := binary.LittleEndian.Uint32(v.fat.buf[byteOffset:])
	return raw & clusterValueMask, nil
}

// clusterChainSectors yields the sector LBAs of every sector in the chain
// starting at firstCluster, one cluster's worth at a time, until
// end-of-chain. It is the shared traversal primitive behind cd, ls and cat,
// replacing three separate chain walks with one.
type clusterChainSectors struct {
	vol           *Volume
	cluster       uint32
	sectorInClust int
	done          bool
}

func (v *Volume) chainFrom(firstCluster uint32) *clusterChainSectors {
	return &clusterChainSectors{vol: v, cluster: firstCluster}
}

// next returns the next sector LBA in the chain, or ok=false once the chain
// is exhausted.
func (c *clusterChainSectors) next() (sector uint32, ok bool, err error) {
	if c.done || c.cluster == 0 || c.cluster >= EndOfCluster {
		return 0, false, nil
	}
	spc := int(c.vol.bpb.SectorsPerCluster)
	sector = c.vol.bpb.ClusterToSector(c.cluster) + uint32(c.sectorInClust)
	c.sectorInClust++
	if c.sectorInClust >= spc {
		c.sectorInClust = 0
		next, err := c.vol.nextCluster(c.cluster)
		if err != nil {
			return 0, false, err
		}
		if next >= EndOfCluster || next < 2 {
			c.done = true
		}
		c.cluster = next
	}
	return sector, true, nil
}
