package main

import (
	"fmt"
	"os"
)

// imgDevice is a fat32.BlockDevice backed by a plain host file, used when
// fatshell is pointed at a disk image instead of a real SD card. It
// implements the same two-return-value ReadBlocks/WriteBlocks contract as
// sdspi.Card, so it is a drop-in fat32.Mount target for host-side testing
// and scripting.
type imgDevice struct {
	f *os.File
}

func openImgDevice(path string) (*imgDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("fatshell: opening image: %w", err)
	}
	return &imgDevice{f: f}, nil
}

func (d *imgDevice) Close() error { return d.f.Close() }

func (d *imgDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	return d.f.ReadAt(dst, startBlock*512)
}

func (d *imgDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	return d.f.WriteAt(data, startBlock*512)
}
