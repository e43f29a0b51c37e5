package fat32

import "errors"

// memDevice is an in-memory BlockDevice used to build synthetic FAT32
// images for testing without a real block device.
type memDevice struct {
	buf []byte
}

func newMemDevice(numSectors int) *memDevice {
	return &memDevice{buf: make([]byte, sectorSize*numSectors)}
}

func (m *memDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	off := startBlock * sectorSize
	end := off + int64(len(dst))
	if off < 0 || end > int64(len(m.buf)) {
		return 0, errors.New("memDevice: read out of range")
	}
	copy(dst, m.buf[off:end])
	return len(dst), nil
}

func (m *memDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	off := startBlock * sectorSize
	end := off + int64(len(data))
	if off < 0 || end > int64(len(m.buf)) {
		return 0, errors.New("memDevice: write out of range")
	}
	copy(m.buf[off:end], data)
	return len(data), nil
}

func (m *memDevice) sector(idx int64) []byte {
	return m.buf[idx*sectorSize : (idx+1)*sectorSize]
}
