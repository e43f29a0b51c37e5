package sdspi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCard(t *testing.T) (*Card, *fakeCard) {
	t.Helper()
	fc := newFakeCard()
	tr := NewTransport(fc, fc, WithPollLimits(0x20, 0x20, 0x20))
	c := NewCard(tr)
	require.NoError(t, c.Init())
	require.True(t, c.BlockAddressed)
	return c, fc
}

func TestCardInit(t *testing.T) {
	newTestCard(t)
}

func TestReadWriteBlockRoundTrip(t *testing.T) {
	c, _ := newTestCard(t)

	var data [512]byte
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, c.WriteBlock(data[:], 7))

	var got [512]byte
	require.NoError(t, c.ReadBlock(got[:], 7))
	require.Equal(t, data, got)
}

func TestBlockDeviceInterface(t *testing.T) {
	c, _ := newTestCard(t)

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(255 - i)
	}
	n, err := c.WriteBlocks(data, 3)
	require.NoError(t, err)
	require.Equal(t, 512, n)

	got := make([]byte, 512)
	n, err = c.ReadBlocks(got, 3)
	require.NoError(t, err)
	require.Equal(t, 512, n)
	require.Equal(t, data, got)
}

func TestWriteDataCRCError(t *testing.T) {
	c, fc := newTestCard(t)
	fc.dataRespToken = 0x0B // CRC error response token

	var data [512]byte
	err := c.WriteBlock(data[:], 0)
	require.ErrorIs(t, err, ErrDataCRCError)
}

func TestWriteDataWriteError(t *testing.T) {
	c, fc := newTestCard(t)
	fc.dataRespToken = 0x0D // write error response token

	var data [512]byte
	err := c.WriteBlock(data[:], 0)
	require.ErrorIs(t, err, ErrDataWriteError)
}

// TestWriteBlocksMultiBlockCRCAbort exercises the real CMD25 multi-block
// path (n > 1, so WriteBlocks does not fast-path to WriteBlock): a CRC error
// partway through the stream must still terminate with Stop Transmission
// and report exactly how many blocks landed before the error.
func TestWriteBlocksMultiBlockCRCAbort(t *testing.T) {
	c, fc := newTestCard(t)
	fc.dataRespToken = 0x0B // CRC error response token
	fc.failMultiBlockAt = 3 // blocks 0, 1, 2 succeed; block 3 reports CRC error

	data := make([]byte, 5*512)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := c.WriteBlocks(data, 100)
	require.ErrorIs(t, err, ErrDataCRCError)
	require.Equal(t, 3*512, n)
	require.False(t, fc.multiWriteActive, "WriteBlocks must send Stop Transmission even after a CRC error")

	count, err := c.CountWellWrittenBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestWriteBusyTimeout(t *testing.T) {
	c, fc := newTestCard(t)
	// busyPollLimit is 0x20 (32); queue more zero bytes than that so the
	// card never appears to release the line in time.
	busy := make([]byte, 40)
	fc.busyBytes = busy

	var data [512]byte
	err := c.WriteBlock(data[:], 0)
	require.ErrorIs(t, err, ErrBusyTimeout)
}

func TestEraseBlocks(t *testing.T) {
	c, _ := newTestCard(t)
	require.NoError(t, c.EraseBlocks(10, 20))
}

func TestCountWellWrittenBlocks(t *testing.T) {
	c, _ := newTestCard(t)
	n, err := c.CountWellWrittenBlocks()
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}
