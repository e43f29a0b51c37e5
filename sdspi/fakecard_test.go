package sdspi

// fakeCard is a minimal software model of an SD card's SPI command
// processor, used to drive Transport/Card through their command framing,
// R1 polling and data-token handling without real hardware. It implements
// the commands sdspi.Card issues in single-block mode plus CMD25
// (WRITE_MULTIPLE_BLOCK) streaming with the 0xFC/0xFD token pair; it does
// not model CMD18 multi-block reads, since Card.ReadBlocks only ever drives
// that path for more than one sector at a time and no test needs it.
type fakeCard struct {
	selected bool
	frameBuf []byte
	outQueue []byte
	storage  map[uint32][512]byte

	awaitingWriteData bool
	writeLBA          uint32
	writeBuf          []byte

	// awaitingSingleWriteToken is true after a CMD24 command byte is
	// accepted but before the host's still-pending R1 poll bytes have
	// been drained from outQueue; only once the host actually reads R1
	// and sends the 0xFE start token does the fake begin treating
	// incoming bytes as write data (mirrors the CMD25/0xFC handling
	// below, which already waits for its start token the same way).
	awaitingSingleWriteToken bool

	lastCmd byte

	// dataRespToken overrides the token returned after a write's data
	// block, letting tests simulate a CRC or write error.
	dataRespToken byte
	// busyBytes is queued as the busy-wait segment after accepting a
	// write; each 0x00 represents one "still busy" poll.
	busyBytes []byte

	// multiWriteActive is true between a CMD25 command and its closing
	// Stop Transmission token, while the fake expects a stream of
	// 0xFC-prefixed data blocks from the host.
	multiWriteActive bool
	multiBlockIndex  uint32
	// failMultiBlockAt, if >= 0, makes the block at that zero-based index
	// within a WriteMultipleBlock stream respond with dataRespToken
	// instead of dataRespAccepted, for exercising a CRC/write-error abort
	// partway through a multi-block stream.
	failMultiBlockAt int
}

func newFakeCard() *fakeCard {
	return &fakeCard{
		storage:          make(map[uint32][512]byte),
		dataRespToken:    dataRespAccepted,
		busyBytes:        []byte{0x00, 0x00, 0xFF},
		failMultiBlockAt: -1,
	}
}

func (c *fakeCard) Assert()   { c.selected = true }
func (c *fakeCard) Deassert() { c.selected = false }

func (c *fakeCard) Transfer(tx byte) (byte, error) {
	if c.awaitingWriteData {
		c.writeBuf = append(c.writeBuf, tx)
		if len(c.writeBuf) == 1+blockSize+2 {
			var block [512]byte
			copy(block[:], c.writeBuf[1:1+blockSize])
			c.storage[c.writeLBA] = block
			c.awaitingWriteData = false

			resp := c.dataRespToken
			if c.multiWriteActive {
				resp = dataRespAccepted
				if int(c.multiBlockIndex) == c.failMultiBlockAt {
					resp = c.dataRespToken
				}
				c.multiBlockIndex++
				c.writeLBA++
			}
			c.outQueue = append(c.outQueue, resp)
			if resp&dataRespMask == dataRespAccepted {
				// A rejected write (CRC/write error) never enters the
				// card's busy state, since flash programming never
				// starts; only an accepted block is followed by a
				// busy-wait period.
				c.outQueue = append(c.outQueue, c.busyBytes...)
			}
		}
		return 0xFF, nil
	}

	if len(c.outQueue) > 0 {
		b := c.outQueue[0]
		c.outQueue = c.outQueue[1:]
		return b, nil
	}

	if c.awaitingSingleWriteToken && tx == tokenStartSingle {
		c.awaitingSingleWriteToken = false
		c.awaitingWriteData = true
		c.writeBuf = c.writeBuf[:0]
		c.writeBuf = append(c.writeBuf, tx)
		return 0xFF, nil
	}

	if c.multiWriteActive {
		switch tx {
		case tokenStartMulti:
			c.awaitingWriteData = true
			c.writeBuf = c.writeBuf[:0]
			c.writeBuf = append(c.writeBuf, tx)
			return 0xFF, nil
		case tokenStopTran:
			c.multiWriteActive = false
			c.outQueue = append(c.outQueue, 0xFF) // stuff byte
			c.outQueue = append(c.outQueue, c.busyBytes...)
			return 0xFF, nil
		}
	}

	c.frameBuf = append(c.frameBuf, tx)
	if len(c.frameBuf) < 6 {
		return 0xFF, nil
	}
	frame := c.frameBuf
	c.frameBuf = nil
	c.handleFrame(frame)
	return 0xFF, nil
}

func (c *fakeCard) handleFrame(frame []byte) {
	cmd := frame[0] &^ 0x40
	arg := uint32(frame[1])<<24 | uint32(frame[2])<<16 | uint32(frame[3])<<8 | uint32(frame[4])

	switch cmd {
	case cmdGoIdleState:
		c.outQueue = append(c.outQueue, 0x01)
	case cmdSendIfCond:
		c.outQueue = append(c.outQueue, 0x01, 0x00, 0x00, 0x01, 0xAA)
	case cmdAppCmd:
		c.outQueue = append(c.outQueue, 0x01)
	case acmdSDSendOpCond:
		if c.lastCmd == cmdAppCmd {
			c.outQueue = append(c.outQueue, 0x00)
		}
	case cmdReadOCR:
		c.outQueue = append(c.outQueue, 0x00, 0xC0, 0xFF, 0x80, 0x00)
	case cmdReadSingleBlock:
		block := c.storage[arg]
		c.outQueue = append(c.outQueue, 0x00, tokenStartSingle)
		c.outQueue = append(c.outQueue, block[:]...)
		c.outQueue = append(c.outQueue, 0x00, 0x00) // CRC
	case cmdWriteBlock:
		c.outQueue = append(c.outQueue, 0x00)
		c.awaitingSingleWriteToken = true
		c.writeLBA = arg
		c.writeBuf = c.writeBuf[:0]
	case cmdWriteMultipleBlock:
		c.outQueue = append(c.outQueue, 0x00)
		c.multiWriteActive = true
		c.multiBlockIndex = 0
		c.writeLBA = arg
	case acmdSendNumWrBlocks:
		if c.lastCmd == cmdAppCmd {
			var buf [4]byte
			buf[3] = 3 // pretend 3 blocks were well-written
			c.outQueue = append(c.outQueue, 0x00, tokenStartSingle)
			c.outQueue = append(c.outQueue, buf[:]...)
			c.outQueue = append(c.outQueue, 0x00, 0x00)
		}
	case cmdEraseBlockStart, cmdEraseBlockEnd:
		c.outQueue = append(c.outQueue, 0x00)
	case cmdErase:
		c.outQueue = append(c.outQueue, 0x00)
		c.outQueue = append(c.outQueue, c.busyBytes...)
	default:
		c.outQueue = append(c.outQueue, 0x05) // illegal-command-ish default
	}
	c.lastCmd = cmd
}
