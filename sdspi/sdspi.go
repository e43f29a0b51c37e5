// Package sdspi implements the SPI-mode block transport and command
// protocol used to talk to SD/SDHC cards: command framing, R1 response
// polling, data tokens and the busy-wait that follows a write. It
// implements components C1 (block transport) and C2 (block access) and
// satisfies fat32.BlockDevice, so a *Card can be mounted directly with
// fat32.Mount.
package sdspi

import (
	"errors"
	"log/slog"
)

// SPI is the single full-duplex byte-transfer primitive the transport is
// built on. Implementations typically wrap a machine.SPI or similar
// hardware peripheral; fakeCard in the test files implements it as an
// in-memory card model for host-side testing.
type SPI interface {
	Transfer(tx byte) (rx byte, err error)
}

// ChipSelect drives a card's CS line. Assert selects the card (CS low);
// Deassert releases it (CS high). Implementations should be safe to call
// from a single goroutine at a time; Transport does not synchronize
// access itself.
type ChipSelect interface {
	Assert()
	Deassert()
}

// Poll-limit defaults, carried over unchanged from the AVR driver this
// package is derived from: bounded iteration counts rather than
// wall-clock timeouts, since the original ran without a monotonic clock
// available in the SPI ISR context. Here they are Option-configurable
// policy parameters instead of baked-in magic numbers, defaulting to the
// exact original values.
const (
	DefaultR1PollLimit         = 0xFF
	DefaultStartTokenPollLimit = 0x511
	DefaultBusyPollLimit       = 0x1FF
	DefaultStopTranPollLimit   = 0xFFFE
)

// Transport frames SD commands and manages the chip-select line for one
// physical card. It holds no directory- or filesystem-level state; that
// lives entirely in package fat32.
type Transport struct {
	spi SPI
	cs  ChipSelect
	log *slog.Logger

	r1PollLimit         int
	startTokenPollLimit int
	busyPollLimit       int
	stopTranPollLimit   int
}

// Option configures a Transport or Card at construction time.
type Option func(*Transport)

// WithLogger sets the structured logger used for command/response tracing.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// WithPollLimits overrides the bounded-iteration caps used while waiting
// for an R1 response, a data start token, and the card's busy signal to
// clear, respectively. Passing 0 for any of them leaves that limit at its
// default.
func WithPollLimits(r1, startToken, busy int) Option {
	return func(t *Transport) {
		if r1 > 0 {
			t.r1PollLimit = r1
		}
		if startToken > 0 {
			t.startTokenPollLimit = startToken
		}
		if busy > 0 {
			t.busyPollLimit = busy
		}
	}
}

// NewTransport wraps spi and cs into a command Transport. cs starts
// deasserted. NewTransport panics if spi or cs is nil, since every
// subsequent Transport method assumes both are usable.
func NewTransport(spi SPI, cs ChipSelect, opts ...Option) *Transport {
	if spi == nil {
		panic(errNilSPI)
	}
	if cs == nil {
		panic(errNilChipSelect)
	}
	t := &Transport{
		spi:                 spi,
		cs:                  cs,
		log:                 slog.Default(),
		r1PollLimit:         DefaultR1PollLimit,
		startTokenPollLimit: DefaultStartTokenPollLimit,
		busyPollLimit:       DefaultBusyPollLimit,
		stopTranPollLimit:   DefaultStopTranPollLimit,
	}
	cs.Deassert()
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// sendByte clocks out one byte, discarding the simultaneously received
// byte. Used for framing bytes where only the outgoing side matters.
func (t *Transport) sendByte(b byte) error {
	_, err := t.spi.Transfer(b)
	return err
}

// receiveByte clocks out 0xFF (the SPI-mode idle value) and returns
// whatever the card drives back.
func (t *Transport) receiveByte() (byte, error) {
	return t.spi.Transfer(0xFF)
}

// commandFrame is the 6-byte wire form of an SD command: start bits plus
// command index, 32-bit big-endian argument, and a CRC byte. Only CMD0 and
// CMD8 require a real CRC in SPI mode; sdspi always sends a valid CRC for
// those two and the fixed 0xFF (CRC disabled) placeholder otherwise, same
// as the source driver.
func commandFrame(cmd byte, arg uint32) [6]byte {
	frame := [6]byte{
		0x40 | cmd,
		byte(arg >> 24),
		byte(arg >> 16),
		byte(arg >> 8),
		byte(arg),
		0xFF,
	}
	switch cmd {
	case 0: // GO_IDLE_STATE
		frame[5] = 0x95
	case 8: // SEND_IF_COND
		frame[5] = 0x87
	}
	return frame
}

// sendCommand transmits an SD command frame and returns the card's R1
// response, polling up to the transport's r1PollLimit for a byte with its
// high bit clear (the source driver's own R1-detection rule).
func (t *Transport) sendCommand(cmd byte, arg uint32) (r1 byte, err error) {
	frame := commandFrame(cmd, arg)
	for _, b := range frame {
		if err := t.sendByte(b); err != nil {
			return 0, err
		}
	}
	r1, timedOut, err := t.readR1(t.r1PollLimit)
	if err != nil {
		return 0, err
	}
	if timedOut {
		return 0, newError(ErrKindCommandTimeout, cmd, r1)
	}
	t.log.Debug("sdspi: command", slog.Int("cmd", int(cmd)), slog.Uint64("arg", uint64(arg)), slog.Int("r1", int(r1)))
	return r1, nil
}

// readR1 polls up to maxPolls times for a response byte whose high bit is
// clear.
func (t *Transport) readR1(maxPolls int) (r1 byte, timedOut bool, err error) {
	for i := 0; i < maxPolls; i++ {
		b, err := t.receiveByte()
		if err != nil {
			return 0, false, err
		}
		if b&0x80 == 0 {
			return b, false, nil
		}
	}
	return 0xFF, true, nil
}

// waitNotBusy polls DO (via receiveByte, since MISO idles high) until it
// reads back something other than 0x00, meaning the card released the
// line, or busyPollLimit iterations elapse.
func (t *Transport) waitNotBusy(busyPollLimit int) (ok bool, err error) {
	for i := 0; i < busyPollLimit; i++ {
		b, err := t.receiveByte()
		if err != nil {
			return false, err
		}
		if b != 0x00 {
			return true, nil
		}
	}
	return false, nil
}

// waitStartToken polls for the single-block start token (0xFE) or a
// multi-block start token, returning the token byte or a data-error token
// (bit pattern with top nibble clear) if the card reports one instead.
func (t *Transport) waitStartToken(maxPolls int) (token byte, timedOut bool, err error) {
	for i := 0; i < maxPolls; i++ {
		b, err := t.receiveByte()
		if err != nil {
			return 0, false, err
		}
		if b != 0xFF {
			return b, false, nil
		}
	}
	return 0, true, nil
}

var (
	errNilSPI        = errors.New("sdspi: nil SPI implementation")
	errNilChipSelect = errors.New("sdspi: nil ChipSelect implementation")
)
