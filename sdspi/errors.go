package sdspi

import "fmt"

// ErrKind classifies what a sdspi.Error represents, letting callers use
// errors.Is against the package-level sentinels below regardless of which
// command or raw R1 byte produced the failure.
type ErrKind uint8

const (
	ErrKindCommandTimeout ErrKind = iota + 1
	ErrKindStartTokenTimeout
	ErrKindBusyTimeout
	ErrKindDataCRCError
	ErrKindDataWriteError
	ErrKindIllegalCommand
	ErrKindCardNotInitialized
	ErrKindVoltageMismatch
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindCommandTimeout:
		return "command timeout"
	case ErrKindStartTokenTimeout:
		return "start token timeout"
	case ErrKindBusyTimeout:
		return "busy timeout"
	case ErrKindDataCRCError:
		return "data CRC error"
	case ErrKindDataWriteError:
		return "data write error"
	case ErrKindIllegalCommand:
		return "illegal command"
	case ErrKindCardNotInitialized:
		return "card not initialized"
	case ErrKindVoltageMismatch:
		return "voltage mismatch"
	default:
		return "unknown"
	}
}

// Error is returned for any SD command or data-transfer fault. It carries
// the offending command index and the raw R1/data-response byte the card
// returned, replacing the packed status-byte scheme of the original
// driver while still preserving the raw byte for callers that want to
// inspect it.
type Error struct {
	Kind ErrKind
	Cmd  byte
	Raw  byte
}

func newError(kind ErrKind, cmd, raw byte) *Error {
	return &Error{Kind: kind, Cmd: cmd, Raw: raw}
}

func (e *Error) Error() string {
	return fmt.Sprintf("sdspi: %s (cmd=%d raw=0x%02X)", e.Kind, e.Cmd, e.Raw)
}

// Is reports whether target is a *Error of the same Kind, ignoring Cmd and
// Raw, so callers can write errors.Is(err, &sdspi.Error{Kind:
// sdspi.ErrKindBusyTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel *Error values for errors.Is comparisons that only care about
// Kind.
var (
	ErrCommandTimeout     = &Error{Kind: ErrKindCommandTimeout}
	ErrStartTokenTimeout  = &Error{Kind: ErrKindStartTokenTimeout}
	ErrBusyTimeout        = &Error{Kind: ErrKindBusyTimeout}
	ErrDataCRCError       = &Error{Kind: ErrKindDataCRCError}
	ErrDataWriteError     = &Error{Kind: ErrKindDataWriteError}
	ErrIllegalCommand     = &Error{Kind: ErrKindIllegalCommand}
	ErrCardNotInitialized = &Error{Kind: ErrKindCardNotInitialized}
	ErrVoltageMismatch    = &Error{Kind: ErrKindVoltageMismatch}
)
