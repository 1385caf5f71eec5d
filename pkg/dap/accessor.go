package dap

import (
	"context"
	"errors"
	"fmt"
)

// ProbeInfo describes capabilities reported by a debug probe implementation.
type ProbeInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	PacketSize   int
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	Notes        string
}

// MemoryAccessor is the register-access capability the NVM sequencers are
// written against. Addresses are 32-bit target addresses; block transfers
// must be word aligned in both address and length.
type MemoryAccessor interface {
	ReadWord(ctx context.Context, addr uint32) (uint32, error)
	WriteWord(ctx context.Context, addr, value uint32) error
	ReadBlock(ctx context.Context, addr uint32, buf []byte) error
	WriteBlock(ctx context.Context, addr uint32, buf []byte) error
}

// ClockSetter is implemented by accessors whose SWCLK frequency can be changed.
type ClockSetter interface {
	SetSpeed(hz int) error
}

// ErrNotImplemented lets backends signal that a requested capability is not
// available.
var ErrNotImplemented = errors.New("dap: not implemented")

// ErrUnaligned is returned for block transfers that are not word aligned.
var ErrUnaligned = errors.New("dap: unaligned block transfer")

// ValidateBlock checks the word alignment of a block transfer and returns the
// number of words it covers.
func ValidateBlock(addr uint32, buf []byte) (int, error) {
	if addr%4 != 0 {
		return 0, fmt.Errorf("%w: address 0x%08X", ErrUnaligned, addr)
	}
	if len(buf)%4 != 0 {
		return 0, fmt.Errorf("%w: length %d", ErrUnaligned, len(buf))
	}
	return len(buf) / 4, nil
}
