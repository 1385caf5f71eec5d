package sam

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotSelected is returned by operations that need a target identified
	// by a successful Select.
	ErrNotSelected = errors.New("sam: no target selected")

	// ErrLocked matches any *LockedError.
	ErrLocked = errors.New("sam: device is locked")

	// ErrHardwareHang matches any *HardwareHangError.
	ErrHardwareHang = errors.New("sam: hardware did not complete")

	// ErrUnknownDevice matches any *UnknownDeviceError.
	ErrUnknownDevice = errors.New("sam: unknown device")

	ErrMisaligned    = errors.New("sam: address is not row aligned")
	ErrRowSize       = errors.New("sam: buffer is not one row")
	ErrImageTooLarge = errors.New("sam: image does not fit in flash")
)

// LockedError reports a program or read attempted while the security bit
// is set. The operation never reaches the NVM controller; only a chip
// erase clears the condition.
type LockedError struct {
	Op string
}

func (e *LockedError) Error() string {
	switch e.Op {
	case "read":
		return "device is locked, unable to read"
	case "program":
		return "device is locked, perform a chip erase before programming"
	}
	return fmt.Sprintf("device is locked, cannot %s", e.Op)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// HardwareHangError reports a completion flag that was not observed within
// the poll timeout.
type HardwareHangError struct {
	Register uint32
	Mask     uint32
	Elapsed  time.Duration
}

func (e *HardwareHangError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for 0x%08X & 0x%08X", e.Elapsed.Round(time.Millisecond), e.Register, e.Mask)
}

func (e *HardwareHangError) Is(target error) bool {
	return target == ErrHardwareHang
}

// UnknownDeviceError reports a DSU DID that is not in the catalog.
type UnknownDeviceError struct {
	ID uint32
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device (DID 0x%08X)", e.ID)
}

func (e *UnknownDeviceError) Is(target error) bool {
	return target == ErrUnknownDevice
}

// VerifyError indicates flash content that differs from the expected image.
type VerifyError struct {
	Addr uint32
	Want byte
	Got  byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify failed at 0x%08X: expected 0x%02X, got 0x%02X", e.Addr, e.Want, e.Got)
}
