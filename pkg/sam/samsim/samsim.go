// Package samsim simulates the parts of a SAM D21-class target that the NVM
// sequencer talks to: core debug registers, DSU, NVMCTRL, the flash array
// and the user row.
package samsim

import (
	"encoding/binary"
	"sync"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
)

const (
	// DefaultDID is a SAM D21G18A (Rev D).
	DefaultDID = 0x10010305

	// DefaultFuses is the factory user row word of a SAM D21.
	DefaultFuses = 0xFFFFFC5DD8E0C7FA

	dhcsrSHalt  = 1 << 17
	dsuStatusA  = 0x1F00
	nvmPageSize = 64
	nvmPSZ64    = 3 << 16
	nvmStatusSB = 1 << 8
)

// Target is a simulated SAM device. It satisfies dap.MemoryAccessor through
// the embedded SimMemory, which also records every access.
type Target struct {
	*dap.SimMemory

	mu       sync.Mutex
	did      uint32
	flash    []byte
	userRow  [sam.UserRowSize]byte
	locked   bool
	hang     map[uint32]bool
	status   uint32 // DSU STATUSA, kept in bits 12:8 as it reads back
	ready    bool
	ctrlB    uint32
	nvmAddr  uint32
	dhcsr    uint32
	demcr    uint32
	resets   int
	commands []uint32
}

// Option configures a Target.
type Option func(*Target)

// WithDID sets the value read back from DSU DID.
func WithDID(id uint32) Option {
	return func(t *Target) {
		t.did = id
	}
}

// WithLocked starts the target with the security bit set.
func WithLocked(locked bool) Option {
	return func(t *Target) {
		t.locked = locked
	}
}

// WithHang makes the completion flag behind register never set.
// sam.DSUCtrlStatus stalls chip erase; sam.NVMIntFlag stalls every NVMCTRL
// command.
func WithHang(register uint32) Option {
	return func(t *Target) {
		t.hang[register] = true
	}
}

// WithFlashSize sets the size of the flash array in bytes, rounded up to
// whole rows. Non-positive sizes keep the default.
func WithFlashSize(size int) Option {
	return func(t *Target) {
		if size <= 0 {
			return
		}
		rows := (size + sam.RowSize - 1) / sam.RowSize
		t.flash = make([]byte, rows*sam.RowSize)
	}
}

// New returns an erased target with factory fuses.
func New(opts ...Option) *Target {
	t := &Target{
		SimMemory: dap.NewSimMemory(),
		did:       DefaultDID,
		flash:     make([]byte, 256*1024),
		hang:      make(map[uint32]bool),
		ready:     true,
	}
	for _, opt := range opts {
		opt(t)
	}

	fill(t.flash, 0xFF)
	fill(t.userRow[:], 0xFF)
	binary.LittleEndian.PutUint64(t.userRow[:], DefaultFuses)

	t.SimMemory.OnRead = t.read
	t.SimMemory.OnWrite = t.write
	return t
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// SetDID changes the identification value, as if another chip were attached.
func (t *Target) SetDID(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.did = id
}

// SetLocked sets or clears the security bit directly.
func (t *Target) SetLocked(locked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locked = locked
}

// Locked reports the security bit.
func (t *Target) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locked
}

// Flash returns a copy of the flash array.
func (t *Target) Flash() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.flash...)
}

// LoadFlash copies data into flash at offset without going through NVMCTRL.
func (t *Target) LoadFlash(offset int, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.flash[offset:], data)
}

// UserRow returns a copy of the 256-byte user row.
func (t *Target) UserRow() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.userRow[:]...)
}

// Commands returns the NVMCTRL CTRLA commands issued so far.
func (t *Target) Commands() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint32(nil), t.commands...)
}

// Halted reports whether the core was halted through DHCSR.
func (t *Target) Halted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dhcsr&dhcsrSHalt != 0
}

// ResetCatch reports whether DEMCR.VC_CORERESET is set.
func (t *Target) ResetCatch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.demcr&sam.DEMCRVCCoreReset != 0
}

// Resets returns how many system reset requests were seen.
func (t *Target) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

func (t *Target) inFlash(addr uint32) bool {
	return addr >= sam.FlashStart && addr-sam.FlashStart < uint32(len(t.flash))
}

func inUserRow(addr uint32) bool {
	return addr >= sam.UserRowAddr && addr < sam.UserRowAddr+sam.UserRowSize
}

func fault() error {
	return &dap.TransferError{Ack: dap.AckFault, Completed: 1}
}

func (t *Target) read(addr uint32) (uint32, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch addr {
	case sam.DHCSR:
		return t.dhcsr, true, nil
	case sam.DEMCR:
		return t.demcr, true, nil
	case sam.DSUDID:
		return t.did, true, nil
	case sam.DSUCtrlStatus:
		v := t.status
		if t.locked {
			v |= sam.DSUProtected
		}
		return v, true, nil
	case sam.NVMIntFlag:
		if t.ready {
			return sam.NVMIntFlagReady, true, nil
		}
		return 0, true, nil
	case sam.NVMCtrlB:
		return t.ctrlB, true, nil
	case sam.NVMAddr:
		return t.nvmAddr, true, nil
	case sam.NVMParam:
		return uint32(len(t.flash)/nvmPageSize) | nvmPSZ64, true, nil
	case sam.NVMStatus:
		if t.locked {
			return nvmStatusSB, true, nil
		}
		return 0, true, nil
	}

	switch {
	case t.inFlash(addr):
		if t.locked {
			return 0, true, fault()
		}
		off := (addr - sam.FlashStart) &^ 3
		return binary.LittleEndian.Uint32(t.flash[off:]), true, nil
	case inUserRow(addr):
		off := (addr - sam.UserRowAddr) &^ 3
		return binary.LittleEndian.Uint32(t.userRow[off:]), true, nil
	}
	return 0, false, nil
}

func (t *Target) write(addr, value uint32) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch addr {
	case sam.DHCSR:
		if value>>16 == sam.DHCSRHalt>>16 {
			t.dhcsr = value & 0xFFFF
			if value&0x2 != 0 {
				t.dhcsr |= dhcsrSHalt
			}
		}
		return true, nil
	case sam.DEMCR:
		t.demcr = value
		return true, nil
	case sam.AIRCR:
		if value == sam.AIRCRSysReset {
			t.resets++
		}
		return true, nil
	case sam.DSUCtrlStatus:
		t.dsuWrite(value)
		return true, nil
	case sam.NVMCtrlA:
		t.nvmCommand(value)
		return true, nil
	case sam.NVMCtrlB:
		t.ctrlB = value
		return true, nil
	case sam.NVMAddr:
		t.nvmAddr = value & 0x3FFFFF
		return true, nil
	case sam.NVMIntFlag, sam.NVMStatus, sam.NVMParam, sam.DSUDID:
		return true, nil
	}

	// Flash cells only program 1s to 0s; an erase is needed to go back.
	switch {
	case t.inFlash(addr):
		if t.locked {
			return true, fault()
		}
		off := (addr - sam.FlashStart) &^ 3
		andWord(t.flash[off:], value)
		return true, nil
	case inUserRow(addr):
		off := (addr - sam.UserRowAddr) &^ 3
		andWord(t.userRow[off:], value)
		return true, nil
	}
	return false, nil
}

func andWord(b []byte, value uint32) {
	binary.LittleEndian.PutUint32(b, binary.LittleEndian.Uint32(b)&value)
}

func (t *Target) dsuWrite(value uint32) {
	// STATUSA flags are write-one-to-clear.
	t.status &^= value & dsuStatusA

	if value&sam.DSUChipErase == 0 {
		return
	}
	if t.hang[sam.DSUCtrlStatus] {
		return
	}
	fill(t.flash, 0xFF)
	t.locked = false
	t.status |= sam.DSUDone
}

func (t *Target) nvmCommand(value uint32) {
	if value&sam.NVMCommandKeyMask != sam.NVMCommandKey {
		return
	}
	t.commands = append(t.commands, value)
	t.ready = false

	byteAddr := t.nvmAddr << 1
	switch value {
	case sam.CmdEraseRow:
		if t.inFlash(byteAddr) {
			row := (byteAddr - sam.FlashStart) &^ (sam.RowSize - 1)
			fill(t.flash[row:row+sam.RowSize], 0xFF)
		}
	case sam.CmdEraseAuxRow:
		if inUserRow(byteAddr) {
			fill(t.userRow[:], 0xFF)
		}
	case sam.CmdSetSecurityBit:
		t.locked = true
	}

	t.ready = !t.hang[sam.NVMIntFlag]
}
