package sam

import (
	"context"
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

// ProgramStart refuses a locked device, otherwise clears NVMCTRL CTRLB,
// applies the programming clock and returns the absolute flash address for
// offset.
func (s *Session) ProgramStart(ctx context.Context, offset uint32) (addr uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("program_start", err) }()

	return s.programStart(ctx, offset)
}

func (s *Session) programStart(ctx context.Context, offset uint32) (uint32, error) {
	if _, err := s.requireSelected(); err != nil {
		return 0, err
	}

	locked, err := s.locked(ctx)
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, &LockedError{Op: "program"}
	}

	if err := s.writeWord(ctx, NVMCtrlB, 0); err != nil {
		return 0, fmt.Errorf("configure NVMCTRL: %w", err)
	}

	if hz := s.cfg.ProgrammingClock; hz > 0 {
		if cs, ok := s.mem.(dap.ClockSetter); ok {
			switch err := cs.SetSpeed(hz); {
			case errors.Is(err, dap.ErrNotImplemented):
				s.log.V(1).Info("programming clock not adjustable", "hz", hz)
			case err != nil:
				return 0, fmt.Errorf("set programming clock: %w", err)
			default:
				s.log.V(1).Info("programming clock set", "hz", hz)
			}
		}
	}

	return FlashStart + offset, nil
}

// ProgramBlock unlocks the region holding addr, erases the row and writes
// buf to it. addr must be row aligned and buf exactly one row.
func (s *Session) ProgramBlock(ctx context.Context, addr uint32, buf []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("program_block", err) }()

	if _, err := s.requireSelected(); err != nil {
		return err
	}
	return s.programBlock(ctx, addr, buf)
}

func (s *Session) programBlock(ctx context.Context, addr uint32, buf []byte) error {
	if addr%RowSize != 0 {
		return fmt.Errorf("%w: 0x%08X", ErrMisaligned, addr)
	}
	if len(buf) != RowSize {
		return fmt.Errorf("%w: got %d bytes", ErrRowSize, len(buf))
	}

	// NVMCTRL addresses flash in 16-bit units.
	if err := s.writeWord(ctx, NVMAddr, addr>>1); err != nil {
		return fmt.Errorf("set NVM address: %w", err)
	}
	if err := s.command(ctx, CmdUnlockRegion); err != nil {
		return fmt.Errorf("unlock region 0x%08X: %w", addr, err)
	}
	if err := s.command(ctx, CmdEraseRow); err != nil {
		return fmt.Errorf("erase row 0x%08X: %w", addr, err)
	}
	if err := s.mem.WriteBlock(ctx, addr, buf); err != nil {
		return fmt.Errorf("write row 0x%08X: %w", addr, err)
	}

	s.cfg.Metrics.rowWritten()
	s.log.V(1).Info("row written", "addr", fmt.Sprintf("0x%08X", addr))
	return nil
}

// command issues an NVMCTRL CTRLA command and waits for INTFLAG.READY.
func (s *Session) command(ctx context.Context, cmd uint32) error {
	if err := s.writeWord(ctx, NVMCtrlA, cmd); err != nil {
		return err
	}
	return s.waitFor(ctx, NVMIntFlag, NVMIntFlagReady)
}
