package sam

import (
	"context"
	"encoding/binary"
	"fmt"
)

// FuseRead returns the 64-bit fuse word stored little-endian in the first
// eight bytes of the user row.
func (s *Session) FuseRead(ctx context.Context) (fuses uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("fuse_read", err) }()

	if _, err := s.requireSelected(); err != nil {
		return 0, err
	}
	return s.fuseRead(ctx)
}

func (s *Session) fuseRead(ctx context.Context) (uint64, error) {
	row := make([]byte, UserRowSize)
	if err := s.mem.ReadBlock(ctx, UserRowAddr, row); err != nil {
		return 0, fmt.Errorf("read user row: %w", err)
	}
	return binary.LittleEndian.Uint64(row), nil
}

// FuseWrite erases the user row and writes fuses to its first eight bytes.
//
// The rest of the row is written as zero. Anything else stored there,
// including factory calibration some parts keep in the upper bytes, is lost.
// Use FuseUpdate to change individual fields of the fuse word.
func (s *Session) FuseWrite(ctx context.Context, fuses uint64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("fuse_write", err) }()

	if _, err := s.requireSelected(); err != nil {
		return err
	}
	return s.fuseWrite(ctx, fuses)
}

func (s *Session) fuseWrite(ctx context.Context, fuses uint64) error {
	row := make([]byte, UserRowSize)
	binary.LittleEndian.PutUint64(row, fuses)

	if err := s.writeWord(ctx, NVMCtrlB, 0); err != nil {
		return fmt.Errorf("configure NVMCTRL: %w", err)
	}
	if err := s.writeWord(ctx, NVMAddr, UserRowAddr>>1); err != nil {
		return fmt.Errorf("set NVM address: %w", err)
	}
	if err := s.command(ctx, CmdEraseAuxRow); err != nil {
		return fmt.Errorf("erase user row: %w", err)
	}
	if err := s.mem.WriteBlock(ctx, UserRowAddr, row); err != nil {
		return fmt.Errorf("write user row: %w", err)
	}

	s.log.Info("fuses written", "fuses", fmt.Sprintf("0x%016X", fuses))
	return nil
}

// FuseUpdate reads the fuse word, replaces the bits selected by mask with
// the matching bits of value and writes the result back. It returns the
// resulting word and whether the row was rewritten; an unchanged word is
// not written. Bytes 8..255 of the user row are zeroed as in FuseWrite.
func (s *Session) FuseUpdate(ctx context.Context, mask, value uint64) (fuses uint64, written bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("fuse_update", err) }()

	if _, err := s.requireSelected(); err != nil {
		return 0, false, err
	}

	old, err := s.fuseRead(ctx)
	if err != nil {
		return 0, false, err
	}
	fuses = old&^mask | value&mask
	if fuses == old {
		s.log.V(1).Info("fuses unchanged", "fuses", fmt.Sprintf("0x%016X", fuses))
		return fuses, false, nil
	}
	if err := s.fuseWrite(ctx, fuses); err != nil {
		return 0, false, err
	}
	return fuses, true, nil
}
