package sam

import (
	"context"
	"fmt"
)

// ReadBlock copies one row starting at addr into buf[:RowSize]. A locked
// device is refused before any flash access. addr is not checked for
// alignment.
func (s *Session) ReadBlock(ctx context.Context, addr uint32, buf []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("read_block", err) }()

	if _, err := s.requireSelected(); err != nil {
		return err
	}
	return s.readBlock(ctx, addr, buf)
}

func (s *Session) readBlock(ctx context.Context, addr uint32, buf []byte) error {
	if len(buf) < RowSize {
		return fmt.Errorf("%w: buffer holds %d bytes", ErrRowSize, len(buf))
	}

	locked, err := s.locked(ctx)
	if err != nil {
		return err
	}
	if locked {
		return &LockedError{Op: "read"}
	}

	if err := s.mem.ReadBlock(ctx, addr, buf[:RowSize]); err != nil {
		return fmt.Errorf("read row 0x%08X: %w", addr, err)
	}
	s.cfg.Metrics.bytesRead(RowSize)
	return nil
}
