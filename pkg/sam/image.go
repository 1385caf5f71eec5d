package sam

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Program writes image to flash starting offset bytes into the array. The
// final row is padded with 0xFF. offset must be row aligned.
func (s *Session) Program(ctx context.Context, image []byte, offset uint32) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("program", err) }()

	dev, err := s.requireSelected()
	if err != nil {
		return err
	}
	if err := checkRange(dev, offset, len(image)); err != nil {
		return err
	}

	addr, err := s.programStart(ctx, offset)
	if err != nil {
		return err
	}

	rows := rowCount(len(image))
	s.log.Info("programming", "device", dev.Name, "addr", fmt.Sprintf("0x%08X", addr),
		"bytes", len(image), "rows", rows)

	start := time.Now()
	row := make([]byte, RowSize)
	for i := 0; i < rows; i++ {
		n := copy(row, image[i*RowSize:])
		for j := n; j < RowSize; j++ {
			row[j] = 0xFF
		}
		if err := s.programBlock(ctx, addr+uint32(i*RowSize), row); err != nil {
			return err
		}
		s.report("programming", i+1, rows, min((i+1)*RowSize, len(image)), start)
	}

	s.log.Info("programming done", "elapsed", time.Since(start).String())
	return nil
}

// Verify reads back the flash covered by image and compares it byte for
// byte, returning a *VerifyError at the first difference.
func (s *Session) Verify(ctx context.Context, image []byte, offset uint32) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("verify", err) }()

	dev, err := s.requireSelected()
	if err != nil {
		return err
	}
	if err := checkRange(dev, offset, len(image)); err != nil {
		return err
	}

	rows := rowCount(len(image))
	start := time.Now()
	row := make([]byte, RowSize)
	for i := 0; i < rows; i++ {
		addr := FlashStart + offset + uint32(i*RowSize)
		if err := s.readBlock(ctx, addr, row); err != nil {
			return err
		}
		want := image[i*RowSize:]
		for j := 0; j < RowSize && j < len(want); j++ {
			if row[j] != want[j] {
				return &VerifyError{Addr: addr + uint32(j), Want: want[j], Got: row[j]}
			}
		}
		s.report("verifying", i+1, rows, min((i+1)*RowSize, len(image)), start)
	}

	s.log.Info("verify ok", "bytes", len(image))
	return nil
}

// Dump streams length bytes of flash starting at offset to w.
func (s *Session) Dump(ctx context.Context, offset, length uint32, w io.Writer) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("dump", err) }()

	dev, err := s.requireSelected()
	if err != nil {
		return err
	}
	if err := checkRange(dev, offset, int(length)); err != nil {
		return err
	}

	rows := rowCount(int(length))
	start := time.Now()
	row := make([]byte, RowSize)
	for i := 0; i < rows; i++ {
		addr := FlashStart + offset + uint32(i*RowSize)
		if err := s.readBlock(ctx, addr, row); err != nil {
			return err
		}
		n := min(RowSize, int(length)-i*RowSize)
		if _, err := w.Write(row[:n]); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		s.report("reading", i+1, rows, i*RowSize+n, start)
	}
	return nil
}

func (s *Session) report(phase string, row, total, bytes int, start time.Time) {
	if s.cfg.Progress == nil {
		return
	}
	s.cfg.Progress(Progress{
		Phase:      phase,
		CurrentRow: row,
		TotalRows:  total,
		Percentage: float64(row) / float64(total) * 100,
		Bytes:      bytes,
		Elapsed:    time.Since(start),
	})
}

func checkRange(dev DeviceRecord, offset uint32, size int) error {
	if offset%RowSize != 0 {
		return fmt.Errorf("%w: offset 0x%X", ErrMisaligned, offset)
	}
	if offset > dev.FlashSize || uint64(size) > uint64(dev.FlashSize-offset) {
		return fmt.Errorf("%w: %d bytes at offset 0x%X, %s has %d bytes",
			ErrImageTooLarge, size, offset, dev.Name, dev.FlashSize)
	}
	return nil
}

func rowCount(size int) int {
	return (size + RowSize - 1) / RowSize
}
