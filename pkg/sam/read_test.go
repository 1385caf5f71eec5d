package sam_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam/samsim"
)

func TestReadBlock(t *testing.T) {
	s, sim := selected(t, nil)
	data := make([]byte, sam.RowSize)
	for i := range data {
		data[i] = byte(i)
	}
	sim.LoadFlash(0x800, data)

	buf := make([]byte, 300)
	if err := s.ReadBlock(context.Background(), 0x800, buf); err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if !bytes.Equal(buf[:sam.RowSize], data) {
		t.Errorf("ReadBlock() returned wrong data")
	}
	for _, b := range buf[sam.RowSize:] {
		if b != 0 {
			t.Fatalf("ReadBlock() wrote past one row")
		}
	}
}

func TestReadBlockLocked(t *testing.T) {
	s, sim := selected(t, []samsim.Option{samsim.WithLocked(true)})

	err := s.ReadBlock(context.Background(), 0, make([]byte, sam.RowSize))
	if !errors.Is(err, sam.ErrLocked) {
		t.Fatalf("ReadBlock() error = %v, want ErrLocked", err)
	}
	var locked *sam.LockedError
	if errors.As(err, &locked) && locked.Op != "read" {
		t.Errorf("Op = %q, want read", locked.Op)
	}
	for _, a := range sim.Accesses() {
		if a.Kind == dap.AccessReadBlock {
			t.Errorf("locked device was read: %+v", a)
		}
	}
}

func TestReadBlockShortBuffer(t *testing.T) {
	s, _ := selected(t, nil)
	if err := s.ReadBlock(context.Background(), 0, make([]byte, 64)); !errors.Is(err, sam.ErrRowSize) {
		t.Errorf("ReadBlock(short) error = %v, want ErrRowSize", err)
	}
}

func TestReadBlockAfterErase(t *testing.T) {
	s, _ := selected(t, []samsim.Option{samsim.WithLocked(true)})
	ctx := context.Background()

	if err := s.Erase(ctx); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	buf := make([]byte, sam.RowSize)
	if err := s.ReadBlock(ctx, 0, buf); err != nil {
		t.Fatalf("ReadBlock() after erase error = %v", err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xFF}, sam.RowSize)) {
		t.Errorf("erased row does not read as 0xFF")
	}
}
