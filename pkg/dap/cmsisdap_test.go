package dap

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-logr/logr"
)

// fakeDAP answers CMSIS-DAP commands the way a probe attached to a Cortex-M
// target would, backed by a sparse word memory.
type fakeDAP struct {
	packetSize int
	dpidr      uint32
	sel        uint32
	ctrlStat   uint32
	csw        uint32
	tar        uint32
	mem        map[uint32]uint32
	faultAddr  map[uint32]bool
	blocks     []blockOp
	clockHz    uint32
	caps       byte // zero leaves capabilities unreported
	connects   int
	closed     bool
}

type blockOp struct {
	addr  uint32
	words int
	read  bool
}

func newFakeDAP() *fakeDAP {
	return &fakeDAP{
		packetSize: 64,
		dpidr:      0x0BC11477,
		csw:        0x03000040,
		mem:        make(map[uint32]uint32),
		faultAddr:  make(map[uint32]bool),
	}
}

func (f *fakeDAP) GetPacketSize() int { return f.packetSize }

func (f *fakeDAP) Close() error {
	f.closed = true
	return nil
}

func (f *fakeDAP) WriteRead(cmd []byte) ([]byte, error) {
	switch cmd[0] {
	case CmdInfo:
		switch cmd[1] {
		case InfoPacketSize:
			return []byte{CmdInfo, 2, byte(f.packetSize), byte(f.packetSize >> 8)}, nil
		case InfoVendorID:
			return append([]byte{CmdInfo, 4}, "Fake"...), nil
		case InfoSerialNum:
			return append([]byte{CmdInfo, 3}, "123"...), nil
		case InfoCapabilities:
			if f.caps != 0 {
				return []byte{CmdInfo, 1, f.caps}, nil
			}
		}
		return []byte{CmdInfo, 0}, nil
	case CmdConnect:
		f.connects++
		return []byte{CmdConnect, cmd[1]}, nil
	case CmdSWJClock:
		f.clockHz = binary.LittleEndian.Uint32(cmd[1:])
		return []byte{cmd[0], StatusOK}, nil
	case CmdTransfer:
		return f.transfer(cmd), nil
	case CmdTransferBlock:
		return f.transferBlock(cmd), nil
	default:
		return []byte{cmd[0], StatusOK}, nil
	}
}

func (f *fakeDAP) access(req byte, data uint32) (uint32, byte) {
	reg := req & TransferA32
	read := req&TransferRnW != 0
	if req&TransferAPnDP == 0 {
		switch {
		case read && reg == DPIDR:
			return f.dpidr, AckOK
		case read && reg == DPCtrlSt:
			return f.ctrlStat, AckOK
		case !read && reg == DPCtrlSt:
			if data&powerUpRq == powerUpRq {
				f.ctrlStat = data | powerUpOK
			}
		case !read && reg == DPSelect:
			f.sel = data
		}
		return 0, AckOK
	}

	switch reg {
	case APCSW:
		if read {
			return f.csw, AckOK
		}
		f.csw = data | cswDeviceEn
	case APTAR:
		if read {
			return f.tar, AckOK
		}
		f.tar = data
	case APDRW:
		addr := f.tar
		if f.faultAddr[addr] {
			return 0, AckFault
		}
		// Auto-increment wraps within the 1 KiB window like real MEM-APs.
		f.tar = (addr &^ (tarWrap - 1)) | ((addr + 4) & (tarWrap - 1))
		if read {
			return f.mem[addr], AckOK
		}
		f.mem[addr] = data
	}
	return 0, AckOK
}

func (f *fakeDAP) transfer(cmd []byte) []byte {
	count := int(cmd[2])
	resp := []byte{CmdTransfer, 0, AckOK}
	offset := 3
	for i := 0; i < count; i++ {
		req := cmd[offset]
		offset++
		var data uint32
		if req&TransferRnW == 0 {
			data = binary.LittleEndian.Uint32(cmd[offset:])
			offset += 4
		}
		v, ack := f.access(req, data)
		if ack != AckOK {
			resp[2] = ack
			return resp
		}
		resp[1]++
		if req&TransferRnW != 0 {
			resp = binary.LittleEndian.AppendUint32(resp, v)
		}
	}
	return resp
}

func (f *fakeDAP) transferBlock(cmd []byte) []byte {
	count := int(binary.LittleEndian.Uint16(cmd[2:]))
	req := cmd[4]
	read := req&TransferRnW != 0
	f.blocks = append(f.blocks, blockOp{addr: f.tar, words: count, read: read})

	resp := []byte{CmdTransferBlock, 0, 0, AckOK}
	done := 0
	for i := 0; i < count; i++ {
		var data uint32
		if !read {
			data = binary.LittleEndian.Uint32(cmd[5+4*i:])
		}
		v, ack := f.access(req, data)
		if ack != AckOK {
			resp[3] = ack
			break
		}
		done++
		if read {
			resp = binary.LittleEndian.AppendUint32(resp, v)
		}
	}
	binary.LittleEndian.PutUint16(resp[1:], uint16(done))
	return resp
}

func newTestProbe(t *testing.T) (*Probe, *fakeDAP) {
	t.Helper()
	fake := newFakeDAP()
	probe, err := NewProbe(fake, logr.Discard())
	if err != nil {
		t.Fatalf("NewProbe() error = %v", err)
	}
	return probe, fake
}

func TestProbeConnect(t *testing.T) {
	probe, fake := newTestProbe(t)

	if probe.DPIDR() != 0x0BC11477 {
		t.Errorf("DPIDR = 0x%08X, want 0x0BC11477", probe.DPIDR())
	}
	if fake.csw&^cswDeviceEn != cswWordIncr&^cswDeviceEn {
		t.Errorf("CSW = 0x%08X, want word/increment configuration", fake.csw)
	}
	if fake.clockHz != 1_000_000 {
		t.Errorf("clock = %d, want 1 MHz default", fake.clockHz)
	}

	info, _ := probe.Info()
	if info.Vendor != "Fake" || info.SerialNumber != "123" || info.PacketSize != 64 {
		t.Errorf("unexpected probe info: %+v", info)
	}

	if err := probe.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.closed {
		t.Errorf("transport not closed")
	}
}

func TestProbeRequiresSWD(t *testing.T) {
	tests := []struct {
		name    string
		caps    byte
		wantErr bool
	}{
		{"unreported", 0, false},
		{"SWD only", CapSWD, false},
		{"SWD and JTAG", CapSWD | CapJTAG, false},
		{"JTAG only", CapJTAG, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeDAP()
			fake.caps = tt.caps

			probe, err := NewProbe(fake, logr.Discard())
			if tt.wantErr {
				if !errors.Is(err, ErrNoSWD) {
					t.Fatalf("NewProbe() error = %v, want ErrNoSWD", err)
				}
				if fake.connects != 0 {
					t.Errorf("DAP_Connect sent %d times, want 0", fake.connects)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProbe() error = %v", err)
			}
			defer probe.Close()
			if fake.connects != 1 {
				t.Errorf("DAP_Connect sent %d times, want 1", fake.connects)
			}
		})
	}
}

func TestProbeWordAccess(t *testing.T) {
	probe, fake := newTestProbe(t)
	ctx := context.Background()

	if err := probe.WriteWord(ctx, 0x41004000, 0xA545); err != nil {
		t.Fatalf("WriteWord() error = %v", err)
	}
	if fake.mem[0x41004000] != 0xA545 {
		t.Errorf("mem = 0x%X, want 0xA545", fake.mem[0x41004000])
	}

	fake.mem[0x41002118] = 0x10010100
	v, err := probe.ReadWord(ctx, 0x41002118)
	if err != nil {
		t.Fatalf("ReadWord() error = %v", err)
	}
	if v != 0x10010100 {
		t.Errorf("ReadWord() = 0x%08X, want 0x10010100", v)
	}
}

func TestProbeBlockChunking(t *testing.T) {
	probe, fake := newTestProbe(t)
	ctx := context.Background()

	const addr = 0x3F0 // 16 bytes below a TAR wrap boundary
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i * 7)
	}

	if err := probe.WriteBlock(ctx, addr, data); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}

	got := make([]byte, len(data))
	if err := probe.ReadBlock(ctx, addr, got); err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read back data differs from written data")
	}

	for _, b := range fake.blocks {
		limit := probe.protocol.MaxBlockWords(b.read)
		if b.words > limit {
			t.Errorf("block at 0x%X has %d words, limit %d", b.addr, b.words, limit)
		}
		end := b.addr + uint32(b.words*4) - 1
		if b.addr/tarWrap != end/tarWrap {
			t.Errorf("block 0x%X..0x%X crosses a 1 KiB boundary", b.addr, end)
		}
	}
	if fake.blocks[0].words != 4 {
		t.Errorf("first chunk = %d words, want 4 (stop at boundary)", fake.blocks[0].words)
	}
}

func TestProbeBlockAlignment(t *testing.T) {
	probe, _ := newTestProbe(t)
	ctx := context.Background()

	if err := probe.WriteBlock(ctx, 0x102, make([]byte, 8)); !errors.Is(err, ErrUnaligned) {
		t.Errorf("WriteBlock(unaligned addr) error = %v, want ErrUnaligned", err)
	}
	if err := probe.ReadBlock(ctx, 0x100, make([]byte, 6)); !errors.Is(err, ErrUnaligned) {
		t.Errorf("ReadBlock(unaligned len) error = %v, want ErrUnaligned", err)
	}
}

func TestProbeFault(t *testing.T) {
	probe, fake := newTestProbe(t)
	fake.faultAddr[0x20000008] = true

	_, err := probe.ReadWord(context.Background(), 0x20000008)
	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("ReadWord() error = %v, want *TransferError", err)
	}
	if te.Ack != AckFault || te.Completed != 1 {
		t.Errorf("TransferError = %+v, want FAULT after 1 transfer", te)
	}

	err = probe.ReadBlock(context.Background(), 0x20000000, make([]byte, 16))
	if !errors.As(err, &te) {
		t.Fatalf("ReadBlock() error = %v, want *TransferError", err)
	}
}

func TestProbeSetSpeedRange(t *testing.T) {
	probe, fake := newTestProbe(t)

	if err := probe.SetSpeed(4_000_000); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if fake.clockHz != 4_000_000 {
		t.Errorf("clock = %d, want 4 MHz", fake.clockHz)
	}
	if err := probe.SetSpeed(100); err == nil {
		t.Errorf("expected error for out-of-range speed")
	}
}

func TestProbeCancelledContext(t *testing.T) {
	probe, _ := newTestProbe(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := probe.ReadWord(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadWord() error = %v, want context.Canceled", err)
	}
}

func TestProbeImplementsInterfaces(t *testing.T) {
	var _ MemoryAccessor = (*Probe)(nil)
	var _ ClockSetter = (*Probe)(nil)
	var _ MemoryAccessor = (*SimMemory)(nil)
	var _ Transport = (*USBTransport)(nil)
}

// Integration test - requires real CMSIS-DAP hardware and a target
func TestProbeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	probe, err := OpenUSBProbe(0, 0, "", logr.Discard())
	if err != nil {
		t.Skipf("No CMSIS-DAP hardware found: %v", err)
	}
	defer probe.Close()

	info, _ := probe.Info()
	t.Logf("Probe: %s %s (serial %s, firmware %s)", info.Vendor, info.Model, info.SerialNumber, info.Firmware)
	t.Logf("DPIDR: 0x%08X", probe.DPIDR())
}
