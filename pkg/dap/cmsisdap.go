package dap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Debug port registers
const (
	DPIDR     = 0x00 // read
	DPAbort   = 0x00 // write
	DPCtrlSt  = 0x04
	DPSelect  = 0x08
	DPRdBuff  = 0x0C
	abortAll  = 0x0000001E
	powerUpRq = 0x50000000 // CSYSPWRUPREQ | CDBGPWRUPREQ
	powerUpOK = 0xA0000000 // CSYSPWRUPACK | CDBGPWRUPACK
)

// MEM-AP registers (bank 0)
const (
	APCSW = 0x00
	APTAR = 0x04
	APDRW = 0x0C

	cswDeviceEn = 0x40
	// Basic mode, word access, single auto-increment.
	cswWordIncr = 0x23000052

	// TAR auto-increment is only guaranteed within a 1 KiB window.
	tarWrap = 1024

	powerUpRetries = 100
)

// ErrNoSWD is returned when the probe reports that it cannot speak SWD.
var ErrNoSWD = errors.New("dap: probe does not support SWD")

// Probe drives a CMSIS-DAP probe in SWD mode and exposes the target's
// memory through MEM-AP 0. It implements MemoryAccessor and ClockSetter.
type Probe struct {
	transport Transport
	protocol  *CMSISDAPProtocol
	log       logr.Logger

	info      ProbeInfo
	dpidr     uint32
	speedHz   int
	connected bool

	mu sync.Mutex // Protect concurrent access
}

// OpenUSBProbe opens a CMSIS-DAP probe over USB and brings up the SWD link.
func OpenUSBProbe(vid, pid uint16, serial string, log logr.Logger) (*Probe, error) {
	transport, err := NewUSBTransport(vid, pid, serial)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}

	probe, err := NewProbe(transport, log)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return probe, nil
}

// NewProbe queries the probe behind transport, connects in SWD mode and
// powers up the target debug domain.
func NewProbe(transport Transport, log logr.Logger) (*Probe, error) {
	p := &Probe{
		transport: transport,
		protocol:  NewCMSISDAPProtocol(transport.GetPacketSize()),
		log:       log,
		speedHz:   1_000_000, // Default 1 MHz
	}

	if err := p.queryInfo(); err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}

	if err := p.connect(); err != nil {
		p.disconnect()
		return nil, fmt.Errorf("failed to connect to SWD: %w", err)
	}

	if err := p.SetSpeed(p.speedHz); err != nil {
		p.disconnect()
		return nil, fmt.Errorf("failed to set default speed: %w", err)
	}

	if err := p.initDebugPort(); err != nil {
		p.disconnect()
		return nil, fmt.Errorf("failed to initialise debug port: %w", err)
	}

	return p, nil
}

// queryInfo retrieves device information from the probe
func (p *Probe) queryInfo() error {
	resp, err := p.transport.WriteRead(p.protocol.EncodeInfo(InfoVendorID))
	if err != nil {
		return err
	}
	vendor, _ := p.protocol.DecodeInfo(resp)

	product := p.infoString(InfoProductID)
	serial := p.infoString(InfoSerialNum)
	firmware := p.infoString(InfoFirmwareVer)

	// Firmware that leaves capabilities unreported is assumed to have SWD.
	if resp, err := p.transport.WriteRead(p.protocol.EncodeInfo(InfoCapabilities)); err == nil {
		if caps, err := p.protocol.DecodeInfoCapabilities(resp); err == nil && caps&CapSWD == 0 {
			return fmt.Errorf("%w (capabilities 0x%02X)", ErrNoSWD, caps)
		}
	}

	if resp, err := p.transport.WriteRead(p.protocol.EncodeInfo(InfoPacketSize)); err == nil {
		if size, err := p.protocol.DecodeInfoPacketSize(resp); err == nil && size >= 16 {
			if size > p.transport.GetPacketSize() {
				size = p.transport.GetPacketSize()
			}
			p.protocol.PacketSize = size
		}
	}

	p.info = ProbeInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		PacketSize:   p.protocol.PacketSize,
		MinFrequency: 1000,       // 1 kHz
		MaxFrequency: 10_000_000, // 10 MHz (typical for CMSIS-DAP)
	}

	p.log.V(1).Info("probe identified", "vendor", vendor, "product", product,
		"serial", serial, "firmware", firmware, "packetSize", p.protocol.PacketSize)
	return nil
}

func (p *Probe) infoString(id byte) string {
	resp, err := p.transport.WriteRead(p.protocol.EncodeInfo(id))
	if err != nil {
		return ""
	}
	s, _ := p.protocol.DecodeInfo(resp)
	return s
}

// connect establishes the SWD connection and switches the target's SWJ-DP
// from JTAG to SWD.
func (p *Probe) connect() error {
	resp, err := p.transport.WriteRead(p.protocol.EncodeConnect(PortSWD))
	if err != nil {
		return err
	}

	port, err := p.protocol.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if port != PortSWD {
		return fmt.Errorf("failed to connect to SWD (got port %d)", port)
	}
	p.connected = true

	if err := p.command(CmdTransferConfigure, p.protocol.EncodeTransferConfigure(0, 128, 128)); err != nil {
		return err
	}
	if err := p.command(CmdSWDConfigure, p.protocol.EncodeSWDConfigure(0)); err != nil {
		return err
	}

	ones := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	sequences := []struct {
		bits int
		data []byte
	}{
		{56, ones},               // line reset
		{16, []byte{0x9E, 0xE7}}, // JTAG-to-SWD
		{56, ones},               // line reset
		{8, []byte{0x00}},        // idle
	}
	for _, seq := range sequences {
		if err := p.command(CmdSWJSequence, p.protocol.EncodeSWJSequence(seq.bits, seq.data)); err != nil {
			return fmt.Errorf("SWJ sequence failed: %w", err)
		}
	}

	return nil
}

// initDebugPort reads DPIDR, clears sticky errors, powers up the debug and
// system domains and configures MEM-AP 0 for word access.
func (p *Probe) initDebugPort() error {
	values, err := p.transfer([]Transfer{DPRead(DPIDR)})
	if err != nil {
		return fmt.Errorf("read DPIDR: %w", err)
	}
	p.dpidr = values[0]
	p.log.V(1).Info("debug port found", "dpidr", fmt.Sprintf("0x%08X", p.dpidr))

	if _, err := p.transfer([]Transfer{
		DPWrite(DPAbort, abortAll),
		DPWrite(DPSelect, 0),
		DPWrite(DPCtrlSt, powerUpRq),
	}); err != nil {
		return fmt.Errorf("power-up request: %w", err)
	}

	powered := false
	for i := 0; i < powerUpRetries; i++ {
		values, err := p.transfer([]Transfer{DPRead(DPCtrlSt)})
		if err != nil {
			return fmt.Errorf("read CTRL/STAT: %w", err)
		}
		if values[0]&powerUpOK == powerUpOK {
			powered = true
			break
		}
	}
	if !powered {
		return fmt.Errorf("debug power-up not acknowledged")
	}

	values, err = p.transfer([]Transfer{APRead(APCSW)})
	if err != nil {
		return fmt.Errorf("read CSW: %w", err)
	}
	if values[0]&cswDeviceEn == 0 {
		return fmt.Errorf("MEM-AP is disabled")
	}

	if _, err := p.transfer([]Transfer{APWrite(APCSW, cswWordIncr)}); err != nil {
		return fmt.Errorf("write CSW: %w", err)
	}
	return nil
}

func (p *Probe) command(cmd byte, packet []byte) error {
	resp, err := p.transport.WriteRead(packet)
	if err != nil {
		return err
	}
	return p.protocol.DecodeStatus(cmd, resp)
}

func (p *Probe) transfer(transfers []Transfer) ([]uint32, error) {
	resp, err := p.transport.WriteRead(p.protocol.EncodeTransfer(transfers))
	if err != nil {
		return nil, err
	}
	return p.protocol.DecodeTransfer(resp, transfers)
}

func (p *Probe) transferBlock(request byte, count int, data []uint32) ([]uint32, error) {
	resp, err := p.transport.WriteRead(p.protocol.EncodeTransferBlock(request, count, data))
	if err != nil {
		return nil, err
	}
	return p.protocol.DecodeTransferBlock(resp, request, count)
}

// Info returns probe capabilities
func (p *Probe) Info() (ProbeInfo, error) {
	return p.info, nil
}

// DPIDR returns the debug port identification register read during
// connection.
func (p *Probe) DPIDR() uint32 {
	return p.dpidr
}

// ReadWord reads one 32-bit word from target memory.
func (p *Probe) ReadWord(ctx context.Context, addr uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.transfer([]Transfer{APWrite(APTAR, addr), APRead(APDRW)})
	if err != nil {
		return 0, fmt.Errorf("read 0x%08X: %w", addr, err)
	}
	p.log.V(2).Info("read word", "addr", fmt.Sprintf("0x%08X", addr), "value", fmt.Sprintf("0x%08X", values[0]))
	return values[0], nil
}

// WriteWord writes one 32-bit word to target memory.
func (p *Probe) WriteWord(ctx context.Context, addr, value uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.V(2).Info("write word", "addr", fmt.Sprintf("0x%08X", addr), "value", fmt.Sprintf("0x%08X", value))
	if _, err := p.transfer([]Transfer{APWrite(APTAR, addr), APWrite(APDRW, value)}); err != nil {
		return fmt.Errorf("write 0x%08X: %w", addr, err)
	}
	return nil
}

// ReadBlock fills buf from target memory starting at addr.
func (p *Probe) ReadBlock(ctx context.Context, addr uint32, buf []byte) error {
	words, err := ValidateBlock(addr, buf)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := p.protocol.MaxBlockWords(true)
	for done := 0; done < words; {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := addr + uint32(done*4)
		n := chunkWords(cur, words-done, limit)

		if _, err := p.transfer([]Transfer{APWrite(APTAR, cur)}); err != nil {
			return fmt.Errorf("read block 0x%08X: %w", cur, err)
		}
		values, err := p.transferBlock(TransferAPnDP|TransferRnW|APDRW, n, nil)
		if err != nil {
			return fmt.Errorf("read block 0x%08X: %w", cur, err)
		}
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[(done+i)*4:], v)
		}
		done += n
	}

	p.log.V(2).Info("read block", "addr", fmt.Sprintf("0x%08X", addr), "length", len(buf))
	return nil
}

// WriteBlock copies buf to target memory starting at addr.
func (p *Probe) WriteBlock(ctx context.Context, addr uint32, buf []byte) error {
	words, err := ValidateBlock(addr, buf)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := p.protocol.MaxBlockWords(false)
	for done := 0; done < words; {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := addr + uint32(done*4)
		n := chunkWords(cur, words-done, limit)

		data := make([]uint32, n)
		for i := range data {
			data[i] = binary.LittleEndian.Uint32(buf[(done+i)*4:])
		}

		if _, err := p.transfer([]Transfer{APWrite(APTAR, cur)}); err != nil {
			return fmt.Errorf("write block 0x%08X: %w", cur, err)
		}
		if _, err := p.transferBlock(TransferAPnDP|APDRW, n, data); err != nil {
			return fmt.Errorf("write block 0x%08X: %w", cur, err)
		}
		done += n
	}

	p.log.V(2).Info("write block", "addr", fmt.Sprintf("0x%08X", addr), "length", len(buf))
	return nil
}

// chunkWords returns how many words starting at addr can go in one block
// transfer without crossing the TAR auto-increment window.
func chunkWords(addr uint32, remaining, limit int) int {
	n := remaining
	if n > limit {
		n = limit
	}
	if toWrap := int(tarWrap-addr%tarWrap) / 4; n > toWrap {
		n = toWrap
	}
	return n
}

// SetSpeed sets the SWCLK frequency
func (p *Probe) SetSpeed(hz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if hz < p.info.MinFrequency || hz > p.info.MaxFrequency {
		return fmt.Errorf("frequency %d Hz out of range [%d, %d]",
			hz, p.info.MinFrequency, p.info.MaxFrequency)
	}

	if err := p.command(CmdSWJClock, p.protocol.EncodeSetClock(uint32(hz))); err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}

	p.speedHz = hz
	return nil
}

// ResetTarget pulses the probe's hardware reset line.
func (p *Probe) ResetTarget() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp, err := p.transport.WriteRead(p.protocol.EncodeResetTarget())
	if err != nil {
		return fmt.Errorf("hard reset failed: %w", err)
	}
	return p.protocol.DecodeResetTarget(resp)
}

// Close disconnects and releases resources
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disconnect()
	return p.transport.Close()
}

func (p *Probe) disconnect() {
	if p.connected {
		p.transport.WriteRead(p.protocol.EncodeDisconnect())
		p.connected = false
	}
}
