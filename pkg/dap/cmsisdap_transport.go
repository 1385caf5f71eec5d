package dap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// DefaultPacketSize is the CMSIS-DAP v1 full-speed HID report size.
	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second

	hidSetReport    = 0x09
	hidOutputReport = 0x0200
	hidClassOut     = 0x21 // host-to-device, class, interface
)

// Transport moves CMSIS-DAP command/response packets to and from a probe.
type Transport interface {
	WriteRead(cmd []byte) ([]byte, error)
	GetPacketSize() int
	Close() error
}

// Framing is the USB framing a probe uses for DAP packets.
type Framing int

const (
	// FramingHID is CMSIS-DAP v1: fixed-size HID reports, as spoken by
	// Atmel-ICE, EDBG and most older probes.
	FramingHID Framing = iota + 1
	// FramingBulk is CMSIS-DAP v2: a vendor-class interface with a bulk
	// endpoint pair and unpadded packets.
	FramingBulk
)

func (f Framing) String() string {
	switch f {
	case FramingHID:
		return "v1 HID"
	case FramingBulk:
		return "v2 bulk"
	}
	return "unknown"
}

// USBTransport exchanges DAP packets with a probe over gousb. Bulk
// interfaces are preferred when a probe offers both framings.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	in  *gousb.InEndpoint
	out *gousb.OutEndpoint // nil when HID reports go through SET_REPORT

	framing    Framing
	packetSize int
	timeout    time.Duration
}

// NewUSBTransport opens a CMSIS-DAP probe. A zero vid matches any probe in
// the known probe table; a non-empty serial narrows the match further.
func NewUSBTransport(vid, pid uint16, serial string) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := openProbe(ctx, vid, pid, serial)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	// HID probes are claimed by the kernel's hid driver on Linux.
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
	}
	if err := t.claim(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func openProbe(ctx *gousb.Context, vid, pid uint16, serial string) (*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if vid == 0 {
			_, ok := lookupKnownProbe(uint16(desc.Vendor), uint16(desc.Product))
			return ok
		}
		return uint16(desc.Vendor) == vid && uint16(desc.Product) == pid
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("USB error: %w", err)
	}

	var found *gousb.Device
	for _, dev := range devs {
		if found != nil {
			dev.Close()
			continue
		}
		if serial != "" {
			if sn, _ := dev.SerialNumber(); sn != serial {
				dev.Close()
				continue
			}
		}
		found = dev
	}

	if found == nil {
		what := "no known CMSIS-DAP probe"
		if vid != 0 {
			what = fmt.Sprintf("no probe with VID:PID %04X:%04X", vid, pid)
		}
		if serial != "" {
			what += fmt.Sprintf(" and serial %q", serial)
		}
		return nil, fmt.Errorf("%s found", what)
	}
	return found, nil
}

// claim picks the DAP interface and its endpoints.
func (t *USBTransport) claim() error {
	cfgNum, err := t.dev.ActiveConfigNum()
	if err != nil || cfgNum == 0 {
		cfgNum = 1
	}
	cfg, err := t.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to select config %d: %w", cfgNum, err)
	}
	t.cfg = cfg

	num, framing, ok := dapInterface(cfg.Desc)
	if !ok {
		return fmt.Errorf("no CMSIS-DAP interface on %s", t.dev)
	}
	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", num, err)
	}
	t.intf = intf
	t.framing = framing

	want := gousb.TransferTypeBulk
	if framing == FramingHID {
		want = gousb.TransferTypeInterrupt
	}
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != want {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && t.in == nil:
			if t.in, err = intf.InEndpoint(ep.Number); err != nil {
				return fmt.Errorf("failed to open IN endpoint: %w", err)
			}
			t.packetSize = ep.MaxPacketSize
		case ep.Direction == gousb.EndpointDirectionOut && t.out == nil:
			if t.out, err = intf.OutEndpoint(ep.Number); err != nil {
				return fmt.Errorf("failed to open OUT endpoint: %w", err)
			}
		}
	}

	if t.in == nil {
		return fmt.Errorf("%s interface %d has no IN endpoint", framing, num)
	}
	if t.out == nil && framing == FramingBulk {
		return fmt.Errorf("%s interface %d has no OUT endpoint", framing, num)
	}
	return nil
}

// dapInterface returns the interface carrying DAP packets: the first
// vendor-class interface with bulk endpoints, else the first HID interface.
func dapInterface(desc gousb.ConfigDesc) (int, Framing, bool) {
	hid := -1
	for _, intf := range desc.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		switch alt.Class {
		case gousb.ClassVendorSpec:
			for _, ep := range alt.Endpoints {
				if ep.TransferType == gousb.TransferTypeBulk {
					return intf.Number, FramingBulk, true
				}
			}
		case gousb.ClassHID:
			if hid < 0 {
				hid = intf.Number
			}
		}
	}
	if hid >= 0 {
		return hid, FramingHID, true
	}
	return 0, 0, false
}

// Framing reports which CMSIS-DAP framing the probe is driven with.
func (t *USBTransport) Framing() Framing {
	return t.framing
}

// WriteRead sends one command packet and returns the probe's response.
func (t *USBTransport) WriteRead(cmd []byte) ([]byte, error) {
	if len(cmd) > t.packetSize {
		return nil, fmt.Errorf("command of %d bytes exceeds packet size %d", len(cmd), t.packetSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if err := t.send(ctx, cmd); err != nil {
		return nil, err
	}

	resp := make([]byte, t.packetSize)
	n, err := t.in.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	return resp[:n], nil
}

func (t *USBTransport) send(ctx context.Context, cmd []byte) error {
	packet := cmd
	if t.framing == FramingHID {
		// HID reports have a fixed size
		packet = make([]byte, t.packetSize)
		copy(packet, cmd)
	}

	var err error
	if t.out != nil {
		_, err = t.out.WriteContext(ctx, packet)
	} else {
		_, err = t.dev.Control(hidClassOut, hidSetReport, hidOutputReport, uint16(t.intf.Setting.Number), packet)
	}
	if err != nil {
		return fmt.Errorf("USB write failed: %w", err)
	}
	return nil
}

// GetPacketSize returns the size of the probe's IN endpoint packets.
func (t *USBTransport) GetPacketSize() int {
	return t.packetSize
}

// SetTimeout bounds each command/response exchange.
func (t *USBTransport) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		t.timeout = timeout
	}
}

// Close releases the interface, the device and the USB context.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
