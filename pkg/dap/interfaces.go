package dap

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes probe families.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP InterfaceKind = "cmsis-dap"
	InterfaceKindSim      InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected probe.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Framing     Framing // zero for the simulator
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// knownProbe is a CMSIS-DAP probe recognised by its USB identity.
type knownProbe struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownProbes = []knownProbe{
	{0x03EB, 0x2141, "Atmel-ICE"},
	{0x03EB, 0x2111, "Atmel EDBG (Xplained Pro)"},
	{0x03EB, 0x2145, "Atmel mEDBG"},
	{0x03EB, 0x2175, "Microchip nEDBG (Curiosity Nano)"},
	{0x0D28, 0x0204, "Arm DAPLink"},
	{0x2E8A, 0x000C, "Raspberry Pi Debug Probe"},
}

func lookupKnownProbe(vid, pid uint16) (knownProbe, bool) {
	for _, p := range knownProbes {
		if p.VendorID == vid && p.ProductID == pid {
			return p, true
		}
	}
	return knownProbe{}, false
}

// DiscoverInterfaces lists the known CMSIS-DAP probes on the bus. The
// simulator is always appended last so the CLI works without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var results []InterfaceInfo
	index := make(map[[2]int]int) // bus, address -> results index
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		probe, ok := lookupKnownProbe(uint16(desc.Vendor), uint16(desc.Product))
		if !ok {
			return false
		}
		index[[2]int{desc.Bus, desc.Address}] = len(results)
		results = append(results, InterfaceInfo{
			Kind:        InterfaceKindCMSISDAP,
			Description: probe.Description,
			VendorID:    probe.VendorID,
			ProductID:   probe.ProductID,
			Framing:     describeFraming(desc),
		})
		return true
	})

	for _, dev := range devs {
		if i, ok := index[[2]int{dev.Desc.Bus, dev.Desc.Address}]; ok {
			results[i].Serial, _ = dev.SerialNumber()
		}
		dev.Close()
	}
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, ctx.Err()
}

func describeFraming(desc *gousb.DeviceDesc) Framing {
	for _, cfg := range desc.Configs {
		if _, framing, ok := dapInterface(cfg); ok {
			return framing
		}
	}
	return 0
}
