package idcode

import "fmt"

// ParseDPIDR parses a raw DPIDR value into its component fields
func ParseDPIDR(raw uint32) DPIDR {
	return DPIDR{
		Raw:        raw,
		Revision:   uint8((raw >> 28) & 0xF),
		PartNumber: uint8((raw >> 20) & 0xFF),
		MinDP:      (raw>>16)&0x1 == 0x1,
		Version:    uint8((raw >> 12) & 0xF),
		Designer:   uint16((raw >> 1) & 0x7FF),
		Present:    (raw & 0x1) == 0x1,
	}
}

// Manufacturer resolves the JEP106 designer code.
func (d DPIDR) Manufacturer() Manufacturer {
	m, _ := LookupManufacturer(d.Designer)
	return m
}

func (d DPIDR) String() string {
	return fmt.Sprintf("DPIDR 0x%08X (DPv%d, part 0x%02X, rev %d, designer %s)",
		d.Raw, d.Version, d.PartNumber, d.Revision, d.Manufacturer().Name)
}

// ParseDID parses a raw DSU DID value into its component fields
func ParseDID(raw uint32) DeviceID {
	return DeviceID{
		Raw:       raw,
		Processor: uint8((raw >> 28) & 0xF),
		Family:    uint8((raw >> 23) & 0x1F),
		Series:    uint8((raw >> 16) & 0x3F),
		Die:       uint8((raw >> 12) & 0xF),
		Revision:  uint8((raw >> 8) & 0xF),
		DevSel:    uint8(raw & 0xFF),
	}
}

// ProcessorName returns the core named by the PROCESSOR field.
func (d DeviceID) ProcessorName() string {
	switch d.Processor {
	case 0x1:
		return "Cortex-M0+"
	case 0x2:
		return "Cortex-M3"
	case 0x3, 0x6:
		return "Cortex-M4"
	}
	return fmt.Sprintf("unknown (%d)", d.Processor)
}

// FamilyName returns the product family named by the FAMILY field.
func (d DeviceID) FamilyName() string {
	switch d.Family {
	case 0x0:
		return "SAM D"
	case 0x1:
		return "SAM L"
	case 0x2:
		return "SAM C"
	}
	return fmt.Sprintf("unknown (%d)", d.Family)
}

// RevisionLetter renders the die revision the way datasheets do ('A' for 0).
func (d DeviceID) RevisionLetter() string {
	return string(rune('A' + d.Revision))
}

func (d DeviceID) String() string {
	return fmt.Sprintf("DID 0x%08X (%s, %s, series %d, die %d, rev %s, devsel 0x%02X)",
		d.Raw, d.ProcessorName(), d.FamilyName(), d.Series, d.Die, d.RevisionLetter(), d.DevSel)
}
