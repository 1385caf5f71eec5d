package idcode

// DPIDR represents a parsed ARM debug port identification register
type DPIDR struct {
	Raw        uint32 // full DPIDR
	Revision   uint8  // [31:28]
	PartNumber uint8  // [27:20]
	MinDP      bool   // [16] minimal debug port (no pushed ops)
	Version    uint8  // [15:12] DPv0/1/2
	Designer   uint16 // [11:1] JEP106
	Present    bool   // bit 0 == 1
}

// DeviceID represents a parsed Microchip SAM DSU device identification
// register (DSU DID).
type DeviceID struct {
	Raw       uint32
	Processor uint8 // [31:28]
	Family    uint8 // [27:23]
	Series    uint8 // [21:16]
	Die       uint8 // [15:12]
	Revision  uint8 // [11:8]
	DevSel    uint8 // [7:0]
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // JEP106 code, continuation count in bits 10:7
	Name         string // "Microchip Technology"
	Abbreviation string // "Microchip"
}
