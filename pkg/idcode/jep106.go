package idcode

import "fmt"

// manufacturers holds the JEP106 designers likely to show up behind an SWD
// port. Keys carry the continuation count in bits 10:7 and the identity
// code in bits 6:0, which is how DPIDR.DESIGNER encodes them.
var manufacturers = map[uint16]Manufacturer{
	0x01F: {Code: 0x01F, Name: "Atmel", Abbreviation: "Atmel"},
	0x020: {Code: 0x020, Name: "STMicroelectronics", Abbreviation: "STM"},
	0x015: {Code: 0x015, Name: "NXP (Philips)", Abbreviation: "NXP"},
	0x017: {Code: 0x017, Name: "Texas Instruments", Abbreviation: "TI"},
	0x029: {Code: 0x029, Name: "Microchip Technology", Abbreviation: "Microchip"},
	0x144: {Code: 0x144, Name: "Nordic Semiconductor", Abbreviation: "Nordic"},
	0x23B: {Code: 0x23B, Name: "ARM Ltd", Abbreviation: "ARM"},
	0x493: {Code: 0x493, Name: "Raspberry Pi", Abbreviation: "RPi"},
}

// LookupManufacturer returns manufacturer info for a JEP106 code
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	m, ok := manufacturers[code]
	if !ok {
		return Manufacturer{
			Code:         code,
			Name:         fmt.Sprintf("Unknown (bank %d, id 0x%02X)", code>>7+1, code&0x7F),
			Abbreviation: "Unknown",
		}, false
	}
	return m, true
}
