// Package fuses names the bit fields of the SAM D21 user row fuse word and
// parses assignments such as "BOOTPROT=0x7, WDT_ENABLE=0". The layout is
// shared by the SAM D family and R21; L21, C21 and R30 parts place their
// fields differently and are refused by CheckDevice.
package fuses

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/idcode"
)

var (
	ErrUnknownField      = errors.New("fuses: unknown field")
	ErrOutOfRange        = errors.New("fuses: value out of range")
	ErrUnsupportedDevice = errors.New("fuses: field layout not known for device")
)

// familySAMD is the DSU DID FAMILY value of SAM D09/D1x/D2x and R21 parts.
const familySAMD = 0

// Supports reports whether Fields describes the user row of the part
// identified by the DSU DID did.
func Supports(did uint32) bool {
	return idcode.ParseDID(did).Family == familySAMD
}

// CheckDevice returns an error wrapping ErrUnsupportedDevice when Fields
// does not apply to the part identified by did.
func CheckDevice(did uint32) error {
	if Supports(did) {
		return nil
	}
	return fmt.Errorf("%w: DID 0x%08X is a %s part", ErrUnsupportedDevice, did, idcode.ParseDID(did).FamilyName())
}

// Field is a contiguous run of bits in the 64-bit fuse word.
type Field struct {
	Name        string
	Lsb         uint
	Width       uint
	Description string
}

// Mask returns the field's bits in place.
func (f Field) Mask() uint64 {
	return f.Max() << f.Lsb
}

// Max returns the largest value the field holds.
func (f Field) Max() uint64 {
	return 1<<f.Width - 1
}

// Bits renders the field position the way datasheets do, e.g. "6:4".
func (f Field) Bits() string {
	if f.Width == 1 {
		return fmt.Sprintf("%d", f.Lsb)
	}
	return fmt.Sprintf("%d:%d", f.Lsb+f.Width-1, f.Lsb)
}

// Fields of NVM user row words 0 and 1. Bits not listed are reserved and
// carry factory settings.
var Fields = []Field{
	{"BOOTPROT", 0, 3, "bootloader size protection"},
	{"EEPROM", 4, 3, "EEPROM emulation area size"},
	{"BOD33_LEVEL", 8, 6, "BOD33 threshold level at power on"},
	{"BOD33_ENABLE", 14, 1, "BOD33 enable at power on"},
	{"BOD33_ACTION", 15, 2, "BOD33 action at power on"},
	{"WDT_ENABLE", 25, 1, "WDT enable at power on"},
	{"WDT_ALWAYSON", 26, 1, "WDT always-on at power on"},
	{"WDT_PERIOD", 27, 4, "WDT period at power on"},
	{"WDT_WINDOW", 31, 4, "WDT window mode time-out at power on"},
	{"WDT_EWOFFSET", 35, 4, "WDT early warning interrupt time offset"},
	{"WDT_WEN", 39, 1, "WDT window mode enable at power on"},
	{"BOD33_HYST", 40, 1, "BOD33 hysteresis configuration"},
	{"LOCK", 48, 16, "NVM region lock bits"},
}

// Lookup finds a field by name, ignoring case.
func Lookup(name string) (Field, bool) {
	for _, f := range Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Get extracts a named field from word.
func Get(word uint64, name string) (uint64, error) {
	f, ok := Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return word & f.Mask() >> f.Lsb, nil
}

// Set returns word with the named field replaced by value.
func Set(word uint64, name string, value uint64) (uint64, error) {
	f, ok := Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if value > f.Max() {
		return 0, fmt.Errorf("%w: %s is %d bits wide, max 0x%X, got 0x%X",
			ErrOutOfRange, f.Name, f.Width, f.Max(), value)
	}
	return word&^f.Mask() | value<<f.Lsb, nil
}

// Value is a field together with its current setting.
type Value struct {
	Field
	Value uint64
}

// Describe decodes every named field of word, in bit order.
func Describe(word uint64) []Value {
	out := make([]Value, 0, len(Fields))
	for _, f := range Fields {
		out = append(out, Value{Field: f, Value: word & f.Mask() >> f.Lsb})
	}
	return out
}
