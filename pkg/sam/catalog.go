package sam

import "fmt"

// DeviceRecord describes one supported part as identified by its DSU DID.
type DeviceRecord struct {
	ID        uint32
	Name      string
	FlashSize uint32 // bytes
	PageSize  uint32 // bytes, informational; rows are always RowSize
}

func (d DeviceRecord) String() string {
	return fmt.Sprintf("%s (DID 0x%08X, %d KiB flash, %d byte pages)", d.Name, d.ID, d.FlashSize/1024, d.PageSize)
}

// Rows returns how many 256-byte rows fit in the device's flash.
func (d DeviceRecord) Rows() uint32 {
	return d.FlashSize / RowSize
}

// catalog is scanned in order until the zero-ID sentinel; first match wins.
var catalog = []DeviceRecord{
	{0x10040107, "SAM D09C13A", 8 * 1024, 128},
	{0x10020100, "SAM D10D14AM", 16 * 1024, 256},
	{0x10030100, "SAM D11D14A", 16 * 1024, 256},
	{0x10030000, "SAM D11D14AM", 16 * 1024, 256},
	{0x10030003, "SAM D11D14AS", 16 * 1024, 256},
	{0x10030006, "SAM D11C14A", 16 * 1024, 256},
	{0x10030106, "SAM D11C14A (Rev B)", 16 * 1024, 256},
	{0x1000120d, "SAM D20E15A", 32 * 1024, 512},
	{0x1000140a, "SAM D20E18A", 256 * 1024, 4096},
	{0x10001100, "SAM D20J18A", 256 * 1024, 4096},
	{0x10001200, "SAM D20J18A (Rev C)", 256 * 1024, 4096},
	{0x10010100, "SAM D21J18A", 256 * 1024, 4096},
	{0x10010200, "SAM D21J18A (Rev C)", 256 * 1024, 4096},
	{0x10010300, "SAM D21J18A (Rev D)", 256 * 1024, 4096},
	{0x1001020d, "SAM D21E15A (Rev C)", 32 * 1024, 512},
	{0x1001030a, "SAM D21E18A", 256 * 1024, 4096},
	{0x10010205, "SAM D21G18A", 256 * 1024, 4096},
	{0x10010305, "SAM D21G18A (Rev D)", 256 * 1024, 4096},
	{0x10010019, "SAM R21G18 ES", 256 * 1024, 4096},
	{0x10010119, "SAM R21G18", 256 * 1024, 4096},
	{0x10010219, "SAM R21G18A (Rev C)", 256 * 1024, 4096},
	{0x10010319, "SAM R21G18A (Rev D)", 256 * 1024, 4096},
	{0x11010100, "SAM C21J18A ES", 256 * 1024, 4096},
	{0x10810219, "SAM L21E18B", 256 * 1024, 4096},
	{0x10810000, "SAM L21J18A", 256 * 1024, 4096},
	{0x1081010f, "SAM L21J18B (Rev B)", 256 * 1024, 4096},
	{0x1081020f, "SAM L21J18B (Rev C)", 256 * 1024, 4096},
	{0x1081021e, "SAM R30G18A", 256 * 1024, 4096},
	{0x1081021f, "SAM R30E18A", 256 * 1024, 4096},
	{}, // sentinel
}

// Lookup returns the catalog record for a DSU DID value.
func Lookup(id uint32) (DeviceRecord, bool) {
	for _, d := range catalog {
		if d.ID == 0 {
			break
		}
		if d.ID == id {
			return d, true
		}
	}
	return DeviceRecord{}, false
}

// Devices returns a copy of the supported parts, in catalog order.
func Devices() []DeviceRecord {
	out := make([]DeviceRecord, 0, len(catalog)-1)
	for _, d := range catalog {
		if d.ID == 0 {
			break
		}
		out = append(out, d)
	}
	return out
}
