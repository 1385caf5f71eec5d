package idcode

import "testing"

func TestParseDPIDR(t *testing.T) {
	tests := []struct {
		name     string
		raw      uint32
		version  uint8
		part     uint8
		revision uint8
		designer uint16
		vendor   string
	}{
		{"Cortex-M0+ SW-DP", 0x0BC11477, 1, 0xBC, 0, 0x23B, "ARM"},
		{"Cortex-M4 SW-DP", 0x2BA01477, 1, 0xBA, 2, 0x23B, "ARM"},
		{"DPv2 multidrop", 0x0BC12477, 2, 0xBC, 0, 0x23B, "ARM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ParseDPIDR(tt.raw)
			if !id.Present {
				t.Errorf("Present = false for 0x%08X", tt.raw)
			}
			if id.Version != tt.version {
				t.Errorf("Version = %d, want %d", id.Version, tt.version)
			}
			if id.PartNumber != tt.part {
				t.Errorf("PartNumber = 0x%02X, want 0x%02X", id.PartNumber, tt.part)
			}
			if id.Revision != tt.revision {
				t.Errorf("Revision = %d, want %d", id.Revision, tt.revision)
			}
			if id.Designer != tt.designer {
				t.Errorf("Designer = 0x%03X, want 0x%03X", id.Designer, tt.designer)
			}
			if got := id.Manufacturer().Abbreviation; got != tt.vendor {
				t.Errorf("Manufacturer = %q, want %q", got, tt.vendor)
			}
		})
	}
}

func TestParseDID(t *testing.T) {
	tests := []struct {
		name      string
		raw       uint32
		processor string
		family    string
		series    uint8
		revision  string
		devsel    uint8
	}{
		{"SAMD21G18A", 0x10010305, "Cortex-M0+", "SAM D", 1, "D", 0x05},
		{"SAMD51J19A", 0x60060006, "Cortex-M4", "SAM D", 6, "A", 0x06},
		{"SAML21J18B", 0x1081000F, "Cortex-M0+", "SAM L", 1, "A", 0x0F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ParseDID(tt.raw)
			if got := id.ProcessorName(); got != tt.processor {
				t.Errorf("ProcessorName() = %q, want %q", got, tt.processor)
			}
			if got := id.FamilyName(); got != tt.family {
				t.Errorf("FamilyName() = %q, want %q", got, tt.family)
			}
			if id.Series != tt.series {
				t.Errorf("Series = %d, want %d", id.Series, tt.series)
			}
			if got := id.RevisionLetter(); got != tt.revision {
				t.Errorf("RevisionLetter() = %q, want %q", got, tt.revision)
			}
			if id.DevSel != tt.devsel {
				t.Errorf("DevSel = 0x%02X, want 0x%02X", id.DevSel, tt.devsel)
			}
		})
	}
}

func TestLookupManufacturer(t *testing.T) {
	m, ok := LookupManufacturer(0x029)
	if !ok || m.Abbreviation != "Microchip" {
		t.Errorf("LookupManufacturer(0x029) = %+v, %v", m, ok)
	}

	m, ok = LookupManufacturer(0x105)
	if ok {
		t.Errorf("expected unknown manufacturer")
	}
	if m.Name != "Unknown (bank 3, id 0x05)" {
		t.Errorf("Name = %q", m.Name)
	}
}
