package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samdap.yaml")
	data := []byte(`
adapter: cmsisdap
vid: 0x03eb
pid: 0x2111
serial: J41800012345
speed: 2000000
pollTimeout: 2s
pollInterval: 1ms
settleDelay: 0s
metricsFile: /tmp/samdap.prom
simulator:
  did: 0x10040107
  locked: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if p.Adapter != "cmsisdap" || p.VendorID != 0x03EB || p.ProductID != 0x2111 {
		t.Errorf("adapter fields = %q %04X:%04X", p.Adapter, p.VendorID, p.ProductID)
	}
	if p.Serial != "J41800012345" || p.Speed != 2_000_000 {
		t.Errorf("serial/speed = %q %d", p.Serial, p.Speed)
	}
	if time.Duration(p.PollTimeout) != 2*time.Second || time.Duration(p.PollInterval) != time.Millisecond {
		t.Errorf("poll = %v / %v", time.Duration(p.PollTimeout), time.Duration(p.PollInterval))
	}
	if p.SettleDelay == nil || *p.SettleDelay != 0 {
		t.Errorf("settleDelay = %v, want explicit 0", p.SettleDelay)
	}
	if p.Simulator.DID != 0x10040107 || !p.Simulator.Locked {
		t.Errorf("simulator = %+v", p.Simulator)
	}
}

func TestParseEmpty(t *testing.T) {
	p, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if p.Adapter != "" || p.SettleDelay != nil || p.PollTimeout != 0 {
		t.Errorf("empty profile = %+v", p)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad duration", "pollTimeout: soon"},
		{"numeric duration", "pollTimeout: 5"},
		{"vid overflow", "vid: 0x12345"},
		{"not yaml", "adapter: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Errorf("Parse(%q) succeeded", tt.data)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load() of a missing file succeeded")
	}
}
