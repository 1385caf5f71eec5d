package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam/fuses"
)

// resetFlags puts every flag back to its default so runs don't leak
// state into each other through the package-level flag variables.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI with args against a fresh simulator and returns
// what it printed on stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--adapter", "simulator", "--settle-delay", "0"}, args...))

	err := rootCmd.Execute()
	if err != nil {
		t.Logf("stderr:\n%s", stderr.String())
	}
	return stdout.String(), err
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestCommandsE2E(t *testing.T) {
	image := writeImage(t, pattern(300))
	erased := writeImage(t, bytes.Repeat([]byte{0xFF}, 512))

	tests := []struct {
		name        string
		args        []string
		wantErr     error
		wantAnyErr  bool
		wantContain []string
	}{
		{
			name: "info",
			args: []string{"info"},
			wantContain: []string{
				"SAM D21G18A (Rev D)",
				"0x0BC11477",
				"ARM Ltd",
				"Cortex-M0+",
				"SAM D",
				"256 KiB (1024 rows",
				"Security bit: clear",
				"0xFFFFFC5DD8E0C7FA",
			},
		},
		{
			name:        "info json",
			args:        []string{"info", "--json", "--sim-did", "0x10040107"},
			wantContain: []string{`"device": "SAM D09C13A"`, `"did": "0x10040107"`, `"locked": false`},
		},
		{
			name:        "info locked",
			args:        []string{"info", "--sim-locked"},
			wantContain: []string{"Security bit: set (locked)"},
		},
		{
			name:        "info unknown device",
			args:        []string{"info", "--sim-did", "0x12345678"},
			wantErr:     sam.ErrUnknownDevice,
			wantContain: []string{"0x12345678", "not in catalog"},
		},
		{
			name:        "devices",
			args:        []string{"devices"},
			wantContain: []string{"0x10010305", "SAM D21G18A (Rev D)", "SAM D09C13A", "256 KiB"},
		},
		{
			name:        "erase",
			args:        []string{"erase"},
			wantContain: []string{"Chip erased: SAM D21G18A (Rev D)"},
		},
		{
			name:        "erase unlocks",
			args:        []string{"erase", "--sim-locked", "--reset=false"},
			wantContain: []string{"Chip erased"},
		},
		{
			name:        "lock",
			args:        []string{"lock"},
			wantContain: []string{"Security bit set: SAM D21G18A (Rev D)"},
		},
		{
			name:        "program and verify",
			args:        []string{"program", image, "--verify", "--offset", "0x400"},
			wantContain: []string{"Programmed 300 bytes at offset 0x400", "Verify OK"},
		},
		{
			name:    "program locked",
			args:    []string{"program", image, "--sim-locked"},
			wantErr: sam.ErrLocked,
		},
		{
			name:    "program misaligned",
			args:    []string{"program", image, "--offset", "0x10"},
			wantErr: sam.ErrMisaligned,
		},
		{
			name:    "program too large",
			args:    []string{"program", image, "--sim-did", "0x10040107", "--offset", "0x1F00"},
			wantErr: sam.ErrImageTooLarge,
		},
		{
			name:       "program missing file",
			args:       []string{"program", filepath.Join(t.TempDir(), "missing.bin")},
			wantAnyErr: true,
		},
		{
			name:        "verify erased",
			args:        []string{"verify", erased},
			wantContain: []string{"Verify OK: 512 bytes at offset 0x0"},
		},
		{
			name:       "verify mismatch",
			args:       []string{"verify", image},
			wantAnyErr: true,
		},
		{
			name:        "read hex dump",
			args:        []string{"read", "--length", "32"},
			wantContain: []string{"00000000  ff ff ff ff", "00000010  ff ff"},
		},
		{
			name:    "read locked",
			args:    []string{"read", "--length", "16", "--sim-locked"},
			wantErr: sam.ErrLocked,
		},
		{
			name:        "fuses get",
			args:        []string{"fuses", "get"},
			wantContain: []string{"Fuses: 0xFFFFFC5DD8E0C7FA", "BOOTPROT", "2:0", "WDT_PERIOD", "0xB"},
		},
		{
			name:        "fuses set field",
			args:        []string{"fuses", "set", "BOOTPROT=7"},
			wantContain: []string{"Fuses written", "Fuses: 0xFFFFFC5DD8E0C7FF"},
		},
		{
			name:        "fuses set raw",
			args:        []string{"fuses", "set", "--raw", "0x1234"},
			wantContain: []string{"Fuses: 0x0000000000001234"},
		},
		{
			name:        "fuses set unchanged",
			args:        []string{"fuses", "set", "BOOTPROT=2"},
			wantContain: []string{"Fuses unchanged, nothing written.", "Fuses: 0xFFFFFC5DD8E0C7FA"},
		},
		{
			name:    "fuses set refused on L21",
			args:    []string{"fuses", "set", "BOOTPROT=7", "--sim-did", "0x10810000"},
			wantErr: fuses.ErrUnsupportedDevice,
		},
		{
			name:        "fuses get on L21",
			args:        []string{"fuses", "get", "--sim-did", "0x10810000"},
			wantContain: []string{"Fuses: 0xFFFFFC5DD8E0C7FA", "Field decoding is not available for SAM L21J18A"},
		},
		{
			name:        "fuses set raw on L21",
			args:        []string{"fuses", "set", "--raw", "0x1234", "--sim-did", "0x10810000"},
			wantContain: []string{"Fuses written", "Fuses: 0x0000000000001234", "Field decoding is not available"},
		},
		{
			name:    "fuses set unknown field",
			args:    []string{"fuses", "set", "NOPE=1"},
			wantErr: fuses.ErrUnknownField,
		},
		{
			name:    "fuses set out of range",
			args:    []string{"fuses", "set", "BOOTPROT=8"},
			wantErr: fuses.ErrOutOfRange,
		},
		{
			name:       "unknown adapter",
			args:       []string{"info", "--adapter", "parport"},
			wantAnyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := run(t, tt.args...)

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAnyErr:
				if err == nil {
					t.Errorf("Expected error but got none")
				}
			case err != nil:
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}

			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

func TestReadToFileE2E(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dump.bin")

	output, err := run(t, "read", "--offset", "0x100", "--length", "512", "-o", out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(output, "Read 512 bytes from offset 0x100") {
		t.Errorf("output = %q", output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, bytes.Repeat([]byte{0xFF}, 512)) {
		t.Errorf("dump is not 512 erased bytes")
	}
}

func TestMetricsFileE2E(t *testing.T) {
	image := writeImage(t, pattern(600))
	metrics := filepath.Join(t.TempDir(), "samdap.prom")

	if _, err := run(t, "program", image, "--metrics-file", metrics); err != nil {
		t.Fatalf("program: %v", err)
	}

	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"samdap_rows_written_total 3",
		`samdap_operations_total{operation="program",result="ok"} 1`,
		`samdap_operations_total{operation="select",result="ok"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q:\n%s", want, text)
		}
	}
}

func TestConfigProfileE2E(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "samdap.yaml")
	data := []byte("adapter: cmsisdap\nsimulator:\n  did: 0x10040107\n  locked: true\n")
	if err := os.WriteFile(profile, data, 0o644); err != nil {
		t.Fatal(err)
	}

	// --adapter on the command line wins over the profile, the simulator
	// settings come from the profile.
	output, err := run(t, "info", "--config", profile)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"SAM D09C13A", "Security bit: set (locked)"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
		}
	}

	if _, err := run(t, "info", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("missing profile accepted")
	}
}

func TestInterfacesE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping USB enumeration in short mode")
	}

	output, err := run(t, "interfaces")
	if err != nil {
		t.Skipf("USB enumeration unavailable: %v", err)
	}
	if !strings.Contains(output, "Simulator (no hardware)") {
		t.Errorf("simulator entry missing:\n%s", output)
	}
}
