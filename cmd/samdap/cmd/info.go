package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
)

var (
	outputJSON bool
)

// TargetInfo is the structured form of the info command output
type TargetInfo struct {
	Session   string `json:"session"`
	Probe     string `json:"probe"`
	DPIDR     string `json:"dpidr"`
	Designer  string `json:"designer"`
	DID       string `json:"did"`
	Processor string `json:"processor"`
	Family    string `json:"family"`
	Revision  string `json:"revision"`
	Device    string `json:"device,omitempty"`
	FlashSize uint32 `json:"flash_size,omitempty"`
	PageSize  uint32 `json:"page_size,omitempty"`
	Rows      uint32 `json:"rows,omitempty"`
	Locked    bool   `json:"locked"`
	Fuses     string `json:"fuses,omitempty"`
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the connected target",
	Long: `Connect to the probe, halt the target and report the debug port and DSU
identification, the matching catalog entry, the security bit and the fuse word.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&outputJSON, "json", false, "output JSON")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withTarget(cmd, func(ctx context.Context, t *target) error {
		probe, err := t.info()
		if err != nil {
			return err
		}
		dp := idcode.ParseDPIDR(t.dpidr())

		matched, id, err := t.session.Select(ctx)
		if err != nil {
			return fmt.Errorf("select target: %w", err)
		}
		did := idcode.ParseDID(id)

		info := TargetInfo{
			Session:   t.session.ID().String(),
			Probe:     probe.Name,
			DPIDR:     fmt.Sprintf("0x%08X", dp.Raw),
			Designer:  dp.Manufacturer().Name,
			DID:       fmt.Sprintf("0x%08X", did.Raw),
			Processor: did.ProcessorName(),
			Family:    did.FamilyName(),
			Revision:  did.RevisionLetter(),
		}

		if matched {
			dev, _ := t.session.Target()
			info.Device = dev.Name
			info.FlashSize = dev.FlashSize
			info.PageSize = dev.PageSize
			info.Rows = dev.Rows()

			if info.Locked, err = t.session.Locked(ctx); err != nil {
				return err
			}
			fuses, err := t.session.FuseRead(ctx)
			if err != nil {
				return err
			}
			info.Fuses = fmt.Sprintf("0x%016X", fuses)
		}

		if outputJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			printInfo(cmd, probe.Vendor, dp, did, info)
		}

		if !matched {
			return &sam.UnknownDeviceError{ID: id}
		}
		return nil
	})
}

func printInfo(cmd *cobra.Command, vendor string, dp idcode.DPIDR, did idcode.DeviceID, info TargetInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Target Information ===")
	fmt.Fprintf(out, "Session:      %s\n", info.Session)
	if vendor != "" {
		fmt.Fprintf(out, "Probe:        %s (%s)\n", info.Probe, vendor)
	} else {
		fmt.Fprintf(out, "Probe:        %s\n", info.Probe)
	}
	fmt.Fprintf(out, "Debug port:   %s\n", dp)
	fmt.Fprintf(out, "Device ID:    %s\n", did)

	if info.Device == "" {
		fmt.Fprintln(out, "Device:       not in catalog")
		return
	}
	fmt.Fprintf(out, "Device:       %s\n", info.Device)
	fmt.Fprintf(out, "Flash:        %d KiB (%d rows, %d byte pages)\n", info.FlashSize/1024, info.Rows, info.PageSize)
	fmt.Fprintf(out, "Security bit: %s\n", map[bool]string{true: "set (locked)", false: "clear"}[info.Locked])
	fmt.Fprintf(out, "Fuses:        %s\n", info.Fuses)
}
