package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available debug probes",
	Long: `Scan the host for CMSIS-DAP probes (Atmel-ICE, EDBG, PicoProbe, etc.) and print a
summary of what was found. Use this to check connectivity or to pick --vid/--pid/--serial
before running other commands.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := dap.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No interfaces found.")
		return nil
	}

	fmt.Fprintln(out, "Detected debug probes:")
	for _, iface := range infos {
		if iface.Kind == dap.InterfaceKindSim {
			fmt.Fprintf(out, "  - %s [%s]\n", iface.Label(), iface.Kind)
			continue
		}
		fmt.Fprintf(out, "  - %s [%s %s] (VID:PID %04X:%04X)", iface.Label(), iface.Kind, iface.Framing, iface.VendorID, iface.ProductID)
		if iface.Serial != "" {
			fmt.Fprintf(out, " serial %s", iface.Serial)
		}
		fmt.Fprintln(out)
	}

	return nil
}
