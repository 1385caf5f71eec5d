package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List supported devices",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DID\tDEVICE\tCORE\tFLASH\tPAGE")
	for _, d := range sam.Devices() {
		did := idcode.ParseDID(d.ID)
		fmt.Fprintf(w, "0x%08X\t%s\t%s\t%d KiB\t%d\n", d.ID, d.Name, did.ProcessorName(), d.FlashSize/1024, d.PageSize)
	}
	return w.Flush()
}
