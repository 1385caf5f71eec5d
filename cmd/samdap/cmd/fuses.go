package cmd

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam/fuses"
)

var (
	fuseRaw bool
)

var fusesCmd = &cobra.Command{
	Use:   "fuses",
	Short: "Read or change the user row fuses",
}

var fusesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the fuse word and its decoded fields",
	Args:  cobra.NoArgs,
	RunE:  runFusesGet,
}

var fusesSetCmd = &cobra.Command{
	Use:   "set <assignments>",
	Short: "Change fuse fields",
	Long: `Change named fuse fields, keeping all other bits:

  samdap fuses set "BOOTPROT=0x2, EEPROM=7"

With --raw the argument is the complete 64-bit fuse word. Both forms rewrite
the whole user row; bytes 8..255 of the row read back as zero afterwards.
Named fields follow the SAM D/R21 layout and are refused on L21, C21 and
R30 parts; use --raw there.`,
	Args: cobra.ExactArgs(1),
	RunE: runFusesSet,
}

func init() {
	fusesSetCmd.Flags().BoolVar(&fuseRaw, "raw", false, "treat the argument as the full 64-bit fuse word")
	fusesCmd.AddCommand(fusesGetCmd, fusesSetCmd)
	rootCmd.AddCommand(fusesCmd)
}

func runFusesGet(cmd *cobra.Command, args []string) error {
	return withTarget(cmd, func(ctx context.Context, t *target) error {
		dev, err := t.selectDevice(ctx)
		if err != nil {
			return err
		}
		word, err := t.session.FuseRead(ctx)
		if err != nil {
			return fmt.Errorf("read fuses: %w", err)
		}
		return printFuses(cmd, dev, word)
	})
}

func runFusesSet(cmd *cobra.Command, args []string) error {
	var (
		mask, value uint64
		err         error
	)
	if fuseRaw {
		if value, err = strconv.ParseUint(args[0], 0, 64); err != nil {
			return fmt.Errorf("invalid fuse word %q: %w", args[0], err)
		}
	} else {
		assignments, err := fuses.ParseAssignments(args[0])
		if err != nil {
			return err
		}
		if mask, value, err = fuses.MaskValue(assignments); err != nil {
			return err
		}
		for _, a := range assignments {
			log.V(1).Info("fuse assignment", "field", a.Field.Name, "value", a.Value)
		}
	}

	return withTarget(cmd, func(ctx context.Context, t *target) error {
		dev, err := t.selectDevice(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if fuseRaw {
			if err := t.session.FuseWrite(ctx, value); err != nil {
				return fmt.Errorf("write fuses: %w", err)
			}
			fmt.Fprintln(out, "Fuses written. New settings apply after the next reset.")
			return printFuses(cmd, dev, value)
		}

		if err := fuses.CheckDevice(dev.ID); err != nil {
			return fmt.Errorf("%s: %w (use --raw to write the whole word)", dev.Name, err)
		}
		word, written, err := t.session.FuseUpdate(ctx, mask, value)
		if err != nil {
			return fmt.Errorf("update fuses: %w", err)
		}
		if written {
			fmt.Fprintln(out, "Fuses written. New settings apply after the next reset.")
		} else {
			fmt.Fprintln(out, "Fuses unchanged, nothing written.")
		}
		return printFuses(cmd, dev, word)
	})
}

// printFuses shows the raw word, decoded into fields when the device uses
// the known layout.
func printFuses(cmd *cobra.Command, dev sam.DeviceRecord, word uint64) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fuses: 0x%016X\n", word)
	if !fuses.Supports(dev.ID) {
		fmt.Fprintf(out, "Field decoding is not available for %s.\n", dev.Name)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tBITS\tVALUE\tDESCRIPTION")
	for _, v := range fuses.Describe(word) {
		fmt.Fprintf(w, "%s\t%s\t0x%X\t%s\n", v.Name, v.Bits(), v.Value, v.Description)
	}
	return w.Flush()
}
