package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flashOffset  uint32
	readLength   uint32
	readOutput   string
	verifyAfter  bool
	releaseAfter bool
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Chip-erase the target",
	Long: `Run a DSU chip erase. This clears the whole flash array and the security bit,
so it is also the way to recover a locked part.`,
	Args: cobra.NoArgs,
	RunE: runErase,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Set the security bit",
	Long: `Set the security bit. Flash can no longer be read or programmed through the debug
port until the next chip erase.`,
	Args: cobra.NoArgs,
	RunE: runLock,
}

var programCmd = &cobra.Command{
	Use:   "program <file>",
	Short: "Write a binary image to flash",
	Long: `Erase and write the rows covered by a raw binary image. The last row is padded
with 0xFF. The offset must be a multiple of the 256-byte row size.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgram,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Compare flash against a binary image",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read flash contents",
	Long: `Read flash starting at --offset. Without --length the rest of the array is read.
The data is written raw to --output, or as a hex dump to stdout.`,
	Args: cobra.NoArgs,
	RunE: runRead,
}

func init() {
	for _, c := range []*cobra.Command{programCmd, verifyCmd, readCmd} {
		c.Flags().Uint32Var(&flashOffset, "offset", 0, "byte offset into flash (row aligned)")
	}
	for _, c := range []*cobra.Command{eraseCmd, lockCmd, programCmd} {
		c.Flags().BoolVar(&releaseAfter, "reset", true, "reset the target and let it run afterwards")
	}
	programCmd.Flags().BoolVar(&verifyAfter, "verify", false, "read back and compare after programming")
	readCmd.Flags().Uint32Var(&readLength, "length", 0, "number of bytes to read (0 = to the end of flash)")
	readCmd.Flags().StringVarP(&readOutput, "output", "o", "", "output file (default: hex dump to stdout)")

	rootCmd.AddCommand(eraseCmd, lockCmd, programCmd, verifyCmd, readCmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	return withTarget(cmd, func(ctx context.Context, t *target) error {
		dev, err := t.selectDevice(ctx)
		if err != nil {
			return err
		}
		if err := t.session.Erase(ctx); err != nil {
			return fmt.Errorf("chip erase: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Chip erased: %s\n", dev.Name)
		return finish(ctx, t)
	})
}

func runLock(cmd *cobra.Command, args []string) error {
	return withTarget(cmd, func(ctx context.Context, t *target) error {
		dev, err := t.selectDevice(ctx)
		if err != nil {
			return err
		}
		if err := t.session.Lock(ctx); err != nil {
			return fmt.Errorf("set security bit: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Security bit set: %s\n", dev.Name)
		return finish(ctx, t)
	})
}

func runProgram(cmd *cobra.Command, args []string) error {
	image, err := readImage(args[0])
	if err != nil {
		return err
	}

	return withTarget(cmd, func(ctx context.Context, t *target) error {
		dev, err := t.selectDevice(ctx)
		if err != nil {
			return err
		}
		if err := t.session.Program(ctx, image, flashOffset); err != nil {
			return fmt.Errorf("program: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Programmed %d bytes at offset 0x%X: %s\n", len(image), flashOffset, dev.Name)

		if verifyAfter {
			if err := t.session.Verify(ctx, image, flashOffset); err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			fmt.Fprintln(out, "Verify OK")
		}
		return finish(ctx, t)
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	image, err := readImage(args[0])
	if err != nil {
		return err
	}

	return withTarget(cmd, func(ctx context.Context, t *target) error {
		if _, err := t.selectDevice(ctx); err != nil {
			return err
		}
		if err := t.session.Verify(ctx, image, flashOffset); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Verify OK: %d bytes at offset 0x%X\n", len(image), flashOffset)
		return nil
	})
}

func runRead(cmd *cobra.Command, args []string) error {
	return withTarget(cmd, func(ctx context.Context, t *target) (err error) {
		dev, err := t.selectDevice(ctx)
		if err != nil {
			return err
		}

		length := readLength
		if length == 0 {
			if flashOffset >= dev.FlashSize {
				return fmt.Errorf("offset 0x%X is past the end of %d bytes of flash", flashOffset, dev.FlashSize)
			}
			length = dev.FlashSize - flashOffset
		}

		if readOutput == "" {
			dump := hex.Dumper(cmd.OutOrStdout())
			defer func() {
				if cerr := dump.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return t.session.Dump(ctx, flashOffset, length, dump)
		}

		f, err := os.Create(readOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()

		w := bufio.NewWriter(f)
		if err := t.session.Dump(ctx, flashOffset, length, w); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Read %d bytes from offset 0x%X to %s\n", length, flashOffset, readOutput)
		return nil
	})
}

func readImage(path string) ([]byte, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return image, nil
}

// finish releases the target unless --reset=false was given.
func finish(ctx context.Context, t *target) error {
	if !releaseAfter {
		return nil
	}
	return t.release(ctx)
}
