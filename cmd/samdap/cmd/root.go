package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/internal/config"
	"github.com/OpenTraceLab/OpenTraceDAP/internal/logging"
)

var (
	// Global flags
	verbosity     int
	configPath    string
	adapterType   string
	adapterVID    uint16
	adapterPID    uint16
	adapterSerial string
	adapterSpeed  int
	progClock     int
	pollTimeout   time.Duration
	pollInterval  time.Duration
	settleDelay   time.Duration
	metricsFile   string
	showProgress  bool

	// Simulator flags
	simDID       uint32
	simLocked    bool
	simFlashSize int

	log logr.Logger = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "samdap",
	Short: "Flash programmer for Microchip SAM D/L/C/R parts over CMSIS-DAP",
	Long: `Program, verify, read, erase and lock the flash of SAM D/L/C/R
microcontrollers through a CMSIS-DAP debug probe, and edit their user-row fuses.

Examples:
  samdap interfaces                                   # List connected probes
  samdap info --adapter simulator                     # Identify the simulated target
  samdap program firmware.bin --verify                # Program and verify at offset 0
  samdap read --length 0x400 -o dump.bin              # Save the first 1 KiB of flash
  samdap fuses set "BOOTPROT=7, EEPROM=7"             # Update selected fuse fields`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.CountVarP(&verbosity, "verbose", "v", "verbose output (repeat for register traces)")
	pf.StringVar(&configPath, "config", "", "YAML profile with default flag values")
	pf.StringVar(&adapterType, "adapter", "cmsisdap", "adapter type (cmsisdap, simulator)")
	pf.Uint16Var(&adapterVID, "vid", 0, "probe USB vendor ID (0 = any known CMSIS-DAP probe)")
	pf.Uint16Var(&adapterPID, "pid", 0, "probe USB product ID")
	pf.StringVar(&adapterSerial, "serial", "", "probe serial number")
	pf.IntVar(&adapterSpeed, "speed", 0, "SWCLK frequency in Hz (0 = probe default)")
	pf.IntVar(&progClock, "programming-clock", 0, "SWCLK frequency in Hz while programming (0 = unchanged)")
	pf.DurationVar(&pollTimeout, "poll-timeout", 5*time.Second, "give up waiting for an NVM or DSU flag after this long")
	pf.DurationVar(&pollInterval, "poll-interval", 0, "pause between status reads")
	pf.DurationVar(&settleDelay, "settle-delay", 100*time.Millisecond, "pause after starting a chip erase")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.BoolVar(&showProgress, "progress", false, "print per-row progress to stderr")

	pf.Uint32Var(&simDID, "sim-did", 0, "DSU DID reported by the simulator (0 = SAM D21G18A)")
	pf.BoolVar(&simLocked, "sim-locked", false, "start the simulator with the security bit set")
	pf.IntVar(&simFlashSize, "sim-flash-size", 0, "simulated flash array size in bytes")
}

// setup loads the optional profile, lets explicitly set flags win over it
// and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	log = logging.New(cmd.ErrOrStderr(), verbosity)

	if configPath == "" {
		return nil
	}
	p, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyProfile(cmd, p)
	log.V(1).Info("loaded profile", "path", configPath)
	return nil
}

func applyProfile(cmd *cobra.Command, p *config.Profile) {
	set := func(name string) bool {
		return !cmd.Flags().Changed(name)
	}

	if p.Adapter != "" && set("adapter") {
		adapterType = p.Adapter
	}
	if p.VendorID != 0 && set("vid") {
		adapterVID = p.VendorID
	}
	if p.ProductID != 0 && set("pid") {
		adapterPID = p.ProductID
	}
	if p.Serial != "" && set("serial") {
		adapterSerial = p.Serial
	}
	if p.Speed != 0 && set("speed") {
		adapterSpeed = p.Speed
	}
	if p.ProgrammingClock != 0 && set("programming-clock") {
		progClock = p.ProgrammingClock
	}
	if p.PollTimeout != 0 && set("poll-timeout") {
		pollTimeout = time.Duration(p.PollTimeout)
	}
	if p.PollInterval != 0 && set("poll-interval") {
		pollInterval = time.Duration(p.PollInterval)
	}
	if p.SettleDelay != nil && set("settle-delay") {
		settleDelay = time.Duration(*p.SettleDelay)
	}
	if p.MetricsFile != "" && set("metrics-file") {
		metricsFile = p.MetricsFile
	}
	if p.Simulator.DID != 0 && set("sim-did") {
		simDID = p.Simulator.DID
	}
	if p.Simulator.Locked && set("sim-locked") {
		simLocked = true
	}
	if p.Simulator.FlashSize != 0 && set("sim-flash-size") {
		simFlashSize = p.Simulator.FlashSize
	}
}
