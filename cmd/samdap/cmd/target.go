package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/sam/samsim"
)

// simDPIDR is what the simulator reports as its SW-DP identification
// (ARM DPv1, Cortex-M0+).
const simDPIDR = 0x0BC11477

// target bundles an open adapter with a session on it.
type target struct {
	session  *sam.Session
	mem      dap.MemoryAccessor
	probe    *dap.Probe // nil for the simulator
	registry *prometheus.Registry
}

// openTarget connects the adapter selected by the global flags and wraps it
// in a session configured from them.
func openTarget(cmd *cobra.Command) (*target, error) {
	t := &target{registry: prometheus.NewRegistry()}

	switch adapterType {
	case "simulator", "sim":
		log.V(1).Info("using simulator adapter")
		var opts []samsim.Option
		if simDID != 0 {
			opts = append(opts, samsim.WithDID(simDID))
		}
		if simLocked {
			opts = append(opts, samsim.WithLocked(true))
		}
		if simFlashSize > 0 {
			opts = append(opts, samsim.WithFlashSize(simFlashSize))
		}
		t.mem = samsim.New(opts...)

	case "cmsisdap", "cmsis", "dap":
		vid, pid, err := resolveProbe(cmd.Context())
		if err != nil {
			return nil, err
		}
		probe, err := dap.OpenUSBProbe(vid, pid, adapterSerial, log.WithName("dap"))
		if err != nil {
			return nil, err
		}
		if adapterSpeed > 0 {
			if err := probe.SetSpeed(adapterSpeed); err != nil {
				probe.Close()
				return nil, err
			}
		}
		t.probe = probe
		t.mem = probe

	default:
		return nil, fmt.Errorf("unknown adapter type %q (use cmsisdap or simulator)", adapterType)
	}

	opts := []sam.Option{
		sam.WithLogger(log.WithName("sam")),
		sam.WithPollTimeout(pollTimeout),
		sam.WithPollInterval(pollInterval),
		sam.WithSettleDelay(settleDelay),
		sam.WithProgrammingClock(progClock),
		sam.WithMetrics(sam.NewMetrics(t.registry)),
	}
	if showProgress {
		opts = append(opts, sam.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}
	t.session = sam.NewSession(t.mem, opts...)
	log.V(1).Info("session opened", "session", t.session.ID().String())
	return t, nil
}

// resolveProbe returns the VID:PID to open. Without --vid the first known
// CMSIS-DAP probe found on the bus is used.
func resolveProbe(ctx context.Context) (uint16, uint16, error) {
	if adapterVID != 0 {
		return adapterVID, adapterPID, nil
	}

	infos, err := dap.DiscoverInterfaces(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("discover interfaces: %w", err)
	}
	for _, info := range infos {
		if info.Kind != dap.InterfaceKindCMSISDAP {
			continue
		}
		if adapterSerial != "" && info.Serial != adapterSerial {
			continue
		}
		log.V(1).Info("found probe", "probe", info.Label(), "serial", info.Serial)
		return info.VendorID, info.ProductID, nil
	}
	return 0, 0, errors.New("no CMSIS-DAP probe found (try 'samdap interfaces' or --adapter simulator)")
}

// selectDevice identifies the target and fails for DIDs missing from the
// catalog.
func (t *target) selectDevice(ctx context.Context) (sam.DeviceRecord, error) {
	matched, id, err := t.session.Select(ctx)
	if err != nil {
		return sam.DeviceRecord{}, fmt.Errorf("select target: %w", err)
	}
	if !matched {
		return sam.DeviceRecord{}, &sam.UnknownDeviceError{ID: id}
	}
	dev, _ := t.session.Target()
	return dev, nil
}

// release lets the target run its firmware again.
func (t *target) release(ctx context.Context) error {
	if err := t.session.Deselect(ctx); err != nil {
		return fmt.Errorf("release target: %w", err)
	}
	return nil
}

// dpidr returns the debug port identification read at connect time.
func (t *target) dpidr() uint32 {
	if t.probe != nil {
		return t.probe.DPIDR()
	}
	return simDPIDR
}

func (t *target) info() (dap.ProbeInfo, error) {
	if t.probe != nil {
		return t.probe.Info()
	}
	return dap.ProbeInfo{
		Name:         "SAM Simulator",
		Vendor:       "OpenTraceLab",
		Model:        "samsim",
		MinFrequency: 1000,
		MaxFrequency: 10000000,
	}, nil
}

// Close shuts the adapter and writes the metrics file when one was asked for.
func (t *target) Close() error {
	var errs []error
	if t.probe != nil {
		if err := t.probe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, t.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func progressPrinter(w io.Writer) sam.ProgressCallback {
	return func(p sam.Progress) {
		fmt.Fprintf(w, "\r%-12s %4d/%-4d rows %5.1f%%", p.Phase, p.CurrentRow, p.TotalRows, p.Percentage)
		if p.CurrentRow == p.TotalRows {
			fmt.Fprintf(w, "  %s\n", p.Elapsed.Round(time.Millisecond))
		}
	}
}

// withTarget opens the target, runs fn and closes the adapter, keeping the
// first error.
func withTarget(cmd *cobra.Command, fn func(ctx context.Context, t *target) error) (err error) {
	t, err := openTarget(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), t)
}
