package sam

import (
	"context"
	"fmt"
	"time"
)

var registerNames = map[uint32]string{
	DSUCtrlStatus: "DSU_CTRL_STATUS",
	NVMIntFlag:    "NVMCTRL_INTFLAG",
}

// waitFor re-reads addr until any bit in mask is set. It gives up with a
// *HardwareHangError once PollTimeout has elapsed.
func (s *Session) waitFor(ctx context.Context, addr, mask uint32) error {
	start := time.Now()
	deadline := start.Add(s.cfg.PollTimeout)
	name := registerNames[addr]

	for polls := 1; ; polls++ {
		v, err := s.mem.ReadWord(ctx, addr)
		if err != nil {
			return fmt.Errorf("poll %s: %w", name, err)
		}
		if v&mask != 0 {
			s.cfg.Metrics.observePoll(name, time.Since(start), false)
			s.log.V(1).Info("poll complete", "register", name, "polls", polls)
			return nil
		}

		if now := time.Now(); now.After(deadline) {
			elapsed := now.Sub(start)
			s.cfg.Metrics.observePoll(name, elapsed, true)
			s.log.Error(ErrHardwareHang, "completion flag never set", "register", name,
				"mask", fmt.Sprintf("0x%08X", mask), "polls", polls)
			return &HardwareHangError{Register: addr, Mask: mask, Elapsed: elapsed}
		}

		if err := sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// sleep waits for d or until ctx is done. A zero d only checks ctx.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
