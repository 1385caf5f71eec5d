package sam

import (
	"context"
	"fmt"
)

// Erase performs a DSU chip erase. It clears the security bit along with
// the whole flash array, so it is the only way out of the locked state.
func (s *Session) Erase(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("erase", err) }()

	if _, err := s.requireSelected(); err != nil {
		return err
	}

	s.log.Info("chip erase started")
	if err := s.writeWord(ctx, DSUCtrlStatus, DSUClearFlags); err != nil {
		return fmt.Errorf("clear DSU flags: %w", err)
	}
	if err := s.writeWord(ctx, DSUCtrlStatus, DSUChipErase); err != nil {
		return fmt.Errorf("start chip erase: %w", err)
	}
	if err := sleep(ctx, s.cfg.SettleDelay); err != nil {
		return err
	}
	if err := s.waitFor(ctx, DSUCtrlStatus, DSUDone); err != nil {
		return fmt.Errorf("chip erase: %w", err)
	}
	s.log.Info("chip erase done")
	return nil
}

// Lock sets the security bit. The command is not polled.
func (s *Session) Lock(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("lock", err) }()

	if _, err := s.requireSelected(); err != nil {
		return err
	}
	if err := s.writeWord(ctx, NVMCtrlA, CmdSetSecurityBit); err != nil {
		return fmt.Errorf("set security bit: %w", err)
	}
	s.log.Info("security bit set")
	return nil
}

// Locked reports whether the security bit is set.
func (s *Session) Locked(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireSelected(); err != nil {
		return false, err
	}
	return s.locked(ctx)
}
