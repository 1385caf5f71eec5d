package sam

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

// Session owns the link to one target and remembers which catalog device
// was selected on it. Every operation is serialised on the session.
type Session struct {
	mem dap.MemoryAccessor
	cfg Config
	log logr.Logger
	id  uuid.UUID

	mu       sync.Mutex
	target   DeviceRecord
	selected bool
}

// NewSession creates a session driving the target behind mem.
func NewSession(mem dap.MemoryAccessor, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.New()
	return &Session{
		mem: mem,
		cfg: cfg,
		log: cfg.Logger.WithValues("session", id.String()),
		id:  id,
	}
}

// ID identifies the session in logs and metrics.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Select halts the core, traps it on the reset vector, resets the system and
// identifies the chip. A DID missing from the catalog is reported as
// matched=false with a nil error and leaves any earlier selection intact.
func (s *Session) Select(ctx context.Context) (matched bool, id uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("select", err) }()

	writes := []struct {
		addr, value uint32
		what        string
	}{
		{DHCSR, DHCSRHalt, "halt core"},
		{DEMCR, DEMCRVCCoreReset, "enable reset vector catch"},
		{AIRCR, AIRCRSysReset, "request system reset"},
	}
	for _, w := range writes {
		if err := s.writeWord(ctx, w.addr, w.value); err != nil {
			return false, 0, fmt.Errorf("%s: %w", w.what, err)
		}
	}

	id, err = s.readWord(ctx, DSUDID)
	if err != nil {
		return false, 0, fmt.Errorf("read DSU DID: %w", err)
	}

	dev, ok := Lookup(id)
	if !ok {
		s.log.Info("unknown device", "did", fmt.Sprintf("0x%08X", id))
		return false, id, nil
	}

	s.target = dev
	s.selected = true
	s.log.Info("target selected", "device", dev.Name, "did", fmt.Sprintf("0x%08X", id),
		"flashSize", dev.FlashSize, "pageSize", dev.PageSize)
	return true, id, nil
}

// Deselect clears the reset vector catch and resets the system so the
// target runs its firmware. It does not need a prior Select.
func (s *Session) Deselect(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.cfg.Metrics.observeOp("deselect", err) }()

	if err := s.writeWord(ctx, DEMCR, 0); err != nil {
		return fmt.Errorf("disable reset vector catch: %w", err)
	}
	if err := s.writeWord(ctx, AIRCR, AIRCRSysReset); err != nil {
		return fmt.Errorf("request system reset: %w", err)
	}
	s.log.V(1).Info("target released")
	return nil
}

// Target returns the selected device, if any.
func (s *Session) Target() (DeviceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.selected
}

func (s *Session) requireSelected() (DeviceRecord, error) {
	if !s.selected {
		return DeviceRecord{}, ErrNotSelected
	}
	return s.target, nil
}

func (s *Session) readWord(ctx context.Context, addr uint32) (uint32, error) {
	v, err := s.mem.ReadWord(ctx, addr)
	if err != nil {
		return 0, err
	}
	s.log.V(1).Info("read", "addr", fmt.Sprintf("0x%08X", addr), "value", fmt.Sprintf("0x%08X", v))
	return v, nil
}

func (s *Session) writeWord(ctx context.Context, addr, value uint32) error {
	s.log.V(1).Info("write", "addr", fmt.Sprintf("0x%08X", addr), "value", fmt.Sprintf("0x%08X", value))
	return s.mem.WriteWord(ctx, addr, value)
}

// locked reads STATUSB.PROT; the state is never cached.
func (s *Session) locked(ctx context.Context) (bool, error) {
	v, err := s.readWord(ctx, DSUCtrlStatus)
	if err != nil {
		return false, fmt.Errorf("read DSU status: %w", err)
	}
	return v&DSUProtected != 0, nil
}
