// Package sam sequences the NVM controller of Microchip SAM D09/D10/D11,
// D20/D21, R21, C21, L21 and R30 parts through a debug port.
//
// All register access goes through a dap.MemoryAccessor, so the same
// sequences run against a CMSIS-DAP probe or the samsim simulator.
//
// Basic usage:
//
//	s := sam.NewSession(probe, sam.WithLogger(log))
//	ok, did, err := s.Select(ctx)
//	if err != nil {
//	    return err
//	}
//	if !ok {
//	    return &sam.UnknownDeviceError{ID: did}
//	}
//	defer s.Deselect(ctx)
//
//	if err := s.Erase(ctx); err != nil {
//	    return err
//	}
//	if err := s.Program(ctx, image, 0); err != nil {
//	    return err
//	}
//	return s.Verify(ctx, image, 0)
//
// Flash is erased and written in 256-byte rows regardless of the page size
// listed in the catalog. Every completion flag is polled with a bound; a
// flag that never sets yields a *HardwareHangError.
//
// A locked part (security bit set) refuses ProgramStart, ReadBlock and the
// image helpers with a *LockedError before touching flash. Only Erase
// unlocks it.
package sam
