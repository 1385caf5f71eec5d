package sam

// Cortex-M core debug registers
const (
	DHCSR = 0xE000EDF0 // Debug Halting Control and Status
	DEMCR = 0xE000EDFC // Debug Exception and Monitor Control
	AIRCR = 0xE000ED0C // Application Interrupt and Reset Control
)

// Device Service Unit
const (
	DSUCtrlStatus = 0x41002100 // CTRL, STATUSA, STATUSB packed in one word
	DSUDID        = 0x41002118
)

// NVM controller
const (
	NVMCtrlA   = 0x41004000
	NVMCtrlB   = 0x41004004
	NVMParam   = 0x41004008
	NVMIntFlag = 0x41004014
	NVMStatus  = 0x41004018
	NVMAddr    = 0x4100401C
)

// Register values written or tested by the sequencer.
const (
	DHCSRHalt        = 0xA05F0003 // DBGKEY | C_HALT | C_DEBUGEN
	DEMCRVCCoreReset = 0x00000001
	AIRCRSysReset    = 0x05FA0004 // VECTKEY | SYSRESETREQ

	DSUClearFlags = 0x00001F00 // STATUSA: PERR, FAIL, BERR, CRSTEXT, DONE
	DSUChipErase  = 0x00000010 // CTRL.CE
	DSUDone       = 0x00000100 // STATUSA.DONE
	DSUProtected  = 0x00010000 // STATUSB.PROT

	NVMIntFlagReady = 0x1
)

// NVMCTRL CTRLA commands, execution key 0xA5 in the upper byte.
const (
	CmdEraseRow        = 0xA502 // ER
	CmdWritePage       = 0xA504 // WP
	CmdEraseAuxRow     = 0xA505 // EAR
	CmdWriteAuxPage    = 0xA506 // WAP
	CmdWriteLockbits   = 0xA50F // WL
	CmdUnlockRegion    = 0xA541 // UR
	CmdPageBufferClear = 0xA544 // PBC
	CmdSetSecurityBit  = 0xA545 // SSB

	NVMCommandKeyMask = 0xFF00
	NVMCommandKey     = 0xA500
)

// Memory layout
const (
	FlashStart  = 0x00000000
	RowSize     = 256
	UserRowAddr = 0x00804000
	UserRowSize = 256
)
