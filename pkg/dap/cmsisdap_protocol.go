package dap

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo              = 0x00
	CmdConnect           = 0x02
	CmdDisconnect        = 0x03
	CmdTransferConfigure = 0x04
	CmdTransfer          = 0x05
	CmdTransferBlock     = 0x06
	CmdResetTarget       = 0x0A
	CmdSWJClock          = 0x11
	CmdSWJSequence       = 0x12
	CmdSWDConfigure      = 0x13
)

// DAP_Info Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketSize   = 0xFF
)

// DAP_Info capability bits
const (
	CapSWD  = 0x01
	CapJTAG = 0x02
)

// Connection ports
const (
	PortSWD = 1
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// Transfer request bits
const (
	TransferAPnDP = 0x01
	TransferRnW   = 0x02
	TransferA32   = 0x0C // A[3:2] register address bits
)

// Transfer response ACK values (bits [2:0])
const (
	AckOK    = 0x01
	AckWait  = 0x02
	AckFault = 0x04
	AckNone  = 0x07

	ackMask          = 0x07
	ackProtocolError = 0x08
)

// Transfer describes one DP or AP register access inside a DAP_Transfer
// command. Data is ignored for reads.
type Transfer struct {
	Request byte
	Data    uint32
}

// DPRead builds a debug port register read.
func DPRead(reg uint8) Transfer {
	return Transfer{Request: TransferRnW | (reg & TransferA32)}
}

// DPWrite builds a debug port register write.
func DPWrite(reg uint8, value uint32) Transfer {
	return Transfer{Request: reg & TransferA32, Data: value}
}

// APRead builds an access port register read within the selected bank.
func APRead(reg uint8) Transfer {
	return Transfer{Request: TransferAPnDP | TransferRnW | (reg & TransferA32)}
}

// APWrite builds an access port register write within the selected bank.
func APWrite(reg uint8, value uint32) Transfer {
	return Transfer{Request: TransferAPnDP | (reg & TransferA32), Data: value}
}

// IsRead reports whether the transfer reads a register.
func (t Transfer) IsRead() bool {
	return t.Request&TransferRnW != 0
}

// TransferError reports a DAP_Transfer or DAP_TransferBlock that the target
// did not acknowledge.
type TransferError struct {
	Ack       byte
	Completed int
}

func (e *TransferError) Error() string {
	var ack string
	switch e.Ack & ackMask {
	case AckWait:
		ack = "WAIT"
	case AckFault:
		ack = "FAULT"
	case AckNone:
		ack = "no ACK"
	default:
		ack = fmt.Sprintf("0x%02X", e.Ack)
	}
	if e.Ack&ackProtocolError != 0 {
		ack += ", SWD protocol error"
	}
	return fmt.Sprintf("dap: transfer failed after %d transfer(s): %s", e.Completed, ack)
}

// CMSISDAPProtocol handles encoding/decoding of CMSIS-DAP commands
type CMSISDAPProtocol struct {
	PacketSize int
}

// NewCMSISDAPProtocol creates a new protocol handler
func NewCMSISDAPProtocol(packetSize int) *CMSISDAPProtocol {
	return &CMSISDAPProtocol{
		PacketSize: packetSize,
	}
}

// EncodeInfo builds a DAP_Info command
func (p *CMSISDAPProtocol) EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info response
func (p *CMSISDAPProtocol) DecodeInfo(resp []byte) (string, error) {
	if len(resp) < 2 {
		return "", fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return "", fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}

	length := int(resp[1])
	if len(resp) < 2+length {
		return "", fmt.Errorf("incomplete info string")
	}

	return string(resp[2 : 2+length]), nil
}

// DecodeInfoPacketSize parses the DAP_Info packet size response
func (p *CMSISDAPProtocol) DecodeInfoPacketSize(resp []byte) (int, error) {
	if len(resp) < 4 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return 0, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	if resp[1] != 2 {
		return 0, fmt.Errorf("unexpected packet size length %d", resp[1])
	}
	return int(binary.LittleEndian.Uint16(resp[2:4])), nil
}

// DecodeInfoCapabilities parses the DAP_Info capabilities response and
// returns the first capabilities byte.
func (p *CMSISDAPProtocol) DecodeInfoCapabilities(resp []byte) (byte, error) {
	if len(resp) < 3 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return 0, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("capabilities not reported")
	}
	return resp[2], nil
}

// EncodeConnect builds a DAP_Connect command
func (p *CMSISDAPProtocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func (p *CMSISDAPProtocol) DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdConnect {
		return 0, fmt.Errorf("invalid command ID")
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("connection failed")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (p *CMSISDAPProtocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

// DecodeStatus parses the generic [cmd, status] response shared by most
// configuration commands.
func (p *CMSISDAPProtocol) DecodeStatus(cmd byte, resp []byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("invalid command ID: 0x%02X, want 0x%02X", resp[0], cmd)
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("command 0x%02X failed", cmd)
	}
	return nil
}

// EncodeTransferConfigure builds a DAP_TransferConfigure command
func (p *CMSISDAPProtocol) EncodeTransferConfigure(idleCycles byte, waitRetry, matchRetry uint16) []byte {
	cmd := make([]byte, 6)
	cmd[0] = CmdTransferConfigure
	cmd[1] = idleCycles
	binary.LittleEndian.PutUint16(cmd[2:], waitRetry)
	binary.LittleEndian.PutUint16(cmd[4:], matchRetry)
	return cmd
}

// EncodeSWDConfigure builds a DAP_SWD_Configure command
func (p *CMSISDAPProtocol) EncodeSWDConfigure(config byte) []byte {
	return []byte{CmdSWDConfigure, config}
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence command. bits must be in
// 1..256; data is sent LSB first.
func (p *CMSISDAPProtocol) EncodeSWJSequence(bits int, data []byte) []byte {
	cmd := make([]byte, 2+(bits+7)/8)
	cmd[0] = CmdSWJSequence
	cmd[1] = byte(bits) // 256 encodes as 0
	copy(cmd[2:], data)
	return cmd
}

// EncodeTransfer builds a DAP_Transfer command on DAP index 0
// Each transfer is: [request][data (writes only)]
func (p *CMSISDAPProtocol) EncodeTransfer(transfers []Transfer) []byte {
	size := 3
	for _, t := range transfers {
		size++
		if !t.IsRead() {
			size += 4
		}
	}

	cmd := make([]byte, size)
	cmd[0] = CmdTransfer
	cmd[1] = 0
	cmd[2] = byte(len(transfers))

	offset := 3
	for _, t := range transfers {
		cmd[offset] = t.Request
		offset++
		if !t.IsRead() {
			binary.LittleEndian.PutUint32(cmd[offset:], t.Data)
			offset += 4
		}
	}

	return cmd
}

// DecodeTransfer parses a DAP_Transfer response and returns the values of
// the read transfers, in order.
func (p *CMSISDAPProtocol) DecodeTransfer(resp []byte, transfers []Transfer) ([]uint32, error) {
	if len(resp) < 3 {
		return nil, fmt.Errorf("response too short")
	}
	if resp[0] != CmdTransfer {
		return nil, fmt.Errorf("invalid command ID")
	}

	count := int(resp[1])
	ack := resp[2]
	if ack&ackMask != AckOK || ack&ackProtocolError != 0 || count != len(transfers) {
		return nil, &TransferError{Ack: ack, Completed: count}
	}

	values := make([]uint32, 0)
	offset := 3
	for _, t := range transfers {
		if !t.IsRead() {
			continue
		}
		if offset+4 > len(resp) {
			return nil, fmt.Errorf("incomplete transfer data")
		}
		values = append(values, binary.LittleEndian.Uint32(resp[offset:]))
		offset += 4
	}

	return values, nil
}

// EncodeTransferBlock builds a DAP_TransferBlock command on DAP index 0.
// For reads data must be nil and count gives the number of words.
func (p *CMSISDAPProtocol) EncodeTransferBlock(request byte, count int, data []uint32) []byte {
	size := 5
	if request&TransferRnW == 0 {
		size += 4 * len(data)
	}

	cmd := make([]byte, size)
	cmd[0] = CmdTransferBlock
	cmd[1] = 0
	binary.LittleEndian.PutUint16(cmd[2:], uint16(count))
	cmd[4] = request

	if request&TransferRnW == 0 {
		for i, w := range data {
			binary.LittleEndian.PutUint32(cmd[5+4*i:], w)
		}
	}

	return cmd
}

// DecodeTransferBlock parses a DAP_TransferBlock response. For reads it
// returns count words.
func (p *CMSISDAPProtocol) DecodeTransferBlock(resp []byte, request byte, count int) ([]uint32, error) {
	if len(resp) < 4 {
		return nil, fmt.Errorf("response too short")
	}
	if resp[0] != CmdTransferBlock {
		return nil, fmt.Errorf("invalid command ID")
	}

	done := int(binary.LittleEndian.Uint16(resp[1:3]))
	ack := resp[3]
	if ack&ackMask != AckOK || ack&ackProtocolError != 0 || done != count {
		return nil, &TransferError{Ack: ack, Completed: done}
	}

	if request&TransferRnW == 0 {
		return nil, nil
	}

	if len(resp) < 4+4*count {
		return nil, fmt.Errorf("incomplete block data")
	}
	words := make([]uint32, count)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(resp[4+4*i:])
	}
	return words, nil
}

// MaxBlockWords returns how many words fit in a single DAP_TransferBlock
// command or response for the configured packet size.
func (p *CMSISDAPProtocol) MaxBlockWords(read bool) int {
	if read {
		return (p.PacketSize - 4) / 4
	}
	return (p.PacketSize - 5) / 4
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func (p *CMSISDAPProtocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// EncodeResetTarget builds a DAP_ResetTarget command
func (p *CMSISDAPProtocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}

// DecodeResetTarget parses response
func (p *CMSISDAPProtocol) DecodeResetTarget(resp []byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != CmdResetTarget {
		return fmt.Errorf("invalid command ID")
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("reset target failed")
	}
	return nil
}
