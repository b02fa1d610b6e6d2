// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Command layer: one method per ST-Link SCSI pass-through command.
// Each method builds a 10-byte CDB, calls Transport.Execute, and
// decodes the reply. Grounded on the teacher's one-method-per-command
// style in mode.go/debugger.go.

package gostlink

import (
	"fmt"
)

func cdb(opcode byte, rest ...byte) [cdbLength]byte {
	var c [cdbLength]byte
	c[0] = opcode
	copy(c[1:], rest)
	return c
}

// sentinelReply allocates a reply buffer pre-filled with 0x55, the way
// the original driver's regular-form command helper primes q_buf
// before the SG_IO call. A reply byte still 0x55 after a successful
// transfer identifies an adapter that reported success without
// actually writing that byte.
func sentinelReply(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0x55
	}
	return buf
}

// GetVersion issues the GetVersion CDB and decodes the packed version
// word plus VID/PID into s.identity.
func (s *Session) GetVersion() error {
	reply := sentinelReply(6)
	c := cdb(cmdGetVersion)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return s.setLastErr(err)
	}

	packed := Uint16LE(reply, 0)
	// Packed as openocd documents it: 4 bits stlink-version, 6 bits
	// jtag-version, 6 bits swim-version, read big-endian within the
	// word.
	packed = (packed >> 8) | (packed << 8)
	s.identity.StlinkV = int(packed>>12) & 0x0F
	s.identity.JtagV = int(packed>>6) & 0x3F
	s.identity.SwimV = int(packed) & 0x3F
	s.identity.VendorID = Uint16LE(reply, 2)
	s.identity.ProductID = Uint16LE(reply, 4)

	return nil
}

// CurrentMode issues the GetCurrentMode CDB and updates s.mode.
func (s *Session) CurrentMode() (AdapterMode, error) {
	reply := sentinelReply(2)
	c := cdb(cmdGetCurrentMode)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return ModeUnknown, s.setLastErr(err)
	}

	switch reply[0] {
	case deviceModeDFU:
		s.mode = ModeDFU
	case deviceModeMass:
		s.mode = ModeMass
	case deviceModeDebug:
		// Debug mode does not distinguish SWD/JTAG in this reply;
		// keep whatever we last entered, default to SWD.
		if s.mode != ModeDebugJTAG {
			s.mode = ModeDebugSWD
		}
	default:
		s.mode = ModeUnknown
	}

	return s.mode, nil
}

// ExitDFU leaves DFU mode so the adapter re-enumerates as mass storage.
func (s *Session) ExitDFU() error {
	c := cdb(cmdDFU, dfuExit)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.mode = ModeUnknown
	return nil
}

// EnterSWD puts the adapter into Cortex-M debug mode over SWD.
func (s *Session) EnterSWD() error {
	c := cdb(cmdDebug, debugEnter, debugEnterSWD)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.mode = ModeDebugSWD
	return nil
}

// EnterJTAG puts the adapter into Cortex-M debug mode over JTAG.
func (s *Session) EnterJTAG() error {
	c := cdb(cmdDebug, debugEnter, debugEnterJTag)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.mode = ModeDebugJTAG
	return nil
}

// ExitDebug leaves debug mode, returning the adapter to mass storage.
func (s *Session) ExitDebug() error {
	c := cdb(cmdDebug, debugExit)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.mode = ModeMass
	return nil
}

// ReadCoreID reads the Cortex-M core identification register.
func (s *Session) ReadCoreID() (uint32, error) {
	reply := sentinelReply(4)
	c := cdb(cmdDebug, debugReadCoreID)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return 0, s.setLastErr(err)
	}
	return Uint32LE(reply, 0), nil
}

// GetStatus polls the core run/halt status.
func (s *Session) GetStatus() (CoreStatus, error) {
	reply := sentinelReply(2)
	c := cdb(cmdDebug, debugGetStatus)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return CoreStatusUnknown, s.setLastErr(err)
	}

	switch reply[0] {
	case statusRunning:
		s.coreStatus = CoreRunning
	case statusHalted:
		s.coreStatus = CoreHalted
	default:
		s.coreStatus = CoreStatusUnknown
	}
	return s.coreStatus, nil
}

// ForceDebug halts the core immediately, entering debug state.
func (s *Session) ForceDebug() error {
	c := cdb(cmdDebug, debugForceDebug)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.coreStatus = CoreHalted
	return nil
}

// ResetSystem asserts a system reset via the debug module.
func (s *Session) ResetSystem() error {
	c := cdb(cmdDebug, debugResetSys)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

// ReadAllRegs reads the full 21-word core register file: r0-r15, xpsr,
// main_sp, process_sp, rw, rw2.
func (s *Session) ReadAllRegs() ([21]uint32, error) {
	var regs [21]uint32
	reply := sentinelReply(84)
	c := cdb(cmdDebug, debugReadAllRegs)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return regs, s.setLastErr(err)
	}
	for i := 0; i < 21; i++ {
		regs[i] = Uint32LE(reply, i*4)
	}
	return regs, nil
}

// ReadReg reads a single core register by index, 0..20.
func (s *Session) ReadReg(index int) (uint32, error) {
	if index < 0 || index > 20 {
		return 0, s.setLastErr(&InvalidRegisterIndex{Index: index})
	}
	reply := sentinelReply(4)
	c := cdb(cmdDebug, debugReadReg, byte(index))
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return 0, s.setLastErr(err)
	}
	return Uint32LE(reply, 0), nil
}

// WriteReg writes a single core register by index, 0..20.
func (s *Session) WriteReg(index int, value uint32) error {
	if index < 0 || index > 20 {
		return s.setLastErr(&InvalidRegisterIndex{Index: index})
	}
	var payload [4]byte
	PutUint32LE(payload[:], 0, value)
	c := cdb(cmdDebug, debugWriteReg, byte(index), payload[0], payload[1], payload[2], payload[3])
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

// WriteDebugReg writes a 32-bit value to a debug-module register by
// address (e.g. DHCSR, DCRSR, DCRDR) with a single debug command,
// without going through the regular regfile path.
func (s *Session) WriteDebugReg(addr, value uint32) error {
	var payload [8]byte
	PutUint32LE(payload[:], 0, addr)
	PutUint32LE(payload[:], 4, value)
	c := cdb(cmdDebug, debugWriteDebugReg, payload[0], payload[1], payload[2], payload[3],
		payload[4], payload[5], payload[6], payload[7])
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

// Run resumes core execution.
func (s *Session) Run() error {
	c := cdb(cmdDebug, debugRunCore)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.coreStatus = CoreRunning
	return nil
}

// Step single-steps one instruction.
func (s *Session) Step() error {
	c := cdb(cmdDebug, debugStepCore)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	s.coreStatus = CoreHalted
	return nil
}

// SetHWBreakpoint arms one of the Cortex-M3's 6 FPB comparators.
func (s *Session) SetHWBreakpoint(fpNr int, addr uint32, kind byte) error {
	var a [4]byte
	PutUint32LE(a[:], 0, addr)
	c := cdb(cmdDebug, debugSetFP, byte(fpNr), a[0], a[1], a[2], a[3], kind)
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

// ClearHWBreakpoint disarms a previously set FPB comparator.
func (s *Session) ClearHWBreakpoint(fpNr int) error {
	c := cdb(cmdDebug, debugClearFP, byte(fpNr))
	if _, _, _, err := s.transport.Execute(c, DirectionIn, nil, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

// readMem32 is the raw command, unchecked; memory.go wraps this with
// range/alignment validation and chunking.
func (s *Session) readMem32(addr uint32, length int) ([]byte, error) {
	reply := make([]byte, length)
	var a [4]byte
	PutUint32LE(a[:], 0, addr)
	c := cdb(cmdDebug, debugReadMem32Bit, a[0], a[1], a[2], a[3], byte(length), byte(length>>8))
	if _, _, _, err := s.transport.Execute(c, DirectionIn, reply, transferDeadline); err != nil {
		return nil, s.setLastErr(err)
	}
	return reply, nil
}

// writeMem32 is the raw command, unchecked.
func (s *Session) writeMem32(addr uint32, data []byte) error {
	var a [4]byte
	PutUint32LE(a[:], 0, addr)
	c := cdb(cmdDebug, debugWriteMem32Bit, a[0], a[1], a[2], a[3], byte(len(data)), byte(len(data)>>8))
	if _, _, _, err := s.transport.Execute(c, DirectionOut, data, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

// writeMem8 is the raw command, unchecked.
func (s *Session) writeMem8(addr uint32, data []byte) error {
	var a [4]byte
	PutUint32LE(a[:], 0, addr)
	c := cdb(cmdDebug, debugWriteMem8Bit, a[0], a[1], a[2], a[3], byte(len(data)), byte(len(data)>>8))
	if _, _, _, err := s.transport.Execute(c, DirectionOut, data, transferDeadline); err != nil {
		return s.setLastErr(err)
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("stlink v%d jtag v%d swim v%d, mode=%s, core=%s",
		s.identity.StlinkV, s.identity.JtagV, s.identity.SwimV, s.mode, s.coreStatus)
}
