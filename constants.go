// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Command layout is grounded on the ST-Link v1 SCSI pass-through
// protocol as implemented by the stlink-sg family of utilities.

package gostlink

import "time"

// AdapterMode is the adapter's current top-level mode.
type AdapterMode uint8

const (
	ModeUnknown AdapterMode = iota
	ModeDFU
	ModeMass
	ModeDebugSWD
	ModeDebugJTAG
)

func (m AdapterMode) String() string {
	switch m {
	case ModeDFU:
		return "DFU"
	case ModeMass:
		return "mass storage"
	case ModeDebugSWD:
		return "debug (SWD)"
	case ModeDebugJTAG:
		return "debug (JTAG)"
	default:
		return "unknown"
	}
}

// CoreStatus is the last-known Cortex-M3 core run state.
type CoreStatus int

const (
	CoreStatusUnknown CoreStatus = -1
	CoreRunning       CoreStatus = 0x80
	CoreHalted        CoreStatus = 0x81
)

func (s CoreStatus) String() string {
	switch s {
	case CoreRunning:
		return "running"
	case CoreHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// CDB opcode classes (byte 0).
const (
	cmdGetVersion     = 0xF1
	cmdDebug          = 0xF2
	cmdDFU            = 0xF3
	cmdGetCurrentMode = 0xF5
)

// Device-reported top-level modes, as returned by cmdGetCurrentMode.
const (
	deviceModeDFU   = 0x00
	deviceModeMass  = 0x01
	deviceModeDebug = 0x02
)

// Debug sub-opcodes (CDB byte 1), per §4.2.
const (
	debugEnterJTag     = 0x00
	debugGetStatus     = 0x01
	debugForceDebug    = 0x02
	debugResetSys      = 0x03
	debugReadAllRegs   = 0x04
	debugReadReg       = 0x05
	debugWriteReg      = 0x06
	debugReadMem32Bit  = 0x07
	debugWriteMem32Bit = 0x08
	debugRunCore       = 0x09
	debugStepCore      = 0x0A
	debugSetFP         = 0x0B
	debugWriteMem8Bit  = 0x0D
	debugClearFP       = 0x0E
	debugWriteDebugReg = 0x0F
	debugEnter         = 0x20
	debugExit          = 0x21
	debugReadCoreID    = 0x22
	debugEnterSWD      = 0xA3
)

const dfuExit = 0x07

// Simple-command status bytes, byte 0 of a 2-byte reply.
const (
	statusOK      = 0x80
	statusFalse   = 0x81
	statusRunning = 0x80
	statusHalted  = 0x81
)

// Hardware breakpoint range kinds, CDB byte 7 of debugSetFP.
const (
	FPLower = 0x00
	FPUpper = 0x01
	FPAll   = 0x02
)

// Adapter identity, §6.
const (
	ExpectedVendorID  = 0x0483
	ExpectedProductID = 0x3744
)

// Expected Cortex-M3 r1p1 core id, §6.
const ExpectedCoreID = 0x1BA01477

const DebugMCUIDCodeAddr = 0xE0042000
const OptionByteInfoAddr = 0x1FFFF7E0

// FPEC flash controller, §3.
const (
	FPECBase = 0x40022000
	FPECAcr  = FPECBase + 0x00
	FPECKeyr = FPECBase + 0x04
	FPECSr   = FPECBase + 0x0C
	FPECCr   = FPECBase + 0x10
	FPECAr   = FPECBase + 0x14
	FPECObr  = FPECBase + 0x1C
	FPECWrpr = FPECBase + 0x20
)

const (
	flashKey1 = 0x45670123
	flashKey2 = 0xCDEF89AB
)

const (
	srBSY = 1 << 0
	srEOP = 1 << 5
)

const (
	crPG   = 1 << 0
	crPER  = 1 << 1
	crMER  = 1 << 2
	crSTRT = 1 << 6
	crLOCK = 1 << 7
)

// GPIOC, used by the blink demo, §6.
const (
	gpioCBase = 0x40011000
	gpioCCRH  = gpioCBase + 0x04
	gpioCODR  = gpioCBase + 0x0C
	ledBlue   = 1 << 8
	ledGreen  = 1 << 9
)

// Transfer ceilings, §4.3.
const (
	maxReadMem32   = 6144
	maxWriteMem8   = 64
	writeBlockSize = 64
)

// CDB is always exactly 10 bytes, §3.
const cdbLength = 10

const senseBufferLength = 32

// Per-transfer deadline, §4.1.
const transferDeadline = 1 * time.Second

// Medium-density F10x memory map defaults, §3/§6.
var DefaultMediumDensityMap = TargetMemoryMap{
	FlashBase:     0x08000000,
	FlashSize:     128 * 1024,
	FlashPageSize: 1024,
	SRAMBase:      0x20000000,
	SRAMSize:      8 * 1024,
	SystemBase:    0x1FFFF000,
	SystemSize:    2 * 1024,
}
