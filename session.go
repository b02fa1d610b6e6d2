// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import (
	"time"

	"github.com/boljen/go-bitmap"
)

// TargetMemoryMap describes the regions a Session will range-check
// reads and writes against. See §3/§6 for the medium-density F10x
// defaults.
type TargetMemoryMap struct {
	FlashBase, FlashSize, FlashPageSize uint32
	SRAMBase, SRAMSize                 uint32
	SystemBase, SystemSize             uint32
}

// AdapterIdentity holds the firmware identity discovered at open time.
type AdapterIdentity struct {
	StlinkV, JtagV, SwimV int
	VendorID, ProductID   uint16
}

// SessionConfig configures a Session at open time. Command-line parsing
// that produces one of these is outside this package (§1's scope note).
type SessionConfig struct {
	Verbosity     int
	PollDeadline  time.Duration // overall deadline for busy/halt polling loops, §9
	PollInterval  time.Duration
	MemoryMap     TargetMemoryMap
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Verbosity:    0,
		PollDeadline: 5 * time.Second,
		PollInterval: 20 * time.Millisecond,
		MemoryMap:    DefaultMediumDensityMap,
	}
}

// session latch bits, tracked in a bitmap the way the teacher tracks
// version capability flags and opened access-ports.
const (
	latchCoreIDRead = 0
)

// Session owns the transport handle, adapter identity, cached mode and
// core status, the target memory map, and a 128 KiB scratch buffer
// allocated at open. Commands allocate their own reply buffers; none
// of them reads or writes the scratch buffer. It is single-threaded and not safe for concurrent
// use without external serialization (§5).
type Session struct {
	transport *Transport
	cfg       SessionConfig

	scratch []byte

	mode       AdapterMode
	coreStatus CoreStatus

	identity AdapterIdentity
	coreID   uint32

	memMap TargetMemoryMap

	latches bitmap.Bitmap

	lastErr error
}

// Open opens the SCSI generic device node at path and drives the
// adapter through the forced-open sequence of §4.2: probe version,
// verify VID/PID, exit DFU if needed (with kernel re-enumeration
// delay), enter SWD, and read the core id as the mandatory first
// Debug-mode transaction.
func Open(path string, cfg SessionConfig) (*Session, error) {
	SetVerbosity(cfg.Verbosity)

	t, err := OpenTransport(path)
	if err != nil {
		return nil, err
	}

	s := &Session{
		transport: t,
		cfg:       cfg,
		scratch:   make([]byte, 128*1024),
		mode:      ModeUnknown,
		coreStatus: CoreStatusUnknown,
		memMap:    cfg.MemoryMap,
		latches:   bitmap.New(8),
	}

	if err := s.forceOpen(path); err != nil {
		t.Close()
		return nil, err
	}

	return s, nil
}

// forceOpen implements the open path of §4.2's mode state machine.
func (s *Session) forceOpen(path string) error {
	if err := s.GetVersion(); err != nil {
		return err
	}

	if s.identity.VendorID != ExpectedVendorID || s.identity.ProductID != ExpectedProductID {
		return &WrongDevice{GotVID: s.identity.VendorID, GotPID: s.identity.ProductID}
	}

	mode, err := s.CurrentMode()
	if err != nil {
		return err
	}

	if mode == ModeDFU {
		logger.Warn("adapter in DFU mode, exiting DFU and waiting for kernel re-enumeration")

		if err := s.ExitDFU(); err != nil {
			return err
		}

		time.Sleep(1 * time.Second)
		s.transport.Close()
		time.Sleep(5 * time.Second)

		t, err := OpenTransport(path)
		if err != nil {
			return err
		}
		s.transport = t

		if err := s.GetVersion(); err != nil {
			return err
		}

		mode, err = s.CurrentMode()
		if err != nil {
			return err
		}
	}

	if mode != ModeMass {
		logger.Warnf("adapter reported mode %s at open, expected mass storage", mode)
	}

	if err := s.EnterSWD(); err != nil {
		return err
	}

	coreID, err := s.ReadCoreID()
	if err != nil {
		return err
	}
	s.coreID = coreID
	s.latches.Set(latchCoreIDRead, true)

	if coreID != ExpectedCoreID {
		logger.Warn(&UnexpectedCoreId{Got: coreID, Expected: ExpectedCoreID})
	}

	return nil
}

// Close returns the adapter to mass-storage mode and releases the
// device node (§5's scoped-release policy).
func (s *Session) Close() error {
	if s.mode == ModeDebugSWD || s.mode == ModeDebugJTAG {
		if err := s.ExitDebug(); err != nil {
			logger.Warnf("exit debug mode on close: %v", err)
		}
	}
	return s.transport.Close()
}

func (s *Session) setLastErr(err error) error {
	s.lastErr = err
	return err
}

func (s *Session) LastError() error { return s.lastErr }

func (s *Session) Mode() AdapterMode       { return s.mode }
func (s *Session) CoreStatus() CoreStatus  { return s.coreStatus }
func (s *Session) CoreID() uint32          { return s.coreID }
func (s *Session) Identity() AdapterIdentity { return s.identity }
func (s *Session) MemoryMap() TargetMemoryMap { return s.memMap }
