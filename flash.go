// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Flash engine: the FPEC unlock/erase/program state machine and the
// SRAM-resident half-word write loader, grounded on the original C
// driver's unlock_flash/erase_flash_page/write_flash_mem16 family and
// openocd's contrib/loaders/flash/stm32.s loader.

package gostlink

import (
	"context"
	"time"
)

// flashLoader is the 40-byte Thumb loader copied verbatim from
// openocd's contrib/loaders/flash/stm32.s (as embedded by the
// original driver): 36 bytes of code followed by a 4-byte literal
// pool word holding STM32_FLASH_BASE (0x40022000). The first
// instruction (`ldr r4, [pc, #32]`) is a PC-relative load that reads
// that trailing word, so the literal must stay attached to the code.
// The loader writes r2 half-words from [r0] to [r1], polling
// FLASH_SR.BSY between each, and halts on any SR error bit or when r2
// reaches zero.
//
// Register contract at entry:
//   r0 = source address (in target SRAM, right after the loader)
//   r1 = destination address (flash)
//   r2 = half-word count
//   r3 = offset added to the literal pool's FLASH_BASE to form r4
var flashLoader = [40]byte{
	0x08, 0x4c,
	0x1c, 0x44,
	0x01, 0x23,
	0x23, 0x61,
	0x30, 0xf8, 0x02, 0x3b,
	0x21, 0xf8, 0x02, 0x3b,
	0xe3, 0x68,
	0x13, 0xf0, 0x01, 0x0f,
	0xfb, 0xd0,
	0x13, 0xf0, 0x14, 0x0f,
	0x01, 0xd1,
	0x01, 0x3a,
	0xf0, 0xd1,
	0x00, 0xbe,
	0x00, 0x20, 0x02, 0x40,
}

// IsBusy reports whether the FPEC is mid-operation.
func (s *Session) IsBusy() (bool, error) {
	sr, err := s.readFPECReg(FPECSr)
	if err != nil {
		return false, err
	}
	return sr&srBSY != 0, nil
}

// IsEOP reports whether the FPEC's end-of-operation flag is set.
func (s *Session) IsEOP() (bool, error) {
	sr, err := s.readFPECReg(FPECSr)
	if err != nil {
		return false, err
	}
	return sr&srEOP != 0, nil
}

// IsLocked reports whether the FPEC is locked for program/erase.
func (s *Session) IsLocked() (bool, error) {
	cr, err := s.readFPECReg(FPECCr)
	if err != nil {
		return false, err
	}
	return cr&crLOCK != 0, nil
}

// readFPECReg reads a peripheral register by raw address, bypassing
// the target memory map's region checks the way the original driver
// does for its own flash-controller pokes — FPEC, DBGMCU, and GPIOC
// all sit outside the flash/SRAM/system windows a session exposes to
// callers.
func (s *Session) readFPECReg(addr uint32) (uint32, error) {
	data, err := s.readMem32(addr, 4)
	if err != nil {
		return 0, err
	}
	return Uint32LE(data, 0), nil
}

func (s *Session) writeFPECReg(addr, value uint32) error {
	var buf [4]byte
	PutUint32LE(buf[:], 0, value)
	return s.writeMem32(addr, buf[:])
}

// Unlock writes the two-word FPEC key sequence. A no-op if already
// unlocked.
func (s *Session) Unlock() error {
	locked, err := s.IsLocked()
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	if err := s.writeFPECReg(FPECKeyr, flashKey1); err != nil {
		return err
	}
	if err := s.writeFPECReg(FPECKeyr, flashKey2); err != nil {
		return err
	}

	locked, err = s.IsLocked()
	if err != nil {
		return err
	}
	if locked {
		return s.setLastErr(&FlashLockStuck{})
	}

	return nil
}

// Lock sets CR.LOCK.
func (s *Session) Lock() error {
	cr, err := s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	return s.writeFPECReg(FPECCr, cr|crLOCK)
}

// waitBusy polls FLASH_SR until BSY clears or ctx is done, then
// checks the error bits (PGERR/WRPRTERR, bit 2 and bit 4 of SR — the
// driver calls this the 0x14 mask).
func (s *Session) waitBusy(ctx context.Context) error {
	for {
		sr, err := s.readFPECReg(FPECSr)
		if err != nil {
			return err
		}
		if sr&srBSY == 0 {
			if sr&0x14 != 0 {
				return s.setLastErr(&FlashProgramError{SR: sr})
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return s.setLastErr(&FlashProgramError{Timeout: true})
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// ErasePage erases the flash page containing addr.
func (s *Session) ErasePage(addr uint32) error {
	if err := s.Unlock(); err != nil {
		return err
	}

	cr, err := s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	if err := s.writeFPECReg(FPECCr, cr|crPER); err != nil {
		return err
	}
	if err := s.writeFPECReg(FPECAr, addr); err != nil {
		return err
	}
	cr, err = s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	if err := s.writeFPECReg(FPECCr, cr|crSTRT); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PollDeadline)
	defer cancel()
	if err := s.waitBusy(ctx); err != nil {
		return err
	}

	cr, err = s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	return s.writeFPECReg(FPECCr, cr&^crPER)
}

// EraseMass erases the entire flash array.
func (s *Session) EraseMass() error {
	if err := s.Unlock(); err != nil {
		return err
	}

	cr, err := s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	if err := s.writeFPECReg(FPECCr, cr|crMER); err != nil {
		return err
	}
	cr, err = s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	if err := s.writeFPECReg(FPECCr, cr|crSTRT); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PollDeadline)
	defer cancel()
	if err := s.waitBusy(ctx); err != nil {
		return err
	}

	cr, err = s.readFPECReg(FPECCr)
	if err != nil {
		return err
	}
	return s.writeFPECReg(FPECCr, cr&^crMER)
}

// deployLoader writes the loader (code plus its trailing literal
// pool word) into the first bytes of SRAM and returns the SRAM address
// immediately following it, where the caller's source data should be
// staged.
func (s *Session) deployLoader() (loaderAddr, bufAddr uint32, err error) {
	if err := s.writeMem32(s.memMap.SRAMBase, flashLoader[:]); err != nil {
		return 0, 0, err
	}
	return s.memMap.SRAMBase, s.memMap.SRAMBase + uint32(len(flashLoader)), nil
}

// WriteBlock programs len(data) bytes (must be even) at target via
// the SRAM loader: stage data after the loader, set up r0-r3, run,
// and poll for halt. This is the core of §4.4's block-write flow.
func (s *Session) WriteBlock(target uint32, data []byte) error {
	if len(data)%2 != 0 {
		return s.setLastErr(&Misaligned{What: "flash write length", Value: uint32(len(data))})
	}

	if err := s.Unlock(); err != nil {
		return err
	}
	relocked := false
	defer func() {
		if !relocked {
			s.Lock()
		}
	}()

	loaderAddr, bufAddr, err := s.deployLoader()
	if err != nil {
		return err
	}

	if err := s.writeMem8(bufAddr, data); err != nil {
		return err
	}

	if err := s.WriteReg(0, bufAddr); err != nil {
		return err
	}
	if err := s.WriteReg(1, target); err != nil {
		return err
	}
	if err := s.WriteReg(2, uint32(len(data)/2)); err != nil {
		return err
	}
	if err := s.WriteReg(3, 0); err != nil {
		return err
	}

	pc := loaderAddr | 1 // Thumb bit
	if err := s.WriteReg(15, pc); err != nil {
		return err
	}

	if err := s.Run(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PollDeadline)
	defer cancel()
	if err := s.waitHalted(ctx); err != nil {
		return err
	}

	relocked = true
	if err := s.Lock(); err != nil {
		return err
	}

	remaining, err := s.ReadReg(2)
	if err != nil {
		return err
	}
	if remaining != 0 {
		return s.setLastErr(&FlashWriteIncomplete{Remaining: remaining})
	}

	sr, err := s.readFPECReg(FPECSr)
	if err != nil {
		return err
	}
	if sr&0x14 != 0 {
		return s.setLastErr(&FlashProgramError{SR: sr})
	}

	return nil
}

func (s *Session) waitHalted(ctx context.Context) error {
	for {
		status, err := s.GetStatus()
		if err != nil {
			return err
		}
		if status == CoreHalted {
			return nil
		}

		select {
		case <-ctx.Done():
			return s.setLastErr(&CoreNeverHalted{})
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// WriteHalfword writes one 16-bit value directly to a flash address
// via the loader, without chunking or block assembly (§6's
// supplemented single-poke operation, useful for patching a single
// half-word of flash).
func (s *Session) WriteHalfword(addr uint32, value uint16) error {
	var buf [2]byte
	PutUint16LE(buf[:], 0, value)
	return s.WriteBlock(addr, buf[:])
}
