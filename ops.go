// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// High-level file-based operations, grounded on the original driver's
// stlink_fwrite_flash/stlink_fwrite_sram/stlink_fcheck_flash/
// stlink_fread/stlink_run_at/stm_discovery_blink/stm_info family.

package gostlink

import (
	"bytes"
	"context"
	"os"
	"time"
)

// pagesForWrite returns the inclusive range of page indices (relative
// to base/pageSize) that a write of length bytes starting at addr
// touches.
func pagesForWrite(addr, length, base, pageSize uint32) (first, last uint32) {
	first = (addr - base) / pageSize
	last = (addr - base + length - 1) / pageSize
	return first, last
}

// WriteFlashFile programs the contents of path into flash starting at
// addr: erases every page the write touches, writes it in
// writeBlockSize chunks through the SRAM loader, then reads the
// written range back and compares.
func (s *Session) WriteFlashFile(path string, addr uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return s.setLastErr(&FileError{Path: path, Cause: err})
	}

	if err := s.CheckRange(RegionFlash, addr, uint32(len(data))); err != nil {
		return err
	}
	if addr%2 != 0 || len(data)%2 != 0 {
		return s.setLastErr(&Misaligned{What: "flash write address/length", Value: addr})
	}

	firstPage, lastPage := pagesForWrite(addr, uint32(len(data)), s.memMap.FlashBase, s.memMap.FlashPageSize)

	for page := firstPage; page <= lastPage; page++ {
		pageAddr := s.memMap.FlashBase + page*s.memMap.FlashPageSize
		if err := s.ErasePage(pageAddr); err != nil {
			return err
		}
	}

	for off := 0; off < len(data); off += writeBlockSize {
		end := off + writeBlockSize
		if end > len(data) {
			end = len(data)
		}
		if err := s.WriteBlock(addr+uint32(off), data[off:end]); err != nil {
			return err
		}
	}

	skip := int(addr & 3)
	readBack, err := s.ReadMem32(RegionFlash, addr&^3, uint32((skip+len(data)+3)&^3))
	if err != nil {
		return err
	}
	if !bytes.Equal(readBack[skip:skip+len(data)], data) {
		for i := range data {
			if readBack[skip+i] != data[i] {
				return s.setLastErr(&VerifyMismatch{Offset: uint32(i), Expected: data[i], Actual: readBack[skip+i]})
			}
		}
	}

	return nil
}

// WriteSRAMFile loads the contents of path into SRAM starting at addr,
// 1KiB block at a time, via the plain 32-bit memory write path (no
// flash loader involved — SRAM is directly addressable).
func (s *Session) WriteSRAMFile(path string, addr uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return s.setLastErr(&FileError{Path: path, Cause: err})
	}

	if addr%4 != 0 {
		return s.setLastErr(&Misaligned{What: "sram write address", Value: addr})
	}
	if err := s.CheckRange(RegionSRAM, addr, uint32(len(data))); err != nil {
		return err
	}

	const blockSize = 1024
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[off:end]
		if len(block)%4 != 0 {
			padded := make([]byte, (len(block)+3)&^3)
			copy(padded, block)
			block = padded
		}
		if err := s.WriteMem32(RegionSRAM, addr+uint32(off), block); err != nil {
			return err
		}
	}

	return nil
}

// CheckFlashFile compares flash contents starting at addr against the
// contents of path, returning a *VerifyMismatch on the first
// differing byte.
func (s *Session) CheckFlashFile(path string, addr uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return s.setLastErr(&FileError{Path: path, Cause: err})
	}

	skip := int(addr & 3)
	readBack, err := s.ReadMem32(RegionFlash, addr&^3, uint32((skip+len(data)+3)&^3))
	if err != nil {
		return err
	}

	for i := range data {
		if readBack[skip+i] != data[i] {
			return s.setLastErr(&VerifyMismatch{Offset: uint32(i), Expected: data[i], Actual: readBack[skip+i]})
		}
	}

	return nil
}

// ReadToFile copies size bytes starting at addr into path, 1KiB block
// at a time. Unlike the original driver, the per-block read length is
// clamped against the remaining byte count before rounding up to a
// 4-byte boundary — the original computes `read_size = off + read_size`
// on the final short block, which both discards the clamp and grows
// the read past the caller's requested size.
func (s *Session) ReadToFile(path string, addr, size uint32) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_TRUNC|os.O_CREATE, 0664)
	if err != nil {
		return s.setLastErr(&FileError{Path: path, Cause: err})
	}
	defer f.Close()

	const blockSize = 1024
	for off := uint32(0); off < size; off += blockSize {
		readSize := size - off
		if readSize > blockSize {
			readSize = blockSize
		}
		if readSize&3 != 0 {
			readSize = (readSize + 3) &^ 3
		}

		data, err := s.ReadMem32(RegionFlash, addr+off, readSize)
		if err != nil {
			return err
		}

		n := readSize
		if off+n > size {
			n = size - off
		}
		if _, err := f.Write(data[:n]); err != nil {
			return s.setLastErr(&FileError{Path: path, Cause: err})
		}
	}

	return nil
}

// RunAt sets pc to addr and resumes execution, then polls for the
// core to halt again (e.g. on a breakpoint), bounded by
// cfg.PollDeadline rather than the original's unconditional 3-second
// sleep loop.
func (s *Session) RunAt(addr uint32) error {
	if err := s.WriteReg(15, addr); err != nil {
		return err
	}
	if err := s.Run(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PollDeadline)
	defer cancel()
	return s.waitHalted(ctx)
}

// Blink toggles the Discovery board's GPIOC LEDs count times, a
// quarter second apart, as a minimal end-to-end smoke test (§6).
func (s *Session) Blink(count int) error {
	crh, err := s.readFPECReg(gpioCCRH)
	if err != nil {
		return err
	}
	// Configure PC8/PC9 as 2MHz push-pull general purpose output.
	crh = (crh &^ 0xFF) | 0x22
	if err := s.writeFPECReg(gpioCCRH, crh); err != nil {
		return err
	}

	on := false
	for i := 0; i < count*2; i++ {
		odr := uint32(0)
		if on {
			odr = ledBlue | ledGreen
		}
		if err := s.writeFPECReg(gpioCODR, odr); err != nil {
			return err
		}
		on = !on
		time.Sleep(250 * time.Millisecond)
	}

	return nil
}

// Info reports the core id, MCU debug id, and option byte word — the
// read-only identification summary the original calls stm_info.
type InfoReport struct {
	CoreID      uint32
	DebugMCUID  uint32
	OptionBytes uint32
}

func (s *Session) Info() (InfoReport, error) {
	var report InfoReport

	coreID, err := s.ReadCoreID()
	if err != nil {
		return report, err
	}
	report.CoreID = coreID

	dbgID, err := s.readFPECReg(DebugMCUIDCodeAddr)
	if err != nil {
		return report, err
	}
	report.DebugMCUID = dbgID

	optionBytes, err := s.readFPECReg(OptionByteInfoAddr)
	if err != nil {
		return report, err
	}
	report.OptionBytes = optionBytes

	return report, nil
}
