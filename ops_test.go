// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagesForWriteSinglePage(t *testing.T) {
	first, last := pagesForWrite(0x08000000, 200, 0x08000000, 1024)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(0), last)
}

func TestPagesForWriteSpansTwoPages(t *testing.T) {
	first, last := pagesForWrite(0x08000300, 1024, 0x08000000, 1024)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(1), last)
}

func TestPagesForWriteExactlyOnBoundary(t *testing.T) {
	first, last := pagesForWrite(0x08000400, 1024, 0x08000000, 1024)
	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(1), last)
}

func TestAdapterModeString(t *testing.T) {
	assert.Equal(t, "DFU", ModeDFU.String())
	assert.Equal(t, "mass storage", ModeMass.String())
	assert.Equal(t, "debug (SWD)", ModeDebugSWD.String())
	assert.Equal(t, "unknown", ModeUnknown.String())
}

func TestCoreStatusString(t *testing.T) {
	assert.Equal(t, "running", CoreRunning.String())
	assert.Equal(t, "halted", CoreHalted.String())
	assert.Equal(t, "unknown", CoreStatusUnknown.String())
}

func TestFlashLoaderLength(t *testing.T) {
	assert.Len(t, flashLoader, 40)
	// bkpt #0x00 terminates the loader body.
	assert.Equal(t, byte(0x00), flashLoader[34])
	assert.Equal(t, byte(0xbe), flashLoader[35])
	// trailing literal pool word: STM32_FLASH_BASE = 0x40022000, LE.
	assert.Equal(t, []byte{0x00, 0x20, 0x02, 0x40}, flashLoader[36:40])
}
