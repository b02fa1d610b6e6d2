// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSession() *Session {
	return &Session{memMap: DefaultMediumDensityMap}
}

func TestCheckRangeAcceptsInBoundsFlash(t *testing.T) {
	s := newTestSession()
	err := s.CheckRange(RegionFlash, s.memMap.FlashBase, 256)
	assert.NoError(t, err)
}

func TestCheckRangeRejectsOutOfBoundsFlash(t *testing.T) {
	s := newTestSession()
	err := s.CheckRange(RegionFlash, s.memMap.FlashBase+s.memMap.FlashSize-4, 8)
	var oor *AddressOutOfRange
	assert.ErrorAs(t, err, &oor)
}

func TestCheckRangeRejectsBelowRegionBase(t *testing.T) {
	s := newTestSession()
	err := s.CheckRange(RegionSRAM, s.memMap.SRAMBase-4, 8)
	var oor *AddressOutOfRange
	assert.ErrorAs(t, err, &oor)
}

func TestCheckRangePrefersOverflowOverOutOfRange(t *testing.T) {
	s := newTestSession()
	// addr+len wraps past 2^32; this would also fail the region bound
	// check, but overflow must be reported first per the ordering
	// contract.
	err := s.CheckRange(RegionFlash, 0xFFFFFFF0, 0x20)
	var overflow *RangeOverflow
	assert.ErrorAs(t, err, &overflow)
}

func TestCheckRangeAcceptsZeroLength(t *testing.T) {
	s := newTestSession()
	assert.NoError(t, s.CheckRange(RegionFlash, 0, 0))
}

func TestReadMem32RejectsMisalignedAddress(t *testing.T) {
	s := newTestSession()
	_, err := s.ReadMem32(RegionFlash, s.memMap.FlashBase+1, 4)
	var m *Misaligned
	assert.ErrorAs(t, err, &m)
}

func TestWriteMem32RejectsMisalignedLength(t *testing.T) {
	s := newTestSession()
	err := s.WriteMem32(RegionSRAM, s.memMap.SRAMBase, []byte{1, 2, 3})
	var m *Misaligned
	assert.ErrorAs(t, err, &m)
}
