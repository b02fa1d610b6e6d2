// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyResultGood(t *testing.T) {
	hdr := sgIoHdr{info: sgInfoOk}
	_, category, _, err := classifyResult(&hdr, make([]byte, senseBufferLength))
	assert.Equal(t, CategoryGood, category)
	assert.NoError(t, err)
}

func TestClassifyResultSense(t *testing.T) {
	hdr := sgIoHdr{status: 0x02, sbLenWr: 14}
	sense := make([]byte, senseBufferLength)
	sense[2] = 0x03
	sense[12] = 0x11
	sense[13] = 0x00

	_, category, _, err := classifyResult(&hdr, sense)
	assert.Equal(t, CategorySense, category)

	var se *SenseError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, byte(0x03), se.Key)
	assert.Equal(t, byte(0x11), se.Asc)
}

func TestClassifyResultTransportErr(t *testing.T) {
	hdr := sgIoHdr{hostStatus: 0x0B}
	_, category, _, err := classifyResult(&hdr, make([]byte, senseBufferLength))
	assert.Equal(t, CategoryTransportErr, category)
	assert.Error(t, err)
}

func TestClassifyResultOsErrOnBadInfo(t *testing.T) {
	hdr := sgIoHdr{info: 0x01}
	_, category, _, err := classifyResult(&hdr, make([]byte, senseBufferLength))
	assert.Equal(t, CategoryOsErr, category)
	assert.Error(t, err)
}

func TestClassifyResultIgnoresResidueOnGood(t *testing.T) {
	hdr := sgIoHdr{info: sgInfoOk, resid: 12}
	residue, category, _, err := classifyResult(&hdr, make([]byte, senseBufferLength))
	assert.Equal(t, 12, residue)
	assert.Equal(t, CategoryGood, category)
	assert.NoError(t, err)
}

func TestSense0OutOfRangeReturnsZero(t *testing.T) {
	assert.Equal(t, byte(0), sense0(nil, 2))
	assert.Equal(t, byte(0), sense0([]byte{1, 2}, 5))
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	te := &TransportError{Op: "test", Cause: cause}
	assert.ErrorIs(t, te, cause)
}
