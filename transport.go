// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Transport issues ST-Link commands as SCSI Command Descriptor Blocks
// through the Linux SCSI generic (sg) pass-through ioctl. The struct
// layout and ioctl number are grounded on the SG_IO interface used by
// github.com/dswarbrick/smart's scsi package.

package gostlink

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	sgDxferNone     = -1
	sgDxferToDev    = -2
	sgDxferFromDev  = -3
	sgInfoOkMask    = 0x1
	sgInfoOk        = 0x0
	sgIOIoctl       = 0x2285
)

// Direction selects whether the data buffer receives (In) or supplies
// (Out) bytes during a transfer.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// ResultCategory classifies the outcome of one SG_IO call, mirroring
// the sg3_utils result-category values the original C driver switches
// on in stlink_confirm_inq.
type ResultCategory int

const (
	CategoryGood ResultCategory = iota
	CategorySense
	CategoryTransportErr
	CategoryOsErr
	CategoryTimeout
)

// sgIoHdr mirrors struct sg_io_hdr from <scsi/sg.h>.
type sgIoHdr struct {
	interfaceID   int32
	dxferDir      int32
	cmdLen        uint8
	mxSbLen       uint8
	iovecCount    uint16
	dxferLen      uint32
	dxferp        uintptr
	cmdp          uintptr
	sbp           uintptr
	timeout       uint32
	flags         uint32
	packID        int32
	usrPtr        uintptr
	status        uint8
	maskedStatus  uint8
	msgStatus     uint8
	sbLenWr       uint8
	hostStatus    uint16
	driverStatus  uint16
	resid         int32
	duration      uint32
	info          uint32
}

// Transport wraps an open SCSI generic device node.
type Transport struct {
	fd   int
	path string
}

// OpenTransport opens a SCSI generic device node (e.g. /dev/sg0) for
// read-write access.
func OpenTransport(path string) (*Transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, &TransportError{Op: "open " + path, Cause: err}
	}
	return &Transport{fd: fd, path: path}, nil
}

func (t *Transport) Close() error {
	if t == nil || t.fd == 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = 0
	return err
}

// Execute issues a single 10-byte CDB, with buf as the data-in or
// data-out payload depending on dir, bounded by deadline. The requested
// length is always treated as authoritative: residue is computed and
// returned for diagnostic logging only, never used to truncate buf
// (§4.1's quirk policy — the adapter's reported residue is unreliable).
func (t *Transport) Execute(cdb [cdbLength]byte, dir Direction, buf []byte, deadline time.Duration) (residue int, category ResultCategory, sense []byte, err error) {
	senseBuf := make([]byte, senseBufferLength)

	hdr := sgIoHdr{
		interfaceID: 'S',
		cmdLen:      cdbLength,
		mxSbLen:     senseBufferLength,
		timeout:     uint32(deadline / time.Millisecond),
		cmdp:        uintptr(unsafe.Pointer(&cdb[0])),
		sbp:         uintptr(unsafe.Pointer(&senseBuf[0])),
	}

	switch {
	case len(buf) == 0:
		hdr.dxferDir = sgDxferNone
	case dir == DirectionIn:
		hdr.dxferDir = sgDxferFromDev
		hdr.dxferLen = uint32(len(buf))
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	default:
		hdr.dxferDir = sgDxferToDev
		hdr.dxferLen = uint32(len(buf))
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), uintptr(sgIOIoctl), uintptr(unsafe.Pointer(&hdr)))
	if errno == unix.ETIMEDOUT {
		return 0, CategoryTimeout, nil, &TransportError{Op: "SG_IO", Cause: errno}
	}
	if errno != 0 {
		return 0, CategoryOsErr, nil, &TransportError{Op: "SG_IO", Cause: errno}
	}

	residue, category, sense, err = classifyResult(&hdr, senseBuf)
	if residue > 0 && category == CategoryGood {
		logger.Debugf("SG_IO on %s: requested %d bytes, adapter reported bogus residue %d; ignoring",
			t.path, len(buf), residue)
	}
	return residue, category, sense, err
}

// classifyResult turns a completed sg_io_hdr into a ResultCategory and
// error, the way stlink_confirm_inq's switch on pt_res_category does
// in the original C driver. Separated from Execute so the decision
// table can be exercised without a real SCSI generic device.
func classifyResult(hdr *sgIoHdr, senseBuf []byte) (residue int, category ResultCategory, sense []byte, err error) {
	residue = int(hdr.resid)

	if hdr.status != 0 || hdr.sbLenWr > 0 {
		sense = senseBuf[:hdr.sbLenWr]
		return residue, CategorySense, sense, &SenseError{
			Key:  sense0(sense, 2),
			Asc:  sense0(sense, 12),
			Ascq: sense0(sense, 13),
			Raw:  sense,
		}
	}

	if hdr.hostStatus != 0 {
		return residue, CategoryTransportErr, nil, &TransportError{
			Op: "SG_IO", Cause: fmt.Errorf("host status 0x%04x", hdr.hostStatus),
		}
	}

	if hdr.info&sgInfoOkMask != sgInfoOk {
		return residue, CategoryOsErr, nil, &TransportError{
			Op: "SG_IO", Cause: fmt.Errorf("driver status 0x%04x", hdr.driverStatus),
		}
	}

	return residue, CategoryGood, nil, nil
}

func sense0(sense []byte, idx int) byte {
	if idx < len(sense) {
		return sense[idx]
	}
	return 0
}
