// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"bytes"
	"math"
)

// Buffer is a growable little-endian byte buffer used to build CDBs and
// hold command response data. All multi-byte fields on the wire are
// little-endian regardless of host byte order, so no endianness probe
// is used anywhere in this package.
type Buffer struct {
	bytes.Buffer
}

func NewBuffer(initSize int) *Buffer {
	b := &Buffer{}
	b.Grow(initSize)
	return b
}

func (buf *Buffer) WriteUint32LE(value uint32) {
	buf.WriteByte(byte(value))
	buf.WriteByte(byte(value >> 8))
	buf.WriteByte(byte(value >> 16))
	buf.WriteByte(byte(value >> 24))
}

func (buf *Buffer) WriteUint16LE(value uint16) {
	buf.WriteByte(byte(value))
	buf.WriteByte(byte(value >> 8))
}

func (buf *Buffer) ReadUint16LE() uint16 {
	return Uint16LE(buf.Bytes(), 0)
}

func (buf *Buffer) ReadUint32LE() uint32 {
	return Uint32LE(buf.Bytes(), 0)
}

// Uint16LE reads a little-endian uint16 from buf at off.
func Uint16LE(buf []byte, off int) uint16 {
	if len(buf) < off+2 {
		logger.Errorf("could not read uint16 le from given buffer at offset %d", off)
		return math.MaxUint16
	}
	return uint16(buf[off]) | (uint16(buf[off+1]) << 8)
}

// Uint32LE reads a little-endian uint32 from buf at off.
func Uint32LE(buf []byte, off int) uint32 {
	if len(buf) < off+4 {
		logger.Errorf("could not read uint32 le from given buffer at offset %d", off)
		return math.MaxUint32
	}
	return uint32(buf[off]) | (uint32(buf[off+1]) << 8) | (uint32(buf[off+2]) << 16) | (uint32(buf[off+3]) << 24)
}

// PutUint16LE writes a little-endian uint16 into buf at off.
func PutUint16LE(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

// PutUint32LE writes a little-endian uint32 into buf at off.
func PutUint32LE(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}
