// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/dbecker/gostlink-sg"
)

func TestCodec(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "codec suite")
}

var _ = Describe("little-endian codec", func() {
	It("round-trips a uint16", func() {
		buf := make([]byte, 4)
		gostlink.PutUint16LE(buf, 1, 0xBEEF)
		Expect(gostlink.Uint16LE(buf, 1)).To(Equal(uint16(0xBEEF)))
	})

	It("round-trips a uint32", func() {
		buf := make([]byte, 6)
		gostlink.PutUint32LE(buf, 1, 0xDEADBEEF)
		Expect(gostlink.Uint32LE(buf, 1)).To(Equal(uint32(0xDEADBEEF)))
	})

	It("writes bytes in little-endian order", func() {
		buf := make([]byte, 4)
		gostlink.PutUint32LE(buf, 0, 0x01020304)
		Expect(buf).To(Equal([]byte{0x04, 0x03, 0x02, 0x01}))
	})

	It("builds a buffer incrementally in wire order", func() {
		b := gostlink.NewBuffer(8)
		b.WriteUint32LE(0x11223344)
		b.WriteUint16LE(0xAABB)
		Expect(b.Bytes()).To(Equal([]byte{0x44, 0x33, 0x22, 0x11, 0xBB, 0xAA}))
	})
})
