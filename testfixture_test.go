// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i40e

import (
	"testing"
	"unsafe"

	"github.com/usbarmory/i40e/dma"
	"github.com/usbarmory/i40e/mbuf"
	"github.com/usbarmory/i40e/pci"
)

// testFixture hosts the Rx/Tx engines against real, heap-allocated Go
// memory rather than the bare-metal physical addresses the teacher's build
// target uses: dma.Region and reg.Read/Write both materialize their views
// through unsafe.Pointer arithmetic on a plain uint address (dma/block.go,
// internal/reg/reg.go), so anything they touch in a hosted test must back
// onto memory the Go runtime actually owns. The backing slices are kept as
// fields so they stay reachable — and therefore ineligible for GC — for as
// long as the fixture itself is.
type testFixture struct {
	dmaBacking  []byte
	mmioBacking []byte

	port *Port
}

// newTestFixture initializes the global DMA region and a simulated BAR0
// large enough to cover queue 0's QRX_TAIL/QTX_TAIL registers.
func newTestFixture(t *testing.T, dmaSize int) *testFixture {
	t.Helper()

	dmaBacking := make([]byte, dmaSize)
	dma.Init(uint(uintptr(unsafe.Pointer(&dmaBacking[0]))), uint(dmaSize))

	mmioSize := qrxTailBase + qTailStride
	mmioBacking := make([]byte, mmioSize)

	var bars [6]uint
	bars[0] = uint(uintptr(unsafe.Pointer(&mmioBacking[0])))

	dev := pci.NewDevice(0, 0, pci.VendorIntel, pci.DeviceXL710QDA2, 1, bars)

	return &testFixture{
		dmaBacking:  dmaBacking,
		mmioBacking: mmioBacking,
		port:        NewPort(dev),
	}
}

// newTestPool allocates a DMAPool of n buffers, each bufSize bytes plus the
// default headroom, from the fixture's DMA region.
func (fx *testFixture) newTestPool(n int, bufSize int) *mbuf.DMAPool {
	return mbuf.NewDMAPool(dma.Default(), n, bufSize, mbuf.DefaultHeadroom)
}

const testBufSize = 2048
