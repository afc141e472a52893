// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides primitives for direct memory allocation and
// alignment. It backs the i40e descriptor rings (128B/4KiB aligned, per
// the queue setup requirements) and the mbuf data areas beneath the
// mempool adapter.
package dma

import (
	"container/list"
)

// Init initializes a region for DMA buffer allocation. The caller must
// guarantee that the backing [start, start+size) range is not otherwise
// used by the Go runtime or other regions.
func (dma *Region) Init(start uint, size uint) {
	b := &block{
		addr: start,
		size: size,
	}

	dma.start = start
	dma.size = size

	dma.Lock()
	defer dma.Unlock()

	dma.freeBlocks = list.New()
	dma.freeBlocks.PushFront(b)

	dma.usedBlocks = make(map[uint]*block)
}

// NewRegion allocates and initializes a new DMA region.
func NewRegion(start uint, size uint) *Region {
	r := &Region{}
	r.Init(start, size)

	return r
}

// Init initializes the global DMA region used by Reserve/Alloc/Read/Write/
// Free/Release when no explicit Region is threaded through the caller.
func Init(start uint, size uint) {
	dma = NewRegion(start, size)
}

// Reserve is the equivalent of Region.Reserve on the global DMA region.
func Reserve(size int, align int) (addr uint, buf []byte) {
	return Default().Reserve(size, align)
}

// Reserved is the equivalent of Region.Reserved on the global DMA region.
func Reserved(buf []byte) (res bool, addr uint) {
	return Default().Reserved(buf)
}

// Alloc is the equivalent of Region.Alloc on the global DMA region.
func Alloc(buf []byte, align int) (addr uint) {
	return Default().Alloc(buf, align)
}

// Read is the equivalent of Region.Read on the global DMA region.
func Read(addr uint, off int, buf []byte) {
	Default().Read(addr, off, buf)
}

// Write is the equivalent of Region.Write on the global DMA region.
func Write(addr uint, off int, buf []byte) {
	Default().Write(addr, off, buf)
}

// Free is the equivalent of Region.Free on the global DMA region.
func Free(addr uint) {
	Default().Free(addr)
}

// Release is the equivalent of Region.Release on the global DMA region.
func Release(addr uint) {
	Default().Release(addr)
}
