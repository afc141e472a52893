// Mempool adapter for the i40e data plane
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mbuf

import (
	"errors"
	"sync"

	"github.com/usbarmory/i40e/dma"
)

// ErrPoolExhausted is returned by Get/GetBulk when the pool has no free
// buffers. The Rx/Tx engines treat this as transient and recoverable
// (§7): a burst is simply truncated, never an error surfaced to the
// application.
var ErrPoolExhausted = errors.New("mbuf: pool exhausted")

// Pool is the mempool contract the i40e core depends on (§4.1 Mempool
// Adapter, §3 "Mempool Adapter"). The core assumes buffers are
// fixed-size, DMA-mappable, and reference-counted; it only ever calls
// single or bulk get/put, never anything payload-aware.
type Pool interface {
	// Get returns a single free buffer, or ErrPoolExhausted.
	Get() (*Mbuf, error)
	// GetBulk returns exactly n free buffers, or ErrPoolExhausted (and
	// no partial allocation) if fewer than n are available.
	GetBulk(n int) ([]*Mbuf, error)
	// Put returns a buffer to the pool, decrementing its reference
	// count and only reclaiming it at zero.
	Put(m *Mbuf)
	// PutBulk is the bulk form of Put.
	PutBulk(bufs []*Mbuf)
}

// DMAPool is a reference Pool implementation backed by a dma.Region: a
// fixed set of equally sized, DMA-mapped buffers pre-allocated at
// construction and recycled through a free list. Real deployments swap
// this for a hugepage-backed slab allocator (rte_mempool and friends);
// this implementation exists so the Rx/Tx engines are exercisable in
// tests without real NIC hardware.
type DMAPool struct {
	sync.Mutex

	region   *dma.Region
	headroom uint16
	bufSize  int

	free []*Mbuf
}

// DefaultHeadroom matches the reference driver's default Rx headroom
// (RTE_PKTMBUF_HEADROOM).
const DefaultHeadroom = 128

// NewDMAPool allocates n fixed-size buffers of bufSize bytes (data area
// only, headroom excluded) from region and returns a pool ready to serve
// them.
func NewDMAPool(region *dma.Region, n int, bufSize int, headroom uint16) *DMAPool {
	p := &DMAPool{
		region:   region,
		headroom: headroom,
		bufSize:  bufSize,
		free:     make([]*Mbuf, 0, n),
	}

	for i := 0; i < n; i++ {
		addr, buf := region.Reserve(int(headroom)+bufSize, 64)

		m := &Mbuf{
			buf:  buf,
			addr: addr,
			Pool: p,
		}
		m.init(headroom)

		p.free = append(p.free, m)
	}

	return p
}

// Get implements Pool.
func (p *DMAPool) Get() (*Mbuf, error) {
	p.Lock()
	defer p.Unlock()

	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}

	m := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	m.init(p.headroom)

	return m, nil
}

// GetBulk implements Pool.
func (p *DMAPool) GetBulk(n int) ([]*Mbuf, error) {
	p.Lock()
	defer p.Unlock()

	if len(p.free) < n {
		return nil, ErrPoolExhausted
	}

	start := len(p.free) - n
	bufs := make([]*Mbuf, n)
	copy(bufs, p.free[start:])
	p.free = p.free[:start]

	for _, m := range bufs {
		m.init(p.headroom)
	}

	return bufs, nil
}

// Put implements Pool. The buffer is only returned to the free list once
// its reference count reaches zero, matching the mempool contract's
// reference-counted ownership (§3).
func (p *DMAPool) Put(m *Mbuf) {
	if m == nil {
		return
	}

	if m.refcnt > 1 {
		m.refcnt--
		return
	}

	m.refcnt = 0
	m.Next = nil

	p.Lock()
	p.free = append(p.free, m)
	p.Unlock()
}

// PutBulk implements Pool.
func (p *DMAPool) PutBulk(bufs []*Mbuf) {
	for _, m := range bufs {
		p.Put(m)
	}
}

// Available reports the number of buffers currently free, for diagnostics
// and tests — not part of the Pool contract the core depends on.
func (p *DMAPool) Available() int {
	p.Lock()
	defer p.Unlock()

	return len(p.free)
}
