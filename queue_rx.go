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
	"github.com/usbarmory/i40e/dma"
	"github.com/usbarmory/i40e/internal/reg"
	"github.com/usbarmory/i40e/mbuf"
)

// RxQueue is one receive queue's complete state (§3 "Rx queue state"):
// the DMA-backed hardware ring, its software shadow, and the bookkeeping
// each Rx engine variant needs.
type RxQueue struct {
	port *Port
	qid  uint16

	ring    []byte
	ringAddr uint
	swRing  []rxSwEntry
	pool    mbuf.Pool
	conf    RxConf

	nbRxDesc   uint16
	rxTail     uint16
	nbRxHold   uint16
	rxFreeThresh uint16
	crcLen     uint8

	// bulk-alloc only (§3, §4.2).
	bulkAllocEnabled bool
	rxStage          []*mbuf.Mbuf
	rxNbAvail        uint16
	rxNextAvail      uint16
	rxFreeTrigger    uint16
	fakeMbuf         *mbuf.Mbuf

	// scattered only (§3, §4.3).
	pktFirstSeg *mbuf.Mbuf
	pktLastSeg  *mbuf.Mbuf

	tailAddr uint
	started  bool

	// burst is the mode-selected Rx implementation (§4.8), installed by
	// selectRxBurst.
	burst func(q *RxQueue, out []*mbuf.Mbuf) int
}

// NewRxQueue validates conf and allocates an Rx queue's DMA ring and
// software ring (§4.7). The queue is not started — call Start before
// polling it.
func NewRxQueue(port *Port, qid uint16, nbDesc uint16, socket int, conf RxConf, pool mbuf.Pool) (*RxQueue, error) {
	if nbDesc < 64 || nbDesc > 4096 || nbDesc%32 != 0 {
		return nil, ErrInvalidDescriptorCount
	}

	overflow := uint16(0)

	bulkOK := conf.freeThresh >= 32 &&
		conf.freeThresh < nbDesc &&
		nbDesc%conf.freeThresh == 0

	if bulkOK {
		overflow = RxMaxBurst
	}

	region := dma.Default()
	if region == nil {
		return nil, ErrAllocFailed
	}

	ringSize := (int(nbDesc)*rxDescSize + DMAMemAlign - 1) &^ (DMAMemAlign - 1)
	ringAddr, ring := region.Reserve(ringSize, RingBaseAlign)
	for i := range ring {
		ring[i] = 0
	}

	q := &RxQueue{
		port:             port,
		qid:              qid,
		ring:             ring,
		ringAddr:         ringAddr,
		swRing:           make([]rxSwEntry, int(nbDesc)+int(overflow)),
		pool:             pool,
		conf:             conf,
		nbRxDesc:         nbDesc,
		rxFreeThresh:     conf.freeThresh,
		crcLen:           conf.crcLen,
		bulkAllocEnabled: bulkOK,
		tailAddr:         port.rxTailAddr(qid),
	}

	if bulkOK {
		q.rxStage = make([]*mbuf.Mbuf, 0, 2*RxMaxBurst)
		q.rxFreeTrigger = conf.freeThresh - 1
		q.fakeMbuf = &mbuf.Mbuf{}
	}

	for i := uint16(0); i < nbDesc; i++ {
		m, err := pool.Get()
		if err != nil {
			return nil, ErrAllocFailed
		}

		q.swRing[i].mbuf = m
		rxReadForm(q.descSlot(i), uint64(m.DataAddr()))
	}

	for i := nbDesc; i < nbDesc+overflow; i++ {
		q.swRing[i].mbuf = q.fakeMbuf
	}

	port.rxQueues[qid] = q

	return q, nil
}

// descSlot returns the raw 32-byte descriptor slot at ring index i.
func (q *RxQueue) descSlot(i uint16) []byte {
	off := int(i) * rxDescSize
	return q.ring[off : off+rxDescSize]
}

// Start primes the Rx tail register to nb_rx_desc−1 (§3 "Lifecycle") and
// marks the queue started. It does not program the hardware queue context.
func (q *RxQueue) Start() error {
	if q.started {
		return ErrQueueAlreadyStarted
	}

	reg.WriteBarrier()
	reg.Write(q.tailAddr, uint32(q.nbRxDesc-1))

	q.started = true

	return nil
}

// Stop drains owned mbufs back to the pool and resets the queue's software
// state (§3 "Lifecycle"). The hardware ring memory is left allocated;
// Release frees it.
func (q *RxQueue) Stop() {
	if !q.started {
		return
	}

	for i := range q.swRing {
		if m := q.swRing[i].mbuf; m != nil && m != q.fakeMbuf {
			q.pool.Put(m)
			q.swRing[i].mbuf = nil
		}
	}

	q.rxTail = 0
	q.nbRxHold = 0
	q.rxNbAvail = 0
	q.rxNextAvail = 0
	q.pktFirstSeg = nil
	q.pktLastSeg = nil
	q.started = false
}

// Release frees the queue's DMA zone and software ring. The queue must not
// be used again after Release.
func (q *RxQueue) Release() {
	if q.started {
		q.Stop()
	}

	dma.Default().Release(q.ringAddr)

	q.ring = nil
	q.swRing = nil
	delete(q.port.rxQueues, q.qid)
}

// Burst polls the queue for newly written-back packets (§6 rx_burst),
// dispatching to whichever Rx implementation mode selection installed.
func (q *RxQueue) Burst(out []*mbuf.Mbuf) int {
	if q.burst == nil {
		q.burst = rxBurstSingle
	}

	return q.burst(q, out)
}

// DescriptorDone implements rx_descriptor_done (§6): a direct single-slot
// DD probe.
func (q *RxQueue) DescriptorDone(offset uint16) bool {
	idx := (q.rxTail + offset) % q.nbRxDesc
	return rxDone(rxStatusErrorLen(q.descSlot(idx)))
}

// Count implements rx_queue_count (§6, §9 "Supplemented from
// original_source"): steps the ring DescsPerLoop descriptors at a time
// using the same DD scan as the burst path, the scalar equivalent of the
// original's AVX-width stride.
func (q *RxQueue) Count() int {
	n := 0
	idx := q.rxTail

	for n < int(q.nbRxDesc) {
		done := 0

		for j := 0; j < DescsPerLoop; j++ {
			slot := (idx + uint16(j)) % q.nbRxDesc
			if rxDone(rxStatusErrorLen(q.descSlot(slot))) {
				done++
			}
		}

		n += done

		if done < DescsPerLoop {
			break
		}

		idx = (idx + DescsPerLoop) % q.nbRxDesc
	}

	return n
}
