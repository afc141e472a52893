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

// TxQueue is one transmit queue's complete state (§3 "Tx queue state").
type TxQueue struct {
	port *Port
	qid  uint16

	ring     []byte
	ringAddr uint
	swRing   []txSwEntry
	conf     TxConf

	nbTxDesc uint16
	txTail   uint16

	lastDescCleaned uint16
	nbTxFree        uint16
	nbTxUsed        uint16

	// simple path only (§3, §4.5).
	txNextDD uint16
	txNextRS uint16

	txRsThresh   uint16
	txFreeThresh uint16
	flags        TxFlags

	// lastPrepareError holds the negated errno Prepare stores on
	// rejection (§4.6, §9 Open Question — preserved verbatim, not
	// "fixed").
	lastPrepareError int

	tailAddr uint
	started  bool

	// burst is the mode-selected Tx implementation (§4.8), installed by
	// selectTxBurst.
	burst func(q *TxQueue, in []*mbuf.Mbuf) int
}

// NewTxQueue validates conf's thresholds (§3 invariants) and allocates a Tx
// queue's DMA ring and software ring, establishing the next_id/last_id
// chain (§4.7).
func NewTxQueue(port *Port, qid uint16, nbDesc uint16, socket int, conf TxConf) (*TxQueue, error) {
	if nbDesc < 64 || nbDesc > 4096 || nbDesc%32 != 0 {
		return nil, ErrInvalidDescriptorCount
	}

	rsThresh := conf.rsThresh
	freeThresh := conf.freeThresh

	if rsThresh < 1 || rsThresh >= nbDesc-2 || rsThresh > freeThresh || nbDesc%rsThresh != 0 {
		return nil, ErrInvalidThreshold
	}

	if freeThresh < 1 || freeThresh >= nbDesc-3 {
		return nil, ErrInvalidThreshold
	}

	region := dma.Default()
	if region == nil {
		return nil, ErrAllocFailed
	}

	ringSize := (int(nbDesc)*txDescSize + DMAMemAlign - 1) &^ (DMAMemAlign - 1)
	ringAddr, ring := region.Reserve(ringSize, RingBaseAlign)
	for i := range ring {
		ring[i] = 0
	}

	q := &TxQueue{
		port:            port,
		qid:             qid,
		ring:            ring,
		ringAddr:        ringAddr,
		swRing:          newTxSwRing(nbDesc),
		conf:            conf,
		nbTxDesc:        nbDesc,
		lastDescCleaned: nbDesc - 1,
		nbTxFree:        nbDesc - 1,
		txNextDD:        rsThresh - 1,
		txNextRS:        rsThresh - 1,
		txRsThresh:      rsThresh,
		txFreeThresh:    freeThresh,
		flags:           conf.flags,
		tailAddr:        port.txTailAddr(qid),
	}

	port.txQueues[qid] = q

	return q, nil
}

// descSlot returns the raw 16-byte descriptor slot at ring index i.
func (q *TxQueue) descSlot(i uint16) []byte {
	off := int(i) * txDescSize
	return q.ring[off : off+txDescSize]
}

// Start marks the queue started. It does not program the hardware queue
// context or write the tail register. The Tx tail starts at 0 — nothing has
// been queued yet.
func (q *TxQueue) Start() error {
	if q.started {
		return ErrQueueAlreadyStarted
	}

	q.started = true

	return nil
}

// Stop releases any mbufs still owned by the software ring back to their
// pool and resets pacing state (§3 "Lifecycle").
func (q *TxQueue) Stop() {
	if !q.started {
		return
	}

	for i := range q.swRing {
		if m := q.swRing[i].mbuf; m != nil {
			if m.Pool != nil {
				m.Pool.Put(m)
			}
			q.swRing[i].mbuf = nil
		}
	}

	q.txTail = 0
	q.lastDescCleaned = q.nbTxDesc - 1
	q.nbTxFree = q.nbTxDesc - 1
	q.nbTxUsed = 0
	q.txNextDD = q.txRsThresh - 1
	q.txNextRS = q.txRsThresh - 1
	q.started = false
}

// Release frees the queue's DMA zone and software ring.
func (q *TxQueue) Release() {
	if q.started {
		q.Stop()
	}

	dma.Default().Release(q.ringAddr)

	q.ring = nil
	q.swRing = nil
	delete(q.port.txQueues, q.qid)
}

// Burst hands a batch of packets to the NIC (§6 tx_burst), dispatching to
// whichever Tx implementation mode selection installed.
func (q *TxQueue) Burst(in []*mbuf.Mbuf) int {
	if q.burst == nil {
		q.burst = txBurstFull
	}

	return q.burst(q, in)
}

// writeTail issues the mandatory write-memory barrier (§5) and stores the
// next-to-produce slot index to the Tx tail MMIO register.
func (q *TxQueue) writeTail() {
	reg.WriteBarrier()
	reg.Write(q.tailAddr, uint32(q.txTail))
}
