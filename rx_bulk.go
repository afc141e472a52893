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
	"github.com/usbarmory/i40e/internal/reg"
	"github.com/usbarmory/i40e/mbuf"
)

// rxBurstBulkAlloc is the bulk-alloc/look-ahead Rx path (§4.2). It is only
// installed by mode selection when the bulk-alloc preconditions hold
// (checked once at NewRxQueue, §4.2 "Precondition check"); the burst-level
// entry point fragments requests larger than RxMaxBurst into chunks.
func rxBurstBulkAlloc(q *RxQueue, out []*mbuf.Mbuf) int {
	max := len(out)

	if max == 0 {
		return 0
	}

	if max <= RxMaxBurst {
		return rxRecvRawBulkAlloc(q, out)
	}

	nbRx := 0
	remaining := max

	for remaining > 0 {
		n := remaining
		if n > RxMaxBurst {
			n = RxMaxBurst
		}

		count := rxRecvRawBulkAlloc(q, out[nbRx:nbRx+n])
		nbRx += count
		remaining -= count

		if count < n {
			break
		}
	}

	return nbRx
}

// rxRecvRawBulkAlloc drains the staging array if it has entries (step 1),
// otherwise scans the hardware ring and triggers a bulk replenish once
// rx_tail crosses rx_free_trigger (steps 2-7).
func rxRecvRawBulkAlloc(q *RxQueue, out []*mbuf.Mbuf) int {
	if q.rxNbAvail > 0 {
		return rxFillFromStage(q, out)
	}

	q.rxStage = q.rxStage[:0]

	nbRx := rxScanHWRing(q)

	q.rxNextAvail = 0
	q.rxNbAvail = uint16(nbRx)
	q.rxTail = q.rxTail + uint16(nbRx)

	if q.rxTail > q.rxFreeTrigger {
		if err := rxAllocBufs(q); err != nil {
			// Step 6: bulk-alloc failure — restore sw_ring
			// entries from rx_stage, roll back rx_tail.
			q.rxNbAvail = 0
			q.rxTail -= uint16(nbRx)

			for i := 0; i < nbRx; i++ {
				idx := (q.rxTail + uint16(i)) % q.nbRxDesc
				q.swRing[idx].mbuf = q.rxStage[i]
			}

			return 0
		}
	}

	// Step 7: ring-end wrap.
	if q.rxTail >= q.nbRxDesc {
		q.rxTail = 0
	}

	if q.rxNbAvail > 0 {
		return rxFillFromStage(q, out)
	}

	return 0
}

// rxScanHWRing implements §4.2 steps 2-4: groups of LookAhead (8)
// descriptors are read back-to-front, followed by a read-memory barrier,
// so that observing DD on a later slot guarantees its earlier siblings'
// writebacks are visible too (§5).
func rxScanHWRing(q *RxQueue) int {
	base := q.rxTail

	if !rxDone(rxStatusErrorLen(q.descSlot(base))) {
		return 0
	}

	nbRx := 0

	for i := 0; i < RxMaxBurst; i += LookAhead {
		var status [LookAhead]uint64

		for j := LookAhead - 1; j >= 0; j-- {
			idx := (base + uint16(i+j)) % q.nbRxDesc
			status[j] = rxStatusErrorLen(q.descSlot(idx))
		}

		reg.ReadBarrier()

		nbDD := 0
		for j := 0; j < LookAhead; j++ {
			if rxDone(status[j]) {
				nbDD++
			}
		}

		nbRx += nbDD

		for j := 0; j < nbDD; j++ {
			idx := (base + uint16(i+j)) % q.nbRxDesc
			rxExtract(q.descSlot(idx), q.crcLen, q.swRing[idx].mbuf)
		}

		for j := 0; j < LookAhead; j++ {
			idx := (base + uint16(i+j)) % q.nbRxDesc
			q.rxStage = append(q.rxStage, q.swRing[idx].mbuf)
		}

		if nbDD != LookAhead {
			break
		}
	}

	for i := 0; i < nbRx; i++ {
		idx := (base + uint16(i)) % q.nbRxDesc
		q.swRing[idx].mbuf = nil
	}

	return nbRx
}

// rxFillFromStage drains up to len(out) entries from the staging array
// (§4.2 step 1).
func rxFillFromStage(q *RxQueue, out []*mbuf.Mbuf) int {
	n := len(out)
	if uint16(n) > q.rxNbAvail {
		n = int(q.rxNbAvail)
	}

	for i := 0; i < n; i++ {
		out[i] = q.rxStage[int(q.rxNextAvail)+i]
	}

	q.rxNbAvail -= uint16(n)
	q.rxNextAvail += uint16(n)

	return n
}

// rxAllocBufs implements the bulk-replenish routine of §4.2 step 5:
// bulk-gets rx_free_thresh buffers from the mempool, installs them into the
// triggered region of sw_ring and the ring's read form, and advances
// rx_free_trigger.
func rxAllocBufs(q *RxQueue) error {
	allocIdx := q.rxFreeTrigger - (q.rxFreeThresh - 1)

	bufs, err := q.pool.GetBulk(int(q.rxFreeThresh))
	if err != nil {
		return err
	}

	for i := uint16(0); i < q.rxFreeThresh; i++ {
		idx := (allocIdx + i) % q.nbRxDesc
		m := bufs[i]

		q.swRing[idx].mbuf = m
		rxReadForm(q.descSlot(idx), uint64(m.DataAddr()))
	}

	reg.WriteBarrier()
	reg.Write(q.tailAddr, uint32(q.rxFreeTrigger))

	q.rxFreeTrigger += q.rxFreeThresh
	if q.rxFreeTrigger >= q.nbRxDesc {
		q.rxFreeTrigger = q.rxFreeThresh - 1
	}

	return nil
}
