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

// rxBurstSingle is the reference single-buffer Rx path (§4.1). It returns
// k ∈ [0, len(out)] fully-formed single-segment packets, advances rx_tail,
// and writes the Rx tail register at most once.
func rxBurstSingle(q *RxQueue, out []*mbuf.Mbuf) int {
	max := len(out)
	n := 0
	hold := uint16(0)

	for n < max {
		slot := q.descSlot(q.rxTail)
		qword1 := rxStatusErrorLen(slot)

		// Step 1: DD clear is the sole termination condition besides
		// reaching max.
		if !rxDone(qword1) {
			break
		}

		// Step 2: acquire a replacement before touching anything —
		// on exhaustion the slot under inspection is left untouched
		// so the same DD-set descriptor is retried next call.
		repl, err := q.pool.Get()
		if err != nil {
			break
		}

		// Step 3: snapshot the writeback before the slot is
		// overwritten with the replacement's read form.
		received := q.swRing[q.rxTail].mbuf

		// Step 4: extract metadata into the received mbuf.
		rxExtract(slot, q.crcLen, received)

		// Step 5: install the replacement, advance rx_tail.
		q.swRing[q.rxTail].mbuf = repl
		rxReadForm(slot, uint64(repl.DataAddr()))

		q.rxTail = (q.rxTail + 1) % q.nbRxDesc
		hold++

		out[n] = received
		n++

		// Step 6 (prefetch) has no analogue in a garbage-collected
		// runtime; the cache-line-aware prefetch discipline the
		// reference driver performs here is a hardware-specific
		// optimization with no portable Go equivalent.
	}

	// Step 7: threshold-paced tail write.
	if uint32(hold)+uint32(q.nbRxHold) > uint32(q.rxFreeThresh) {
		idx := (q.rxTail + q.nbRxDesc - 1) % q.nbRxDesc

		reg.WriteBarrier()
		reg.Write(q.tailAddr, uint32(idx))

		q.nbRxHold = 0
	} else {
		q.nbRxHold += hold
	}

	return n
}
