// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i40e

// selectRxBurst implements §4.8's Rx priority ladder, restricted to this
// module's scope (vectorized SIMD variants are out of scope, §1): scattered
// traffic forces the scattered path; otherwise bulk-alloc is used when its
// preconditions held at setup (§4.2); otherwise the reference single-buffer
// path.
func selectRxBurst(q *RxQueue) {
	switch {
	case q.conf.scatteredRx:
		q.burst = rxBurstScattered
	case q.bulkAllocEnabled:
		q.burst = rxBurstBulkAlloc
	default:
		q.burst = rxBurstSingle
	}
}

// selectTxBurst implements §4.8's Tx priority ladder: the simple path is
// chosen when every SimpleFlags bit is set and the RS threshold is large
// enough to amortize bulk cleanup against a single burst (§4.5); otherwise
// the full-featured path is installed. Prepare is callable on any queue
// whichever path is installed; the conf's prepare setting is not consulted.
func selectTxBurst(q *TxQueue) {
	if q.flags&SimpleFlags == SimpleFlags && q.txRsThresh >= TxMaxBurst {
		q.burst = txBurstSimple
		return
	}

	q.burst = txBurstFull
}

// SelectBurst installs both the Rx and Tx burst implementations for every
// queue configured on the port (§4.8), then starts every queue whose conf
// did not request deferred start. Call it once after all
// NewRxQueue/NewTxQueue calls for the port and before the first Burst.
func (p *Port) SelectBurst() {
	for _, q := range p.rxQueues {
		selectRxBurst(q)

		if !q.conf.deferredStart {
			q.Start()
		}
	}

	for _, q := range p.txQueues {
		selectTxBurst(q)

		if !q.conf.deferredStart {
			q.Start()
		}
	}
}
