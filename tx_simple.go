// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i40e

import "github.com/usbarmory/i40e/mbuf"

// txSimpleCmd is the command word every simple-path data descriptor carries
// (§4.5): the simple path is single-segment only, so CRC insertion and
// End-Of-Packet are set on every descriptor.
const txSimpleCmd = txdCmdICRC | txdCmdEOP

// txFreeBufsSimple implements §4.5 step 1: probes the descriptor at
// tx_next_dd for DD and, if set, bulk-frees the tx_rs_thresh buffers ending
// there, either straight back to the mempool (NOREFCOUNT) or one segment at
// a time.
func txFreeBufsSimple(q *TxQueue) uint16 {
	slot := q.descSlot(q.txNextDD)
	if !txDtypeDone(slot) {
		return 0
	}

	start := q.txNextDD - (q.txRsThresh - 1)

	if q.flags&TxFlagNoRefCount != 0 {
		var pool mbuf.Pool
		bufs := make([]*mbuf.Mbuf, 0, q.txRsThresh)

		for i := uint16(0); i < q.txRsThresh; i++ {
			idx := (start + i) % q.nbTxDesc

			if m := q.swRing[idx].mbuf; m != nil {
				if pool == nil {
					pool = m.Pool
				}
				bufs = append(bufs, m)
				q.swRing[idx].mbuf = nil
			}
		}

		if pool != nil {
			pool.PutBulk(bufs)
		}
	} else {
		for i := uint16(0); i < q.txRsThresh; i++ {
			idx := (start + i) % q.nbTxDesc
			releaseTxSeg(q.swRing[idx].mbuf)
			q.swRing[idx].mbuf = nil
		}
	}

	q.nbTxFree += q.txRsThresh
	q.txNextDD += q.txRsThresh
	if q.txNextDD >= q.nbTxDesc {
		q.txNextDD = q.txRsThresh - 1
	}

	return q.txRsThresh
}

// txFillHWRing implements §4.5 step 3: descriptors are written starting at
// base, one per packet. The reference driver batches this in runs of four
// plus a leftover tail (tx4/tx1) for SIMD efficiency; the batching has no
// observable effect beyond that, so this applies the same descriptor fill
// uniformly.
func txFillHWRing(q *TxQueue, base uint16, pkts []*mbuf.Mbuf) {
	for i, m := range pkts {
		idx := base + uint16(i)
		slot := q.descSlot(idx)

		releaseTxSeg(q.swRing[idx].mbuf)
		q.swRing[idx].mbuf = m

		txDataDescriptor(slot, uint64(m.DataAddr()), txSimpleCmd, 0, 0, 0, uint32(m.DataLen), 0)
	}
}

// txXmitPkts is one simple-path burst of at most TxMaxBurst packets (§4.5
// steps 1-5).
func txXmitPkts(q *TxQueue, pkts []*mbuf.Mbuf) int {
	if q.nbTxFree < q.txFreeThresh {
		txFreeBufsSimple(q)
	}

	n := len(pkts)
	if uint16(n) > q.nbTxFree {
		n = int(q.nbTxFree)
	}
	if n == 0 {
		return 0
	}

	q.nbTxFree -= uint16(n)

	var split uint16

	if q.txTail+uint16(n) > q.nbTxDesc {
		split = q.nbTxDesc - q.txTail

		txFillHWRing(q, q.txTail, pkts[:split])

		txOrCmdBits(q.descSlot(q.txNextRS), txdCmdRS)
		q.txNextRS = q.txRsThresh - 1

		q.txTail = 0
	}

	txFillHWRing(q, q.txTail, pkts[split:n])
	q.txTail += uint16(n) - split

	if q.txTail > q.txNextRS {
		txOrCmdBits(q.descSlot(q.txNextRS), txdCmdRS)

		q.txNextRS += q.txRsThresh
		if q.txNextRS >= q.nbTxDesc {
			q.txNextRS = q.txRsThresh - 1
		}
	}

	if q.txTail >= q.nbTxDesc {
		q.txTail = 0
	}

	q.writeTail()

	return n
}

// txBurstSimple is the simple fast Tx path (§4.5), selected by mode
// selection when the queue has all offloads and multi-segment disabled and
// tx_rs_thresh is large enough. Bursts larger than TxMaxBurst are
// fragmented into chunks, each a call to txXmitPkts.
func txBurstSimple(q *TxQueue, in []*mbuf.Mbuf) int {
	if len(in) <= TxMaxBurst {
		return txXmitPkts(q, in)
	}

	nbTx := 0

	for nbTx < len(in) {
		num := len(in) - nbTx
		if num > TxMaxBurst {
			num = TxMaxBurst
		}

		ret := txXmitPkts(q, in[nbTx:nbTx+num])
		nbTx += ret

		if ret < num {
			break
		}
	}

	return nbTx
}
