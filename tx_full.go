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

// txCalcContextDesc implements §4.4 step 1: a context descriptor is needed
// whenever any of outer-IP checksum, TSO, outer-VLAN (QinQ), tunneling, or
// IEEE-1588 timestamping is requested.
func txCalcContextDesc(ol mbuf.OlFlags) uint16 {
	const mask = mbuf.TxOuterIPCksum | mbuf.TxTCPSeg | mbuf.TxQinQ | mbuf.TxTunnelMask | mbuf.TxIEEE1588Timestamp

	if ol&mask != 0 {
		return 1
	}

	return 0
}

// txCleanup implements §4.4.1: it probes the slot that held the last
// descriptor of the packet transmitted tx_rs_thresh descriptors after
// last_desc_cleaned, and if hardware has written it back, reclaims every
// slot between last_desc_cleaned and that slot.
func txCleanup(q *TxQueue) error {
	cleanupTarget := q.swRing[(q.lastDescCleaned+q.txRsThresh)%q.nbTxDesc].lastID

	slot := q.descSlot(cleanupTarget)
	if !txDtypeDone(slot) {
		return ErrTxNotDone
	}

	txClearDtype(slot)

	nbToClean := (cleanupTarget + q.nbTxDesc - q.lastDescCleaned) % q.nbTxDesc
	q.lastDescCleaned = cleanupTarget
	q.nbTxFree += nbToClean

	return nil
}

// releaseTxSeg returns a stale sw_ring buffer to its owning pool, matching
// the lazy-release discipline of §4.4 step 7.
func releaseTxSeg(m *mbuf.Mbuf) {
	if m != nil && m.Pool != nil {
		m.Pool.Put(m)
	}
}

// txChecksumCmd implements §4.4 steps 5-6: MACLEN/IPLEN/L4LEN plus the
// checksum command bits, with TSO forcing the TCP L4 case and suppressing
// any other L4 checksum request.
func txChecksumCmd(pkt *mbuf.Mbuf, ol mbuf.OlFlags) (cmd uint32, macLen uint16, ipLen uint16, l4Len uint8) {
	macLen = uint16(pkt.L2Len)
	if ol&mbuf.TxTunnelMask != 0 {
		macLen = uint16(pkt.OuterL2Len)
	}

	ipLen = pkt.L3Len

	if ol&mbuf.TxIPCksum != 0 {
		cmd |= txdCmdIIPTIPv4Cksum
	}

	switch {
	case ol&mbuf.TxTCPSeg != 0:
		cmd |= txdCmdL4TEOFTTCP
		l4Len = pkt.L4Len
	case ol&mbuf.TxTCPCksum != 0:
		cmd |= txdCmdL4TEOFTTCP
		l4Len = pkt.L4Len
	case ol&mbuf.TxUDPCksum != 0:
		cmd |= txdCmdL4TEOFTUDP
		l4Len = 8
	case ol&mbuf.TxSCTPCksum != 0:
		cmd |= txdCmdL4TEOFTSCTP
		l4Len = 4
	}

	return
}

// txContextParams implements §4.4 step 3's non-tunneling fields: the TSO
// command + cd_tso_len + mss, or the IEEE-1588 command bit.
func txContextParams(pkt *mbuf.Mbuf, ol mbuf.OlFlags) (cmd uint32, tsoLen uint32, mss uint16) {
	switch {
	case ol&mbuf.TxTCPSeg != 0:
		cmd |= txdCtxCmdTSO

		hdrLen := uint32(pkt.OuterL2Len) + uint32(pkt.OuterL3Len) + uint32(pkt.L2Len) + uint32(pkt.L3Len) + uint32(pkt.L4Len)
		tsoLen = pkt.PktLen - hdrLen
		mss = pkt.TSOSegsz
	case ol&mbuf.TxIEEE1588Timestamp != 0:
		cmd |= txdCtxCmdIEEE1588
	}

	return
}

// txBurstFull is the full-featured Tx path (§4.4): context descriptors for
// tunneling/TSO/QinQ/timestamping, VLAN insertion, checksum offload
// translation, multi-segment packets, and Report-Status pacing.
func txBurstFull(q *TxQueue, in []*mbuf.Mbuf) int {
	nbTx := 0

	for _, pkt := range in {
		ol := pkt.OlFlags

		nbCtx := txCalcContextDesc(ol)
		nbUsed := pkt.NbSegs + nbCtx

		if nbUsed > q.nbTxFree {
			if err := txCleanup(q); err != nil || nbUsed > q.nbTxFree {
				if nbTx == 0 {
					return 0
				}
				break
			}
		}

		txLast := (q.txTail + nbUsed - 1) % q.nbTxDesc

		var l2tag1 uint16
		var cmd uint32

		if ol&(mbuf.TxVlan|mbuf.TxQinQ) != 0 {
			l2tag1 = pkt.VlanTCI
			cmd |= txdCmdInsertVlan
		}

		cmd |= txdCmdICRC

		cksumCmd, macLen, ipLen, l4Len := txChecksumCmd(pkt, ol)
		cmd |= cksumCmd

		if nbCtx == 1 {
			slot := q.descSlot(q.txTail)

			releaseTxSeg(q.swRing[q.txTail].mbuf)
			q.swRing[q.txTail].mbuf = nil

			var cdTunneling uint32
			if ol&mbuf.TxTunnelMask != 0 {
				cdTunneling = tunnelingParams(ol&mbuf.TxOuterIPCksum != 0, false, false, pkt.OuterL3Len, ol, pkt.L2Len)
			}

			var l2tag2 uint16
			if ol&mbuf.TxQinQ != 0 {
				l2tag2 = pkt.VlanTCIOuter
			}

			ctxCmd, tsoLen, mss := txContextParams(pkt, ol)

			txContextDescriptor(slot, cdTunneling, l2tag2, ctxCmd, tsoLen, mss)

			q.swRing[q.txTail].lastID = txLast
			q.txTail = (q.txTail + 1) % q.nbTxDesc
		}

		for seg := pkt; seg != nil; seg = seg.Next {
			slot := q.descSlot(q.txTail)

			releaseTxSeg(q.swRing[q.txTail].mbuf)
			q.swRing[q.txTail].mbuf = seg

			segCmd := cmd
			if seg.Next == nil {
				segCmd |= txdCmdEOP
			}

			txDataDescriptor(slot, uint64(seg.DataAddr()), segCmd, macLen, ipLen, uint16(l4Len), uint32(seg.DataLen), l2tag1)

			q.swRing[q.txTail].lastID = txLast
			q.txTail = (q.txTail + 1) % q.nbTxDesc
		}

		q.nbTxUsed += nbUsed
		q.nbTxFree -= nbUsed

		if q.nbTxUsed >= q.txRsThresh {
			lastSlot := q.descSlot((q.txTail + q.nbTxDesc - 1) % q.nbTxDesc)
			txOrCmdBits(lastSlot, txdCmdRS)
			q.nbTxUsed = 0
		}

		nbTx++
	}

	q.writeTail()

	return nbTx
}
