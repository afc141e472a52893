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

// etherCRCLen is the 4-byte Ethernet frame check sequence trailer length
// (§4.3).
const etherCRCLen = 4

// rxBurstScattered is the scattered/multi-segment Rx path (§4.3). It scans
// the ring exactly as the single-buffer path, but a packet may span
// multiple descriptors; pkt_first_seg/pkt_last_seg carry an in-progress
// packet across burst boundaries.
func rxBurstScattered(q *RxQueue, out []*mbuf.Mbuf) int {
	max := len(out)
	n := 0
	hold := uint16(0)

	firstSeg := q.pktFirstSeg
	lastSeg := q.pktLastSeg

	for n < max {
		slot := q.descSlot(q.rxTail)
		qword1 := rxStatusErrorLen(slot)

		if !rxDone(qword1) {
			break
		}

		repl, err := q.pool.Get()
		if err != nil {
			break
		}

		current := q.swRing[q.rxTail].mbuf

		// Snapshot the writeback: the EOF slot's metadata is read
		// after the replacement's read form has overwritten the slot.
		var wb [rxDescSize]byte
		copy(wb[:], slot)

		q.swRing[q.rxTail].mbuf = repl
		rxReadForm(slot, uint64(repl.DataAddr()))

		packetLen := rxPacketLength(qword1)
		current.DataLen = packetLen
		current.DataOff = mbuf.DefaultHeadroom
		current.Next = nil

		q.rxTail = (q.rxTail + 1) % q.nbRxDesc
		hold++

		if firstSeg == nil {
			firstSeg = current
			firstSeg.NbSegs = 1
			firstSeg.PktLen = uint32(packetLen)
		} else {
			firstSeg.PktLen += uint32(packetLen)
			firstSeg.NbSegs++
			lastSeg.Next = current
		}

		if !rxEOF(qword1) {
			lastSeg = current
			continue
		}

		// EOF: current is the final segment of the packet.
		if q.crcLen > 0 {
			firstSeg.PktLen -= etherCRCLen

			if packetLen <= etherCRCLen {
				q.pool.Put(current)
				firstSeg.NbSegs--
				lastSeg.DataLen -= etherCRCLen - packetLen
				lastSeg.Next = nil
			} else {
				current.DataLen = packetLen - etherCRCLen
			}
		}

		rxExtractMeta(wb[:], firstSeg)

		out[n] = firstSeg
		n++

		firstSeg = nil
		lastSeg = nil
	}

	q.pktFirstSeg = firstSeg
	q.pktLastSeg = lastSeg

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
