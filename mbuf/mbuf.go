// Packet buffer and mempool adapter for the i40e data plane
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mbuf implements the packet buffer and mempool contract the i40e
// Rx/Tx engines depend on. The core treats a buffer as opaque beyond the
// attributes listed here and never interprets payload bytes (§1
// Non-goals) — everything else about allocation, reuse, and payload
// content is the application's business.
package mbuf

// OlFlags is the offload flag set carried on a packet buffer, covering
// both Rx-reported status (checksum/VLAN/hash validity) and Tx-requested
// offloads (checksum/segmentation/tunneling/timestamping).
type OlFlags uint64

const (
	// Rx status flags, set by the engine after parsing a writeback
	// descriptor (§4.1 step 4).
	RxVlanStripped OlFlags = 1 << iota
	RxQinQStripped
	RxRSSHash
	RxFDIRMatch
	RxIPCksumGood
	RxIPCksumBad
	RxL4CksumGood
	RxL4CksumBad
	RxOuterIPCksumBad
	RxIEEE1588Timestamp

	// Tx request flags, read by the engine while building descriptors
	// (§4.4 steps 4-6).
	TxVlan
	TxQinQ
	TxIPCksum
	TxTCPCksum
	TxUDPCksum
	TxSCTPCksum
	TxTCPSeg // TSO
	TxOuterIPCksum
	TxIEEE1588Timestamp
	TxTunnelIPIP
	TxTunnelVXLAN
	TxTunnelGENEVE
	TxTunnelGRE
)

// TxL4Mask is the set of flags describing which L4 checksum, if any, is
// requested (§4.4 step 6 — "further L4 checksum cases are suppressed"
// once one has been matched).
const TxL4Mask = TxTCPCksum | TxUDPCksum | TxSCTPCksum

// TxTunnelMask is the set of flags identifying a tunneling offload request
// (§4.4 step 1 — any of these forces a context descriptor).
const TxTunnelMask = TxTunnelIPIP | TxTunnelVXLAN | TxTunnelGENEVE | TxTunnelGRE

// PacketType is the canonical, hardware-independent packet type an Rx
// engine maps a descriptor's raw packet-type ID into through a 256-entry
// lookup table (§4.1 step 4).
type PacketType uint32

const PtypeUnknown PacketType = 0

const (
	PtypeL2Ether PacketType = 1 << iota
	PtypeL2EtherVlan
	PtypeL2EtherQinQ
	PtypeL3IPv4
	PtypeL3IPv4Ext
	PtypeL3IPv6
	PtypeL3IPv6Ext
	PtypeL4TCP
	PtypeL4UDP
	PtypeL4SCTP
	PtypeL4Frag
	PtypeTunnelGRE
	PtypeTunnelVXLAN
	PtypeTunnelGENEVE
	PtypeTunnelIPIP
	PtypeInnerL3IPv4
	PtypeInnerL3IPv6
	PtypeInnerL4TCP
	PtypeInnerL4UDP
)

// Mbuf is a packet buffer. Field names and semantics mirror the accessed
// attributes enumerated in the spec's Data Model: DataOff/DataLen/PktLen/
// NbSegs/Next describe the (possibly scattered) segment chain, the
// remaining fields are per-packet metadata the Rx engine populates or the
// Tx engine consumes.
type Mbuf struct {
	// DataOff is the headroom, in bytes, before the packet data within
	// Buf.
	DataOff uint16
	// DataLen is this segment's payload length.
	DataLen uint16
	// PktLen is the total payload length across all segments of the
	// chain this Mbuf heads.
	PktLen uint32
	// NbSegs is the number of segments in the chain this Mbuf heads.
	NbSegs uint16
	// Next is the next segment in a scattered packet, or nil.
	Next *Mbuf

	Port       uint16
	OlFlags    OlFlags
	PacketType PacketType

	HashRSS    uint32
	HashFDirHi uint32
	HashFDirLo uint32

	VlanTCI      uint16
	VlanTCIOuter uint16

	L2Len      uint8
	L3Len      uint16
	L4Len      uint8
	OuterL2Len uint8
	OuterL3Len uint16

	// TSOSegsz is the MSS to use when PKT_TX_TCP_SEG is requested.
	TSOSegsz uint16

	// Pool is the mempool this buffer was allocated from, consulted on
	// release.
	Pool Pool

	buf    []byte
	addr   uint
	refcnt uint16
}

// init resets a freshly allocated or recycled buffer to its ready state:
// refcount 1, a single segment, no chained next, default headroom.
func (m *Mbuf) init(headroom uint16) {
	m.DataOff = headroom
	m.DataLen = 0
	m.PktLen = 0
	m.NbSegs = 1
	m.Next = nil
	m.OlFlags = 0
	m.PacketType = PtypeUnknown
	m.VlanTCI = 0
	m.VlanTCIOuter = 0
	m.refcnt = 1
}

// DataAddr returns the DMA address of this segment's packet data (buffer
// base plus headroom), the address the engine writes into the
// descriptor's read form.
func (m *Mbuf) DataAddr() uint {
	return m.addr + uint(m.DataOff)
}

// Addr returns the DMA address of the buffer's base allocation.
func (m *Mbuf) Addr() uint {
	return m.addr
}

// Data returns the segment's payload as a byte slice. The core never
// calls this itself (§1 Non-goals: it does not interpret payload) — it
// exists for the application reading a received packet.
func (m *Mbuf) Data() []byte {
	return m.buf[m.DataOff : m.DataOff+m.DataLen]
}

// SetData copies b into the segment's buffer starting at the current
// headroom and sets DataLen/PktLen for a single-segment packet. It reports
// false, leaving the buffer untouched, if b does not fit. Symmetric to
// Data: the core never calls this either, it exists for an application
// filling a buffer before handing it to Burst.
func (m *Mbuf) SetData(b []byte) bool {
	if len(b) > len(m.buf)-int(m.DataOff) {
		return false
	}

	n := copy(m.buf[m.DataOff:], b)
	m.DataLen = uint16(n)
	m.PktLen = uint32(n)

	return true
}

// Refcount returns the buffer's current reference count.
func (m *Mbuf) Refcount() uint16 {
	return m.refcnt
}

// Refcount is not incremented anywhere in the core: the Rx/Tx paths move
// ownership rather than sharing it (§3 Ownership). IncRef exists for
// application-level fan-out (e.g. multicast) that the core itself never
// performs.
func (m *Mbuf) IncRef() {
	m.refcnt++
}
