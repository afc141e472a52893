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

const txDescSize = 16

// Tx data descriptor QW1 layout (§6): DTYPE at [3:0], CMD at [13:4], OFFSET
// at [23:14], BUFSZ at [37:24], L2TAG1 at [63:48].
const (
	txdDtypeShift = 0
	txdDtypeMask  = 0xf

	txdCmdShift = 4
	txdCmdMask  = 0x3ff

	txdOffsetShift = 14
	txdOffsetMask  = 0x3ff

	txdBufSzShift = 24
	txdBufSzMask  = 0x3fff

	txdL2Tag1Shift = 48
	txdL2Tag1Mask  = 0xffff
)

// Tx descriptor DTYPE values.
const (
	txdDtypeData    = 0x0
	txdDtypeContext = 0x1
	txdDtypeDone    = 0xf
)

// Tx data descriptor command bits (I40E_TX_DESC_CMD_*).
const (
	txdCmdEOP           = 1 << 0
	txdCmdRS            = 1 << 2
	txdCmdICRC          = 1 << 4
	txdCmdIIPTIPv4Cksum = 0x1 << 5
	txdCmdIIPTIPv4      = 0x2 << 5
	txdCmdIIPTIPv6      = 0x3 << 5
	txdCmdL4TEOFTTCP    = 0x1 << 8
	txdCmdL4TEOFTSCTP   = 0x2 << 8
	txdCmdL4TEOFTUDP    = 0x3 << 8
	txdCmdInsertVlan    = 1 << 3
)

// Offset sub-field shifts within the packed OFFSET bitfield (MACLEN/IPLEN/
// L4LEN), matching I40E_TX_DESC_LENGTH_*_SHIFT.
const (
	txdOffMacLenShift = 0
	txdOffMacLenMask  = 0x7f
	txdOffIPLenShift  = 7
	txdOffIPLenMask   = 0x1ff
	txdOffL4LenShift  = 16
	txdOffL4LenMask   = 0xf
)

// txDataDescriptor builds the 16-byte Tx data descriptor quadwords (§4.4
// steps 4-7, §6). addr is the segment's DMA buffer address.
func txDataDescriptor(d []byte, addr uint64, cmd uint32, macLen, ipLen, l4Len uint16, size uint32, l2tag1 uint16) {
	var qw1 uint64

	var offset uint32
	bits.SetN(&offset, txdOffMacLenShift, txdOffMacLenMask, uint32(macLen))
	bits.SetN(&offset, txdOffIPLenShift, txdOffIPLenMask, uint32(ipLen))
	bits.SetN(&offset, txdOffL4LenShift, txdOffL4LenMask, uint32(l4Len))

	bits.SetN64(&qw1, txdDtypeShift, txdDtypeMask, txdDtypeData)
	bits.SetN64(&qw1, txdCmdShift, txdCmdMask, uint64(cmd))
	bits.SetN64(&qw1, txdOffsetShift, txdOffsetMask, uint64(offset))
	bits.SetN64(&qw1, txdBufSzShift, txdBufSzMask, uint64(size))
	bits.SetN64(&qw1, txdL2Tag1Shift, txdL2Tag1Mask, uint64(l2tag1))

	binary.LittleEndian.PutUint64(d[0:8], addr)
	binary.LittleEndian.PutUint64(d[8:16], qw1)
}

// txOrCmdBits ORs additional bits into an already-written data descriptor's
// CMD field — used to apply the Report-Status bit (§4.4 step 8) after the
// fact, once the burst's accumulated nb_tx_used is known.
func txOrCmdBits(d []byte, extra uint32) {
	qw1 := binary.LittleEndian.Uint64(d[8:16])
	cmd := bits.Get64(&qw1, txdCmdShift, txdCmdMask)
	bits.SetN64(&qw1, txdCmdShift, txdCmdMask, cmd|uint64(extra))
	binary.LittleEndian.PutUint64(d[8:16], qw1)
}

// txDtypeDone reports whether a data descriptor's QW1 DTYPE field has been
// overwritten with I40E_TX_DESC_DTYPE_DESC_DONE by hardware (§4.4.1).
func txDtypeDone(d []byte) bool {
	qw1 := binary.LittleEndian.Uint64(d[8:16])
	return bits.Get64(&qw1, txdDtypeShift, txdDtypeMask) == txdDtypeDone
}

// txClearDtype zeroes a descriptor's QW1 after cleanup has consumed the
// DESC_DONE marker (§4.4.1).
func txClearDtype(d []byte) {
	binary.LittleEndian.PutUint64(d[8:16], 0)
}

// Tx context descriptor layout (§4.4 step 3, §6): QW0 carries tunneling
// parameters, QW1 DTYPE=CONTEXT plus TSO length/MSS/command bits.
const (
	txdCtxExtIPShift  = 0
	txdCtxExtIPMask   = 0x3
	txdCtxExtIPLenShift = 2
	txdCtxExtIPLenMask  = 0x7f
	txdCtxNATTShift   = 9
	txdCtxNATTMask    = 0x3
	txdCtxNATLenShift = 11
	txdCtxNATLenMask  = 0x7f

	txdCtxExtIPv4       = 0x0
	txdCtxExtIPv4NoCksum = 0x1
	txdCtxExtIPv6       = 0x2

	txdCtxTunnelUDP = 0x1
	txdCtxTunnelGRE = 0x2

	txdCtxCmdShift   = 4
	txdCtxCmdMask    = 0xf
	txdCtxTSOLenShift = 30
	txdCtxTSOLenMask  = 0x3ffff
	txdCtxMSSShift   = 52
	txdCtxMSSMask    = 0xfff

	txdCtxCmdTSO       = 1 << 0
	txdCtxCmdIEEE1588  = 1 << 3
)

// txContextDescriptor builds the 16-byte Tx context descriptor (§4.4 step
// 3). cdTunneling is the QW0 tunneling bitfield built by tunnelingParams;
// l2tag2 is the inner (QinQ) VLAN tag.
func txContextDescriptor(d []byte, cdTunneling uint32, l2tag2 uint16, cmd uint32, tsoLen uint32, mss uint16) {
	var qw1 uint64

	bits.SetN64(&qw1, txdDtypeShift, txdDtypeMask, txdDtypeContext)
	bits.SetN64(&qw1, txdCtxCmdShift, txdCtxCmdMask, uint64(cmd))
	bits.SetN64(&qw1, txdCtxTSOLenShift, txdCtxTSOLenMask, uint64(tsoLen))
	bits.SetN64(&qw1, txdCtxMSSShift, txdCtxMSSMask, uint64(mss))

	qw0 := uint64(cdTunneling) | uint64(l2tag2)<<32

	binary.LittleEndian.PutUint64(d[0:8], qw0)
	binary.LittleEndian.PutUint64(d[8:16], qw1)
}

// tunnelingParams implements i40e_parse_tunneling_params (§4.4 step 3):
// packs the outer-IP type, outer-IP length (in dwords), L4 tunnel type, and
// tunnel length (in words, from l2_len) into the context descriptor's QW0.
func tunnelingParams(outerIPv4Cksum, outerIPv4, outerIPv6 bool, outerL3Len uint16, tunnel mbuf.OlFlags, l2Len uint8) uint32 {
	var cd uint32

	switch {
	case outerIPv4Cksum:
		bits.SetN(&cd, txdCtxExtIPShift, txdCtxExtIPMask, txdCtxExtIPv4)
	case outerIPv4:
		bits.SetN(&cd, txdCtxExtIPShift, txdCtxExtIPMask, txdCtxExtIPv4NoCksum)
	case outerIPv6:
		bits.SetN(&cd, txdCtxExtIPShift, txdCtxExtIPMask, txdCtxExtIPv6)
	}

	bits.SetN(&cd, txdCtxExtIPLenShift, txdCtxExtIPLenMask, uint32(outerL3Len>>2))

	switch tunnel & mbuf.TxTunnelMask {
	case mbuf.TxTunnelIPIP:
		// non-UDP/GRE tunneling: L4TUNT stays 00b.
	case mbuf.TxTunnelVXLAN, mbuf.TxTunnelGENEVE:
		bits.SetN(&cd, txdCtxNATTShift, txdCtxNATTMask, txdCtxTunnelUDP)
	case mbuf.TxTunnelGRE:
		bits.SetN(&cd, txdCtxNATTShift, txdCtxNATTMask, txdCtxTunnelGRE)
	}

	bits.SetN(&cd, txdCtxNATLenShift, txdCtxNATLenMask, uint32(l2Len>>1))

	return cd
}
