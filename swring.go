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

// rxSwEntry is one slot of an Rx software ring: the buffer reference
// currently owned by the descriptor at the same index (§3 sw_ring).
type rxSwEntry struct {
	mbuf *mbuf.Mbuf
}

// txSwEntry is one slot of a Tx software ring. next_id/last_id are index-
// based, not pointer-based (§9): the ring is an arena and these fields are
// indices modulo nb_tx_desc.
type txSwEntry struct {
	mbuf    *mbuf.Mbuf
	nextID  uint16
	lastID  uint16
}

// newTxSwRing allocates a Tx software ring of n slots and initializes the
// next_id chain: sw_ring[i].next_id = (i+1) mod n (§3, §4.7).
func newTxSwRing(n uint16) []txSwEntry {
	ring := make([]txSwEntry, n)

	for i := range ring {
		ring[i].nextID = uint16((int(i) + 1) % int(n))
		ring[i].lastID = uint16(i)
	}

	return ring
}
