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
	"syscall"

	"github.com/usbarmory/i40e/mbuf"
)

// olFlagsKnownMask is every offload flag bit this module's OlFlags
// enumeration defines. The reference driver computes its unsupported-
// offload mask (I40E_TX_OFFLOAD_NOTSUP_MASK) as the full ol_flags universe
// XORed against the subset this driver's descriptor builders understand;
// since this module's OlFlags only ever defines flags it interprets, any
// bit outside this mask is unsupported by construction (§4.6 step c).
const olFlagsKnownMask = mbuf.OlFlags(1)<<23 - 1

// Prepare implements tx_prepare (§4.6): a preflight pass validating TSO
// segment-count/MSS bounds and offload-flag support before a burst is
// handed to Burst. It returns the index of the first rejected packet, or
// len(in) if every packet passed.
//
// BUG(upstream): on rejection the reference driver stores the negated
// errno value into its per-thread rte_errno slot (rte_errno = -EINVAL, not
// EINVAL) — every other rte_errno use in the codebase stores the positive
// value. lastPrepareError preserves this exactly rather than "fixing" it.
func (q *TxQueue) Prepare(in []*mbuf.Mbuf) int {
	for i, pkt := range in {
		ol := pkt.OlFlags

		if ol&mbuf.TxTCPSeg == 0 {
			if pkt.NbSegs > TxMaxMTUSeg {
				q.lastPrepareError = -int(syscall.EINVAL)
				return i
			}
		} else if pkt.TSOSegsz < TSOMinMSS || pkt.TSOSegsz > TSOMaxMSS {
			q.lastPrepareError = -int(syscall.EINVAL)
			return i
		}

		if ol&^olFlagsKnownMask != 0 {
			q.lastPrepareError = -int(syscall.ENOTSUP)
			return i
		}
	}

	return len(in)
}

// LastPrepareError returns the negated errno Prepare most recently stored,
// mirroring the reference driver's rte_errno (§4.6, §7).
func (q *TxQueue) LastPrepareError() int {
	return q.lastPrepareError
}
