// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i40e

// Pacing and ring-sizing defaults (§4.5, §6 "Configuration").
const (
	DefaultTxRSThresh   = 32
	DefaultTxFreeThresh = 32
	MaxPktType          = 256
	TxMaxBurst          = 32
	RxMaxBurst          = 32
	LookAhead           = 8
	DescsPerLoop        = 4

	DMAMemAlign  = 4096
	RingBaseAlign = 128

	TxMaxMTUSeg = 8
	TSOMinMSS   = 256
	TSOMaxMSS   = 9674
)

// TxFlags is the bit-mask configuration toggle named in §6 ("a bit-mask
// txq_flags toggles offload categories").
type TxFlags uint32

const (
	TxFlagNoMultiSegs TxFlags = 1 << iota
	TxFlagNoOffloads
	// TxFlagNoRefCount makes the simple path's Tx cleanup return each
	// freed tx_rs_thresh window to the first buffer's pool with one
	// PutBulk call instead of releasing segments one at a time (§6, §8
	// round-trip invariant). PutBulk follows the Pool reference-count
	// contract, so the per-buffer decrement still happens in the pool.
	TxFlagNoRefCount
)

// SimpleFlags is the mask that, when fully set on a queue's TxFlags, makes
// it eligible for the simple fast path (§4.5, I40E_SIMPLE_FLAGS).
const SimpleFlags = TxFlagNoMultiSegs | TxFlagNoOffloads

// RxConf configures an Rx queue at setup time. Construct with NewRxConf and
// With* options, mirroring the functional-options pattern used for io_uring
// ring setup elsewhere in this ecosystem.
type RxConf struct {
	nbDesc        uint16
	freeThresh    uint16
	crcLen        uint8
	scatteredRx   bool
	headerSplit   bool
	deferredStart bool
}

// RxOption configures an RxConf.
type RxOption func(*RxConf)

// NewRxConf builds an RxConf for a ring of nbDesc descriptors (§3: must be
// in [64, 4096] and a multiple of 32 — validated by NewRxQueue, not here).
func NewRxConf(nbDesc uint16, opts ...RxOption) RxConf {
	c := RxConf{
		nbDesc:     nbDesc,
		freeThresh: DefaultTxFreeThresh,
		crcLen:     0,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// WithRxFreeThresh sets the bulk-alloc replenish threshold (§3, §4.2
// gating: must be ≥32, < nbDesc, and divide nbDesc for bulk-alloc to be
// selected).
func WithRxFreeThresh(n uint16) RxOption {
	return func(c *RxConf) { c.freeThresh = n }
}

// WithCRCStrip configures whether the 4-byte Ethernet CRC trailing each
// frame has already been stripped by hardware (crc_len of 0) or must be
// trimmed by the Rx engine (crc_len of 4).
func WithCRCStrip(stripped bool) RxOption {
	return func(c *RxConf) {
		if stripped {
			c.crcLen = 0
		} else {
			c.crcLen = 4
		}
	}
}

// WithScatteredRx forces the scattered Rx path regardless of what mode
// selection would otherwise infer from ring geometry (§4.8).
func WithScatteredRx(enabled bool) RxOption {
	return func(c *RxConf) { c.scatteredRx = enabled }
}

// WithRxDeferredStart restores the original driver's rx_deferred_start
// queue-conf flag (§9 "Supplemented from original_source"): when set,
// mode selection configures the queue but does not call Start()
// automatically.
func WithRxDeferredStart(deferred bool) RxOption {
	return func(c *RxConf) { c.deferredStart = deferred }
}

// TxConf configures a Tx queue at setup time.
type TxConf struct {
	nbDesc        uint16
	rsThresh      uint16
	freeThresh    uint16
	flags         TxFlags
	prepare       bool
	deferredStart bool
}

// TxOption configures a TxConf.
type TxOption func(*TxConf)

// NewTxConf builds a TxConf for a ring of nbDesc descriptors.
func NewTxConf(nbDesc uint16, opts ...TxOption) TxConf {
	c := TxConf{
		nbDesc:     nbDesc,
		rsThresh:   DefaultTxRSThresh,
		freeThresh: DefaultTxFreeThresh,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// WithTxRSThresh sets the Report-Status pacing threshold (§3, §4.4 step 8,
// §4.5 step 1).
func WithTxRSThresh(n uint16) TxOption {
	return func(c *TxConf) { c.rsThresh = n }
}

// WithTxFreeThresh sets the cleanup-eagerness threshold (§3, §4.5 step 1).
func WithTxFreeThresh(n uint16) TxOption {
	return func(c *TxConf) { c.freeThresh = n }
}

// WithTxFlags sets the offload bit-mask described in §6.
func WithTxFlags(flags TxFlags) TxOption {
	return func(c *TxConf) { c.flags = flags }
}

// WithTxPrepare records whether the preflight Prepare step (§4.6) is wanted.
// The setting is stored only: Prepare is callable on every queue and no
// burst path or mode selection consults it.
func WithTxPrepare(enabled bool) TxOption {
	return func(c *TxConf) { c.prepare = enabled }
}

// WithTxDeferredStart mirrors WithRxDeferredStart for the Tx side (§9
// "Supplemented from original_source").
func WithTxDeferredStart(deferred bool) TxOption {
	return func(c *TxConf) { c.deferredStart = deferred }
}
