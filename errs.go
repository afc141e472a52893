// Intel XL710/i40e 40GbE controller driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i40e

import "errors"

// Configuration errors, surfaced synchronously at queue setup (§7) — no
// queue is installed when one of these is returned.
var (
	ErrInvalidDescriptorCount = errors.New("i40e: nb_desc out of range or not a multiple of 32")
	ErrInvalidThreshold       = errors.New("i40e: queue threshold violates configuration invariants")
	ErrAllocFailed            = errors.New("i40e: DMA zone or software ring allocation failed")
	ErrQueueNotStarted        = errors.New("i40e: queue not started")
	ErrQueueAlreadyStarted    = errors.New("i40e: queue already started")
)

// Preflight error values naming Prepare's two rejection causes (§4.6, §7).
// Prepare does not return these: it returns the index of the rejected
// packet and stores the negated syscall errno (EINVAL or ENOTSUP) in
// lastPrepareError.
var (
	ErrInvalid     = errors.New("i40e: invalid packet (EINVAL)")
	ErrUnsupported = errors.New("i40e: unsupported offload requested (ENOTSUP)")
)

// ErrTxNotDone is txCleanup's (§4.4.1) return value when the probed
// cleanup_target descriptor has not yet been written back by hardware.
var ErrTxNotDone = errors.New("i40e: tx cleanup target not yet done")
