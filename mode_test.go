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
	"reflect"
	"testing"
)

func funcPtr(f interface{}) uintptr {
	return reflect.ValueOf(f).Pointer()
}

func TestSelectRxBurstScattered(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q, _ := newTestRxQueue(t, fx, 64, WithScatteredRx(true))

	selectRxBurst(q)

	if funcPtr(q.burst) != funcPtr(rxBurstScattered) {
		t.Fatalf("expected the scattered path regardless of bulk-alloc eligibility")
	}
}

func TestSelectRxBurstBulkAlloc(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	// freeThresh=32 divides nbDesc=64 and is >=32: bulk-alloc preconditions hold.
	q, _ := newTestRxQueue(t, fx, 64, WithRxFreeThresh(32))

	selectRxBurst(q)

	if funcPtr(q.burst) != funcPtr(rxBurstBulkAlloc) {
		t.Fatalf("expected the bulk-alloc path when its setup-time preconditions hold")
	}
}

func TestSelectRxBurstSingle(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	// freeThresh=40 does not divide nbDesc=96: bulk-alloc is not eligible.
	q, _ := newTestRxQueue(t, fx, 96, WithRxFreeThresh(40))

	selectRxBurst(q)

	if funcPtr(q.burst) != funcPtr(rxBurstSingle) {
		t.Fatalf("expected the reference single-buffer path when bulk-alloc is not eligible")
	}
}

func TestSelectTxBurstSimple(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 128,
		WithTxRSThresh(32),
		WithTxFreeThresh(32),
		WithTxFlags(SimpleFlags),
	)

	selectTxBurst(q)

	if funcPtr(q.burst) != funcPtr(txBurstSimple) {
		t.Fatalf("expected the simple path when every SimpleFlags bit is set and tx_rs_thresh >= TxMaxBurst")
	}
}

func TestSelectTxBurstFullWhenRSThreshTooSmall(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 128,
		WithTxRSThresh(16),
		WithTxFreeThresh(16),
		WithTxFlags(SimpleFlags),
	)

	selectTxBurst(q)

	if funcPtr(q.burst) != funcPtr(txBurstFull) {
		t.Fatalf("expected the full-featured path when tx_rs_thresh (%d) < TxMaxBurst (%d)", q.txRsThresh, TxMaxBurst)
	}
}

func TestSelectTxBurstFullWhenOffloadsRequested(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 128, WithTxRSThresh(32), WithTxFreeThresh(32))

	selectTxBurst(q)

	if funcPtr(q.burst) != funcPtr(txBurstFull) {
		t.Fatalf("expected the full-featured path when SimpleFlags is not fully set")
	}
}

func TestPortSelectBurstInstallsBothQueues(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	rxq, _ := newTestRxQueue(t, fx, 64)
	txq := newTestTxQueue(t, fx, 64, WithTxFlags(SimpleFlags), WithTxRSThresh(32), WithTxFreeThresh(32))

	fx.port.SelectBurst()

	if rxq.burst == nil || txq.burst == nil {
		t.Fatalf("SelectBurst left a queue's burst implementation unset")
	}
}
