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
	"testing"

	"github.com/usbarmory/i40e/mbuf"
)

func txCmdRS(slot []byte) bool {
	qw1 := binary.LittleEndian.Uint64(slot[8:16])
	cmd := (qw1 >> txdCmdShift) & txdCmdMask
	return cmd&txdCmdRS != 0
}

func markTxDone(slot []byte) {
	var qw1 uint64
	qw1 |= txdDtypeDone
	binary.LittleEndian.PutUint64(slot[8:16], qw1)
}

func newTestTxQueue(t *testing.T, fx *testFixture, nbDesc uint16, opts ...TxOption) *TxQueue {
	t.Helper()

	conf := NewTxConf(nbDesc, opts...)

	q, err := NewTxQueue(fx.port, 0, nbDesc, -1, conf)
	if err != nil {
		t.Fatalf("NewTxQueue: %v", err)
	}

	return q
}

func newTestPkt(t *testing.T, pool *mbuf.DMAPool, payloadLen int) *mbuf.Mbuf {
	t.Helper()

	m, err := pool.Get()
	if err != nil {
		t.Fatalf("pool.Get: %v", err)
	}

	if !m.SetData(make([]byte, payloadLen)) {
		t.Fatalf("SetData(%d) overflowed the buffer", payloadLen)
	}

	return m
}

func TestTxQueueFreeCountInvariant(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(128, testBufSize)

	if q.nbTxFree != q.nbTxDesc-1 {
		t.Fatalf("nbTxFree = %d, want %d", q.nbTxFree, q.nbTxDesc-1)
	}

	const k = 10
	pkts := make([]*mbuf.Mbuf, k)
	for i := range pkts {
		pkts[i] = newTestPkt(t, pool, 64)
	}

	n := txBurstFull(q, pkts)
	if n != k {
		t.Fatalf("txBurstFull returned %d, want %d", n, k)
	}

	if got, want := q.nbTxFree, q.nbTxDesc-1-k; got != want {
		t.Fatalf("nbTxFree = %d, want %d", got, want)
	}

	if q.txTail != k {
		t.Fatalf("txTail = %d, want %d", q.txTail, k)
	}
}

// TestTxBurstFullCleanupStarved exercises the §4.4.1 cleanup path when
// hardware has not yet written back the descriptor cleanup_target depends
// on: the burst must stop exactly at the last packet that fit rather than
// erroring out or corrupting ring state.
func TestTxBurstFullCleanupStarved(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(256, testBufSize)

	n := int(q.nbTxDesc) // one more packet than there is free space for
	pkts := make([]*mbuf.Mbuf, n)
	for i := range pkts {
		pkts[i] = newTestPkt(t, pool, 64)
	}

	sent := txBurstFull(q, pkts)

	if want := int(q.nbTxDesc) - 1; sent != want {
		t.Fatalf("sent = %d, want %d (ring exhausted with no hardware reclaim available)", sent, want)
	}

	if q.nbTxFree != 0 {
		t.Fatalf("nbTxFree = %d, want 0", q.nbTxFree)
	}
}

// TestTxBurstFullCleanupReclaims confirms that once hardware has marked the
// cleanup_target descriptor done, a subsequent burst reclaims the
// tx_rs_thresh-sized window (32 slots here) back to nb_tx_free and proceeds.
func TestTxBurstFullCleanupReclaims(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64, WithTxRSThresh(32), WithTxFreeThresh(32))
	pool := fx.newTestPool(256, testBufSize)

	first := make([]*mbuf.Mbuf, int(q.nbTxDesc)-1)
	for i := range first {
		first[i] = newTestPkt(t, pool, 64)
	}

	if n := txBurstFull(q, first); n != len(first) {
		t.Fatalf("initial fill sent %d, want %d", n, len(first))
	}

	if q.nbTxFree != 0 {
		t.Fatalf("nbTxFree = %d, want 0 before reclaim", q.nbTxFree)
	}

	cleanupTarget := q.swRing[(q.lastDescCleaned+q.txRsThresh)%q.nbTxDesc].lastID
	markTxDone(q.descSlot(cleanupTarget))

	more := []*mbuf.Mbuf{newTestPkt(t, pool, 64)}
	if n := txBurstFull(q, more); n != 1 {
		t.Fatalf("reclaim burst sent %d, want 1", n)
	}

	if q.nbTxFree == 0 {
		t.Fatalf("nbTxFree did not grow after a successful cleanup")
	}
}

// TestTxBurstFullRSBitPlacement checks that the Report-Status bit lands on
// the last descriptor of the packet whose cumulative nb_tx_used first
// crosses tx_rs_thresh, and nowhere else.
func TestTxBurstFullRSBitPlacement(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64, WithTxRSThresh(8), WithTxFreeThresh(8))
	pool := fx.newTestPool(64, testBufSize)

	pkts := make([]*mbuf.Mbuf, 8)
	for i := range pkts {
		pkts[i] = newTestPkt(t, pool, 64)
	}

	if n := txBurstFull(q, pkts); n != 8 {
		t.Fatalf("sent %d, want 8", n)
	}

	for i := uint16(0); i < 8; i++ {
		got := txCmdRS(q.descSlot(i))
		want := i == 7
		if got != want {
			t.Fatalf("slot %d RS = %v, want %v", i, got, want)
		}
	}

	if q.nbTxUsed != 0 {
		t.Fatalf("nbTxUsed = %d, want 0 after crossing tx_rs_thresh", q.nbTxUsed)
	}
}
