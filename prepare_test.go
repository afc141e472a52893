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
	"testing"

	"github.com/usbarmory/i40e/mbuf"
)

func TestPrepareAcceptsPlainPackets(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(8, testBufSize)

	pkts := []*mbuf.Mbuf{newTestPkt(t, pool, 64), newTestPkt(t, pool, 64)}

	if n := q.Prepare(pkts); n != len(pkts) {
		t.Fatalf("Prepare rejected a plain packet at index %d", n)
	}
}

func TestPrepareRejectsTooManySegments(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(8, testBufSize)

	pkt := newTestPkt(t, pool, 64)
	pkt.NbSegs = TxMaxMTUSeg + 1

	if n := q.Prepare([]*mbuf.Mbuf{pkt}); n != 0 {
		t.Fatalf("Prepare accepted nb_segs=%d (max %d), returned %d", pkt.NbSegs, TxMaxMTUSeg, n)
	}

	if q.LastPrepareError() != -int(syscall.EINVAL) {
		t.Fatalf("LastPrepareError() = %d, want %d", q.LastPrepareError(), -int(syscall.EINVAL))
	}
}

// TestPrepareRejectsUndersizedMSS covers the literal MSS=64 scenario: well
// below TSOMinMSS, a TSO request must be rejected with EINVAL.
func TestPrepareRejectsUndersizedMSS(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(8, testBufSize)

	pkt := newTestPkt(t, pool, 64)
	pkt.OlFlags |= mbuf.TxTCPSeg
	pkt.TSOSegsz = 64

	if n := q.Prepare([]*mbuf.Mbuf{pkt}); n != 0 {
		t.Fatalf("Prepare accepted tso_segsz=64 (min %d), returned %d", TSOMinMSS, n)
	}

	if q.LastPrepareError() != -int(syscall.EINVAL) {
		t.Fatalf("LastPrepareError() = %d, want %d", q.LastPrepareError(), -int(syscall.EINVAL))
	}
}

func TestPrepareRejectsOversizedMSS(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(8, testBufSize)

	pkt := newTestPkt(t, pool, 64)
	pkt.OlFlags |= mbuf.TxTCPSeg
	pkt.TSOSegsz = TSOMaxMSS + 1

	if n := q.Prepare([]*mbuf.Mbuf{pkt}); n != 0 {
		t.Fatalf("Prepare accepted tso_segsz=%d (max %d), returned %d", pkt.TSOSegsz, TSOMaxMSS, n)
	}
}

func TestPrepareRejectsUnsupportedOffload(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(8, testBufSize)

	pkt := newTestPkt(t, pool, 64)
	pkt.OlFlags |= mbuf.OlFlags(1) << 23 // one bit past the known mask

	if n := q.Prepare([]*mbuf.Mbuf{pkt}); n != 0 {
		t.Fatalf("Prepare accepted an unknown offload flag, returned %d", n)
	}

	if q.LastPrepareError() != -int(syscall.ENOTSUP) {
		t.Fatalf("LastPrepareError() = %d, want %d", q.LastPrepareError(), -int(syscall.ENOTSUP))
	}
}

func TestPrepareStopsAtFirstRejection(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q := newTestTxQueue(t, fx, 64)
	pool := fx.newTestPool(8, testBufSize)

	good := newTestPkt(t, pool, 64)
	bad := newTestPkt(t, pool, 64)
	bad.NbSegs = TxMaxMTUSeg + 1

	n := q.Prepare([]*mbuf.Mbuf{good, bad})
	if n != 1 {
		t.Fatalf("Prepare returned %d, want 1 (index of the first rejected packet)", n)
	}
}
