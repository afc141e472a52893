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

	"github.com/usbarmory/i40e/bits"
	"github.com/usbarmory/i40e/mbuf"
)

// markRxWriteback overwrites a descriptor slot's QW1 as hardware would on
// packet arrival: DD always set, EOF and length as given.
func markRxWriteback(slot []byte, eof bool, length uint16) {
	var qw1 uint64

	bits.SetN64(&qw1, rxdStatusDD, 1, 1)
	bits.SetTo64(&qw1, rxdStatusEOF, eof)
	bits.SetN64(&qw1, rxdLengthShift, rxdLengthMask, uint64(length))

	binary.LittleEndian.PutUint64(slot[8:16], qw1)
}

func newTestRxQueue(t *testing.T, fx *testFixture, nbDesc uint16, opts ...RxOption) (*RxQueue, *mbuf.DMAPool) {
	t.Helper()

	pool := fx.newTestPool(int(nbDesc)*2, testBufSize)
	conf := NewRxConf(nbDesc, opts...)

	q, err := NewRxQueue(fx.port, 0, nbDesc, -1, conf, pool)
	if err != nil {
		t.Fatalf("NewRxQueue: %v", err)
	}

	return q, pool
}

func TestRxBurstEmptyRing(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q, _ := newTestRxQueue(t, fx, 64)

	out := make([]*mbuf.Mbuf, RxMaxBurst)
	n := q.Burst(out)

	if n != 0 {
		t.Fatalf("expected 0 packets from an untouched ring, got %d", n)
	}
}

func TestRxBurstSingleSegment(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q, pool := newTestRxQueue(t, fx, 64)

	const pktLen = 256

	before := q.swRing[0].mbuf
	markRxWriteback(q.descSlot(0), true, pktLen)

	out := make([]*mbuf.Mbuf, RxMaxBurst)
	n := q.Burst(out)

	if n != 1 {
		t.Fatalf("expected 1 packet, got %d", n)
	}

	if out[0] != before {
		t.Fatalf("expected the returned mbuf to be the slot's original buffer")
	}

	if out[0].DataLen != pktLen || out[0].PktLen != pktLen {
		t.Fatalf("DataLen/PktLen = %d/%d, want %d", out[0].DataLen, out[0].PktLen, pktLen)
	}

	if out[0].NbSegs != 1 || out[0].Next != nil {
		t.Fatalf("expected a single-segment packet")
	}

	if q.rxTail != 1 {
		t.Fatalf("rxTail = %d, want 1", q.rxTail)
	}

	if q.swRing[0].mbuf == before {
		t.Fatalf("slot 0 was not replenished with a fresh buffer")
	}

	pool.Put(out[0])
}

func TestRxBurstReplenishAccounting(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q, pool := newTestRxQueue(t, fx, 64)

	avail0 := pool.Available()

	markRxWriteback(q.descSlot(0), true, 128)

	out := make([]*mbuf.Mbuf, RxMaxBurst)
	n := q.Burst(out)
	if n != 1 {
		t.Fatalf("expected 1 packet, got %d", n)
	}

	// One buffer was drawn from the pool to replenish the consumed slot;
	// the received buffer itself is not back in the pool yet.
	if got, want := pool.Available(), avail0-1; got != want {
		t.Fatalf("pool.Available() = %d, want %d", got, want)
	}

	pool.Put(out[0])

	if got, want := pool.Available(), avail0; got != want {
		t.Fatalf("after Put, pool.Available() = %d, want %d", got, want)
	}
}

func TestRxBurstScatteredThreeSegments(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q, _ := newTestRxQueue(t, fx, 64, WithScatteredRx(true))
	selectRxBurst(q)

	lens := [3]uint16{testBufSize, testBufSize, 100}

	markRxWriteback(q.descSlot(0), false, lens[0])
	markRxWriteback(q.descSlot(1), false, lens[1])
	markRxWriteback(q.descSlot(2), true, lens[2])

	out := make([]*mbuf.Mbuf, RxMaxBurst)
	n := q.Burst(out)

	if n != 1 {
		t.Fatalf("expected exactly one reassembled packet, got %d", n)
	}

	pkt := out[0]

	if pkt.NbSegs != 3 {
		t.Fatalf("NbSegs = %d, want 3", pkt.NbSegs)
	}

	wantTotal := uint32(lens[0]) + uint32(lens[1]) + uint32(lens[2])
	if pkt.PktLen != wantTotal {
		t.Fatalf("PktLen = %d, want %d", pkt.PktLen, wantTotal)
	}

	seg := pkt
	for i := 0; i < 3; i++ {
		if seg == nil {
			t.Fatalf("chain ended early at segment %d", i)
		}
		if seg.DataLen != lens[i] {
			t.Fatalf("segment %d DataLen = %d, want %d", i, seg.DataLen, lens[i])
		}
		seg = seg.Next
	}
	if seg != nil {
		t.Fatalf("chain has more than 3 segments")
	}

	if q.pktFirstSeg != nil || q.pktLastSeg != nil {
		t.Fatalf("in-progress packet state should be clear after a complete reassembly")
	}
}

func TestRxBurstScatteredCarriesAcrossBursts(t *testing.T) {
	fx := newTestFixture(t, 2<<20)
	q, _ := newTestRxQueue(t, fx, 64, WithScatteredRx(true))
	selectRxBurst(q)

	markRxWriteback(q.descSlot(0), false, 512)

	out := make([]*mbuf.Mbuf, RxMaxBurst)
	if n := q.Burst(out); n != 0 {
		t.Fatalf("expected 0 completed packets with the packet still in flight, got %d", n)
	}

	if q.pktFirstSeg == nil {
		t.Fatalf("expected pkt_first_seg to carry the in-progress segment across the burst boundary")
	}

	markRxWriteback(q.descSlot(1), true, 64)

	n := q.Burst(out)
	if n != 1 {
		t.Fatalf("expected the packet to complete on the next burst, got %d", n)
	}

	if out[0].NbSegs != 2 {
		t.Fatalf("NbSegs = %d, want 2", out[0].NbSegs)
	}
}
