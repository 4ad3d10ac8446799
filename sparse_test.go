// Copyright (c) 2018, RetailNext, Inc.
// All rights reserved.

package hllpp

import (
	"math/rand"
	"testing"
	"time"
)

func TestFlushTmpSetDedupe(t *testing.T) {
	h := newCounterWithPrecision(14, minBinBits)

	// two summaries that decode to the same index; the larger rho must
	// win and the body must end up with a single entry. The extended index
	// bits below b are zero, so both summaries carry an explicit rho.
	idx := uint64(127)
	lowRho := h.encodeHash(idx<<(64-h.bAbs()) | 1<<33)
	highRho := h.encodeHash(idx<<(64-h.bAbs()) | 1<<30)

	h.tmpSet = append(h.tmpSet, lowRho, highRho)
	h.flushTmpSet()

	if h.idx != 1 {
		t.Fatalf("got %d entries, want 1", h.idx)
	}

	gotIdx, gotR := h.decodeHash(sparseWordAt(h.data, 0), h.bAbs())
	_, lowR := h.decodeHash(lowRho, h.bAbs())
	_, highR := h.decodeHash(highRho, h.bAbs())

	wantR := lowR
	if highR > wantR {
		wantR = highR
	}

	if gotR != wantR {
		t.Errorf("got rho %d, want %d", gotR, wantR)
	}
	if gotIdx != h.getIndex(lowRho, h.bAbs()) {
		t.Errorf("got idx %d, want %d", gotIdx, h.getIndex(lowRho, h.bAbs()))
	}
}

func TestFlushTmpSetMergesSorted(t *testing.T) {
	h := newCounterWithPrecision(14, minBinBits)

	for i := uint64(0); i < 64; i++ {
		h.tmpSet = append(h.tmpSet, h.encodeHash(i<<(64-14)))
	}
	h.flushTmpSet()

	if h.idx != 64 {
		t.Fatalf("got %d entries, want 64", h.idx)
	}

	for i := 0; i < int(h.idx)-1; i++ {
		if sparseWordAt(h.data, i) >= sparseWordAt(h.data, i+1) {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

// TestSparseNonDefaultBinBits guards against the dedupe and domain-size
// formulas silently assuming binbits == maxBinBits. binbits=5 is what
// sizeParams derives for a billion-element target, and at b=16 the sparse
// capacity (2^(b-4) minus the header) comfortably holds several thousand
// entries before promotion.
func TestSparseNonDefaultBinBits(t *testing.T) {
	h := newCounterWithPrecision(16, 5)

	const count = 3000
	for i := uint64(0); i < count; i++ {
		h.Add(intToBytes(i))
	}

	if !h.Sparse() {
		t.Fatal("should still be sparse")
	}

	if e := estimateError(h.Count(), count); e > 0.02 {
		t.Errorf("got %d, expected %d (error of %f)", h.Count(), count, e)
	}
}

func TestSparseMerge(t *testing.T) {
	gen := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < 1000; i++ {
		v1 := intToBytes(gen.Uint64())
		v2 := intToBytes(gen.Uint64())

		h := newTestCounter(t)
		h.Add(v1)
		h.Add(v2)

		other := newTestCounter(t)
		other.Add(v1)

		merged, err := Merge(h, other, true)
		if err != nil {
			t.Fatalf("iter %d: %v", i, err)
		}

		if merged.Count() != 2 {
			t.Fatalf("iter %d got %d", i, merged.Count())
		}
	}
}
