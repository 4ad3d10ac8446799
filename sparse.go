// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

import (
	"encoding/binary"
	"math"
	"sort"
)

// sparsePrecision returns the extended index width ("p'" in the HLL++
// paper) used while c is sparse. It is derived from binbits rather than
// fixed, so a summary always packs into exactly 32 bits: 1 tag bit,
// plus either the full extended index (no explicit rho needed) or the
// index narrowed by binbits plus an explicit binbits-wide rho
// (pp + binbits + 1 == 32 by construction).
func (c *Counter) sparsePrecision() uint8 {
	return 31 - c.binbits
}

type uint32Slice []uint32

func (s uint32Slice) Len() int           { return len(s) }
func (s uint32Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s uint32Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// sparseWordAt/putSparseWord address the i'th 32-bit little-endian
// summary inside a sparse body.
func sparseWordAt(data []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(data[4*i:])
}

func putSparseWord(data []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(data[4*i:], v)
}

// encodeHash packs a 64-bit hash into a 32-bit sparse summary: an
// extended pp-bit index, plus either a zero trailing flag bit (rho
// recoverable from the index bits themselves) or a one trailing flag
// bit and an explicit rho, narrowed by the implied zero run, in the
// binbits ahead of it.
func (c *Counter) encodeHash(x uint64) uint32 {
	b := c.bAbs()
	pp := c.sparsePrecision()

	if sliceBits64(x, 63-b, 64-pp) == 0 {
		r := rho((sliceBits64(x, 63-pp, 0) << pp) | (1<<pp - 1))
		if maxR := uint8(1)<<c.binbits - 1; r > maxR {
			r = maxR
		}
		return uint32(sliceBits64(x, 63, 64-pp)<<(uint64(c.binbits)+1) | uint64(r)<<1 | 1)
	}

	return uint32(sliceBits64(x, 63, 64-pp) << 1)
}

// decodeHash recovers (idx, rho) from an encoded sparse summary. idx is
// expressed with respect to the precision p passed in (so a summary can
// be re-indexed against either the counter's own precision, a merge
// partner's, or the full extended sparse precision for deduping while
// still sparse), while rho is always with respect to c's own precision.
func (c *Counter) decodeHash(k uint32, p uint8) (idx uint32, r uint8) {
	pp := c.sparsePrecision()

	if k&1 > 0 {
		r = uint8(sliceBits32(k, c.binbits, 1)) + (pp - c.bAbs())
	} else {
		r = rho((uint64(k) | 1) << (64 - (pp + 1) + c.bAbs()))
	}

	return c.getIndex(k, p), r
}

// getIndex recovers just the index portion of an encoded summary with
// respect to precision p.
func (c *Counter) getIndex(k uint32, p uint8) uint32 {
	pp := c.sparsePrecision()

	if k&1 > 0 {
		return sliceBits32(k, c.binbits+pp, 1+c.binbits+pp-p)
	}
	return sliceBits32(k, pp, 1+pp-p)
}

// sparseCap is the maximum number of valid 32-bit entries the sparse
// body can hold before promotion is considered.
func sparseCap(b uint8) int32 {
	return int32(1<<(b-4)) - int32(math.Ceil(float64(headerSize)/4.0))
}

// flushTmpSet merges the unsorted Add() buffer into the sorted, deduped
// flat sparse body, keeping the larger rho on index collisions, then
// promotes to dense if the merged body exceeds 7/8 of capacity. Entries
// are compared at the full extended sparse precision, not the coarser
// dense precision b: deduping at b would collapse distinct streams that
// only collide in their top b bits, throwing away exactly the
// resolution sparse mode exists to keep. tmpSet is small and always
// freshly sorted, so the merge against the existing (already-deduped)
// body is done as a single linear two-pointer pass.
func (c *Counter) flushTmpSet() {
	if len(c.tmpSet) == 0 {
		return
	}

	sort.Sort(c.tmpSet)

	pp := c.sparsePrecision()
	existing := int(c.idx)
	merged := make([]uint32, 0, existing+len(c.tmpSet))

	appendEntry := func(v uint32, idx uint32, r uint8) {
		if len(merged) > 0 {
			lastV := merged[len(merged)-1]
			lastIdx, lastR := c.decodeHash(lastV, pp)
			if lastIdx == idx {
				if r > lastR {
					merged[len(merged)-1] = v
				}
				return
			}
		}
		merged = append(merged, v)
	}

	i, j := 0, 0
	for i < existing || j < len(c.tmpSet) {
		switch {
		case i >= existing:
			v := c.tmpSet[j]
			idx, r := c.decodeHash(v, pp)
			appendEntry(v, idx, r)
			j++
		case j >= len(c.tmpSet):
			v := sparseWordAt(c.data, i)
			idx, r := c.decodeHash(v, pp)
			appendEntry(v, idx, r)
			i++
		default:
			ev := sparseWordAt(c.data, i)
			tv := c.tmpSet[j]
			eIdx, eR := c.decodeHash(ev, pp)
			tIdx, tR := c.decodeHash(tv, pp)

			switch {
			case eIdx < tIdx:
				appendEntry(ev, eIdx, eR)
				i++
			case eIdx > tIdx:
				appendEntry(tv, tIdx, tR)
				j++
			default:
				if eR >= tR {
					appendEntry(ev, eIdx, eR)
				} else {
					appendEntry(tv, tIdx, tR)
				}
				i++
				j++
			}
		}
	}

	newData := make([]byte, len(merged)*4)
	for k, v := range merged {
		putSparseWord(newData, k, v)
	}

	c.data = newData
	c.idx = int32(len(merged))
	c.tmpSet = c.tmpSet[:0]

	if c.idx > sparseCap(c.bAbs())*7/8 {
		c.promote()
	}
}

// estimateSparse computes the sparse-representation estimate: after
// dedupe, treat the extended index space as its own linear-counting
// domain.
func (c *Counter) estimateSparse() float64 {
	c.flushTmpSet()

	mp := math.Pow(2, float64(c.sparsePrecision()))
	v := float64(c.idx)

	return mp * math.Log(mp/(mp-v))
}

// sparseIter walks the flat 32-bit entries of a deduped sparse body.
type sparseIter struct {
	data []byte
	pos  int
}

func newSparseIter(data []byte) *sparseIter {
	return &sparseIter{data: data}
}

func (it *sparseIter) Done() bool {
	return it.pos*4 >= len(it.data)
}

func (it *sparseIter) Next() uint32 {
	v := sparseWordAt(it.data, it.pos)
	it.pos++
	return v
}
