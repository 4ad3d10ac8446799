// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

import (
	"encoding/binary"
	"math"
)

// alpha returns the HLL bias-correction constant for m registers.
func alpha(m uint32) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		return 0.7213 / (1 + 1.079/float64(m))
	}
}

// promote converts a sparse counter to dense in place.
// Every stored encoded summary is decoded to (idx, rho) and max-updated
// into a freshly allocated packed register array; idx is then set to -1
// and tmpSet is dropped since dense insert no longer needs it.
func (c *Counter) promote() {
	c.flushTmpSet()

	old := c.data
	m := uint32(1) << c.bAbs()
	c.data = make([]byte, packedLen(m, c.binbits))

	reader := newSparseIter(old)
	for !reader.Done() {
		idx, r := c.decodeHash(reader.Next(), c.bAbs())
		c.maxUpdate(idx, r)
	}

	c.tmpSet = nil
	c.idx = -1
}

// maxUpdate grows binbits (up to maxBinBits) if a register value would
// overflow the currently allocated width, repacking every existing
// register, then writes max(current, r) into c.data at idx. The
// b/binbits sizing formula in §4.6.1 is expected to keep rho within
// range, but a pathological input stream should widen rather than
// silently truncate. Widening reallocates c.data, so every caller reads it
// back through c rather than holding a stale slice across the call.
func (c *Counter) maxUpdate(idx uint32, r uint8) {
	for r >= (1<<c.binbits) && c.binbits < maxBinBits {
		c.widenRegisters()
	}

	if r > getRegister(c.data, uint32(c.binbits), idx) {
		setRegister(c.data, uint32(c.binbits), idx, r)
	}
}

func (c *Counter) widenRegisters() {
	m := uint32(1) << c.bAbs()
	old := c.binbits
	c.binbits++

	widened := make([]byte, packedLen(m, c.binbits))
	for i := uint32(0); i < m; i++ {
		setRegister(widened, uint32(c.binbits), i, getRegister(c.data, uint32(old), i))
	}
	c.data = widened
}

// insertDense computes index and rho from the
// hash, extend rho via rehash if the remaining bits were exhausted, and
// max-update the register.
func (c *Counter) insertDense(x uint64) {
	b := c.bAbs()
	idx := uint32(sliceBits64(x, 63, 64-b))
	r := rho(x << b)

	if r == 65 {
		r = 64 - b
		addn := uint8(65)
		for addn == 65 && r < (1<<c.binbits) {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], x)
			x = murmurHash64A(buf[:], hashSeed)
			addn = rho(x)
			r += addn
		}
	}

	c.maxUpdate(idx, r)
}

// estimateDense computes the raw HyperLogLog estimate, then applies
// bias correction or linear counting depending on its magnitude.
func (c *Counter) estimateDense() float64 {
	b := c.bAbs()
	m := uint32(1) << b

	var h float64
	var zeros uint32
	for j := uint32(0); j < m; j++ {
		reg := getRegister(c.data, uint32(c.binbits), j)
		h += invPow2[reg]
		if reg == 0 {
			zeros++
		}
	}

	e := alphaMSq[b] / h

	if e <= float64(5*m) {
		e -= c.estimateBias(e)

		if zeros > 0 {
			hp := float64(m) * math.Log(float64(m)/float64(zeros))
			if hp <= float64(thresholdTable[b]) {
				return hp
			}
		}
	}

	return e
}

// estimateBias is a 6-nearest-neighbor lookup against the calibration
// tables: edge cases saturate to the first or last 6 entries rather
// than extrapolating.
func (c *Counter) estimateBias(e float64) float64 {
	b := c.bAbs()
	estimates := rawEstimateData[b-minB]
	biases := biasData[b-minB]
	maxPoints := len(estimates)

	idx := -1
	for i := 0; i < maxPoints; i++ {
		if e < estimates[i] {
			idx = i
			break
		}
	}

	avgOf := func(lo, hi int) float64 {
		s := 0.0
		for i := lo; i <= hi; i++ {
			s += biases[i]
		}
		return s / 6
	}

	switch {
	case idx == -1:
		return avgOf(maxPoints-6, maxPoints-1)
	case idx < 4:
		return avgOf(0, 5)
	case idx > maxPoints-5:
		return avgOf(maxPoints-6, maxPoints-1)
	default:
		return avgOf(idx-2, idx+3)
	}
}

// mergeDense handles all four dense/sparse combinations between c and
// other. It mutates c in place; callers that want a fresh copy must
// Copy() beforehand.
func (c *Counter) mergeDense(other *Counter) error {
	if c.bAbs() != other.bAbs() {
		return errIncompatiblePrecision
	}
	if c.binbits != other.binbits {
		return errIncompatibleBinBits
	}

	// Flushing can promote other to dense, so it happens before the
	// representation dispatch below.
	other.flushTmpSet()

	switch {
	case c.idx == -1 && other.idx == -1:
		m := uint32(1) << c.bAbs()
		for j := uint32(0); j < m; j++ {
			l := getRegister(c.data, uint32(c.binbits), j)
			r := getRegister(other.data, uint32(other.binbits), j)
			if r > l {
				setRegister(c.data, uint32(c.binbits), j, r)
			}
		}
		return nil

	case c.idx == -1:
		reader := newSparseIter(other.data)
		for !reader.Done() {
			idx, r := other.decodeHash(reader.Next(), c.bAbs())
			c.maxUpdate(idx, r)
		}
		return nil

	case other.idx == -1:
		c.promote()
		return c.mergeDense(other)

	default:
		reader := newSparseIter(other.data)
		for !reader.Done() {
			c.tmpSet = append(c.tmpSet, reader.Next())
		}
		c.flushTmpSet()
		if c.idx == -1 {
			return c.mergeDense(other)
		}
		return nil
	}
}

// equalDense compares two counters by logical register
// content, regardless of representation.
func (c *Counter) equalDense(other *Counter) (bool, error) {
	if c.bAbs() != other.bAbs() {
		return false, errIncompatiblePrecision
	}
	if c.binbits != other.binbits {
		return false, errIncompatibleBinBits
	}

	if c.idx == -1 && other.idx == -1 {
		m := uint32(1) << c.bAbs()
		for j := uint32(0); j < m; j++ {
			if getRegister(c.data, uint32(c.binbits), j) != getRegister(other.data, uint32(other.binbits), j) {
				return false, nil
			}
		}
		return true, nil
	}

	if c.idx == -1 || other.idx == -1 {
		dense, sparse := c, other
		if other.idx == -1 {
			dense, sparse = other, c
		}
		tmp := sparse.Copy()
		tmp.promote()
		return dense.equalDense(tmp)
	}

	left := c.Copy()
	right := other.Copy()
	left.flushTmpSet()
	right.flushTmpSet()

	if left.idx != right.idx {
		return false, nil
	}

	lr := newSparseIter(left.data)
	rr := newSparseIter(right.data)
	for !lr.Done() && !rr.Done() {
		if lr.Next() != rr.Next() {
			return false, nil
		}
	}
	return lr.Done() == rr.Done(), nil
}
