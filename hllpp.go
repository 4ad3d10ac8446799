// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

// Package hllpp implements a HyperLogLog++ cardinality estimator: a
// compact, mergeable structure that approximates the number of distinct
// values observed in a stream, together with a serialization format
// for long-term storage. It follows Flajolet et al.'s HyperLogLog and
// the engineering refinements described by Heule, Nunkesser and Hall
// ("HyperLogLog in Practice"): a sparse representation at low
// cardinalities that promotes to a dense packed-register array, bias
// correction at low estimates, and linear counting at very low ones.
package hllpp

import (
	"fmt"
	"hash"
	"math"

	"github.com/pkg/errors"
)

const (
	minB    uint8 = 4
	maxB    uint8 = 16
	minBinBits uint8 = 4
	maxBinBits uint8 = 6

	// errorConst is 1.04^2, the constant relating requested relative
	// error to the number of registers needed.
	errorConst = 1.0816

	// defaultNDistinct and defaultError are the configuration defaults
	// documented on Config below.
	defaultNDistinct uint64  = 1 << 63
	defaultError     float64 = 0.008125
)

// Counter is a single HyperLogLog++ estimator. Create one with New or
// NewWithConfig. It is a single-owner value: the core performs no
// internal synchronization, so concurrent mutation of one Counter from
// multiple goroutines must be serialized by the caller.
//
// Several operations — Add, Merge, Compress, Decompress — may reallocate
// the counter's body (promotion, compression, decompression, widening).
// Counter is used as a pointer throughout specifically so those
// operations can mutate the receiver in place and callers never have to
// rebind a returned value, but note that Copy, and Merge with
// inplace=false, allocate fresh Counters rather than aliasing data with
// their inputs.
type Counter struct {
	version uint8
	b       int8
	binbits uint8
	idx     int32
	data    []byte

	tmpSet uint32Slice
	hasher hash.Hash64
}

// Config configures a Counter via NewWithConfig.
type Config struct {
	// NDistinct is the upper bound on cardinality used to size the
	// counter. Defaults to 2^63.
	NDistinct uint64

	// Error is the target relative error, in (0, 1). Defaults to
	// 0.008125 (~0.8%).
	Error float64

	// Hasher overrides the hash function used by Add. If it implements
	// hash.Hash64, Sum64 is used directly; otherwise Sum is used and
	// truncated. Defaults to this package's MurmurHash64A, which is
	// what the on-disk register values assume — an override is mostly
	// useful for testing encode/decode against fixed hash values.
	Hasher hash.Hash
}

// New creates a Counter sized for ndistinct elements at the given
// relative error, using the package's default MurmurHash64A hasher.
func New(ndistinct uint64, relErr float64) (*Counter, error) {
	return NewWithConfig(Config{NDistinct: ndistinct, Error: relErr})
}

// NewWithConfig creates a Counter from an explicit Config.
func NewWithConfig(cfg Config) (*Counter, error) {
	if cfg.NDistinct == 0 {
		cfg.NDistinct = defaultNDistinct
	}
	if cfg.Error == 0 {
		cfg.Error = defaultError
	}
	if cfg.Error <= 0 || cfg.Error >= 1 {
		return nil, errInvalidError
	}

	b, binbits, err := sizeParams(cfg.NDistinct, cfg.Error)
	if err != nil {
		return nil, err
	}

	var hasher hash.Hash64
	switch {
	case cfg.Hasher == nil:
		hasher = newMurmurHasher()
	case isHash64(cfg.Hasher):
		hasher = cfg.Hasher.(hash.Hash64)
	default:
		if cfg.Hasher.Size() < 8 {
			return nil, errors.New("hllpp: Hasher.Size() is less than 8, pick something else")
		}
		hasher = &hashWrapper{Hash: cfg.Hasher}
	}

	c := &Counter{
		version: structVersion,
		b:       int8(b),
		binbits: binbits,
		idx:     0,
		hasher:  hasher,
	}

	// A fresh counter starts sparse with zero entries; data stays nil
	// until the first flush gives it a body, keeping len(data) == idx*4
	// an invariant from the start rather than a pre-sized scratch buffer
	// an empty counter would have to special-case around.
	return c, nil
}

func isHash64(h hash.Hash) bool {
	_, ok := h.(hash.Hash64)
	return ok
}

// sizeParams derives (b, binbits) from (ndistinct, error), shared by
// NewWithConfig and Size.
func sizeParams(ndistinct uint64, relErr float64) (uint8, uint8, error) {
	m := errorConst / (relErr * relErr)
	b := int(math.Ceil(math.Log2(m)))

	if b < int(minB) {
		b = int(minB)
	} else if b > int(maxB) {
		return 0, 0, errPrecisionOutOfRange
	}

	binbits := int(math.Ceil(math.Log2(math.Log2(float64(ndistinct)))))
	if binbits < int(minBinBits) {
		binbits = int(minBinBits)
	} else if binbits > int(maxBinBits) {
		return 0, 0, errBinBitsOutOfRange
	}

	return uint8(b), uint8(binbits), nil
}

// bAbs returns the precision magnitude, independent of the compression
// sign bit overload Compress uses to flag a compressed body.
func (c *Counter) bAbs() uint8 {
	if c.b < 0 {
		return uint8(-c.b)
	}
	return uint8(c.b)
}

// Sparse reports whether c is currently in the sparse representation.
func (c *Counter) Sparse() bool {
	return c.idx != -1
}

// Add hashes v and folds it into the estimator.
func (c *Counter) Add(v []byte) {
	c.hasher.Reset()
	c.hasher.Write(v)
	x := c.hasher.Sum64()

	if c.idx == -1 {
		c.insertDense(x)
		return
	}

	c.tmpSet = append(c.tmpSet, c.encodeHash(x))

	if int32(len(c.tmpSet))+c.idx > sparseCap(c.bAbs()) {
		c.flushTmpSet()
	}
}

// Estimate returns the current cardinality estimate.
func (c *Counter) Estimate() float64 {
	if c.idx == -1 {
		return c.estimateDense()
	}
	return c.estimateSparse()
}

// Count rounds Estimate to the nearest integer, the form most callers
// actually want.
func (c *Counter) Count() uint64 {
	return uint64(c.Estimate() + 0.5)
}

// Merge folds other into c (inplace=true) or into a fresh copy of c
// (inplace=false). Compatibility errors (b or
// binbits mismatch) are fatal: merging counters sized for different
// precision would silently corrupt one of them.
func Merge(a, b *Counter, inplace bool) (*Counter, error) {
	var result *Counter
	if inplace {
		result = a
	} else {
		result = a.Copy()
	}

	if err := result.mergeDense(b); err != nil {
		return nil, err
	}
	return result, nil
}

// IsEqual reports whether a and b have identical logical register
// content, regardless of representation.
func IsEqual(a, b *Counter) (bool, error) {
	return a.equalDense(b)
}

// Reset zeroes the counter's body in place. The representation
// (sparse/dense) and sizing parameters are left untouched; only the
// observed data is cleared.
func (c *Counter) Reset() {
	c.tmpSet = c.tmpSet[:0]
	if c.idx == -1 {
		for i := range c.data {
			c.data[i] = 0
		}
		return
	}
	c.idx = 0
	c.data = c.data[:0]
}

// Copy returns a deep copy of c.
func (c *Counter) Copy() *Counter {
	cp := *c
	cp.data = append([]byte(nil), c.data...)
	cp.tmpSet = append(uint32Slice(nil), c.tmpSet...)
	return &cp
}

// String renders a short human-readable summary of the counter's
// configuration and representation.
func (c *Counter) String() string {
	if c.idx == -1 {
		return fmt.Sprintf("Counter{version=%d, b=%d, binbits=%d, dense, m=%d}",
			c.version, c.bAbs(), c.binbits, uint32(1)<<c.bAbs())
	}
	return fmt.Sprintf("Counter{version=%d, b=%d, binbits=%d, sparse, idx=%d, buffered=%d}",
		c.version, c.bAbs(), c.binbits, c.idx, len(c.tmpSet))
}
