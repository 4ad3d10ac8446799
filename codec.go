// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

import (
	"encoding/binary"
	"hash"

	"github.com/klauspost/compress/s2"
	"github.com/pkg/errors"
)

// On-disk layout: a 4-byte outer length, then a 7-byte
// inner header (version, b, binbits, idx), then the body. b's sign
// doubles as the compression flag: positive means the body
// is stored exactly as the in-memory representation; negative means it
// has been run through Compress.
const (
	legacyVersion uint8 = 1
	structVersion uint8 = 2

	headerSize = 11
)

// Size returns the marshaled size, in bytes, of an uncompressed dense
// counter sized for ndistinct elements at the given relative error,
// without actually allocating one. A freshly created counter starts
// sparse and marshals smaller than this until it is promoted.
func Size(ndistinct uint64, relErr float64) (int, error) {
	b, binbits, err := sizeParams(ndistinct, relErr)
	if err != nil {
		return 0, err
	}
	m := uint32(1) << b
	return headerSize + packedLen(m, binbits), nil
}

// Length returns c's current marshaled size in bytes.
func Length(c *Counter) int {
	if c.idx == -1 {
		return headerSize + len(c.data)
	}
	tmp := c.Copy()
	tmp.flushTmpSet()
	return headerSize + len(tmp.data)
}

// Marshal serializes c to the on-disk layout above. Any buffered Add
// calls are flushed first, so the bytes always reflect a consistent
// state; the representation (sparse/dense) and compression flag are
// whatever c is currently in — callers that want a compact on-disk form
// call Compress first.
func (c *Counter) Marshal() []byte {
	c.flushTmpSet()

	buf := make([]byte, headerSize+len(c.data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(buf)))
	buf[4] = c.version
	buf[5] = byte(c.b)
	buf[6] = c.binbits
	binary.LittleEndian.PutUint32(buf[7:], uint32(c.idx))
	copy(buf[headerSize:], c.data)

	return buf
}

// Unmarshal parses the layout written by Marshal, using the package's
// default MurmurHash64A hasher for any subsequent Add calls.
func Unmarshal(data []byte) (*Counter, error) {
	return UnmarshalWithHasher(data, nil)
}

// UnmarshalWithHasher is Unmarshal with an explicit hasher, mirroring
// Config.Hasher; pass nil to get the default.
//
// A version that doesn't match structVersion fails here rather than
// silently reinterpreting the header: callers
// holding a legacy payload call Upgrade first. A compressed body is
// transparently decompressed, so the returned Counter is immediately
// usable by Add/Estimate/Merge without a separate step.
func UnmarshalWithHasher(data []byte, hasher hash.Hash) (*Counter, error) {
	if len(data) < headerSize {
		return nil, errTruncatedHeader
	}

	length := binary.LittleEndian.Uint32(data[0:])
	if int(length) != len(data) {
		return nil, errLengthMismatch
	}

	version := data[4]
	if version != structVersion {
		return nil, errors.Wrapf(errVersionMismatch, "stored version %d", version)
	}

	b := int8(data[5])
	binbits := data[6]
	idx := int32(binary.LittleEndian.Uint32(data[7:]))
	body := append([]byte(nil), data[headerSize:]...)

	var h hash.Hash64
	switch {
	case hasher == nil:
		h = newMurmurHasher()
	case isHash64(hasher):
		h = hasher.(hash.Hash64)
	default:
		h = &hashWrapper{Hash: hasher}
	}

	c := &Counter{
		version: version,
		b:       b,
		binbits: binbits,
		idx:     idx,
		data:    body,
		hasher:  h,
	}

	if c.b < 0 {
		if err := c.Decompress(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Upgrade converts a legacy-version payload into a current one. The
// legacy format's only compressed sparse form was dedupe-and-shrink with
// no varint step, so its body is already exactly what today's sparse-raw
// fallback (see compressSparse) produces; only the header needs
// rewriting. The returned Counter is uncompressed and ready for use.
func Upgrade(data []byte) (*Counter, error) {
	if len(data) < headerSize {
		return nil, errTruncatedHeader
	}

	length := binary.LittleEndian.Uint32(data[0:])
	if int(length) != len(data) {
		return nil, errLengthMismatch
	}

	if data[4] != legacyVersion {
		return nil, errNotLegacyVersion
	}

	b := int8(data[5])
	binbits := data[6]
	idx := int32(binary.LittleEndian.Uint32(data[7:]))
	body := append([]byte(nil), data[headerSize:]...)

	c := &Counter{
		version: structVersion,
		binbits: binbits,
		idx:     idx,
		hasher:  newMurmurHasher(),
		data:    body,
	}

	if b < 0 {
		c.b = -b
	} else {
		c.b = b
	}

	return c, nil
}

// Compress shrinks c's body in place, flipping the
// sign of b to record that it happened. Calling it on an
// already-compressed counter is an error, not a silent pass-through. A
// dense body that would not shrink is left as it is, with b unchanged.
func (c *Counter) Compress() error {
	if c.b < 0 {
		return errAlreadyCompressed
	}
	c.flushTmpSet()
	if c.idx == -1 {
		return c.compressDense()
	}
	return c.compressSparse()
}

// Decompress reverses Compress. Calling it on an already-uncompressed
// counter is an error for the same reason double-Compress is.
func (c *Counter) Decompress() error {
	if c.b >= 0 {
		return errNotCompressed
	}
	if c.idx == -1 {
		return c.decompressDense()
	}
	return c.decompressSparse()
}

// compressDense unpacks every register into a one-byte scratch buffer
// and runs it through S2, a general-purpose LZ-family compressor. If
// the compressed form isn't smaller, the counter is left untouched: a
// register array near capacity is close to incompressible.
func (c *Counter) compressDense() error {
	b := c.bAbs()
	m := uint32(1) << b

	scratch := make([]byte, m)
	for j := uint32(0); j < m; j++ {
		scratch[j] = getRegister(c.data, uint32(c.binbits), j)
	}

	compressed := s2.Encode(nil, scratch)
	if len(compressed) >= len(c.data) {
		return nil
	}

	c.data = compressed
	c.b = -int8(b)
	return nil
}

func (c *Counter) decompressDense() error {
	b := -c.b
	m := uint32(1) << uint8(b)

	scratch, err := s2.Decode(nil, c.data)
	if err != nil {
		return errors.Wrap(err, "hllpp: dense decompress")
	}

	out := make([]byte, packedLen(m, c.binbits))
	for j := uint32(0); j < m && int(j) < len(scratch); j++ {
		setRegister(out, uint32(c.binbits), j, scratch[j])
	}

	c.data = out
	c.b = int8(b)
	return nil
}

// compressSparse covers two sub-cases: dedupe (via flushTmpSet) then
// group-varint encode the sorted body; if that isn't smaller than the
// flat array it replaced, fall back to recording that dedupe alone
// already shrank it, via the maxB offset on b.
func (c *Counter) compressSparse() error {
	c.flushTmpSet()
	b := c.bAbs()

	encoded := groupVarintEncode(c.data)
	if len(encoded) < len(c.data) {
		c.data = encoded
		c.b = -int8(b)
		return nil
	}

	c.b = -int8(b) - int8(maxB)
	return nil
}

func (c *Counter) decompressSparse() error {
	magnitude := int(-c.b)

	if magnitude > int(maxB) {
		c.b = int8(magnitude - int(maxB))
		return nil
	}

	c.b = int8(magnitude)
	decoded, err := groupVarintDecode(c.data, int(c.idx))
	if err != nil {
		return errors.Wrap(err, "hllpp: sparse decompress")
	}
	c.data = decoded
	return nil
}

// groupVarintEncode/groupVarintDecode exploit the sortedness of a
// flushed sparse body: each 32-bit entry is stored as a uvarint delta
// from its predecessor, which shrinks to a byte or two whenever nearby
// entries land close together in the index space.
func groupVarintEncode(flat []byte) []byte {
	n := len(flat) / 4
	out := make([]byte, 0, len(flat))
	buf := make([]byte, binary.MaxVarintLen32)

	var prev uint32
	for i := 0; i < n; i++ {
		v := sparseWordAt(flat, i)
		nb := binary.PutUvarint(buf, uint64(v-prev))
		out = append(out, buf[:nb]...)
		prev = v
	}

	return out
}

func groupVarintDecode(encoded []byte, n int) ([]byte, error) {
	out := make([]byte, n*4)

	var prev uint32
	pos := 0
	for i := 0; i < n; i++ {
		delta, nb := binary.Uvarint(encoded[pos:])
		if nb <= 0 {
			return nil, errors.New("hllpp: malformed group-varint sparse body")
		}
		pos += nb
		prev += uint32(delta)
		putSparseWord(out, i, prev)
	}

	return out, nil
}
