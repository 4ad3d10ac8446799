// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

// mask returns numOnes 1-bits, shifted left by shift.
func mask(numOnes, shift uint32) uint32 {
	return ((1 << numOnes) - 1) << shift
}

// setRegister writes v, masked to bitsPerRegister bits, into the idx'th
// cell of the packed array data. Cells may straddle a byte boundary;
// neighboring bits are preserved.
func setRegister(data []byte, bitsPerRegister, idx uint32, v uint8) {
	v &= byte(mask(bitsPerRegister, 0))
	bitIdx := idx * bitsPerRegister
	byteOffset := bitIdx / 8
	bitOffset := bitIdx % 8

	if 8-bitOffset >= bitsPerRegister {
		leftShift := 8 - bitsPerRegister - bitOffset

		data[byteOffset] &= ^byte(mask(bitsPerRegister, leftShift))
		data[byteOffset] |= v << leftShift
	} else {
		numBitsInFirstByte := bitsPerRegister - (8 - bitOffset)

		data[byteOffset] &= ^byte(mask(8-bitOffset, 0))
		data[byteOffset] |= v >> numBitsInFirstByte

		data[byteOffset+1] &= ^byte(mask(numBitsInFirstByte, 8-numBitsInFirstByte))
		data[byteOffset+1] |= v << (8 - numBitsInFirstByte)
	}
}

// getRegister reads the idx'th bitsPerRegister-wide cell out of the
// packed array data.
func getRegister(data []byte, bitsPerRegister, idx uint32) uint8 {
	bitIdx := idx * bitsPerRegister
	byteOffset := bitIdx / 8
	bitOffset := bitIdx % 8

	if 8-bitOffset >= bitsPerRegister {
		return (data[byteOffset] >> (8 - bitOffset - bitsPerRegister)) & byte(mask(bitsPerRegister, 0))
	}

	numBitsInFirstByte := bitsPerRegister - (8 - bitOffset)

	v := data[byteOffset] << numBitsInFirstByte
	v |= data[byteOffset+1] >> (8 - numBitsInFirstByte)
	return v & byte(mask(bitsPerRegister, 0))
}

// packedLen returns the number of bytes needed to hold n registers of
// the given width.
func packedLen(n uint32, bitsPerRegister uint8) int {
	return int((n*uint32(bitsPerRegister) + 7) / 8)
}
