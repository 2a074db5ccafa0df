// Package leb128 decodes and encodes the variable-length integers used for
// indices, counts and immediates throughout the module format.
package leb128

import (
	"errors"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

var (
	// ErrOverflow32 is returned when a 32-bit varint is longer than 5 bytes or
	// sets bits that do not fit in 32 bits.
	ErrOverflow32 = errors.New("overflows a 32-bit integer")
	// ErrOverflow64 is the 64-bit equivalent of ErrOverflow32.
	ErrOverflow64 = errors.New("overflows a 64-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		// Extract the sign bit.
		s := uint8(value & 0x40)
		value >>= 7

		// The encoding unit is done if the value is fully consumed and the
		// sign bit agrees with what remains.
		if (value != -1 || s == 0) && (value != 0 || s != 0) {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			break
		}
	}
	return buf
}

// EncodeUint32 encodes the value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint64(value uint64) (buf []byte) {
	// This is effectively a do/while loop where we take 7 bits of the value and encode them until it is zero.
	for {
		b := uint8(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if value == 0 {
			return buf
		}
	}
}

// LoadUint32 decodes an unsigned 32-bit value at the head of buf, returning
// the value and the number of bytes it occupied.
func LoadUint32(buf []byte) (ret uint32, bytesRead uint64, err error) {
	v, n, err := loadUnsigned(buf, 32, maxVarintLen32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(v), n, nil
}

// LoadUint64 decodes an unsigned 64-bit value at the head of buf.
func LoadUint64(buf []byte) (ret uint64, bytesRead uint64, err error) {
	return loadUnsigned(buf, 64, maxVarintLen64)
}

// LoadInt32 decodes a signed 32-bit value at the head of buf.
func LoadInt32(buf []byte) (ret int32, bytesRead uint64, err error) {
	v, n, err := loadSigned(buf, 32, maxVarintLen32)
	if err != nil {
		return 0, 0, err
	}
	return int32(v), n, nil
}

// LoadInt64 decodes a signed 64-bit value at the head of buf.
func LoadInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	return loadSigned(buf, 64, maxVarintLen64)
}

func loadUnsigned(buf []byte, bits, maxLen uint) (ret uint64, bytesRead uint64, err error) {
	for i := uint(0); i < maxLen; i++ {
		if i >= uint(len(buf)) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		shift := 7 * i
		if i == maxLen-1 {
			// The last byte may only carry the bits left over from the previous ones.
			if b&0x80 != 0 || b>>(bits-shift) != 0 {
				return 0, 0, overflow(bits)
			}
		}
		ret |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return ret, uint64(i + 1), nil
		}
	}
	return 0, 0, overflow(bits)
}

func loadSigned(buf []byte, bits, maxLen uint) (ret int64, bytesRead uint64, err error) {
	for i := uint(0); i < maxLen; i++ {
		if i >= uint(len(buf)) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		shift := 7 * i
		if i == maxLen-1 {
			if b&0x80 != 0 {
				return 0, 0, overflow(bits)
			}
			// The sign bit and every unused bit above it must agree.
			used := bits - shift
			rest := b >> (used - 1)
			if allOnes := byte(1)<<(8-used) - 1; rest != 0 && rest != allOnes {
				return 0, 0, overflow(bits)
			}
		}
		ret |= int64(b&0x7f) << shift
		if b&0x80 == 0 {
			shift += 7
			if shift < 64 && b&0x40 != 0 {
				ret |= -1 << shift
			}
			return ret, uint64(i + 1), nil
		}
	}
	return 0, 0, overflow(bits)
}

func overflow(bits uint) error {
	if bits == 32 {
		return ErrOverflow32
	}
	return ErrOverflow64
}
