// Package bcs implements the Binary Canonical Serialization primitives used by
// Sui package payloads and Move module binaries.
//
// Integers are little endian. Sequence lengths and enum tags are ULEB128.
package bcs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Decoding errors.
var (
	// ErrUnexpectedEOF is returned when the input ends before a value is complete.
	ErrUnexpectedEOF = errors.New("bcs: unexpected end of input")

	// ErrULEBOverflow is returned for a ULEB128 value wider than 64 bits.
	ErrULEBOverflow = errors.New("bcs: uleb128 overflows u64")

	// ErrNonCanonical is returned for a ULEB128 value with redundant trailing groups.
	ErrNonCanonical = errors.New("bcs: non-canonical uleb128")

	// ErrInvalidUTF8 is returned when a string is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("bcs: invalid utf-8 string")
)

// Decoder reads BCS values from a byte slice.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder positioned at the start of b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int { return d.off }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrUnexpectedEOF, n, d.off, d.Remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// ReadU8 reads one byte.
func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian u16.
func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian u32.
func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian u64.
func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadULEB128 reads an unsigned LEB128 value of at most 64 bits.
func (d *Decoder) ReadULEB128() (uint64, error) {
	var value uint64
	for shift := uint(0); shift < 64; shift += 7 {
		b, err := d.ReadU8()
		if err != nil {
			return 0, err
		}
		digit := uint64(b & 0x7f)
		if shift == 63 && digit > 1 {
			return 0, ErrULEBOverflow
		}
		value |= digit << shift
		if b&0x80 == 0 {
			if shift > 0 && digit == 0 {
				return 0, ErrNonCanonical
			}
			return value, nil
		}
	}
	return 0, ErrULEBOverflow
}

// ReadLength reads a ULEB128 sequence length and checks it against the
// remaining input, so corrupt lengths fail before any allocation.
func (d *Decoder) ReadLength() (int, error) {
	n, err := d.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.Remaining()) {
		return 0, fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrUnexpectedEOF, n, d.Remaining())
	}
	return int(n), nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the input.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	return d.take(n)
}

// ReadByteVector reads a length-prefixed byte vector and returns a copy.
func (d *Decoder) ReadByteVector() ([]byte, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	n, err := d.ReadLength()
	if err != nil {
		return "", err
	}
	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}
