package bcs

import "encoding/binary"

// Encoder appends BCS values to an in-memory buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte { return e.buf }

// WriteU8 appends one byte.
func (e *Encoder) WriteU8(v uint8) { e.buf = append(e.buf, v) }

// WriteU16 appends a little-endian u16.
func (e *Encoder) WriteU16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

// WriteU32 appends a little-endian u32.
func (e *Encoder) WriteU32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

// WriteU64 appends a little-endian u64.
func (e *Encoder) WriteU64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

// WriteULEB128 appends v as unsigned LEB128.
func (e *Encoder) WriteULEB128(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

// WriteBytes appends b without a length prefix.
func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

// WriteByteVector appends a length-prefixed byte vector.
func (e *Encoder) WriteByteVector(b []byte) {
	e.WriteULEB128(uint64(len(b)))
	e.WriteBytes(b)
}

// WriteString appends a length-prefixed string.
func (e *Encoder) WriteString(s string) {
	e.WriteULEB128(uint64(len(s)))
	e.buf = append(e.buf, s...)
}
