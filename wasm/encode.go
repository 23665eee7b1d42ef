// Package wasm encodes WebAssembly binary modules.
package wasm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// WASM Binary Encoding Utilities
func writeByte(buf *bytes.Buffer, b byte) {
	buf.WriteByte(b)
}

func writeBytes(buf *bytes.Buffer, data []byte) {
	buf.Write(data)
}

func writeLEB128(buf *bytes.Buffer, val uint32) {
	for val >= 0x80 {
		buf.WriteByte(byte(val&0x7F) | 0x80)
		val >>= 7
	}
	buf.WriteByte(byte(val & 0x7F))
}

func writeLEB128Signed(buf *bytes.Buffer, val int64) {
	for {
		b := byte(val & 0x7F)
		val >>= 7

		if (val == 0 && (b&0x40) == 0) || (val == -1 && (b&0x40) != 0) {
			buf.WriteByte(b)
			break
		}

		buf.WriteByte(b | 0x80)
	}
}

func writeF64(buf *bytes.Buffer, val float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(val))
	buf.Write(b[:])
}

func writeName(buf *bytes.Buffer, name string) {
	writeLEB128(buf, uint32(len(name)))
	buf.WriteString(name)
}

// writeSection writes a section id followed by the size-prefixed content.
func writeSection(buf *bytes.Buffer, id byte, content *bytes.Buffer) {
	writeByte(buf, id)
	writeLEB128(buf, uint32(content.Len()))
	writeBytes(buf, content.Bytes())
}

// AppendULEB128 appends the unsigned LEB128 encoding of val to dst.
func AppendULEB128(dst []byte, val uint32) []byte {
	var buf bytes.Buffer
	writeLEB128(&buf, val)
	return append(dst, buf.Bytes()...)
}

// ReadULEB128 decodes an unsigned LEB128 value, returning it and the number
// of bytes consumed (0 when data is truncated).
func ReadULEB128(data []byte) (uint32, int) {
	var result uint32
	var shift uint
	for i, b := range data {
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
		if shift >= 35 {
			return 0, 0
		}
	}
	return 0, 0
}
