package abi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Linear memory layout.
const (
	// HeapPointerAddr holds the u32 LE address of the next free heap byte.
	HeapPointerAddr = 0
	// StaticBase is where the string-literal pool starts.
	StaticBase = 8
	// PageSize is the wasm page size.
	PageSize = 65536

	// Minimum alignment of pointers and i32 values, and of i64/f64 values.
	PointerAlign = 4
	WideAlign    = 8

	// StringHeaderSize is the length prefix of a string.
	StringHeaderSize = 4
)

// Align rounds n up to a multiple of a, which must be a power of two.
func Align(n, a uint32) uint32 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// EncodeString returns the in-memory form of s: a u32 little-endian byte
// length followed by the raw UTF-8 bytes, without a terminator.
func EncodeString(s string) []byte {
	out := make([]byte, StringHeaderSize+len(s))
	binary.LittleEndian.PutUint32(out, uint32(len(s)))
	copy(out[StringHeaderSize:], s)
	return out
}

var ErrOutOfBounds = errors.New("address out of bounds")

// DecodeString reads the length-prefixed string stored at addr in mem.
func DecodeString(mem []byte, addr uint32) (string, error) {
	if uint64(addr)+StringHeaderSize > uint64(len(mem)) {
		return "", fmt.Errorf("string header at %d: %w", addr, ErrOutOfBounds)
	}
	n := binary.LittleEndian.Uint32(mem[addr:])
	start := uint64(addr) + StringHeaderSize
	if start+uint64(n) > uint64(len(mem)) {
		return "", fmt.Errorf("string of %d bytes at %d: %w", n, addr, ErrOutOfBounds)
	}
	return string(mem[start : start+uint64(n)]), nil
}
