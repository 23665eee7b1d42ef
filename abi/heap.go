package abi

import (
	"errors"
	"fmt"
)

// MemoryView is the view of linear memory the heap needs. wazero's api.Memory
// satisfies it.
type MemoryView interface {
	ReadUint32Le(offset uint32) (uint32, bool)
	WriteUint32Le(offset, v uint32) bool
	Write(offset uint32, v []byte) bool
	Size() uint32
}

// Grower is implemented by memories that can grow by whole pages.
type Grower interface {
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
}

var ErrOutOfMemory = errors.New("out of memory")

// Heap is the bump allocator over the heap-pointer cell at address 0. It
// mirrors the allocator that modules built with the inline runtime define,
// and implements memory_runtime._alloc for the host runtime mode.
type Heap struct {
	mem  MemoryView
	base uint32
}

// AttachHeap returns a heap whose reset point is the pointer currently
// stored in mem.
func AttachHeap(mem MemoryView) (*Heap, error) {
	base, ok := mem.ReadUint32Le(HeapPointerAddr)
	if !ok {
		return nil, fmt.Errorf("read heap pointer: %w", ErrOutOfBounds)
	}
	return &Heap{mem: mem, base: base}, nil
}

// NewHeap stores base in the heap-pointer cell and returns a heap that
// resets to it.
func NewHeap(mem MemoryView, base uint32) (*Heap, error) {
	if !mem.WriteUint32Le(HeapPointerAddr, base) {
		return nil, fmt.Errorf("write heap pointer: %w", ErrOutOfBounds)
	}
	return &Heap{mem: mem, base: base}, nil
}

// Base returns the initial heap pointer.
func (h *Heap) Base() uint32 { return h.base }

// Pointer returns the current heap pointer.
func (h *Heap) Pointer() uint32 {
	p, _ := h.mem.ReadUint32Le(HeapPointerAddr)
	return p
}

// Alloc carves size bytes aligned to align (at least PointerAlign) and
// advances the heap pointer past them. The block is zeroed, since memory
// below the pointer is reused after Reset. Zero-sized requests take one byte
// so that successive pointers are distinct.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if align < PointerAlign {
		align = PointerAlign
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment %d is not a power of two", align)
	}
	if size == 0 {
		size = 1
	}
	ptr := Align(h.Pointer(), align)
	end := uint64(ptr) + uint64(size)
	if end > uint64(h.mem.Size()) {
		if err := h.grow(end); err != nil {
			return 0, err
		}
	}
	if !h.mem.Write(ptr, make([]byte, size)) {
		return 0, fmt.Errorf("zero %d bytes at %d: %w", size, ptr, ErrOutOfBounds)
	}
	h.mem.WriteUint32Le(HeapPointerAddr, uint32(end))
	return ptr, nil
}

func (h *Heap) grow(end uint64) error {
	g, ok := h.mem.(Grower)
	if !ok || end > 1<<32 {
		return ErrOutOfMemory
	}
	need := (end - uint64(h.mem.Size()) + PageSize - 1) / PageSize
	if _, ok := g.Grow(uint32(need)); !ok {
		return ErrOutOfMemory
	}
	return nil
}

// Reset rewinds the heap pointer to the base, ending the execution context.
func (h *Heap) Reset() {
	h.mem.WriteUint32Le(HeapPointerAddr, h.base)
}
