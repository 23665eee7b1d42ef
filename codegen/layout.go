package codegen

import (
	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/kestrel-lang/kestrel/wasm"
)

// valType returns the wasm representation of t. Void has none.
func valType(t types.Type) (wasm.ValType, bool) {
	switch t.Kind {
	case types.KindInteger:
		return wasm.I64, true
	case types.KindNumber:
		return wasm.F64, true
	case types.KindBoolean, types.KindString, types.KindArray, types.KindMatrix,
		types.KindClass, types.KindFunc:
		return wasm.I32, true
	case types.KindVoid:
		return 0, false
	}
	fail(zeroSpan, "type %s has no wasm representation", t)
	return 0, false
}

// mustValType is valType for types that are known to carry a value.
func mustValType(t types.Type) wasm.ValType {
	vt, ok := valType(t)
	if !ok {
		fail(zeroSpan, "type %s has no value", t)
	}
	return vt
}

// width returns the byte size of a value in memory.
func width(vt wasm.ValType) uint32 {
	if vt == wasm.I64 || vt == wasm.F64 {
		return 8
	}
	return 4
}

// elemSize returns the slot size of container elements of type t.
func elemSize(t types.Type) uint32 {
	return width(mustValType(t))
}

// load emits a load of vt from the address on the stack plus offset.
func load(c *wasm.Code, vt wasm.ValType, offset uint32) {
	switch vt {
	case wasm.I64:
		c.Load(wasm.I64_LOAD, 3, offset)
	case wasm.F64:
		c.Load(wasm.F64_LOAD, 3, offset)
	default:
		c.Load(wasm.I32_LOAD, 2, offset)
	}
}

// store emits a store of vt: [address, value] -> [].
func store(c *wasm.Code, vt wasm.ValType, offset uint32) {
	switch vt {
	case wasm.I64:
		c.Store(wasm.I64_STORE, 3, offset)
	case wasm.F64:
		c.Store(wasm.F64_STORE, 3, offset)
	default:
		c.Store(wasm.I32_STORE, 2, offset)
	}
}

// zero pushes the zero value of vt.
func zero(c *wasm.Code, vt wasm.ValType) {
	switch vt {
	case wasm.I64:
		c.I64Const(0)
	case wasm.F64:
		c.F64Const(0)
	default:
		c.I32Const(0)
	}
}

// stringPool is the deduplicated literal area starting at abi.StaticBase.
type stringPool struct {
	data  []byte
	addrs map[string]uint32
}

func newStringPool() *stringPool {
	return &stringPool{addrs: map[string]uint32{}}
}

// intern returns the address of the length-prefixed copy of s.
func (p *stringPool) intern(s string) uint32 {
	if addr, ok := p.addrs[s]; ok {
		return addr
	}
	for len(p.data)%abi.PointerAlign != 0 {
		p.data = append(p.data, 0)
	}
	addr := abi.StaticBase + uint32(len(p.data))
	p.data = append(p.data, abi.EncodeString(s)...)
	p.addrs[s] = addr
	return addr
}

// end returns the first address after the pool.
func (p *stringPool) end() uint32 {
	return abi.StaticBase + uint32(len(p.data))
}

func (p *stringPool) bytes() []byte { return p.data }

// classLayout places the fields of a class, inherited fields first, so
// that a subclass object is a valid parent object.
type classLayout struct {
	size    uint32
	offsets map[*sema.FieldInfo]uint32
}

// Objects are allocated with this alignment.
const objectAlign = abi.WideAlign

func (g *generator) layout(class *sema.ClassInfo) *classLayout {
	if l, ok := g.layouts[class]; ok {
		return l
	}
	l := &classLayout{offsets: map[*sema.FieldInfo]uint32{}}
	var off uint32
	for _, f := range class.AllFields() {
		w := width(mustValType(f.Type))
		off = abi.Align(off, w)
		l.offsets[f] = off
		off += w
	}
	l.size = abi.Align(off, objectAlign)
	g.layouts[class] = l
	return l
}

// fieldOffset returns the offset of f in every object that has it.
func (g *generator) fieldOffset(f *sema.FieldInfo) uint32 {
	return g.layout(f.Owner).offsets[f]
}

// Array header: [len u32][cap u32][data u32].
const (
	arrayLen    = 0
	arrayCap    = 4
	arrayData   = 8
	arrayHeader = 12
)

// Matrix header: [rows u32][cols u32], then row-major elements.
const (
	matrixRows   = 0
	matrixCols   = 4
	matrixHeader = 8
)

// Async frame layout, shared with sema's slot assignment.
const (
	frameState  = sema.FrameState
	frameDone   = sema.FrameDone
	frameResult = sema.FrameResult
	frameChild  = sema.FrameChild
)
