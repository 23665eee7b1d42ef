package codegen

import (
	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/wasm"
)

// Generated helper functions.
const (
	helperAlloc      = "$alloc"
	helperHeapReset  = "$heap_reset"
	helperStrConcat  = "$str_concat"
	helperStrEq      = "$str_eq"
	helperArrayNew   = "$array_new"
	helperArrayAddr  = "$array_addr"
	helperArrayPush  = "$array_push"
	helperMatrixNew  = "$matrix_new"
	helperMatrixAddr = "$matrix_addr"
)

type helperSpec struct {
	sig    wasm.FuncType
	locals []wasm.ValType
	build  func(g *generator, c *wasm.Code)
}

var (
	i32 = wasm.I32
	i64 = wasm.I64
)

func vts(v ...wasm.ValType) []wasm.ValType { return v }

// helperSpecs is filled by init: the builders refer back to it through
// g.helper.
var helperSpecs map[string]helperSpec

func init() {
	helperSpecs = map[string]helperSpec{
		// $alloc(size, align) -> ptr
		helperAlloc: {
			sig:    wasm.FuncType{Params: vts(i32, i32), Results: vts(i32)},
			locals: vts(i32, i64),
			build:  buildAlloc,
		},
		// $heap_reset()
		helperHeapReset: {
			sig: wasm.FuncType{},
			build: func(g *generator, c *wasm.Code) {
				c.I32Const(abi.HeapPointerAddr)
				c.I32Const(int32(g.heapBase))
				c.Store(wasm.I32_STORE, 2, 0)
			},
		},
		// $str_concat(a, b) -> ptr
		helperStrConcat: {
			sig:    wasm.FuncType{Params: vts(i32, i32), Results: vts(i32)},
			locals: vts(i32, i32, i32),
			build:  buildStrConcat,
		},
		// $str_eq(a, b) -> bool
		helperStrEq: {
			sig:    wasm.FuncType{Params: vts(i32, i32), Results: vts(i32)},
			locals: vts(i32, i32),
			build:  buildStrEq,
		},
		// $array_new(len, elemSize) -> arr
		helperArrayNew: {
			sig:    wasm.FuncType{Params: vts(i32, i32), Results: vts(i32)},
			locals: vts(i32),
			build:  buildArrayNew,
		},
		// $array_addr(arr, index, elemSize) -> address of the element
		helperArrayAddr: {
			sig:   wasm.FuncType{Params: vts(i32, i64, i32), Results: vts(i32)},
			build: buildArrayAddr,
		},
		// $array_push(arr, elemSize) -> address of the new last element
		helperArrayPush: {
			sig:    wasm.FuncType{Params: vts(i32, i32), Results: vts(i32)},
			locals: vts(i32, i32, i32),
			build:  buildArrayPush,
		},
		// $matrix_new(rows, cols, elemSize) -> m
		helperMatrixNew: {
			sig:    wasm.FuncType{Params: vts(i64, i64, i32), Results: vts(i32)},
			locals: vts(i32, i64),
			build:  buildMatrixNew,
		},
		// $matrix_addr(m, row, col, elemSize) -> address of the element
		helperMatrixAddr: {
			sig:   wasm.FuncType{Params: vts(i32, i64, i64, i32), Results: vts(i32)},
			build: buildMatrixAddr,
		},
	}
}

// helper returns the index of a generated helper, declaring it on first
// use. Bodies are built by finish, once the static layout is known.
func (g *generator) helper(name string) uint32 {
	if idx, ok := g.helpers[name]; ok {
		return idx
	}
	spec, ok := helperSpecs[name]
	if !ok {
		fail(zeroSpan, "unknown helper %s", name)
	}
	idx := g.addFunc(name, spec.sig)
	g.helpers[name] = idx
	g.pendingHelpers = append(g.pendingHelpers, name)
	return idx
}

func (g *generator) buildHelper(name string) {
	spec := helperSpecs[name]
	var c wasm.Code
	spec.build(g, &c)
	g.setBody(g.helpers[name], spec.locals, &c)
}

func loadI32(c *wasm.Code, local, offset uint32) {
	c.LocalGet(local)
	c.Load(wasm.I32_LOAD, 2, offset)
}

func buildAlloc(g *generator, c *wasm.Code) {
	const size, align, ptr, end = 0, 1, 2, 3
	// align = max(align, 4)
	c.LocalGet(align)
	c.I32Const(abi.PointerAlign)
	c.Op(wasm.I32_LT_U)
	c.If(wasm.BlockVoid)
	c.I32Const(abi.PointerAlign)
	c.LocalSet(align)
	c.End()
	// size = max(size, 1)
	c.LocalGet(size)
	c.Op(wasm.I32_EQZ)
	c.If(wasm.BlockVoid)
	c.I32Const(1)
	c.LocalSet(size)
	c.End()
	// Addresses are computed in i64 so that rounding and ptr+size cannot wrap.
	// end = (heap + align - 1) & -align, the aligned start for now
	c.I32Const(abi.HeapPointerAddr)
	c.Load(wasm.I32_LOAD, 2, 0)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.LocalGet(align)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_ADD)
	c.I64Const(1)
	c.Op(wasm.I64_SUB)
	c.I64Const(0)
	c.LocalGet(align)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_SUB)
	c.Op(wasm.I64_AND)
	c.LocalTee(end)
	c.Op(wasm.I32_WRAP_I64)
	c.LocalSet(ptr)
	// end += size; trap past the 32-bit address space
	c.LocalGet(end)
	c.LocalGet(size)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_ADD)
	c.LocalTee(end)
	c.I64Const(maxAddress)
	c.Op(wasm.I64_GT_U)
	trapIf(c)
	// grow when end is past the memory; trap when it cannot grow
	c.LocalGet(end)
	memoryBytes(c)
	c.Op(wasm.I64_GT_U)
	c.If(wasm.BlockVoid)
	c.LocalGet(end)
	memoryBytes(c)
	c.Op(wasm.I64_SUB)
	c.I64Const(abi.PageSize - 1)
	c.Op(wasm.I64_ADD)
	c.I64Const(16)
	c.Op(wasm.I64_SHR_U)
	c.Op(wasm.I32_WRAP_I64)
	c.MemoryGrow()
	c.I32Const(-1)
	c.Op(wasm.I32_EQ)
	trapIf(c)
	c.End()
	// heap = end; memory past the pointer is reused after a reset
	c.I32Const(abi.HeapPointerAddr)
	c.LocalGet(end)
	c.Op(wasm.I32_WRAP_I64)
	c.Store(wasm.I32_STORE, 2, 0)
	c.LocalGet(ptr)
	c.I32Const(0)
	c.LocalGet(size)
	c.MemoryFill()
	c.LocalGet(ptr)
}

// maxAddress is the last byte address of a 32-bit memory.
const maxAddress = 1<<32 - 1

// memoryBytes pushes the current memory size in bytes as an i64.
func memoryBytes(c *wasm.Code) {
	c.MemorySize()
	c.Op(wasm.I64_EXTEND_I32_U)
	c.I64Const(16)
	c.Op(wasm.I64_SHL)
}

func buildStrConcat(g *generator, c *wasm.Code) {
	const a, b, la, lb, p = 0, 1, 2, 3, 4
	loadI32(c, a, 0)
	c.LocalSet(la)
	loadI32(c, b, 0)
	c.LocalSet(lb)
	c.LocalGet(la)
	c.LocalGet(lb)
	c.Op(wasm.I32_ADD)
	c.I32Const(abi.StringHeaderSize)
	c.Op(wasm.I32_ADD)
	c.I32Const(abi.PointerAlign)
	c.Call(g.allocIndex())
	c.LocalSet(p)
	// length
	c.LocalGet(p)
	c.LocalGet(la)
	c.LocalGet(lb)
	c.Op(wasm.I32_ADD)
	c.Store(wasm.I32_STORE, 2, 0)
	// bytes of a
	c.LocalGet(p)
	c.I32Const(abi.StringHeaderSize)
	c.Op(wasm.I32_ADD)
	c.LocalGet(a)
	c.I32Const(abi.StringHeaderSize)
	c.Op(wasm.I32_ADD)
	c.LocalGet(la)
	c.MemoryCopy()
	// bytes of b
	c.LocalGet(p)
	c.I32Const(abi.StringHeaderSize)
	c.Op(wasm.I32_ADD)
	c.LocalGet(la)
	c.Op(wasm.I32_ADD)
	c.LocalGet(b)
	c.I32Const(abi.StringHeaderSize)
	c.Op(wasm.I32_ADD)
	c.LocalGet(lb)
	c.MemoryCopy()
	c.LocalGet(p)
}

func buildStrEq(g *generator, c *wasm.Code) {
	const a, b, n, i = 0, 1, 2, 3
	c.LocalGet(a)
	c.LocalGet(b)
	c.Op(wasm.I32_EQ)
	c.If(wasm.BlockVoid)
	c.I32Const(1)
	c.Return()
	c.End()
	loadI32(c, a, 0)
	c.LocalTee(n)
	loadI32(c, b, 0)
	c.Op(wasm.I32_NE)
	c.If(wasm.BlockVoid)
	c.I32Const(0)
	c.Return()
	c.End()
	c.Block(wasm.BlockVoid)
	c.Loop(wasm.BlockVoid)
	c.LocalGet(i)
	c.LocalGet(n)
	c.Op(wasm.I32_GE_U)
	c.BrIf(1)
	c.LocalGet(a)
	c.LocalGet(i)
	c.Op(wasm.I32_ADD)
	c.Load(wasm.I32_LOAD8_U, 0, abi.StringHeaderSize)
	c.LocalGet(b)
	c.LocalGet(i)
	c.Op(wasm.I32_ADD)
	c.Load(wasm.I32_LOAD8_U, 0, abi.StringHeaderSize)
	c.Op(wasm.I32_NE)
	c.If(wasm.BlockVoid)
	c.I32Const(0)
	c.Return()
	c.End()
	c.LocalGet(i)
	c.I32Const(1)
	c.Op(wasm.I32_ADD)
	c.LocalSet(i)
	c.Br(0)
	c.End()
	c.End()
	c.I32Const(1)
}

func buildArrayNew(g *generator, c *wasm.Code) {
	const n, es, arr = 0, 1, 2
	c.I32Const(arrayHeader)
	c.I32Const(abi.PointerAlign)
	c.Call(g.allocIndex())
	c.LocalSet(arr)
	c.LocalGet(arr)
	c.LocalGet(n)
	c.Store(wasm.I32_STORE, 2, arrayLen)
	c.LocalGet(arr)
	c.LocalGet(n)
	c.Store(wasm.I32_STORE, 2, arrayCap)
	c.LocalGet(arr)
	c.LocalGet(n)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.LocalGet(es)
	c.Call(g.allocIndex())
	c.Store(wasm.I32_STORE, 2, arrayData)
	c.LocalGet(arr)
}

// trapIf traps when the i32 condition on the stack is non-zero.
func trapIf(c *wasm.Code) {
	c.If(wasm.BlockVoid)
	c.Op(wasm.UNREACHABLE)
	c.End()
}

func buildArrayAddr(g *generator, c *wasm.Code) {
	const arr, i, es = 0, 1, 2
	c.LocalGet(i)
	loadI32(c, arr, arrayLen)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_GE_U)
	trapIf(c)
	loadI32(c, arr, arrayData)
	c.LocalGet(i)
	c.Op(wasm.I32_WRAP_I64)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.Op(wasm.I32_ADD)
}

func buildArrayPush(g *generator, c *wasm.Code) {
	const arr, es, n, capacity, data = 0, 1, 2, 3, 4
	loadI32(c, arr, arrayLen)
	c.LocalSet(n)
	loadI32(c, arr, arrayCap)
	c.LocalSet(capacity)
	c.LocalGet(n)
	c.LocalGet(capacity)
	c.Op(wasm.I32_EQ)
	c.If(wasm.BlockVoid)
	// capacity doubles, starting at 4
	c.LocalGet(capacity)
	c.I32Const(1)
	c.Op(wasm.I32_SHL)
	c.LocalTee(capacity)
	c.Op(wasm.I32_EQZ)
	c.If(wasm.BlockVoid)
	c.I32Const(4)
	c.LocalSet(capacity)
	c.End()
	c.LocalGet(capacity)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.LocalGet(es)
	c.Call(g.allocIndex())
	c.LocalSet(data)
	c.LocalGet(data)
	loadI32(c, arr, arrayData)
	c.LocalGet(n)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.MemoryCopy()
	c.LocalGet(arr)
	c.LocalGet(data)
	c.Store(wasm.I32_STORE, 2, arrayData)
	c.LocalGet(arr)
	c.LocalGet(capacity)
	c.Store(wasm.I32_STORE, 2, arrayCap)
	c.End()
	c.LocalGet(arr)
	c.LocalGet(n)
	c.I32Const(1)
	c.Op(wasm.I32_ADD)
	c.Store(wasm.I32_STORE, 2, arrayLen)
	loadI32(c, arr, arrayData)
	c.LocalGet(n)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.Op(wasm.I32_ADD)
}

// buildMatrixNew traps on negative dimensions and on element counts whose
// byte size does not fit a 32-bit memory, so the element area always covers
// rows*cols elements and $matrix_addr's bounds check is exact.
func buildMatrixNew(g *generator, c *wasm.Code) {
	const rows, cols, es, m, n = 0, 1, 2, 3, 4
	c.LocalGet(rows)
	c.I64Const(0)
	c.Op(wasm.I64_LT_S)
	c.LocalGet(cols)
	c.I64Const(0)
	c.Op(wasm.I64_LT_S)
	c.Op(wasm.I32_OR)
	trapIf(c)
	// each dimension fits in u32, so the product cannot wrap in i64
	c.LocalGet(rows)
	c.I64Const(maxAddress)
	c.Op(wasm.I64_GT_U)
	c.LocalGet(cols)
	c.I64Const(maxAddress)
	c.Op(wasm.I64_GT_U)
	c.Op(wasm.I32_OR)
	trapIf(c)
	// n = rows*cols; trap when n*es + header > maxAddress
	c.LocalGet(rows)
	c.LocalGet(cols)
	c.Op(wasm.I64_MUL)
	c.LocalTee(n)
	c.I64Const(maxAddress - matrixHeader)
	c.LocalGet(es)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_DIV_U)
	c.Op(wasm.I64_GT_U)
	trapIf(c)
	c.LocalGet(n)
	c.Op(wasm.I32_WRAP_I64)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.I32Const(matrixHeader)
	c.Op(wasm.I32_ADD)
	c.I32Const(abi.WideAlign)
	c.Call(g.allocIndex())
	c.LocalSet(m)
	c.LocalGet(m)
	c.LocalGet(rows)
	c.Op(wasm.I32_WRAP_I64)
	c.Store(wasm.I32_STORE, 2, matrixRows)
	c.LocalGet(m)
	c.LocalGet(cols)
	c.Op(wasm.I32_WRAP_I64)
	c.Store(wasm.I32_STORE, 2, matrixCols)
	c.LocalGet(m)
}

func buildMatrixAddr(g *generator, c *wasm.Code) {
	const m, row, col, es = 0, 1, 2, 3
	c.LocalGet(row)
	loadI32(c, m, matrixRows)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_GE_U)
	c.LocalGet(col)
	loadI32(c, m, matrixCols)
	c.Op(wasm.I64_EXTEND_I32_U)
	c.Op(wasm.I64_GE_U)
	c.Op(wasm.I32_OR)
	trapIf(c)
	// m + header + (row*cols + col)*es
	c.LocalGet(m)
	c.I32Const(matrixHeader)
	c.Op(wasm.I32_ADD)
	c.LocalGet(row)
	c.Op(wasm.I32_WRAP_I64)
	loadI32(c, m, matrixCols)
	c.Op(wasm.I32_MUL)
	c.LocalGet(col)
	c.Op(wasm.I32_WRAP_I64)
	c.Op(wasm.I32_ADD)
	c.LocalGet(es)
	c.Op(wasm.I32_MUL)
	c.Op(wasm.I32_ADD)
}
