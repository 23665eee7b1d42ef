package wasm

import "bytes"

// Code accumulates the instruction sequence of one function body.
type Code struct {
	buf bytes.Buffer
}

func (c *Code) Op(op byte)           { writeByte(&c.buf, op) }
func (c *Code) Bytes() []byte        { return c.buf.Bytes() }
func (c *Code) Len() int             { return c.buf.Len() }
func (c *Code) Append(other *Code)   { writeBytes(&c.buf, other.Bytes()) }
func (c *Code) Raw(data ...byte)     { writeBytes(&c.buf, data) }
func (c *Code) I32Const(v int32)     { c.Op(I32_CONST); writeLEB128Signed(&c.buf, int64(v)) }
func (c *Code) I64Const(v int64)     { c.Op(I64_CONST); writeLEB128Signed(&c.buf, v) }
func (c *Code) F64Const(v float64)   { c.Op(F64_CONST); writeF64(&c.buf, v) }
func (c *Code) LocalGet(idx uint32)  { c.Op(LOCAL_GET); writeLEB128(&c.buf, idx) }
func (c *Code) LocalSet(idx uint32)  { c.Op(LOCAL_SET); writeLEB128(&c.buf, idx) }
func (c *Code) LocalTee(idx uint32)  { c.Op(LOCAL_TEE); writeLEB128(&c.buf, idx) }
func (c *Code) GlobalGet(idx uint32) { c.Op(GLOBAL_GET); writeLEB128(&c.buf, idx) }
func (c *Code) GlobalSet(idx uint32) { c.Op(GLOBAL_SET); writeLEB128(&c.buf, idx) }
func (c *Code) Call(idx uint32)      { c.Op(CALL); writeLEB128(&c.buf, idx) }
func (c *Code) Br(depth uint32)      { c.Op(BR); writeLEB128(&c.buf, depth) }
func (c *Code) BrIf(depth uint32)    { c.Op(BR_IF); writeLEB128(&c.buf, depth) }
func (c *Code) Else()                { c.Op(ELSE) }
func (c *Code) End()                 { c.Op(END) }
func (c *Code) Return()              { c.Op(RETURN) }
func (c *Code) Drop()                { c.Op(DROP) }

// CallIndirect calls through table 0 using the function type typeIdx.
func (c *Code) CallIndirect(typeIdx uint32) {
	c.Op(CALL_INDIRECT)
	writeLEB128(&c.buf, typeIdx)
	writeByte(&c.buf, 0x00)
}

// Block opens a block whose result is bt (BlockVoid or a value type).
func (c *Code) Block(bt byte) { c.Op(BLOCK); writeByte(&c.buf, bt) }
func (c *Code) Loop(bt byte)  { c.Op(LOOP); writeByte(&c.buf, bt) }
func (c *Code) If(bt byte)    { c.Op(IF); writeByte(&c.buf, bt) }

// BrTable branches to targets[i] for the i32 on the stack, or to def when
// it is out of range.
func (c *Code) BrTable(targets []uint32, def uint32) {
	c.Op(BR_TABLE)
	writeLEB128(&c.buf, uint32(len(targets)))
	for _, t := range targets {
		writeLEB128(&c.buf, t)
	}
	writeLEB128(&c.buf, def)
}

// Load emits a memory load. align is the log2 alignment hint.
func (c *Code) Load(op byte, align, offset uint32) {
	c.Op(op)
	writeLEB128(&c.buf, align)
	writeLEB128(&c.buf, offset)
}

// Store emits a memory store. align is the log2 alignment hint.
func (c *Code) Store(op byte, align, offset uint32) {
	c.Load(op, align, offset)
}

func (c *Code) MemorySize() { c.Op(MEMORY_SIZE); writeByte(&c.buf, 0x00) }
func (c *Code) MemoryGrow() { c.Op(MEMORY_GROW); writeByte(&c.buf, 0x00) }

// MemoryCopy copies [src, src+n) to dst within memory 0.
func (c *Code) MemoryCopy() {
	c.Op(MISC_PREFIX)
	writeLEB128(&c.buf, MEMORY_COPY)
	writeByte(&c.buf, 0x00)
	writeByte(&c.buf, 0x00)
}

// MemoryFill emits memory.fill on memory 0: [dst, value, n] -> [].
func (c *Code) MemoryFill() {
	c.Op(MISC_PREFIX)
	writeLEB128(&c.buf, MEMORY_FILL)
	writeByte(&c.buf, 0x00)
}
