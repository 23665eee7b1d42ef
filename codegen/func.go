package codegen

import (
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/kestrel-lang/kestrel/wasm"
)

// funcBuilder emits the body of one wasm function.
type funcBuilder struct {
	g    *generator
	u    *unit
	code wasm.Code

	nparams uint32
	locals  []wasm.ValType
	vars    map[*sema.Symbol]uint32

	// depth counts the open control blocks. Labels are the depth right
	// after their block was opened.
	depth int
	loops []loopLabels

	// Async resume functions keep every variable in the frame.
	sm    *sema.StateMachine
	frame uint32
}

type loopLabels struct{ brk, cont int }

func (g *generator) newFuncBuilder(u *unit, params []wasm.ValType) *funcBuilder {
	return &funcBuilder{g: g, u: u, nparams: uint32(len(params)), vars: map[*sema.Symbol]uint32{}}
}

func (fb *funcBuilder) newLocal(vt wasm.ValType) uint32 {
	fb.locals = append(fb.locals, vt)
	return fb.nparams + uint32(len(fb.locals)) - 1
}

// bindParams maps the receiver and the parameters to their wasm locals.
func (fb *funcBuilder) bindParams() {
	var idx uint32
	if self := fb.u.fn.Self; self != nil {
		fb.vars[self] = idx
		idx++
	}
	for _, p := range fb.u.fn.Params {
		fb.vars[p] = idx
		idx++
	}
}

func (fb *funcBuilder) bindLocals() {
	for _, sym := range fb.u.fn.Locals {
		fb.vars[sym] = fb.newLocal(mustValType(fb.symType(sym)))
	}
}

func (fb *funcBuilder) finish(idx uint32) {
	fb.g.setBody(idx, fb.locals, &fb.code)
}

func (fb *funcBuilder) typeOf(n *syntax.Node) types.Type {
	t, ok := fb.g.info.Types[n]
	if !ok {
		fail(n.Span, "expression without a type")
	}
	return types.Subst(t, fb.u.subst)
}

func (fb *funcBuilder) symType(sym *sema.Symbol) types.Type {
	return types.Subst(sym.Type, fb.u.subst)
}

// Control blocks.

func (fb *funcBuilder) block() int {
	fb.code.Block(wasm.BlockVoid)
	fb.depth++
	return fb.depth
}

func (fb *funcBuilder) loop() int {
	fb.code.Loop(wasm.BlockVoid)
	fb.depth++
	return fb.depth
}

func (fb *funcBuilder) ifThen(bt byte) {
	fb.code.If(bt)
	fb.depth++
}

func (fb *funcBuilder) end() {
	fb.code.End()
	fb.depth--
}

func (fb *funcBuilder) br(label int)   { fb.code.Br(uint32(fb.depth - label)) }
func (fb *funcBuilder) brIf(label int) { fb.code.BrIf(uint32(fb.depth - label)) }

// blockType returns the block type producing a value of t.
func blockType(t types.Type) byte {
	if vt, ok := valType(t); ok {
		return byte(vt)
	}
	return wasm.BlockVoid
}

// Variables.

func (fb *funcBuilder) loadVar(sym *sema.Symbol, at *syntax.Node) {
	vt := mustValType(fb.symType(sym))
	if fb.sm != nil {
		fb.code.LocalGet(fb.frame)
		load(&fb.code, vt, fb.slot(sym, at))
		return
	}
	fb.code.LocalGet(fb.local(sym, at))
}

// setVar stores the value pushed by value into sym.
func (fb *funcBuilder) setVar(sym *sema.Symbol, at *syntax.Node, value func()) {
	vt := mustValType(fb.symType(sym))
	if fb.sm != nil {
		fb.code.LocalGet(fb.frame)
		value()
		store(&fb.code, vt, fb.slot(sym, at))
		return
	}
	value()
	fb.code.LocalSet(fb.local(sym, at))
}

func (fb *funcBuilder) local(sym *sema.Symbol, at *syntax.Node) uint32 {
	idx, ok := fb.vars[sym]
	if !ok {
		fail(at.Span, "variable '%s' has no storage", sym.Name)
	}
	return idx
}

func (fb *funcBuilder) slot(sym *sema.Symbol, at *syntax.Node) uint32 {
	off := fb.sm.SlotOffset(sym)
	if off < 0 {
		fail(at.Span, "variable '%s' has no frame slot", sym.Name)
	}
	return uint32(off)
}

// Statements.

func (fb *funcBuilder) stmts(list []*syntax.Node) {
	for _, s := range list {
		fb.stmt(s)
	}
}

func (fb *funcBuilder) stmt(n *syntax.Node) {
	c := &fb.code
	switch n.Kind {
	case syntax.NodeLet:
		sym := fb.g.info.Defs[n]
		if sym == nil {
			fail(n.Span, "let without a variable")
		}
		fb.setVar(sym, n, func() { fb.expr(n.Children[0]) })

	case syntax.NodeAssign:
		fb.assign(n)

	case syntax.NodeReturn:
		fb.ret(n)

	case syntax.NodeIf:
		fb.ifChain(n.Children)

	case syntax.NodeWhile:
		brk := fb.block()
		cont := fb.loop()
		fb.expr(n.Children[0])
		c.Op(wasm.I32_EQZ)
		fb.brIf(brk)
		fb.loops = append(fb.loops, loopLabels{brk: brk, cont: cont})
		fb.stmts(n.Children[1].Children)
		fb.loops = fb.loops[:len(fb.loops)-1]
		fb.br(cont)
		fb.end()
		fb.end()

	case syntax.NodeFor:
		if fb.g.info.Ranges[n] {
			fb.forRange(n)
		} else {
			fb.forArray(n)
		}

	case syntax.NodeBreak:
		fb.br(fb.innerLoop(n).brk)

	case syntax.NodeContinue:
		fb.br(fb.innerLoop(n).cont)

	case syntax.NodePass:

	case syntax.NodeExprStmt:
		x := n.Children[0]
		fb.expr(x)
		if _, ok := valType(fb.typeOf(x)); ok {
			c.Drop()
		}

	default:
		fail(n.Span, "unexpected %s in statement position", n.Kind)
	}
}

func (fb *funcBuilder) innerLoop(n *syntax.Node) loopLabels {
	if len(fb.loops) == 0 {
		fail(n.Span, "%s outside of a loop", n.Kind)
	}
	return fb.loops[len(fb.loops)-1]
}

// ifChain emits cond, block, cond, block, ..., else-block? as nested ifs.
func (fb *funcBuilder) ifChain(parts []*syntax.Node) {
	fb.expr(parts[0])
	fb.ifThen(wasm.BlockVoid)
	fb.stmts(parts[1].Children)
	switch rest := parts[2:]; len(rest) {
	case 0:
	case 1:
		fb.code.Else()
		fb.stmts(rest[0].Children)
	default:
		fb.code.Else()
		fb.ifChain(rest)
	}
	fb.end()
}

// forRange runs the body for a, a+1, ..., b-1. Assigning the loop
// variable does not change the iteration.
func (fb *funcBuilder) forRange(n *syntax.Node) {
	c := &fb.code
	call := fb.g.info.Calls[n.Children[0]]
	if call == nil || len(call.Args) != 2 {
		fail(n.Span, "malformed range loop")
	}
	cur, end := fb.newLocal(wasm.I64), fb.newLocal(wasm.I64)
	fb.expr(call.Args[0])
	c.LocalSet(cur)
	fb.expr(call.Args[1])
	c.LocalSet(end)

	sym := fb.g.info.Defs[n]
	brk := fb.block()
	top := fb.loop()
	c.LocalGet(cur)
	c.LocalGet(end)
	c.Op(wasm.I64_GE_S)
	fb.brIf(brk)
	fb.setVar(sym, n, func() { c.LocalGet(cur) })
	cont := fb.block()
	fb.loops = append(fb.loops, loopLabels{brk: brk, cont: cont})
	fb.stmts(n.Children[1].Children)
	fb.loops = fb.loops[:len(fb.loops)-1]
	fb.end()
	c.LocalGet(cur)
	c.I64Const(1)
	c.Op(wasm.I64_ADD)
	c.LocalSet(cur)
	fb.br(top)
	fb.end()
	fb.end()
}

// forArray visits the elements of an array. The length is read before
// every iteration, so elements pushed by the body are visited too.
func (fb *funcBuilder) forArray(n *syntax.Node) {
	c := &fb.code
	iter := n.Children[0]
	elem := fb.typeOf(iter).ElemType()
	vt := mustValType(elem)
	es := width(vt)

	arr, i := fb.newLocal(wasm.I32), fb.newLocal(wasm.I32)
	fb.expr(iter)
	c.LocalSet(arr)

	sym := fb.g.info.Defs[n]
	brk := fb.block()
	top := fb.loop()
	c.LocalGet(i)
	c.LocalGet(arr)
	c.Load(wasm.I32_LOAD, 2, arrayLen)
	c.Op(wasm.I32_GE_U)
	fb.brIf(brk)
	fb.setVar(sym, n, func() {
		c.LocalGet(arr)
		c.Load(wasm.I32_LOAD, 2, arrayData)
		c.LocalGet(i)
		c.I32Const(int32(es))
		c.Op(wasm.I32_MUL)
		c.Op(wasm.I32_ADD)
		load(c, vt, 0)
	})
	cont := fb.block()
	fb.loops = append(fb.loops, loopLabels{brk: brk, cont: cont})
	fb.stmts(n.Children[1].Children)
	fb.loops = fb.loops[:len(fb.loops)-1]
	fb.end()
	c.LocalGet(i)
	c.I32Const(1)
	c.Op(wasm.I32_ADD)
	c.LocalSet(i)
	fb.br(top)
	fb.end()
	fb.end()
}

func (fb *funcBuilder) assign(n *syntax.Node) {
	c := &fb.code
	target, value := n.Children[0], n.Children[1]
	t := fb.typeOf(target)
	vt := mustValType(t)

	// rhs pushes the stored value; current pushes the old value for the
	// compound operators.
	rhs := func(current func()) {
		if n.Op == "=" {
			fb.expr(value)
			return
		}
		current()
		fb.expr(value)
		fb.compound(n, t)
	}

	switch target.Kind {
	case syntax.NodeIdent:
		sym := fb.g.info.Uses[target]
		if sym == nil {
			fail(target.Span, "assignment to an unresolved name")
		}
		fb.setVar(sym, target, func() { rhs(func() { fb.loadVar(sym, target) }) })

	case syntax.NodeMember:
		field := fb.g.info.Fields[target]
		if field == nil {
			fail(target.Span, "assignment to an unresolved field")
		}
		off := fb.g.fieldOffset(field)
		obj := fb.newLocal(wasm.I32)
		fb.expr(target.Children[0])
		c.LocalTee(obj)
		rhs(func() {
			c.LocalGet(obj)
			load(c, vt, off)
		})
		store(c, vt, off)

	case syntax.NodeIndex:
		addr := fb.newLocal(wasm.I32)
		fb.elemAddr(target)
		c.LocalTee(addr)
		rhs(func() {
			c.LocalGet(addr)
			load(c, vt, 0)
		})
		store(c, vt, 0)

	default:
		fail(target.Span, "cannot assign to %s", target.Kind)
	}
}

// compound applies += or -= to the two values on the stack.
func (fb *funcBuilder) compound(n *syntax.Node, t types.Type) {
	c := &fb.code
	switch {
	case t.Kind == types.KindString && n.Op == "+=":
		c.Call(fb.g.helper(helperStrConcat))
	case t.Kind == types.KindInteger && n.Op == "+=":
		c.Op(wasm.I64_ADD)
	case t.Kind == types.KindInteger && n.Op == "-=":
		c.Op(wasm.I64_SUB)
	case t.Kind == types.KindNumber && n.Op == "+=":
		c.Op(wasm.F64_ADD)
	case t.Kind == types.KindNumber && n.Op == "-=":
		c.Op(wasm.F64_SUB)
	default:
		fail(n.Span, "operator '%s' on %s", n.Op, t)
	}
}

func (fb *funcBuilder) ret(n *syntax.Node) {
	c := &fb.code
	if fb.sm != nil {
		if len(n.Children) > 0 {
			vt := mustValType(fb.typeOf(n.Children[0]))
			c.LocalGet(fb.frame)
			fb.expr(n.Children[0])
			store(c, vt, frameResult)
		}
		fb.markDone()
		c.I32Const(1)
		c.Return()
		return
	}
	if len(n.Children) > 0 {
		fb.expr(n.Children[0])
	}
	c.Return()
}

func (fb *funcBuilder) markDone() {
	c := &fb.code
	c.LocalGet(fb.frame)
	c.I32Const(1)
	c.Store(wasm.I32_STORE, 2, frameDone)
}

// emitUnit builds the wasm functions of u.
func (g *generator) emitUnit(u *unit) {
	switch {
	case u.fn.IsInit:
		g.emitInit(u)
		g.emitNew(u)
	case u.fn.Async:
		g.emitAsyncEntry(u)
		g.emitResume(u)
	default:
		g.emitFunc(u)
	}
}

func (g *generator) emitFunc(u *unit) {
	fb := g.newFuncBuilder(u, g.paramTypes(u))
	fb.bindParams()
	fb.bindLocals()
	fb.stmts(u.fn.Decl.Body().Children)
	if _, ok := valType(g.resultType(u)); ok {
		// Every path returned explicitly.
		fb.code.Op(wasm.UNREACHABLE)
	}
	fb.finish(u.index)
}

// emitInit builds C.init(self, params...), which initializes an allocated
// object.
func (g *generator) emitInit(u *unit) {
	f := u.fn
	fb := g.newFuncBuilder(u, g.paramTypes(u))
	c := &fb.code
	fb.bindParams()

	if f.ImplicitSuper != nil {
		c.LocalGet(0)
		for i := 0; i < f.ForwardArgs; i++ {
			c.LocalGet(uint32(1 + i))
		}
		c.Call(g.lookup(f.ImplicitSuper, nil).index)
	}
	if f.Memberwise {
		for i, field := range f.InitFields {
			c.LocalGet(0)
			c.LocalGet(uint32(1 + f.ForwardArgs + i))
			store(c, mustValType(field.Type), g.fieldOffset(field))
		}
	} else {
		fb.bindLocals()
		fb.stmts(f.Decl.Body().Children)
	}
	fb.finish(u.index)
}

// emitNew builds C$new(params...), the constructor called by user code.
func (g *generator) emitNew(u *unit) {
	params := g.paramTypes(u)[1:]
	fb := g.newFuncBuilder(u, params)
	c := &fb.code
	obj := fb.newLocal(wasm.I32)
	c.I32Const(int32(g.layout(u.fn.Class).size))
	c.I32Const(objectAlign)
	c.Call(g.allocIndex())
	c.LocalTee(obj)
	for i := range params {
		c.LocalGet(uint32(i))
	}
	c.Call(u.index)
	c.LocalGet(obj)
	fb.finish(u.aux)
}
