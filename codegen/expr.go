package codegen

import (
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/kestrel-lang/kestrel/wasm"
)

// expr pushes the value of n. Void expressions push nothing.
func (fb *funcBuilder) expr(n *syntax.Node) {
	c := &fb.code
	if fb.g.target.Optimization >= 1 && (n.Kind == syntax.NodeBinary || n.Kind == syntax.NodeUnary) {
		if v, ok := fb.fold(n); ok {
			fb.constant(v)
			return
		}
	}

	switch n.Kind {
	case syntax.NodeInteger:
		if fb.typeOf(n).Kind == types.KindNumber {
			c.F64Const(float64(n.Integer))
		} else {
			c.I64Const(n.Integer)
		}

	case syntax.NodeFloat:
		c.F64Const(n.Float)

	case syntax.NodeString:
		c.I32Const(int32(fb.g.pool.intern(n.String)))

	case syntax.NodeBool:
		c.I32Const(boolInt(n.Bool))

	case syntax.NodeIdent:
		fb.ident(n)

	case syntax.NodeSelf:
		self := fb.u.fn.Self
		if self == nil {
			fail(n.Span, "self outside of a method")
		}
		fb.loadVar(self, n)

	case syntax.NodeBinary:
		fb.binary(n)

	case syntax.NodeUnary:
		fb.expr(n.Children[0])
		switch {
		case n.Op == "not":
			c.Op(wasm.I32_EQZ)
		case fb.typeOf(n).Kind == types.KindNumber:
			c.Op(wasm.F64_NEG)
		default:
			// 0 - x, with the operand already on the stack.
			tmp := fb.newLocal(wasm.I64)
			c.LocalSet(tmp)
			c.I64Const(0)
			c.LocalGet(tmp)
			c.Op(wasm.I64_SUB)
		}

	case syntax.NodeCall:
		fb.call(n)

	case syntax.NodeMember:
		field := fb.g.info.Fields[n]
		if field == nil {
			fail(n.Span, "member '%s' is not a field", n.String)
		}
		fb.expr(n.Children[0])
		load(c, mustValType(field.Type), fb.g.fieldOffset(field))

	case syntax.NodeIndex:
		fb.elemAddr(n)
		load(c, mustValType(fb.typeOf(n)), 0)

	case syntax.NodeArray:
		fb.arrayLiteral(n)

	case syntax.NodeAwait:
		fb.awaitValue(n)

	case syntax.NodeCatch:
		fb.catch(n)

	default:
		fail(n.Span, "unexpected %s in expression", n.Kind)
	}
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (fb *funcBuilder) ident(n *syntax.Node) {
	sym := fb.g.info.Uses[n]
	if sym == nil {
		fail(n.Span, "unresolved identifier '%s'", n.String)
	}
	switch {
	case sym.IsVariable():
		fb.loadVar(sym, n)
	case sym.Kind == sema.SymFunc:
		idx := fb.g.info.TableIndex(sym.Func)
		if idx < 0 {
			fail(n.Span, "function '%s' is not in the function table", sym.Func.Qualified)
		}
		fb.code.I32Const(int32(idx))
	default:
		fail(n.Span, "%s '%s' is not a value", sym.Kind, sym.Name)
	}
}

func (fb *funcBuilder) binary(n *syntax.Node) {
	c := &fb.code
	l, r := n.Children[0], n.Children[1]
	switch n.Op {
	case "and":
		fb.expr(l)
		c.If(byte(wasm.I32))
		fb.expr(r)
		c.Else()
		c.I32Const(0)
		c.End()
		return
	case "or":
		fb.expr(l)
		c.If(byte(wasm.I32))
		c.I32Const(1)
		c.Else()
		fb.expr(r)
		c.End()
		return
	}

	t := fb.typeOf(l)
	fb.expr(l)
	fb.expr(r)
	switch t.Kind {
	case types.KindInteger:
		op, ok := intOps[n.Op]
		if !ok {
			fail(n.Span, "operator '%s' on Integer", n.Op)
		}
		c.Op(op)
	case types.KindNumber:
		op, ok := floatOps[n.Op]
		if !ok {
			fail(n.Span, "operator '%s' on Number", n.Op)
		}
		c.Op(op)
	case types.KindString:
		switch n.Op {
		case "+":
			c.Call(fb.g.helper(helperStrConcat))
		case "==":
			c.Call(fb.g.helper(helperStrEq))
		case "!=":
			c.Call(fb.g.helper(helperStrEq))
			c.Op(wasm.I32_EQZ)
		default:
			fail(n.Span, "operator '%s' on String", n.Op)
		}
	default:
		// Booleans and references compare by value.
		switch n.Op {
		case "==":
			c.Op(wasm.I32_EQ)
		case "!=":
			c.Op(wasm.I32_NE)
		default:
			fail(n.Span, "operator '%s' on %s", n.Op, t)
		}
	}
}

var intOps = map[string]byte{
	"+": wasm.I64_ADD, "-": wasm.I64_SUB, "*": wasm.I64_MUL, "/": wasm.I64_DIV_S, "%": wasm.I64_REM_S,
	"==": wasm.I64_EQ, "!=": wasm.I64_NE, "<": wasm.I64_LT_S, ">": wasm.I64_GT_S, "<=": wasm.I64_LE_S, ">=": wasm.I64_GE_S,
}

var floatOps = map[string]byte{
	"+": wasm.F64_ADD, "-": wasm.F64_SUB, "*": wasm.F64_MUL, "/": wasm.F64_DIV,
	"==": wasm.F64_EQ, "!=": wasm.F64_NE, "<": wasm.F64_LT, ">": wasm.F64_GT, "<=": wasm.F64_LE, ">=": wasm.F64_GE,
}

// elemAddr pushes the address of an array or matrix element. Out of
// range indices trap.
func (fb *funcBuilder) elemAddr(n *syntax.Node) {
	c := &fb.code
	obj := n.Children[0]
	t := fb.typeOf(obj)
	es := int32(elemSize(t.ElemType()))
	fb.expr(obj)
	switch t.Kind {
	case types.KindArray:
		fb.expr(n.Children[1])
		c.I32Const(es)
		c.Call(fb.g.helper(helperArrayAddr))
	case types.KindMatrix:
		fb.expr(n.Children[1])
		fb.expr(n.Children[2])
		c.I32Const(es)
		c.Call(fb.g.helper(helperMatrixAddr))
	default:
		fail(n.Span, "cannot index %s", t)
	}
}

func (fb *funcBuilder) arrayLiteral(n *syntax.Node) {
	c := &fb.code
	elem := fb.typeOf(n).ElemType()
	vt, ok := valType(elem)
	if !ok {
		if len(n.Children) > 0 {
			fail(n.Span, "array elements without a value")
		}
		vt = wasm.I32
	}
	es := width(vt)
	arr := fb.newLocal(wasm.I32)
	c.I32Const(int32(len(n.Children)))
	c.I32Const(int32(es))
	c.Call(fb.g.helper(helperArrayNew))
	c.LocalSet(arr)
	for i, e := range n.Children {
		c.LocalGet(arr)
		c.Load(wasm.I32_LOAD, 2, arrayData)
		fb.expr(e)
		store(c, vt, uint32(i)*es)
	}
	c.LocalGet(arr)
}

// catch emits a fallible call followed by its failure check.
func (fb *funcBuilder) catch(n *syntax.Node) {
	c := &fb.code
	x := n.Children[0]
	call := fb.g.info.Catches[n]
	if call == nil {
		fail(n.Span, "catch without a resolved call")
	}
	if !call.Fallible {
		fb.expr(x)
		return
	}

	t := fb.typeOf(x)
	vt, hasValue := valType(t)
	var tmp uint32
	fb.expr(x)
	if hasValue {
		tmp = fb.newLocal(vt)
		c.LocalSet(tmp)
	}

	user := call.Kind != sema.CallBuiltin
	if user {
		c.GlobalGet(fb.g.errGlobal)
	} else {
		c.Call(fb.g.importIndex("_last_error"))
	}
	c.If(blockType(t))
	if n.Op == "raise" {
		fb.raise()
	} else {
		if user {
			c.I32Const(0)
			c.GlobalSet(fb.g.errGlobal)
		}
		fb.expr(n.Children[1])
	}
	if hasValue {
		c.Else()
		c.LocalGet(tmp)
	}
	c.End()
}

// raise makes the current function fail with its zero value.
func (fb *funcBuilder) raise() {
	c := &fb.code
	if fb.sm != nil || fb.u.fn.IsInit {
		fail(fb.u.fn.Span, "catch raise in '%s'", fb.u.fn.Qualified)
	}
	c.I32Const(1)
	c.GlobalSet(fb.g.errGlobal)
	if vt, ok := valType(fb.g.resultType(fb.u)); ok {
		zero(c, vt)
	}
	c.Return()
}
