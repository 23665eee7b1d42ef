package codegen

import (
	"slices"

	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/kestrel-lang/kestrel/wasm"
)

// callee returns the unit a user call made from u resolves to. Methods
// are bound statically.
func (g *generator) callee(call *sema.Call, from *unit) *unit {
	if call.Instance != nil {
		return g.lookup(call.Instance.Func, instanceSubst(call.Instance, from))
	}
	if call.Func == nil {
		fail(zeroSpan, "call without a callee")
	}
	return g.lookup(call.Func, nil)
}

// callArgs pushes the receiver and the arguments of a user call.
func (fb *funcBuilder) callArgs(call *sema.Call) {
	if call.Kind == sema.CallMethod {
		fb.expr(call.Receiver)
	}
	for _, a := range call.Args {
		fb.expr(a)
	}
}

// call pushes the result of the call n.
func (fb *funcBuilder) call(n *syntax.Node) {
	c := &fb.code
	call := fb.g.info.Calls[n]
	if call == nil {
		fail(n.Span, "call without resolution")
	}
	switch call.Kind {
	case sema.CallFunc, sema.CallMethod:
		if call.Awaited {
			fail(n.Span, "awaited call outside of an await statement")
		}
		u := fb.g.callee(call, fb.u)
		fb.callArgs(call)
		c.Call(u.index)
		if u.fn.Async {
			vt, ok := valType(fb.typeOf(n))
			fb.trampoline(u, vt, ok)
		}

	case sema.CallConstructor:
		for _, a := range call.Args {
			fb.expr(a)
		}
		c.Call(fb.g.lookup(call.Func, nil).aux)

	case sema.CallSuper:
		self := fb.u.fn.Self
		if self == nil {
			fail(n.Span, "super(...) outside of a constructor")
		}
		fb.loadVar(self, n)
		for _, a := range call.Args {
			fb.expr(a)
		}
		c.Call(fb.g.lookup(call.Func, nil).index)

	case sema.CallIndirect:
		callee := n.Children[0]
		ft := fb.typeOf(callee)
		for _, a := range call.Args {
			fb.expr(a)
		}
		fb.expr(callee)
		c.CallIndirect(fb.g.mod.AddType(funcType(ft)))

	case sema.CallBuiltin:
		fb.builtin(n, call)

	default:
		fail(n.Span, "unknown call kind %d", call.Kind)
	}
}

// funcType lowers the type of a function value.
func funcType(t types.Type) wasm.FuncType {
	var params []wasm.ValType
	for _, p := range t.Params {
		params = append(params, mustValType(p))
	}
	return wasm.FuncType{Params: params, Results: results(t.Result())}
}

func (fb *funcBuilder) builtin(n *syntax.Node, call *sema.Call) {
	c := &fb.code
	b := call.Builtin
	switch b.Intrinsic {
	case sema.IntrinsicPrint:
		fb.hostCall(n, call.Import, nil, call.Args)

	case sema.IntrinsicStr:
		arg := call.Args[0]
		switch fb.typeOf(arg).Kind {
		case types.KindString:
			fb.expr(arg)
		case types.KindBoolean:
			fb.expr(arg)
			c.If(byte(wasm.I32))
			c.I32Const(int32(fb.g.pool.intern("true")))
			c.Else()
			c.I32Const(int32(fb.g.pool.intern("false")))
			c.End()
		default:
			fb.hostCall(n, call.Import, nil, call.Args)
		}

	case sema.IntrinsicLen:
		fb.expr(call.Receiver)
		if fb.typeOf(call.Receiver).Kind == types.KindString {
			c.Load(wasm.I32_LOAD, 2, 0)
		} else {
			c.Load(wasm.I32_LOAD, 2, arrayLen)
		}
		c.Op(wasm.I64_EXTEND_I32_U)

	case sema.IntrinsicRows, sema.IntrinsicCols:
		fb.expr(call.Receiver)
		off := uint32(matrixRows)
		if b.Intrinsic == sema.IntrinsicCols {
			off = matrixCols
		}
		c.Load(wasm.I32_LOAD, 2, off)
		c.Op(wasm.I64_EXTEND_I32_U)

	case sema.IntrinsicPush:
		vt := mustValType(fb.typeOf(call.Receiver).ElemType())
		fb.expr(call.Receiver)
		c.I32Const(int32(width(vt)))
		c.Call(fb.g.helper(helperArrayPush))
		fb.expr(call.Args[0])
		store(c, vt, 0)

	case sema.IntrinsicMatrix:
		fb.matrixFill(n, call)

	case sema.IntrinsicRange:
		fail(n.Span, "range(...) outside of a for loop")

	case sema.IntrinsicYield:
		fail(n.Span, "yield() outside of an await statement")

	default:
		fb.hostCall(n, call.Import, call.Receiver, call.Args)
	}
}

// matrixFill allocates a matrix and stores the fill value in every cell.
func (fb *funcBuilder) matrixFill(n *syntax.Node, call *sema.Call) {
	c := &fb.code
	vt := mustValType(fb.typeOf(n).ElemType())
	es := int32(width(vt))
	m, fill, count, i := fb.newLocal(wasm.I32), fb.newLocal(vt), fb.newLocal(wasm.I32), fb.newLocal(wasm.I32)

	fb.expr(call.Args[0])
	fb.expr(call.Args[1])
	c.I32Const(es)
	c.Call(fb.g.helper(helperMatrixNew))
	c.LocalTee(m)
	c.Load(wasm.I32_LOAD, 2, matrixRows)
	c.LocalGet(m)
	c.Load(wasm.I32_LOAD, 2, matrixCols)
	c.Op(wasm.I32_MUL)
	c.LocalSet(count)
	fb.expr(call.Args[2])
	c.LocalSet(fill)

	c.Block(wasm.BlockVoid)
	c.Loop(wasm.BlockVoid)
	c.LocalGet(i)
	c.LocalGet(count)
	c.Op(wasm.I32_GE_U)
	c.BrIf(1)
	c.LocalGet(m)
	c.LocalGet(i)
	c.I32Const(es)
	c.Op(wasm.I32_MUL)
	c.Op(wasm.I32_ADD)
	c.LocalGet(fill)
	store(c, vt, matrixHeader)
	c.LocalGet(i)
	c.I32Const(1)
	c.Op(wasm.I32_ADD)
	c.LocalSet(i)
	c.Br(0)
	c.End()
	c.End()
	c.LocalGet(m)
}

// lower returns the host ABI parameters carrying values of ts: strings
// travel as a byte pointer and a length.
func lower(ts ...types.Type) []wasm.ValType {
	var out []wasm.ValType
	for _, t := range ts {
		if t.Kind == types.KindString {
			out = append(out, wasm.I32, wasm.I32)
			continue
		}
		if vt, ok := valType(t); ok {
			out = append(out, vt)
		}
	}
	return out
}

// hostCall calls the host function name with the receiver, if any, and
// the arguments.
func (fb *funcBuilder) hostCall(n *syntax.Node, name string, recv *syntax.Node, args []*syntax.Node) {
	imp, ok := abi.Lookup(name)
	if !ok {
		fail(n.Span, "no host function %s", name)
	}
	var operands []*syntax.Node
	if recv != nil {
		operands = append(operands, recv)
	}
	operands = append(operands, args...)

	var ts []types.Type
	for _, a := range operands {
		ts = append(ts, fb.typeOf(a))
	}
	if !slices.Equal(lower(ts...), imp.Params) {
		fail(n.Span, "arguments of %s do not match its host signature %v", name, imp.Params)
	}
	if !slices.Equal(results(fb.typeOf(n)), imp.Results) {
		fail(n.Span, "result of %s does not match its host signature %v", name, imp.Results)
	}
	for _, a := range operands {
		fb.hostArg(a)
	}
	fb.code.Call(fb.g.importIndex(name))
}

// hostArg pushes one argument in its host form.
func (fb *funcBuilder) hostArg(a *syntax.Node) {
	c := &fb.code
	fb.expr(a)
	if fb.typeOf(a).Kind != types.KindString {
		return
	}
	s := fb.newLocal(wasm.I32)
	c.LocalTee(s)
	c.I32Const(abi.StringHeaderSize)
	c.Op(wasm.I32_ADD)
	c.LocalGet(s)
	c.Load(wasm.I32_LOAD, 2, 0)
}
