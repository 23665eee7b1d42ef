package codegen

import (
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/wasm"
)

// An async function f lowers to two wasm functions sharing a heap frame:
//
//	f(self?, params...) -> frame      allocates the frame and saves the arguments
//	f$resume(frame) -> done           runs until the next suspension or the end
//
// The frame holds the resume state, the done flag, the result, the frame
// of the awaited callee and one slot per variable.

func (g *generator) stateMachine(u *unit) *sema.StateMachine {
	sm := g.info.StateMachines[u.fn]
	if sm == nil {
		fail(u.fn.Span, "async function '%s' has no state machine", u.fn.Qualified)
	}
	return sm
}

func (g *generator) emitAsyncEntry(u *unit) {
	sm := g.stateMachine(u)
	params := g.paramTypes(u)
	fb := g.newFuncBuilder(u, params)
	c := &fb.code
	frame := fb.newLocal(wasm.I32)

	c.I32Const(int32(sm.FrameSize()))
	c.I32Const(objectAlign)
	c.Call(g.allocIndex())
	c.LocalSet(frame)

	var args []*sema.Symbol
	if u.fn.Self != nil {
		args = append(args, u.fn.Self)
	}
	args = append(args, u.fn.Params...)
	for i, sym := range args {
		off := sm.SlotOffset(sym)
		if off < 0 {
			fail(u.fn.Span, "parameter '%s' has no frame slot", sym.Name)
		}
		c.LocalGet(frame)
		c.LocalGet(uint32(i))
		store(c, params[i], uint32(off))
	}
	c.LocalGet(frame)
	fb.finish(u.index)
}

// emitResume builds the state machine. Resume point k is reached by
// branching out of block k of the dispatch:
//
//	block block ... block
//	  local.get frame; i32.load state; br_table 0 1 ... N
//	end  state 0
//	end  state 1 ...
func (g *generator) emitResume(u *unit) {
	sm := g.stateMachine(u)
	fb := g.newFuncBuilder(u, []wasm.ValType{wasm.I32})
	fb.sm = sm
	fb.frame = 0
	c := &fb.code

	n := len(sm.Awaits)
	for i := 0; i <= n; i++ {
		fb.block()
	}
	c.LocalGet(fb.frame)
	c.Load(wasm.I32_LOAD, 2, frameState)
	targets := make([]uint32, n+1)
	for i := range targets {
		targets[i] = uint32(i)
	}
	c.BrTable(targets, uint32(n))

	for k := 0; k <= n; k++ {
		fb.end()
		if k > 0 {
			fb.resumeChild(sm.Awaits[k-1])
			fb.stmt(sm.AwaitStmts[k-1])
		}
		fb.stmts(sm.Segments[k])
		if k < n {
			fb.suspend(sm.Awaits[k], k+1)
		}
	}

	if _, ok := valType(g.resultType(u)); ok {
		// Every path returned explicitly.
		c.Op(wasm.UNREACHABLE)
	} else {
		fb.markDone()
		c.I32Const(1)
	}
	fb.finish(u.aux)
}

// awaitedCall returns the call under an await expression.
func (fb *funcBuilder) awaitedCall(await *syntax.Node) (*syntax.Node, *sema.Call) {
	x := await.Children[0]
	call := fb.g.info.Calls[x]
	if call == nil || !call.Async {
		fail(await.Span, "await of a call that is not async")
	}
	return x, call
}

func isYield(call *sema.Call) bool {
	return call.Kind == sema.CallBuiltin && call.Builtin.Intrinsic == sema.IntrinsicYield
}

// suspend starts the awaited call and moves to resume point next. Yield
// returns to the caller at once; other calls continue into the resume
// point, which polls the callee.
func (fb *funcBuilder) suspend(await *syntax.Node, next int) {
	c := &fb.code
	_, call := fb.awaitedCall(await)
	if !isYield(call) {
		c.LocalGet(fb.frame)
		fb.callArgs(call)
		c.Call(fb.g.callee(call, fb.u).index)
		c.Store(wasm.I32_STORE, 2, frameChild)
	}
	c.LocalGet(fb.frame)
	c.I32Const(int32(next))
	c.Store(wasm.I32_STORE, 2, frameState)
	if isYield(call) {
		c.I32Const(0)
		c.Return()
	}
}

// resumeChild polls the awaited callee and suspends while it is running.
func (fb *funcBuilder) resumeChild(await *syntax.Node) {
	c := &fb.code
	_, call := fb.awaitedCall(await)
	if isYield(call) {
		return
	}
	c.LocalGet(fb.frame)
	c.Load(wasm.I32_LOAD, 2, frameChild)
	c.Call(fb.g.callee(call, fb.u).aux)
	c.Op(wasm.I32_EQZ)
	c.If(wasm.BlockVoid)
	c.I32Const(0)
	c.Return()
	c.End()
}

// awaitValue pushes the result of a finished awaited call.
func (fb *funcBuilder) awaitValue(n *syntax.Node) {
	if fb.sm == nil {
		fail(n.Span, "await outside of a state machine")
	}
	x, call := fb.awaitedCall(n)
	vt, ok := valType(fb.typeOf(x))
	if isYield(call) || !ok {
		return
	}
	c := &fb.code
	c.LocalGet(fb.frame)
	c.Load(wasm.I32_LOAD, 2, frameChild)
	load(c, vt, frameResult)
}

// trampoline drives a frame returned by an async entry to completion and
// pushes its result.
func (fb *funcBuilder) trampoline(callee *unit, result wasm.ValType, hasResult bool) {
	c := &fb.code
	frame := fb.newLocal(wasm.I32)
	c.LocalSet(frame)
	c.Loop(wasm.BlockVoid)
	c.LocalGet(frame)
	c.Call(callee.aux)
	c.Op(wasm.I32_EQZ)
	c.BrIf(0)
	c.End()
	if hasResult {
		c.LocalGet(frame)
		load(c, result, frameResult)
	}
}
