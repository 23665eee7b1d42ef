package sema

import (
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// call resolves a call site and checks its arguments.
func (c *checker) call(n *syntax.Node) types.Type {
	callee, args := n.Children[0], n.Children[1:]
	var t types.Type

	switch callee.Kind {
	case syntax.NodeIdent:
		sym := c.scope.Lookup(callee.String)
		if sym == nil {
			c.errorf(diag.ScopeError, callee.Span, "undefined identifier '%s'", callee.String)
			c.skipArgs(args)
			return invalid
		}
		c.info.Uses[callee] = sym
		switch sym.Kind {
		case SymBuiltin:
			t = c.builtinCall(n, sym.Builtin, nil, types.Void, args)
		case SymFunc:
			t = c.funcCall(n, &Call{Kind: CallFunc, Func: sym.Func}, args)
		case SymClass:
			t = c.construct(n, sym.Class, args)
		default:
			t = c.indirectCall(n, callee, sym.Type, args)
		}

	case syntax.NodeMember:
		t = c.methodCall(n, callee, args)

	case syntax.NodeSuper:
		t = c.superCall(n, args)

	default:
		t = c.indirectCall(n, callee, c.expr(callee), args)
	}

	if call := c.info.Calls[n]; call != nil && call.Fallible && !c.caught[n] {
		c.errorf(diag.TypeError, n.Span, "call to '%s' can fail and needs a catch clause", calleeName(call))
	}
	return t
}

func calleeName(call *Call) string {
	switch {
	case call.Builtin != nil:
		if call.Builtin.Receiver != "" {
			return call.Builtin.Receiver + "." + call.Builtin.Name
		}
		return call.Builtin.Name
	case call.Func != nil:
		return call.Func.Qualified
	case call.Class != nil:
		return call.Class.Name
	}
	return "function value"
}

func (c *checker) skipArgs(args []*syntax.Node) {
	for _, a := range args {
		c.expr(a)
	}
}

// arguments checks args against params.
func (c *checker) arguments(n *syntax.Node, name string, args []*syntax.Node, params []types.Type) bool {
	if len(args) != len(params) {
		c.skipArgs(args)
		c.errorf(diag.TypeError, n.Span, "'%s' expects %d arguments, found %d", name, len(params), len(args))
		return false
	}
	ok := true
	for i, a := range args {
		t := c.expr(a)
		if !c.coerce(a, t, params[i]) {
			c.errorf(diag.TypeError, a.Span, "argument %d of '%s': cannot use %s as %s", i+1, name, t, params[i])
			ok = false
		}
	}
	return ok
}

// funcCall checks a call of a user function or method.
func (c *checker) funcCall(n *syntax.Node, call *Call, args []*syntax.Node) types.Type {
	f := call.Func
	call.Args = args
	call.Fallible = f.Fallible
	call.Async = f.Async
	c.info.Calls[n] = call
	if f.IsGeneric() {
		return c.genericCall(n, call, args)
	}
	c.arguments(n, f.Qualified, args, f.ParamTypes())
	return f.Result
}

// genericCall infers the type argument from the arguments, checks the
// bound and records the instance.
func (c *checker) genericCall(n *syntax.Node, call *Call, args []*syntax.Node) types.Type {
	f := call.Func
	tp := *f.TypeParam
	if len(args) != len(f.Params) {
		c.skipArgs(args)
		c.errorf(diag.TypeError, n.Span, "'%s' expects %d arguments, found %d", f.Name, len(f.Params), len(args))
		return invalid
	}
	argTypes := make([]types.Type, len(args))
	var binding *types.Type
	for i, a := range args {
		argTypes[i] = c.expr(a)
		if isInvalid(argTypes[i]) {
			return invalid
		}
		if !bind(f.Params[i].Type, argTypes[i], tp.Name, &binding) {
			c.errorf(diag.TypeError, a.Span, "argument %d of '%s': cannot use %s as %s", i+1, f.Name, argTypes[i], f.Params[i].Type)
			return invalid
		}
	}
	if binding == nil {
		c.errorf(diag.TypeError, n.Span, "cannot infer type parameter %s of '%s'", tp.Name, f.Name)
		return invalid
	}
	arg := withDefault(*binding)
	if tp.Bound == "Numeric" && !arg.IsNumeric() {
		c.errorf(diag.TypeError, n.Span, "%s does not satisfy Numeric in call to '%s'", arg, f.Name)
		return invalid
	}
	bindings := map[string]types.Type{tp.Name: arg}
	for i, a := range args {
		want := types.Subst(f.Params[i].Type, bindings)
		if !c.coerce(a, argTypes[i], want) {
			c.errorf(diag.TypeError, a.Span, "argument %d of '%s': cannot use %s as %s", i+1, f.Name, argTypes[i], want)
			return invalid
		}
	}
	call.Instance = c.instance(f, arg)
	return types.Subst(f.Result, bindings)
}

// bind matches a parameter type against an argument type, binding the
// type parameter named tp.
func bind(param, arg types.Type, tp string, binding **types.Type) bool {
	switch param.Kind {
	case types.KindGeneric:
		if param.Name != tp {
			return types.Equal(param, arg)
		}
		if *binding == nil {
			b := arg
			*binding = &b
			return true
		}
		prev := **binding
		switch {
		case types.Equal(prev, arg):
		case prev.Kind == types.KindLiteral && (arg.Kind == types.KindInteger || arg.Kind == types.KindNumber):
			**binding = arg
		case arg.Kind == types.KindLiteral && prev.IsNumeric():
		default:
			return false
		}
		return true
	case types.KindArray, types.KindMatrix:
		if arg.Kind != param.Kind {
			return false
		}
		if arg.ElemType().Kind == types.KindVoid {
			return true // empty array literal
		}
		return bind(param.ElemType(), arg.ElemType(), tp, binding)
	case types.KindFunc:
		if arg.Kind != types.KindFunc || len(arg.Params) != len(param.Params) {
			return false
		}
		for i := range param.Params {
			if !bind(param.Params[i], arg.Params[i], tp, binding) {
				return false
			}
		}
		return bind(param.Result(), arg.Result(), tp, binding)
	}
	return true
}

func (c *checker) instance(f *FuncInfo, arg types.Type) *Instance {
	for _, inst := range c.info.Instances[f] {
		if types.Equal(inst.Arg, arg) {
			return inst
		}
	}
	inst := &Instance{Func: f, Arg: arg}
	c.info.Instances[f] = append(c.info.Instances[f], inst)
	return inst
}

func (c *checker) construct(n *syntax.Node, class *ClassInfo, args []*syntax.Node) types.Type {
	if class.Opaque {
		c.skipArgs(args)
		c.errorf(diag.TypeError, n.Span, "builtin class '%s' cannot be constructed", class.Name)
		return invalid
	}
	c.info.Calls[n] = &Call{Kind: CallConstructor, Class: class, Func: class.Init, Args: args}
	c.arguments(n, class.Name, args, class.Init.ParamTypes())
	return types.Class(class.Name)
}

func (c *checker) superCall(n *syntax.Node, args []*syntax.Node) types.Type {
	f := c.fn
	switch {
	case f == nil || !f.IsInit:
		c.errorf(diag.InheritanceError, n.Span, "super(...) is only allowed in a constructor")
	case f.Class.Parent == nil:
		c.errorf(diag.InheritanceError, n.Span, "class '%s' has no parent class", f.Class.Name)
	case f.SuperCall != nil:
		c.errorf(diag.InheritanceError, n.Span, "super(...) is already called at %s", f.SuperCall.Span)
	default:
		f.SuperCall = n
		parent := f.Class.Parent
		c.info.Calls[n] = &Call{Kind: CallSuper, Func: parent.Init, Class: parent, Args: args}
		c.arguments(n, parent.Name, args, parent.Init.ParamTypes())
		return types.Void
	}
	c.skipArgs(args)
	return invalid
}

func (c *checker) methodCall(n, callee *syntax.Node, args []*syntax.Node) types.Type {
	recv := callee.Children[0]
	if recv.Kind == syntax.NodeSuper {
		c.errorf(diag.InheritanceError, recv.Span, "super.%s is not supported; only super(...) may be called", callee.String)
		c.skipArgs(args)
		return invalid
	}
	rt := c.expr(recv)
	if isInvalid(rt) {
		c.skipArgs(args)
		return invalid
	}
	if rt.Kind == types.KindClass {
		if m := c.classes[rt.Name].Method(callee.String); m != nil {
			return c.funcCall(n, &Call{Kind: CallMethod, Func: m, Receiver: recv}, args)
		}
	}
	if b := builtinMethods[receiverName(rt)][callee.String]; b != nil {
		return c.builtinCall(n, b, recv, rt, args)
	}
	c.skipArgs(args)
	c.errorf(diag.TypeError, callee.Span, "%s has no method '%s'", rt, callee.String)
	return invalid
}

func (c *checker) indirectCall(n, callee *syntax.Node, t types.Type, args []*syntax.Node) types.Type {
	if isInvalid(t) {
		c.skipArgs(args)
		return invalid
	}
	if t.Kind != types.KindFunc {
		c.skipArgs(args)
		c.errorf(diag.TypeError, callee.Span, "cannot call a value of type %s", t)
		return invalid
	}
	if callee.Kind == syntax.NodeIdent {
		c.record(callee, t)
	}
	c.info.Calls[n] = &Call{Kind: CallIndirect, Args: args}
	c.arguments(n, "function value", args, t.Params)
	return t.Result()
}

// builtinCall checks a call of a builtin function or builtin method.
func (c *checker) builtinCall(n *syntax.Node, b *Builtin, recv *syntax.Node, rt types.Type, args []*syntax.Node) types.Type {
	name := b.Name
	if b.Receiver != "" {
		name = b.Receiver + "." + b.Name
	}
	if b.ServerOnly && !c.opts.Server {
		c.errorf(diag.TypeError, n.Span, "'%s' is only available when compiling for the server target", name)
	}
	call := &Call{Kind: CallBuiltin, Builtin: b, Import: b.Import, Receiver: recv, Args: args, Fallible: b.Fallible}
	c.info.Calls[n] = call

	switch b.Intrinsic {
	case IntrinsicPrint, IntrinsicStr:
		if len(args) != 1 {
			c.skipArgs(args)
			c.errorf(diag.TypeError, n.Span, "'%s' expects 1 argument, found %d", name, len(args))
			return invalid
		}
		t := c.defaultLiteral(args[0], c.expr(args[0]))
		if isInvalid(t) {
			return invalid
		}
		if b.Intrinsic == IntrinsicPrint {
			call.Import = printImport(t)
			if call.Import == "" {
				c.errorf(diag.TypeError, args[0].Span, "cannot print %s", t)
				return invalid
			}
			return types.Void
		}
		call.Import = strImport(t)
		if call.Import == "" && t.Kind != types.KindString && t.Kind != types.KindBoolean {
			c.errorf(diag.TypeError, args[0].Span, "cannot convert %s to String", t)
			return invalid
		}
		return types.String

	case IntrinsicLen, IntrinsicRows, IntrinsicCols:
		c.arguments(n, name, args, nil)
		return types.Integer

	case IntrinsicPush:
		c.arguments(n, name, args, []types.Type{rt.ElemType()})
		return types.Void

	case IntrinsicMatrix:
		if len(args) != 3 {
			c.skipArgs(args)
			c.errorf(diag.TypeError, n.Span, "'matrix' expects 3 arguments, found %d", len(args))
			return invalid
		}
		c.arguments(n, name, args[:2], []types.Type{types.Integer, types.Integer})
		fill := c.defaultLiteral(args[2], c.expr(args[2]))
		if isInvalid(fill) {
			return invalid
		}
		if fill.Kind == types.KindVoid {
			c.errorf(diag.TypeError, args[2].Span, "matrix fill value has no value")
			return invalid
		}
		return types.MatrixOf(fill)

	case IntrinsicRange:
		c.skipArgs(args)
		c.errorf(diag.TypeError, n.Span, "range(...) can only be used as the iterable of a for loop")
		return invalid

	case IntrinsicYield:
		call.Async = true
		if !c.awaited[n] {
			c.errorf(diag.TypeError, n.Span, "yield() must be awaited")
		}
		c.arguments(n, name, args, nil)
		return types.Void
	}

	c.arguments(n, name, args, b.Params)
	return b.Result
}
