package sema

import (
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// record stores the type of n. Types mentioning an unresolved literal are
// revisited when the statement ends.
func (c *checker) record(n *syntax.Node, t types.Type) types.Type {
	c.info.Types[n] = t
	if hasLiteral(t) {
		c.literals = append(c.literals, n)
	}
	return t
}

func hasLiteral(t types.Type) bool {
	switch t.Kind {
	case types.KindLiteral:
		return true
	case types.KindArray, types.KindMatrix:
		return hasLiteral(t.ElemType())
	}
	return false
}

// withDefault replaces unresolved literals in t by Integer.
func withDefault(t types.Type) types.Type {
	switch t.Kind {
	case types.KindLiteral:
		return types.Integer
	case types.KindArray:
		return types.ArrayOf(withDefault(t.ElemType()))
	case types.KindMatrix:
		return types.MatrixOf(withDefault(t.ElemType()))
	}
	return t
}

// defaultLiteral settles the literals of the expression n to their default.
func (c *checker) defaultLiteral(n *syntax.Node, t types.Type) types.Type {
	if !hasLiteral(t) {
		return t
	}
	d := withDefault(t)
	c.coerce(n, t, d)
	return d
}

// settleLiterals ends the current statement's constraint set: literals no
// context narrowed become Integer.
func (c *checker) settleLiterals() {
	for _, n := range c.literals {
		c.info.Types[n] = withDefault(c.info.Types[n])
	}
	c.literals = c.literals[:0]
}

// narrow fixes the type of a literal expression and of the literal
// operands it was computed from.
func (c *checker) narrow(n *syntax.Node, t types.Type) {
	if c.info.Types[n].Kind != types.KindLiteral {
		return
	}
	c.info.Types[n] = t
	switch n.Kind {
	case syntax.NodeBinary, syntax.NodeUnary:
		for _, child := range n.Children {
			c.narrow(child, t)
		}
	}
}

// coerce checks that expression n of type got can be used where want is
// expected, narrowing literals and typing empty array literals on the way.
func (c *checker) coerce(n *syntax.Node, got, want types.Type) bool {
	switch {
	case isInvalid(got) || isInvalid(want):
		return true
	case got.Kind == types.KindLiteral:
		switch want.Kind {
		case types.KindInteger, types.KindNumber:
			c.narrow(n, want)
			return true
		case types.KindGeneric:
			if want.IsNumeric() {
				c.narrow(n, want)
				return true
			}
		}
		return false
	case got.Kind == types.KindArray && want.Kind == types.KindArray && n != nil && n.Kind == syntax.NodeArray:
		if len(n.Children) == 0 {
			c.info.Types[n] = want
			return true
		}
		if !hasLiteral(got) {
			return types.Equal(got, want)
		}
		for _, e := range n.Children {
			if !c.coerce(e, c.info.Types[e], want.ElemType()) {
				return false
			}
		}
		c.info.Types[n] = want
		return true
	case got.Kind == types.KindClass && want.Kind == types.KindClass:
		sub, super := c.classes[got.Name], c.classes[want.Name]
		return sub != nil && super != nil && sub.IsSubclassOf(super)
	}
	return types.Equal(got, want)
}

// unify returns the common type of two operands.
func (c *checker) unify(an *syntax.Node, a types.Type, bn *syntax.Node, b types.Type) (types.Type, bool) {
	switch {
	case isInvalid(a) || isInvalid(b):
		return invalid, true
	case a.Kind == types.KindLiteral && b.Kind == types.KindLiteral:
		return types.Literal, true
	case c.coerce(an, a, b):
		return b, true
	case c.coerce(bn, b, a):
		return a, true
	}
	return invalid, false
}

// expr checks an expression and returns its type.
func (c *checker) expr(n *syntax.Node) types.Type {
	if n == nil {
		return invalid
	}
	switch n.Kind {
	case syntax.NodeInteger:
		return c.record(n, types.Literal)
	case syntax.NodeFloat:
		return c.record(n, types.Number)
	case syntax.NodeString:
		return c.record(n, types.String)
	case syntax.NodeBool:
		return c.record(n, types.Boolean)
	case syntax.NodeIdent:
		return c.record(n, c.ident(n))
	case syntax.NodeSelf:
		if c.fn == nil || c.fn.Self == nil {
			c.errorf(diag.ScopeError, n.Span, "self used outside of a method")
			return c.record(n, invalid)
		}
		c.info.Uses[n] = c.fn.Self
		return c.record(n, c.fn.Self.Type)
	case syntax.NodeSuper:
		c.errorf(diag.InheritanceError, n.Span, "super can only be called, as super(...)")
		return c.record(n, invalid)
	case syntax.NodeBinary:
		return c.record(n, c.binary(n))
	case syntax.NodeUnary:
		return c.record(n, c.unary(n))
	case syntax.NodeCall:
		return c.record(n, c.call(n))
	case syntax.NodeMember:
		return c.record(n, c.member(n))
	case syntax.NodeIndex:
		return c.record(n, c.index(n))
	case syntax.NodeArray:
		return c.record(n, c.array(n))
	case syntax.NodeAwait:
		return c.record(n, c.await(n))
	case syntax.NodeCatch:
		return c.record(n, c.catch(n))
	}
	c.errorf(diag.TypeError, n.Span, "unexpected %s in expression", n.Kind)
	return invalid
}

func (c *checker) ident(n *syntax.Node) types.Type {
	sym := c.scope.Lookup(n.String)
	if sym == nil {
		c.errorf(diag.ScopeError, n.Span, "undefined identifier '%s'", n.String)
		return invalid
	}
	c.info.Uses[n] = sym
	switch sym.Kind {
	case SymVar, SymParam, SymSelf:
		return sym.Type
	case SymFunc:
		return c.funcValue(n, sym.Func)
	case SymClass:
		c.errorf(diag.TypeError, n.Span, "class '%s' is not a value; call it to construct an instance", sym.Name)
	case SymBuiltin:
		c.errorf(diag.TypeError, n.Span, "builtin '%s' must be called", sym.Name)
	}
	return invalid
}

// funcValue makes f a function-table entry.
func (c *checker) funcValue(n *syntax.Node, f *FuncInfo) types.Type {
	switch {
	case f.IsGeneric():
		c.errorf(diag.TypeError, n.Span, "generic function '%s' cannot be used as a value", f.Name)
	case f.Async:
		c.errorf(diag.TypeError, n.Span, "async function '%s' cannot be used as a value", f.Name)
	case f.Fallible:
		c.errorf(diag.TypeError, n.Span, "fallible function '%s' cannot be used as a value", f.Name)
	default:
		c.table[f] = true
		return f.Type()
	}
	return invalid
}

func (c *checker) binary(n *syntax.Node) types.Type {
	l, r := n.Children[0], n.Children[1]
	lt, rt := c.expr(l), c.expr(r)
	if isInvalid(lt) || isInvalid(rt) {
		return invalid
	}

	switch n.Op {
	case "and", "or":
		if lt.Kind != types.KindBoolean || rt.Kind != types.KindBoolean {
			c.errorf(diag.TypeError, n.Span, "operator '%s' requires Boolean operands, found %s and %s", n.Op, lt, rt)
			return invalid
		}
		return types.Boolean
	}

	t, ok := c.unify(l, lt, r, rt)
	if !ok {
		c.errorf(diag.TypeError, n.Span, "mismatched types %s and %s for operator '%s'", lt, rt, n.Op)
		return invalid
	}

	switch n.Op {
	case "==", "!=":
		if t.Kind == types.KindVoid || t.Kind == types.KindFunc {
			c.errorf(diag.TypeError, n.Span, "operator '%s' is not defined for %s", n.Op, t)
			return invalid
		}
		return types.Boolean
	case "<", ">", "<=", ">=":
		if !t.IsNumeric() {
			c.errorf(diag.TypeError, n.Span, "operator '%s' is not defined for %s", n.Op, t)
			return invalid
		}
		return types.Boolean
	case "+":
		if t.Kind == types.KindString {
			return types.String
		}
	case "%":
		if t.Kind != types.KindInteger && t.Kind != types.KindLiteral {
			c.errorf(diag.TypeError, n.Span, "operator '%%' is not defined for %s", t)
			return invalid
		}
	}
	if !t.IsNumeric() {
		c.errorf(diag.TypeError, n.Span, "operator '%s' is not defined for %s", n.Op, t)
		return invalid
	}
	return t
}

func (c *checker) unary(n *syntax.Node) types.Type {
	x := n.Children[0]
	t := c.expr(x)
	if isInvalid(t) {
		return invalid
	}
	switch n.Op {
	case "not":
		if t.Kind != types.KindBoolean {
			c.errorf(diag.TypeError, n.Span, "operator 'not' requires Boolean, found %s", t)
			return invalid
		}
	case "-":
		if !t.IsNumeric() {
			c.errorf(diag.TypeError, n.Span, "operator '-' is not defined for %s", t)
			return invalid
		}
	}
	return t
}

// member checks field access; method calls are handled by call.
func (c *checker) member(n *syntax.Node) types.Type {
	t := c.expr(n.Children[0])
	if isInvalid(t) {
		return invalid
	}
	if t.Kind == types.KindClass {
		class := c.classes[t.Name]
		if f := class.Field(n.String); f != nil {
			c.info.Fields[n] = f
			return f.Type
		}
		if class.Method(n.String) != nil {
			c.errorf(diag.TypeError, n.Span, "method '%s.%s' must be called", class.Name, n.String)
			return invalid
		}
	}
	if builtinMethods[receiverName(t)][n.String] != nil {
		c.errorf(diag.TypeError, n.Span, "method '%s.%s' must be called", receiverName(t), n.String)
		return invalid
	}
	c.errorf(diag.TypeError, n.Span, "%s has no field '%s'", t, n.String)
	return invalid
}

func (c *checker) index(n *syntax.Node) types.Type {
	t := c.expr(n.Children[0])
	for _, ix := range n.Children[1:] {
		it := c.expr(ix)
		if !c.coerce(ix, it, types.Integer) {
			c.errorf(diag.TypeError, ix.Span, "index must be Integer, found %s", it)
		}
	}
	if isInvalid(t) {
		return invalid
	}
	want := map[types.Kind]int{types.KindArray: 1, types.KindMatrix: 2}[t.Kind]
	switch {
	case want == 0:
		c.errorf(diag.TypeError, n.Span, "cannot index %s", t)
		return invalid
	case want != len(n.Children)-1:
		c.errorf(diag.TypeError, n.Span, "%s takes %d index, found %d", t, want, len(n.Children)-1)
		return invalid
	}
	return t.ElemType()
}

func (c *checker) array(n *syntax.Node) types.Type {
	if len(n.Children) == 0 {
		return types.ArrayOf(types.Void)
	}
	first := n.Children[0]
	elem := c.expr(first)
	for _, e := range n.Children[1:] {
		et := c.expr(e)
		t, ok := c.unify(first, elem, e, et)
		if !ok {
			c.errorf(diag.TypeError, e.Span, "array element has type %s, expected %s", et, elem)
			return invalid
		}
		elem = t
	}
	if !hasLiteral(elem) {
		// Earlier literal elements follow the element type found later.
		for _, e := range n.Children {
			if hasLiteral(c.info.Types[e]) {
				c.coerce(e, c.info.Types[e], elem)
			}
		}
	}
	if elem.Kind == types.KindVoid && !isInvalid(elem) {
		c.errorf(diag.TypeError, n.Span, "array elements must have a value")
		return invalid
	}
	return types.ArrayOf(elem)
}

func (c *checker) await(n *syntax.Node) types.Type {
	x := n.Children[0]
	switch {
	case c.fn == nil || !c.fn.Async:
		c.errorf(diag.TypeError, n.Span, "await outside of an async function")
	case n != c.allowedAwait:
		c.errorf(diag.TypeError, n.Span, "await must be a whole statement at the top level of an async function body")
	}
	if x.Kind != syntax.NodeCall {
		c.expr(x)
		c.errorf(diag.TypeError, x.Span, "await requires a call")
		return invalid
	}
	c.awaited[x] = true
	t := c.expr(x)
	call := c.info.Calls[x]
	if call == nil {
		return invalid
	}
	if !call.Async {
		c.errorf(diag.TypeError, x.Span, "await requires a call to an async function")
		return invalid
	}
	call.Awaited = true
	return t
}

func (c *checker) catch(n *syntax.Node) types.Type {
	x := n.Children[0]
	if x.Kind != syntax.NodeCall {
		c.expr(x)
		return invalid
	}
	c.caught[x] = true
	t := c.expr(x)
	call := c.info.Calls[x]
	if call == nil {
		return invalid
	}
	c.info.Catches[n] = call
	if !call.Fallible {
		c.errs.Warnf(diag.TypeError, n.Span, "catch clause on a call that cannot fail")
	}

	if n.Op == "raise" {
		switch {
		case c.fn.Async:
			c.errorf(diag.TypeError, n.Span, "catch raise is not allowed in async function '%s'", c.fn.Qualified)
		case c.fn.IsInit:
			c.errorf(diag.TypeError, n.Span, "catch raise is not allowed in a constructor")
		}
		return t
	}

	fallback := n.Children[1]
	ft := c.expr(fallback)
	if !c.coerce(fallback, ft, t) {
		c.errorf(diag.TypeError, fallback.Span, "catch fallback has type %s, expected %s", ft, t)
	}
	return t
}
