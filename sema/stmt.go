package sema

import (
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// stmt checks one statement. Literal types are settled when it ends, so a
// type error is attributed to the statement that caused it.
func (c *checker) stmt(n *syntax.Node) {
	defer c.settleLiterals()

	switch n.Kind {
	case syntax.NodeLet:
		c.letStmt(n)

	case syntax.NodeAssign:
		c.assignStmt(n)

	case syntax.NodeReturn:
		c.returnStmt(n)

	case syntax.NodeIf:
		for i := 0; i+1 < len(n.Children); i += 2 {
			c.condition(n.Children[i])
			c.block(n.Children[i+1])
		}
		if len(n.Children)%2 == 1 {
			c.block(n.Children[len(n.Children)-1])
		}

	case syntax.NodeWhile:
		c.condition(n.Children[0])
		c.loops++
		c.block(n.Children[1])
		c.loops--

	case syntax.NodeFor:
		c.forStmt(n)

	case syntax.NodeBreak, syntax.NodeContinue:
		if c.loops == 0 {
			c.errorf(diag.TypeError, n.Span, "%s outside of a loop", map[syntax.NodeKind]string{
				syntax.NodeBreak: "break", syntax.NodeContinue: "continue",
			}[n.Kind])
		}

	case syntax.NodePass:

	case syntax.NodeExprStmt:
		c.expr(n.Children[0])

	default:
		c.errorf(diag.TypeError, n.Span, "unexpected %s in statement position", n.Kind)
	}
}

func (c *checker) block(n *syntax.Node) {
	c.scope = NewScope(c.scope)
	for _, stmt := range n.Children {
		c.stmt(stmt)
	}
	c.scope = c.scope.Parent()
}

// declareVar defines a local variable of the current function.
func (c *checker) declareVar(n *syntax.Node, t types.Type) *Symbol {
	sym := &Symbol{Name: n.String, Kind: SymVar, Type: t, Span: n.Span, Decl: n}
	if prev, ok := c.scope.Define(sym); !ok {
		c.errorf(diag.ScopeError, n.Span, "'%s' is already defined in this scope at %s", n.String, prev.Span)
	}
	c.info.Defs[n] = sym
	c.fn.Locals = append(c.fn.Locals, sym)
	return sym
}

func (c *checker) letStmt(n *syntax.Node) {
	value := n.Children[0]
	t := c.expr(value)
	if n.Type != nil {
		declared, ok := c.resolveType(n.Type, c.fn.TypeParam)
		if !ok {
			declared = invalid
		} else if !c.coerce(value, t, declared) {
			c.errorf(diag.TypeError, value.Span, "cannot use %s as %s in declaration of '%s'", t, declared, n.String)
		}
		t = declared
	} else {
		t = c.defaultLiteral(value, t)
		if t.Kind == types.KindArray && t.ElemType().Kind == types.KindVoid && !isInvalid(t.ElemType()) {
			c.errorf(diag.TypeError, value.Span, "cannot infer the element type of an empty array; declare the type of '%s'", n.String)
			t = invalid
		}
	}
	if t.Kind == types.KindVoid && !isInvalid(t) {
		c.errorf(diag.TypeError, value.Span, "expression has no value")
		t = invalid
	}
	// The value is checked before the name exists, so `let x = x + 1`
	// reads an outer x.
	c.declareVar(n, t)
}

func (c *checker) assignStmt(n *syntax.Node) {
	target, value := n.Children[0], n.Children[1]
	var tt types.Type
	if target.Kind == syntax.NodeIdent {
		sym := c.scope.Lookup(target.String)
		switch {
		case sym == nil:
			c.errorf(diag.ScopeError, target.Span, "undefined identifier '%s'", target.String)
			tt = invalid
		case sym.Kind != SymVar && sym.Kind != SymParam:
			c.errorf(diag.TypeError, target.Span, "cannot assign to %s '%s'", sym.Kind, sym.Name)
			tt = invalid
		default:
			c.info.Uses[target] = sym
			tt = sym.Type
			c.record(target, tt)
		}
	} else {
		tt = c.expr(target)
		if target.Kind == syntax.NodeMember && c.info.Fields[target] == nil && !isInvalid(tt) {
			c.errorf(diag.TypeError, target.Span, "cannot assign to '%s'", target.String)
			tt = invalid
		}
	}

	vt := c.expr(value)
	switch n.Op {
	case "=":
		if !c.coerce(value, vt, tt) {
			c.errorf(diag.TypeError, value.Span, "cannot assign %s to %s", vt, tt)
		}
	case "+=", "-=":
		okTarget := tt.IsNumeric() || (n.Op == "+=" && tt.Kind == types.KindString) || isInvalid(tt)
		if !okTarget {
			c.errorf(diag.TypeError, n.Span, "operator '%s' is not defined for %s", n.Op, tt)
		} else if !c.coerce(value, vt, tt) {
			c.errorf(diag.TypeError, value.Span, "mismatched types %s and %s for operator '%s'", tt, vt, n.Op)
		}
	}
}

func (c *checker) returnStmt(n *syntax.Node) {
	want := c.fn.Result
	if len(n.Children) == 0 {
		if want.Kind != types.KindVoid {
			c.errorf(diag.TypeError, n.Span, "missing return value in '%s' returning %s", c.fn.Qualified, want)
		}
		return
	}
	value := n.Children[0]
	t := c.expr(value)
	if want.Kind == types.KindVoid && !isInvalid(want) {
		c.errorf(diag.TypeError, value.Span, "'%s' does not return a value", c.fn.Qualified)
		return
	}
	if !c.coerce(value, t, want) {
		c.errorf(diag.TypeError, value.Span, "cannot return %s from '%s' returning %s", t, c.fn.Qualified, want)
	}
}

func (c *checker) condition(n *syntax.Node) {
	t := c.expr(n)
	if !c.coerce(n, t, types.Boolean) {
		c.errorf(diag.TypeError, n.Span, "condition must be Boolean, found %s", t)
	}
}

func (c *checker) forStmt(n *syntax.Node) {
	iter, body := n.Children[0], n.Children[1]
	elem := invalid
	if c.isRangeCall(iter) {
		c.info.Ranges[n] = true
		c.info.Calls[iter] = &Call{Kind: CallBuiltin, Builtin: builtinFuncs["range"], Args: iter.Children[1:]}
		c.arguments(iter, "range", iter.Children[1:], []types.Type{types.Integer, types.Integer})
		elem = types.Integer
	} else {
		t := c.expr(iter)
		switch {
		case t.Kind == types.KindArray:
			elem = t.ElemType()
		case !isInvalid(t):
			c.errorf(diag.TypeError, iter.Span, "cannot iterate over %s", t)
		}
	}
	c.settleLiterals()

	c.scope = NewScope(c.scope)
	c.declareVar(n, elem)
	c.loops++
	c.block(body)
	c.loops--
	c.scope = c.scope.Parent()
}

// isRangeCall recognizes range(a, b) when range is the builtin.
func (c *checker) isRangeCall(n *syntax.Node) bool {
	if n.Kind != syntax.NodeCall || n.Children[0].Kind != syntax.NodeIdent {
		return false
	}
	sym := c.scope.Lookup(n.Children[0].String)
	return sym != nil && sym.Kind == SymBuiltin && sym.Builtin.Intrinsic == IntrinsicRange
}
