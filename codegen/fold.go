package codegen

import (
	"math"

	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// constValue is the result of a folded expression.
type constValue struct {
	kind types.Kind
	i    int64
	f    float64
	s    string
	b    bool
}

// fold evaluates expressions built only from literals. Operations that
// trap at run time are left alone.
func (fb *funcBuilder) fold(n *syntax.Node) (constValue, bool) {
	t := fb.typeOf(n)
	switch n.Kind {
	case syntax.NodeInteger:
		if t.Kind == types.KindNumber {
			return constValue{kind: types.KindNumber, f: float64(n.Integer)}, true
		}
		return constValue{kind: types.KindInteger, i: n.Integer}, true
	case syntax.NodeFloat:
		return constValue{kind: types.KindNumber, f: n.Float}, true
	case syntax.NodeString:
		return constValue{kind: types.KindString, s: n.String}, true
	case syntax.NodeBool:
		return constValue{kind: types.KindBoolean, b: n.Bool}, true

	case syntax.NodeUnary:
		x, ok := fb.fold(n.Children[0])
		if !ok {
			return constValue{}, false
		}
		switch {
		case n.Op == "not" && x.kind == types.KindBoolean:
			return constValue{kind: types.KindBoolean, b: !x.b}, true
		case n.Op == "-" && x.kind == types.KindInteger:
			return constValue{kind: types.KindInteger, i: -x.i}, true
		case n.Op == "-" && x.kind == types.KindNumber:
			return constValue{kind: types.KindNumber, f: -x.f}, true
		}

	case syntax.NodeBinary:
		l, ok := fb.fold(n.Children[0])
		if !ok {
			return constValue{}, false
		}
		r, ok := fb.fold(n.Children[1])
		if !ok || l.kind != r.kind {
			return constValue{}, false
		}
		return foldBinary(n.Op, l, r)
	}
	return constValue{}, false
}

func foldBinary(op string, l, r constValue) (constValue, bool) {
	boolean := func(b bool) (constValue, bool) { return constValue{kind: types.KindBoolean, b: b}, true }
	switch l.kind {
	case types.KindInteger:
		integer := func(i int64) (constValue, bool) { return constValue{kind: types.KindInteger, i: i}, true }
		switch op {
		case "+":
			return integer(l.i + r.i)
		case "-":
			return integer(l.i - r.i)
		case "*":
			return integer(l.i * r.i)
		case "/", "%":
			if r.i == 0 || (l.i == math.MinInt64 && r.i == -1) {
				return constValue{}, false
			}
			if op == "/" {
				return integer(l.i / r.i)
			}
			return integer(l.i % r.i)
		case "==":
			return boolean(l.i == r.i)
		case "!=":
			return boolean(l.i != r.i)
		case "<":
			return boolean(l.i < r.i)
		case ">":
			return boolean(l.i > r.i)
		case "<=":
			return boolean(l.i <= r.i)
		case ">=":
			return boolean(l.i >= r.i)
		}

	case types.KindNumber:
		number := func(f float64) (constValue, bool) { return constValue{kind: types.KindNumber, f: f}, true }
		switch op {
		case "+":
			return number(l.f + r.f)
		case "-":
			return number(l.f - r.f)
		case "*":
			return number(l.f * r.f)
		case "/":
			return number(l.f / r.f)
		case "==":
			return boolean(l.f == r.f)
		case "!=":
			return boolean(l.f != r.f)
		case "<":
			return boolean(l.f < r.f)
		case ">":
			return boolean(l.f > r.f)
		case "<=":
			return boolean(l.f <= r.f)
		case ">=":
			return boolean(l.f >= r.f)
		}

	case types.KindString:
		switch op {
		case "+":
			return constValue{kind: types.KindString, s: l.s + r.s}, true
		case "==":
			return boolean(l.s == r.s)
		case "!=":
			return boolean(l.s != r.s)
		}

	case types.KindBoolean:
		switch op {
		case "and":
			return boolean(l.b && r.b)
		case "or":
			return boolean(l.b || r.b)
		case "==":
			return boolean(l.b == r.b)
		case "!=":
			return boolean(l.b != r.b)
		}
	}
	return constValue{}, false
}

// constant pushes a folded value.
func (fb *funcBuilder) constant(v constValue) {
	c := &fb.code
	switch v.kind {
	case types.KindInteger:
		c.I64Const(v.i)
	case types.KindNumber:
		c.F64Const(v.f)
	case types.KindString:
		c.I32Const(int32(fb.g.pool.intern(v.s)))
	case types.KindBoolean:
		c.I32Const(boolInt(v.b))
	}
}
