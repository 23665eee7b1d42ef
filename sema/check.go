// Package sema resolves names, infers and checks types, validates class
// hierarchies and plans async lowering. Results live in side tables keyed
// by AST node; the AST itself is never modified.
package sema

import (
	"slices"

	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// Options configures the analysis for a compilation target.
type Options struct {
	// Server enables the server-only host functions.
	Server bool
}

// invalid is the type of expressions that already produced an error. It
// is compatible with everything so that one mistake reports once.
var invalid = types.Type{Kind: types.KindVoid, Name: "<invalid>"}

func isInvalid(t types.Type) bool {
	return t.Kind == types.KindVoid && t.Name == invalid.Name
}

type checker struct {
	opts Options
	info *Info
	errs diag.List

	universe *Scope
	global   *Scope
	classes  map[string]*ClassInfo
	// Declaration-ordered lists.
	classList []*ClassInfo
	funcs     []*FuncInfo
	table     map[*FuncInfo]bool

	// Function being checked.
	fn    *FuncInfo
	scope *Scope
	loops int
	// Nodes whose recorded type still mentions an unresolved literal.
	literals []*syntax.Node
	// The await expression permitted in the current statement.
	allowedAwait *syntax.Node
	caught       map[*syntax.Node]bool
	awaited      map[*syntax.Node]bool
}

// Check analyzes a parsed program. It returns a nil Program when any error
// diagnostic was recorded; warnings are returned either way.
func Check(prog *syntax.Node, opts Options) (*Program, diag.List) {
	c := &checker{
		opts:    opts,
		info:    newInfo(),
		classes: map[string]*ClassInfo{},
		table:   map[*FuncInfo]bool{},
		caught:  map[*syntax.Node]bool{},
		awaited: map[*syntax.Node]bool{},
	}
	c.universe = c.newUniverse()
	c.global = NewScope(c.universe)

	c.declare(prog)
	c.resolveClasses()
	for _, f := range c.funcs {
		c.checkFunc(f)
	}
	main := c.checkEntry()

	if c.errs.HasErrors() {
		return nil, c.errs
	}

	for f := range c.table {
		c.info.TableOrder = append(c.info.TableOrder, f)
	}
	slices.SortFunc(c.info.TableOrder, func(a, b *FuncInfo) int { return a.Index - b.Index })

	return &Program{
		AST:     prog,
		Info:    c.info,
		Classes: c.classList,
		Funcs:   c.funcs,
		Main:    main,
		Server:  opts.Server,
	}, c.errs
}

func (c *checker) errorf(kind diag.Kind, span diag.Span, format string, args ...any) {
	c.errs.Errorf(kind, span, format, args...)
}

func (c *checker) newUniverse() *Scope {
	u := NewScope(nil)
	for name, b := range builtinFuncs {
		u.Define(&Symbol{Name: name, Kind: SymBuiltin, Builtin: b})
	}
	for _, name := range []string{DatabaseClass, RequestClass} {
		class := &ClassInfo{Name: name, Opaque: true, Methods: map[string]*FuncInfo{}}
		c.classes[name] = class
		u.Define(&Symbol{Name: name, Kind: SymClass, Type: types.Class(name), Class: class})
	}
	return u
}

// declare enters every class and function into the global scope and
// resolves their signatures, so that bodies may refer to declarations
// appearing later in the file.
func (c *checker) declare(prog *syntax.Node) {
	for _, decl := range prog.Children {
		switch decl.Kind {
		case syntax.NodeClass:
			class := &ClassInfo{Name: decl.String, Decl: decl, Methods: map[string]*FuncInfo{}}
			sym := &Symbol{Name: decl.String, Kind: SymClass, Type: types.Class(decl.String), Span: decl.Span, Decl: decl, Class: class}
			if prev, ok := c.global.Define(sym); !ok {
				c.errorf(diag.ScopeError, decl.Span, "'%s' is already defined at %s", decl.String, prev.Span)
				continue
			}
			c.classes[decl.String] = class
			c.classList = append(c.classList, class)
		case syntax.NodeFunc:
			f := &FuncInfo{Name: decl.String, Qualified: decl.String, Decl: decl, Span: decl.Span, Async: decl.Async}
			sym := &Symbol{Name: decl.String, Kind: SymFunc, Span: decl.Span, Decl: decl, Func: f}
			if prev, ok := c.global.Define(sym); !ok {
				c.errorf(diag.ScopeError, decl.Span, "'%s' is already defined at %s", decl.String, prev.Span)
				continue
			}
			if decl.Override {
				c.errorf(diag.InheritanceError, decl.Span, "function '%s' is not a method and cannot override", decl.String)
			}
			c.funcs = append(c.funcs, f)
		}
	}

	// Signatures need every class name to be known.
	for _, class := range c.classList {
		c.declareMembers(class)
	}
	for _, f := range c.funcs {
		if f.Class == nil {
			c.signature(f, f.Decl)
		}
	}

	// Function indices follow source order: each class contributes its
	// constructor and then its methods.
	var ordered []*FuncInfo
	for _, decl := range prog.Children {
		switch decl.Kind {
		case syntax.NodeClass:
			class := c.classes[decl.String]
			if class == nil || class.Decl != decl {
				continue
			}
			if class.Init != nil {
				ordered = append(ordered, class.Init)
			}
			ordered = append(ordered, class.MethodOrder...)
		case syntax.NodeFunc:
			if sym := c.global.LookupLocal(decl.String); sym != nil && sym.Decl == decl {
				ordered = append(ordered, sym.Func)
			}
		}
	}
	for i, f := range ordered {
		f.Index = i
		f.Fallible = canFail(f.Decl)
		if f.Fallible {
			c.info.Fallible[f] = true
		}
	}
	c.funcs = ordered
}

// canFail reports whether a function body propagates failures.
func canFail(decl *syntax.Node) bool {
	if decl == nil {
		return false
	}
	found := false
	syntax.Walk(decl.Body(), func(n *syntax.Node) bool {
		if n.Kind == syntax.NodeCatch && n.Op == "raise" {
			found = true
		}
		return !found
	})
	return found
}

func (c *checker) declareMembers(class *ClassInfo) {
	class.Scope = NewScope(c.global)
	for _, m := range class.Decl.Children {
		switch m.Kind {
		case syntax.NodeField:
			t, ok := c.resolveType(m.Type, nil)
			if !ok {
				t = invalid
			}
			field := &FieldInfo{Name: m.String, Type: t, Owner: class, Span: m.Span}
			if !c.defineMember(class, &Symbol{Name: m.String, Kind: SymField, Type: t, Span: m.Span, Decl: m}) {
				continue
			}
			class.Fields = append(class.Fields, field)

		case syntax.NodeInit:
			if class.Init != nil {
				c.errorf(diag.ScopeError, m.Span, "class '%s' already has a constructor at %s", class.Name, class.Init.Span)
				continue
			}
			f := &FuncInfo{Name: "init", Qualified: class.Name + ".init", Decl: m, Span: m.Span, Class: class, IsInit: true}
			c.signature(f, m)
			class.Init = f

		case syntax.NodeFunc:
			f := &FuncInfo{Name: m.String, Qualified: class.Name + "." + m.String, Decl: m, Span: m.Span, Class: class, Async: m.Async}
			if !c.defineMember(class, &Symbol{Name: m.String, Kind: SymFunc, Span: m.Span, Decl: m, Func: f}) {
				continue
			}
			if m.TypeParam != nil {
				c.errorf(diag.TypeError, m.TypeParam.Span, "method '%s' cannot have a type parameter", f.Qualified)
			}
			c.signature(f, m)
			class.Methods[m.String] = f
			class.MethodOrder = append(class.MethodOrder, f)
		}
	}
	if class.Init == nil {
		class.Init = &FuncInfo{
			Name:       "init",
			Qualified:  class.Name + ".init",
			Span:       class.Decl.Span,
			Class:      class,
			IsInit:     true,
			Memberwise: true,
			Result:     types.Void,
			Self:       &Symbol{Name: "self", Kind: SymSelf, Type: types.Class(class.Name), Span: class.Decl.Span},
		}
	}
}

func (c *checker) defineMember(class *ClassInfo, sym *Symbol) bool {
	if prev, ok := class.Scope.Define(sym); !ok {
		c.errorf(diag.ScopeError, sym.Span, "'%s' is already defined in class '%s' at %s", sym.Name, class.Name, prev.Span)
		return false
	}
	return true
}

// signature resolves the parameter and result types of a declaration.
func (c *checker) signature(f *FuncInfo, decl *syntax.Node) {
	if decl.TypeParam != nil && f.Class == nil {
		tp := decl.TypeParam
		if tp.Bound != "" && tp.Bound != "Numeric" {
			c.errorf(diag.TypeError, tp.Span, "unknown bound '%s' for type parameter %s", tp.Bound, tp.Name)
		}
		t := types.Generic(tp.Name, tp.Bound)
		if tp.Bound != "Numeric" {
			t.Bound = ""
		}
		f.TypeParam = &t
		if f.Async {
			c.errorf(diag.TypeError, decl.Span, "async function '%s' cannot be generic", f.Name)
		}
	}
	if f.Class != nil {
		f.Self = &Symbol{Name: "self", Kind: SymSelf, Type: types.Class(f.Class.Name), Span: decl.Span}
	}
	for _, p := range decl.Params {
		t, ok := c.resolveType(p.Type, f.TypeParam)
		if !ok {
			t = invalid
		}
		f.Params = append(f.Params, &Symbol{Name: p.Name, Kind: SymParam, Type: t, Span: p.Span})
	}
	f.Result = types.Void
	if decl.Type != nil {
		if t, ok := c.resolveType(decl.Type, f.TypeParam); ok {
			f.Result = t
		} else {
			f.Result = invalid
		}
	}
}

// resolveType converts a written type. tparam is the type parameter in
// scope, if any.
func (c *checker) resolveType(te *syntax.TypeExpr, tparam *types.Type) (types.Type, bool) {
	if te == nil {
		return invalid, false
	}
	var t types.Type
	switch te.Name {
	case "Integer":
		t = types.Integer
	case "Number":
		t = types.Number
	case "String":
		t = types.String
	case "Boolean":
		t = types.Boolean
	case "Array", "Matrix":
		if te.Arg == nil {
			c.errorf(diag.TypeError, te.Span, "%s needs an element type, e.g. %s<Integer>", te.Name, te.Name)
			return invalid, false
		}
		elem, ok := c.resolveType(te.Arg, tparam)
		if !ok {
			return invalid, false
		}
		if te.Name == "Array" {
			return types.ArrayOf(elem), true
		}
		return types.MatrixOf(elem), true
	default:
		switch {
		case tparam != nil && te.Name == tparam.Name:
			t = *tparam
		case c.classes[te.Name] != nil:
			t = types.Class(te.Name)
		default:
			c.errorf(diag.ScopeError, te.Span, "unknown type '%s'", te.Name)
			return invalid, false
		}
	}
	if te.Arg != nil {
		c.errorf(diag.TypeError, te.Arg.Span, "type '%s' takes no type argument", te.Name)
		return invalid, false
	}
	return t, true
}

// checkFunc checks one body in a fresh function scope.
func (c *checker) checkFunc(f *FuncInfo) {
	if f.Decl == nil {
		return
	}
	c.fn = f
	c.scope = NewScope(c.global)
	c.loops = 0
	defer func() { c.fn, c.scope = nil, nil }()

	if f.Self != nil {
		c.scope.Define(f.Self)
	}
	for _, p := range f.Params {
		if prev, ok := c.scope.Define(p); !ok {
			c.errorf(diag.ScopeError, p.Span, "parameter '%s' is already defined at %s", p.Name, prev.Span)
		}
	}

	body := f.Decl.Body()
	var sm *StateMachine
	if f.Async {
		sm = &StateMachine{Func: f, Segments: [][]*syntax.Node{nil}}
	}
	c.scope = NewScope(c.scope)
	for _, stmt := range body.Children {
		aw := topLevelAwait(stmt)
		if f.Async {
			c.allowedAwait = aw
		}
		c.stmt(stmt)
		c.allowedAwait = nil
		if sm == nil {
			continue
		}
		if aw != nil {
			sm.Awaits = append(sm.Awaits, aw)
			sm.AwaitStmts = append(sm.AwaitStmts, stmt)
			sm.Segments = append(sm.Segments, nil)
		} else {
			last := len(sm.Segments) - 1
			sm.Segments[last] = append(sm.Segments[last], stmt)
		}
	}
	c.scope = c.scope.Parent()

	if !types.Equal(f.Result, types.Void) && !isInvalid(f.Result) && !alwaysReturns(body) {
		c.errorf(diag.TypeError, f.Span, "function '%s' may end without returning %s", f.Qualified, f.Result)
	}
	if f.IsInit {
		c.checkDelegation(f)
	}
	if sm != nil {
		if f.Self != nil {
			sm.Saved = append(sm.Saved, f.Self)
		}
		sm.Saved = append(sm.Saved, f.Params...)
		sm.Saved = append(sm.Saved, f.Locals...)
		c.info.StateMachines[f] = sm
	}
}

// topLevelAwait returns the await expression of the statement forms that
// may suspend: await f(), let x = await f(), x = await f() and
// return await f().
func topLevelAwait(stmt *syntax.Node) *syntax.Node {
	var value *syntax.Node
	switch stmt.Kind {
	case syntax.NodeExprStmt, syntax.NodeLet, syntax.NodeReturn:
		if len(stmt.Children) > 0 {
			value = stmt.Children[0]
		}
	case syntax.NodeAssign:
		value = stmt.Children[1]
	}
	if value != nil && value.Kind == syntax.NodeAwait {
		return value
	}
	return nil
}

// alwaysReturns reports whether every path through block ends in return.
func alwaysReturns(block *syntax.Node) bool {
	for _, stmt := range block.Children {
		switch stmt.Kind {
		case syntax.NodeReturn:
			return true
		case syntax.NodeIf:
			if len(stmt.Children)%2 == 0 {
				continue // no else
			}
			all := true
			for i := 1; i < len(stmt.Children); i += 2 {
				all = all && alwaysReturns(stmt.Children[i])
			}
			if all && alwaysReturns(stmt.Children[len(stmt.Children)-1]) {
				return true
			}
		}
	}
	return false
}

// checkEntry validates main.
func (c *checker) checkEntry() *FuncInfo {
	sym := c.global.LookupLocal("main")
	if sym == nil || sym.Kind != SymFunc {
		c.errorf(diag.ScopeError, diag.Span{Line: 1, Column: 1}, "missing entry function 'main'")
		return nil
	}
	main := sym.Func
	switch {
	case main.Async:
		c.errorf(diag.TypeError, main.Span, "main cannot be async")
	case len(main.Params) > 0:
		c.errorf(diag.TypeError, main.Span, "main must not take parameters")
	case !types.Equal(main.Result, types.Void):
		c.errorf(diag.TypeError, main.Span, "main must not return a value")
	case main.IsGeneric():
		c.errorf(diag.TypeError, main.Span, "main cannot be generic")
	}
	return main
}
