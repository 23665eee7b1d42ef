package sema

import (
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/types"
)

// resolveClasses links parents, rejects invalid chains and validates
// inherited members and constructors.
func (c *checker) resolveClasses() {
	for _, class := range c.classList {
		c.linkParent(class)
	}
	for _, class := range c.classList {
		c.breakCycle(class)
	}
	done := map[*ClassInfo]bool{}
	for _, class := range c.classList {
		c.validateClass(class, done)
	}
}

func (c *checker) linkParent(class *ClassInfo) {
	decl := class.Decl
	if decl.Parent == "" {
		return
	}
	if decl.Parent == class.Name {
		c.errorf(diag.InheritanceError, decl.ParentSpan, "class '%s' cannot inherit from itself", class.Name)
		return
	}
	sym := c.global.Lookup(decl.Parent)
	switch {
	case sym == nil:
		c.errorf(diag.InheritanceError, decl.ParentSpan, "unknown parent class '%s'", decl.Parent)
	case sym.Kind != SymClass:
		c.errorf(diag.InheritanceError, decl.ParentSpan, "'%s' is a %s, not a class", decl.Parent, sym.Kind)
	case sym.Class.Opaque:
		c.errorf(diag.InheritanceError, decl.ParentSpan, "cannot inherit from builtin class '%s'", decl.Parent)
	default:
		class.Parent = sym.Class
	}
}

// breakCycle reports a parent chain that returns to class and cuts it so
// that later walks terminate.
func (c *checker) breakCycle(class *ClassInfo) {
	seen := map[*ClassInfo]bool{class: true}
	for k := class.Parent; k != nil; k = k.Parent {
		if k == class {
			c.errorf(diag.InheritanceError, class.Decl.ParentSpan, "inheritance cycle: '%s' is its own ancestor", class.Name)
			class.Parent = nil
			return
		}
		if seen[k] {
			return // cycle above class, reported from one of its members
		}
		seen[k] = true
	}
}

// validateClass checks class after its ancestors.
func (c *checker) validateClass(class *ClassInfo, done map[*ClassInfo]bool) {
	if done[class] {
		return
	}
	done[class] = true
	parent := class.Parent
	if parent != nil {
		c.validateClass(parent, done)
	}
	c.checkInheritedMembers(class)
	c.buildMemberwise(class)
}

func (c *checker) checkInheritedMembers(class *ClassInfo) {
	parent := class.Parent
	for _, f := range class.Fields {
		if parent == nil {
			break
		}
		if prev := parent.Field(f.Name); prev != nil {
			c.errorf(diag.InheritanceError, f.Span, "field '%s' is already declared in '%s'", f.Name, prev.Owner.Name)
		} else if m := parent.Method(f.Name); m != nil {
			c.errorf(diag.InheritanceError, f.Span, "field '%s' conflicts with method '%s'", f.Name, m.Qualified)
		}
	}

	for _, m := range class.MethodOrder {
		var inherited *FuncInfo
		if parent != nil {
			inherited = parent.Method(m.Name)
			if field := parent.Field(m.Name); field != nil {
				c.errorf(diag.InheritanceError, m.Span, "method '%s' conflicts with field '%s.%s'", m.Qualified, field.Owner.Name, field.Name)
				continue
			}
		}
		switch {
		case m.Decl.Override && parent == nil:
			c.errorf(diag.InheritanceError, m.Span, "method '%s' is marked override but '%s' has no parent class", m.Qualified, class.Name)
		case m.Decl.Override && inherited == nil:
			c.errorf(diag.InheritanceError, m.Span, "method '%s' is marked override but no ancestor of '%s' defines '%s'", m.Qualified, class.Name, m.Name)
		case !m.Decl.Override && inherited != nil:
			c.errorf(diag.InheritanceError, m.Span, "method '%s' hides '%s'; mark it override", m.Qualified, inherited.Qualified)
		case inherited != nil && !sameSignature(m, inherited):
			c.errorf(diag.InheritanceError, m.Span, "method '%s' overrides '%s' with a different signature: %s, expected %s",
				m.Qualified, inherited.Qualified, describeSignature(m), describeSignature(inherited))
		}
	}
}

// sameSignature compares parameter types, result types and asyncness
// exactly; overrides may neither widen nor narrow.
func sameSignature(a, b *FuncInfo) bool {
	if a.Async != b.Async || len(a.Params) != len(b.Params) || !types.Equal(a.Result, b.Result) {
		return false
	}
	for i := range a.Params {
		if !types.Equal(a.Params[i].Type, b.Params[i].Type) {
			return false
		}
	}
	return true
}

func describeSignature(f *FuncInfo) string {
	s := f.Type().String()
	if f.Async {
		s = "async " + s
	}
	return s
}

// buildMemberwise fills in the synthesized constructor of a class without
// init. It forwards the leading arguments to the parent constructor and
// stores the rest into the class's own fields.
func (c *checker) buildMemberwise(class *ClassInfo) {
	init := class.Init
	if !init.Memberwise {
		return
	}
	if parent := class.Parent; parent != nil {
		switch {
		case parent.Init.Memberwise:
			for _, p := range parent.Init.Params {
				init.Params = append(init.Params, &Symbol{Name: p.Name, Kind: SymParam, Type: p.Type, Span: class.Decl.Span})
			}
			init.ImplicitSuper = parent.Init
			init.ForwardArgs = len(parent.Init.Params)
		case len(parent.Init.Params) == 0:
			init.ImplicitSuper = parent.Init
		default:
			c.errorf(diag.InheritanceError, class.Decl.Span,
				"class '%s' must declare init and call super(...): constructor of '%s' takes %d arguments",
				class.Name, parent.Name, len(parent.Init.Params))
		}
	}
	for _, f := range class.Fields {
		init.Params = append(init.Params, &Symbol{Name: f.Name, Kind: SymParam, Type: f.Type, Span: f.Span})
		init.InitFields = append(init.InitFields, f)
	}
}

// checkDelegation applies the implicit zero-argument delegation to an
// explicit constructor that does not call super(...).
func (c *checker) checkDelegation(f *FuncInfo) {
	parent := f.Class.Parent
	if parent == nil || f.SuperCall != nil {
		return
	}
	if len(parent.Init.Params) == 0 {
		f.ImplicitSuper = parent.Init
		return
	}
	c.errorf(diag.InheritanceError, f.Span,
		"constructor of '%s' must call super(...): constructor of '%s' takes %d arguments",
		f.Class.Name, parent.Name, len(parent.Init.Params))
}
