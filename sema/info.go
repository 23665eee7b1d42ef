package sema

import (
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// Program is a checked compilation unit: the AST plus the side tables
// describing it. It is read-only once Check returns.
type Program struct {
	AST  *syntax.Node
	Info *Info

	// Classes and Funcs in declaration order. Funcs holds free functions,
	// constructors and methods; constructors precede the methods of their
	// class.
	Classes []*ClassInfo
	Funcs   []*FuncInfo
	Main    *FuncInfo
	Server  bool
}

// Info holds analysis results keyed by node identity.
type Info struct {
	// Types of every expression node. Literals are resolved: no entry has
	// kind types.KindLiteral.
	Types map[*syntax.Node]types.Type
	// Uses maps identifier expressions to the symbol they reference.
	Uses map[*syntax.Node]*Symbol
	// Defs maps NodeLet and NodeFor to the variable they declare.
	Defs map[*syntax.Node]*Symbol
	// Fields maps field-access NodeMember nodes to the field.
	Fields map[*syntax.Node]*FieldInfo
	// Calls maps NodeCall (and the super call) to the resolved callee.
	Calls map[*syntax.Node]*Call
	// Catches maps NodeCatch to the fallible call it guards.
	Catches map[*syntax.Node]*Call
	// Instances lists the monomorphizations of each generic function.
	Instances map[*FuncInfo][]*Instance
	// StateMachines describes the lowering of each async function.
	StateMachines map[*FuncInfo]*StateMachine
	// TableOrder lists the functions used as values, in declaration order.
	// A function's table index is its position here.
	TableOrder []*FuncInfo
	// Fallible is the set of user functions that can fail.
	Fallible map[*FuncInfo]bool
	// Ranges marks NodeFor loops over range(a, b).
	Ranges map[*syntax.Node]bool
}

func newInfo() *Info {
	return &Info{
		Types:         map[*syntax.Node]types.Type{},
		Uses:          map[*syntax.Node]*Symbol{},
		Defs:          map[*syntax.Node]*Symbol{},
		Fields:        map[*syntax.Node]*FieldInfo{},
		Calls:         map[*syntax.Node]*Call{},
		Catches:       map[*syntax.Node]*Call{},
		Instances:     map[*FuncInfo][]*Instance{},
		StateMachines: map[*FuncInfo]*StateMachine{},
		Fallible:      map[*FuncInfo]bool{},
		Ranges:        map[*syntax.Node]bool{},
	}
}

// TableIndex returns the function-table index of f, or -1.
func (info *Info) TableIndex(f *FuncInfo) int {
	for i, g := range info.TableOrder {
		if g == f {
			return i
		}
	}
	return -1
}

// FuncInfo describes a free function, a method or a constructor.
type FuncInfo struct {
	// Name is the declared name; Qualified adds the class, e.g. "Point.norm".
	Name      string
	Qualified string
	Decl      *syntax.Node // nil for memberwise constructors
	Span      diag.Span
	Index     int // declaration order among all functions

	Class  *ClassInfo // owner of methods and constructors
	IsInit bool
	// Memberwise constructors are synthesized for classes without init.
	// They store Params[i] into InitFields[i].
	Memberwise bool
	InitFields []*FieldInfo

	Self   *Symbol
	Params []*Symbol
	Result types.Type
	// Locals are the let and for variables of the body in declaration order.
	Locals []*Symbol

	Async     bool
	Fallible  bool
	TypeParam *types.Type // generic functions

	// SuperCall is the explicit super(...) call node of a constructor.
	SuperCall *syntax.Node
	// ImplicitSuper is the parent constructor called when a constructor
	// does not delegate explicitly. It receives the first ForwardArgs
	// parameters.
	ImplicitSuper *FuncInfo
	ForwardArgs   int
}

// ParamTypes returns the declared parameter types.
func (f *FuncInfo) ParamTypes() []types.Type {
	out := make([]types.Type, len(f.Params))
	for i, p := range f.Params {
		out[i] = p.Type
	}
	return out
}

// Type returns the type of f used as a value.
func (f *FuncInfo) Type() types.Type {
	return types.Func(f.ParamTypes(), f.Result)
}

// IsGeneric reports whether f has a type parameter.
func (f *FuncInfo) IsGeneric() bool { return f.TypeParam != nil }

// ClassInfo is the class descriptor.
type ClassInfo struct {
	Name   string
	Decl   *syntax.Node
	Parent *ClassInfo
	Fields []*FieldInfo // own fields in declaration order
	// Methods are own methods by name; MethodOrder keeps declaration order.
	Methods     map[string]*FuncInfo
	MethodOrder []*FuncInfo
	Init        *FuncInfo
	// Opaque classes are host handles with builtin methods only.
	Opaque bool
	Scope  *Scope
}

// FieldInfo is a declared field.
type FieldInfo struct {
	Name  string
	Type  types.Type
	Owner *ClassInfo
	Span  diag.Span
}

// Field finds name in c or its ancestors.
func (c *ClassInfo) Field(name string) *FieldInfo {
	for k := c; k != nil; k = k.Parent {
		for _, f := range k.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// Method resolves name up the parent chain.
func (c *ClassInfo) Method(name string) *FuncInfo {
	for k := c; k != nil; k = k.Parent {
		if m, ok := k.Methods[name]; ok {
			return m
		}
	}
	return nil
}

// AllFields returns the fields of c with inherited fields first.
func (c *ClassInfo) AllFields() []*FieldInfo {
	if c.Parent == nil {
		return c.Fields
	}
	return append(append([]*FieldInfo{}, c.Parent.AllFields()...), c.Fields...)
}

// IsSubclassOf reports whether c is other or derives from it.
func (c *ClassInfo) IsSubclassOf(other *ClassInfo) bool {
	for k := c; k != nil; k = k.Parent {
		if k == other {
			return true
		}
	}
	return false
}

// CallKind classifies a resolved call.
type CallKind int

const (
	CallFunc CallKind = iota
	CallMethod
	CallConstructor
	CallSuper
	CallBuiltin
	CallIndirect
)

// Call is the resolution of one call site.
type Call struct {
	Kind    CallKind
	Func    *FuncInfo  // CallFunc, CallMethod, CallSuper (parent constructor)
	Class   *ClassInfo // CallConstructor
	Builtin *Builtin   // CallBuiltin
	// Import is the host function a builtin call lowers to, "" for
	// intrinsics. Overloaded builtins pick it from the argument type.
	Import   string
	Instance *Instance // calls of generic functions
	// Receiver is the object expression of method calls.
	Receiver *syntax.Node
	// Args are the argument expressions, receiver excluded.
	Args     []*syntax.Node
	Fallible bool
	Async    bool
	Awaited  bool
}

// Instance is one monomorphization of a generic function. Arg may itself
// mention the type parameter of an enclosing generic function; it becomes
// concrete when that function is instantiated.
type Instance struct {
	Func *FuncInfo
	Arg  types.Type
}

// Name returns the mangled name, e.g. "first<Integer>".
func (inst *Instance) Name() string {
	return inst.Func.Qualified + "<" + inst.Arg.String() + ">"
}

// StateMachine is the lowering plan of an async function. Resume point i+1
// follows Awaits[i]; point 0 is the function entry. Every parameter and
// local lives in the frame so that it survives suspension.
type StateMachine struct {
	Func *FuncInfo
	// Awaits[i] is the await expression of the top-level statement
	// AwaitStmts[i].
	Awaits     []*syntax.Node
	AwaitStmts []*syntax.Node
	// Segments[i] are the top-level statements without await that run after
	// resume point i, before AwaitStmts[i] or the end of the body. There is
	// one more segment than awaits.
	Segments [][]*syntax.Node
	Saved    []*Symbol
}

// Frame layout of async functions.
const (
	FrameState  = 0
	FrameDone   = 4
	FrameResult = 8
	FrameChild  = 16
	FrameSlots  = 24
	SlotSize    = 8
)

// FrameSize returns the byte size of the frame.
func (sm *StateMachine) FrameSize() uint32 {
	return FrameSlots + SlotSize*uint32(len(sm.Saved))
}

// SlotOffset returns the frame offset of a saved symbol, or -1.
func (sm *StateMachine) SlotOffset(sym *Symbol) int {
	for i, s := range sm.Saved {
		if s == sym {
			return FrameSlots + SlotSize*i
		}
	}
	return -1
}
