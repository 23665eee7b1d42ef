package sema

import (
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
)

// SymbolKind is the declaration kind of a symbol.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymParam
	SymSelf
	SymFunc
	SymClass
	SymField
	SymBuiltin
)

func (k SymbolKind) String() string {
	switch k {
	case SymVar:
		return "variable"
	case SymParam:
		return "parameter"
	case SymSelf:
		return "self"
	case SymFunc:
		return "function"
	case SymClass:
		return "class"
	case SymField:
		return "field"
	case SymBuiltin:
		return "builtin"
	default:
		return "symbol"
	}
}

// Symbol is a named entity.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Type  types.Type
	Span  diag.Span
	Scope *Scope
	// Decl is the declaring node (NodeLet, NodeFor, NodeFunc, NodeClass,
	// NodeField); nil for parameters and builtins.
	Decl *syntax.Node

	Func    *FuncInfo  // SymFunc
	Class   *ClassInfo // SymClass
	Builtin *Builtin   // SymBuiltin
}

// IsVariable reports whether the symbol names a storage slot of a function.
func (s *Symbol) IsVariable() bool {
	return s.Kind == SymVar || s.Kind == SymParam || s.Kind == SymSelf
}

// Scope maps names to symbols. A scope refers to its parent but never owns
// it; lookups walk the parent chain.
type Scope struct {
	parent  *Scope
	symbols map[string]*Symbol
}

func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: map[string]*Symbol{}}
}

func (s *Scope) Parent() *Scope { return s.parent }

// Define adds sym to s. When the name is already defined in s itself the
// existing symbol is returned and s is left unchanged.
func (s *Scope) Define(sym *Symbol) (existing *Symbol, ok bool) {
	if prev, found := s.symbols[sym.Name]; found {
		return prev, false
	}
	sym.Scope = s
	s.symbols[sym.Name] = sym
	return nil, true
}

// LookupLocal finds name in s only.
func (s *Scope) LookupLocal(name string) *Symbol {
	return s.symbols[name]
}

// Lookup finds name in s or its ancestors.
func (s *Scope) Lookup(name string) *Symbol {
	for scope := s; scope != nil; scope = scope.parent {
		if sym, ok := scope.symbols[name]; ok {
			return sym
		}
	}
	return nil
}
