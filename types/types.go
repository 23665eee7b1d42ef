// Package types defines the semantic types of Kestrel programs.
package types

import "strings"

// Kind tags the Type variant.
type Kind int

const (
	KindVoid Kind = iota
	KindInteger
	KindNumber
	KindString
	KindBoolean
	KindArray
	KindMatrix
	KindClass
	KindGeneric
	KindFunc
	// KindLiteral is an integer literal whose type is not yet fixed. It
	// only lives inside one statement's constraint set.
	KindLiteral
)

// Type is an immutable type value. Compare with Equal, not ==.
type Type struct {
	Kind Kind
	// KindClass, KindGeneric:
	Name string
	// KindGeneric: the bound, "" or "Numeric".
	Bound string
	// KindArray, KindMatrix: element type. KindFunc: result type.
	Elem *Type
	// KindFunc:
	Params []Type
}

var (
	Void    = Type{Kind: KindVoid}
	Integer = Type{Kind: KindInteger}
	Number  = Type{Kind: KindNumber}
	String  = Type{Kind: KindString}
	Boolean = Type{Kind: KindBoolean}
	Literal = Type{Kind: KindLiteral}
)

// ArrayOf returns Array<elem>.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// MatrixOf returns Matrix<elem>.
func MatrixOf(elem Type) Type {
	return Type{Kind: KindMatrix, Elem: &elem}
}

// Class returns the nominal class type called name.
func Class(name string) Type {
	return Type{Kind: KindClass, Name: name}
}

// Generic returns the type parameter name with an optional bound.
func Generic(name, bound string) Type {
	return Type{Kind: KindGeneric, Name: name, Bound: bound}
}

// Func returns the type of a function value.
func Func(params []Type, result Type) Type {
	return Type{Kind: KindFunc, Params: params, Elem: &result}
}

// Result returns the result type of a function type.
func (t Type) Result() Type {
	if t.Kind != KindFunc || t.Elem == nil {
		return Void
	}
	return *t.Elem
}

// ElemType returns the element type of a container.
func (t Type) ElemType() Type {
	if t.Elem == nil {
		return Void
	}
	return *t.Elem
}

// Equal compares types: structurally for primitives, containers and
// function types, nominally for classes and type parameters.
func Equal(a, b Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindClass:
		return a.Name == b.Name
	case KindGeneric:
		return a.Name == b.Name && a.Bound == b.Bound
	case KindArray, KindMatrix:
		return Equal(a.ElemType(), b.ElemType())
	case KindFunc:
		if len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return Equal(a.Result(), b.Result())
	default:
		return true
	}
}

// IsNumeric reports whether arithmetic is defined on t.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case KindInteger, KindNumber, KindLiteral:
		return true
	case KindGeneric:
		return t.Bound == "Numeric"
	}
	return false
}

// IsReference reports whether values of t are pointers into linear memory.
func (t Type) IsReference() bool {
	switch t.Kind {
	case KindString, KindArray, KindMatrix, KindClass:
		return true
	}
	return false
}

// HasGeneric reports whether t mentions a type parameter.
func (t Type) HasGeneric() bool {
	switch t.Kind {
	case KindGeneric:
		return true
	case KindArray, KindMatrix:
		return t.ElemType().HasGeneric()
	case KindFunc:
		for _, p := range t.Params {
			if p.HasGeneric() {
				return true
			}
		}
		return t.Result().HasGeneric()
	}
	return false
}

// Subst replaces type parameters by their bindings.
func Subst(t Type, bindings map[string]Type) Type {
	if len(bindings) == 0 {
		return t
	}
	switch t.Kind {
	case KindGeneric:
		if b, ok := bindings[t.Name]; ok {
			return b
		}
	case KindArray:
		return ArrayOf(Subst(t.ElemType(), bindings))
	case KindMatrix:
		return MatrixOf(Subst(t.ElemType(), bindings))
	case KindFunc:
		params := make([]Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = Subst(p, bindings)
		}
		return Func(params, Subst(t.Result(), bindings))
	}
	return t
}

func (t Type) String() string {
	switch t.Kind {
	case KindVoid:
		return "Void"
	case KindInteger:
		return "Integer"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindBoolean:
		return "Boolean"
	case KindLiteral:
		return "Integer"
	case KindArray:
		return "Array<" + t.ElemType().String() + ">"
	case KindMatrix:
		return "Matrix<" + t.ElemType().String() + ">"
	case KindClass, KindGeneric:
		return t.Name
	case KindFunc:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return "fn(" + strings.Join(parts, ", ") + ") -> " + t.Result().String()
	default:
		return "?"
	}
}
