package types

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		a, b     Type
		expected bool
	}{
		{"same primitives", Integer, Integer, true},
		{"different primitives", Integer, Number, false},
		{"same arrays", ArrayOf(String), ArrayOf(String), true},
		{"different element types", ArrayOf(String), ArrayOf(Integer), false},
		{"array vs matrix", ArrayOf(Number), MatrixOf(Number), false},
		{"nested containers", ArrayOf(ArrayOf(Integer)), ArrayOf(ArrayOf(Integer)), true},
		{"classes are nominal", Class("Point"), Class("Point"), true},
		{"different classes", Class("Point"), Class("Vec"), false},
		{"generics", Generic("T", ""), Generic("T", ""), true},
		{"generic bounds differ", Generic("T", ""), Generic("T", "Numeric"), false},
		{"func types", Func([]Type{Integer}, String), Func([]Type{Integer}, String), true},
		{"func results differ", Func([]Type{Integer}, String), Func([]Type{Integer}, Void), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			be.Equal(t, test.expected, Equal(test.a, test.b))
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	be.Equal(t, "Array<Matrix<Number>>", ArrayOf(MatrixOf(Number)).String())
	be.Equal(t, "fn(Integer, String) -> Boolean", Func([]Type{Integer, String}, Boolean).String())
	be.Equal(t, "Point", Class("Point").String())
}

func TestSubst(t *testing.T) {
	t.Parallel()
	tp := Generic("T", "")
	bindings := map[string]Type{"T": Number}

	be.True(t, Equal(Number, Subst(tp, bindings)))
	be.True(t, Equal(ArrayOf(Number), Subst(ArrayOf(tp), bindings)))
	be.True(t, Equal(Func([]Type{MatrixOf(Number)}, Number), Subst(Func([]Type{MatrixOf(tp)}, tp), bindings)))
	be.True(t, ArrayOf(tp).HasGeneric())
	be.True(t, !ArrayOf(Integer).HasGeneric())
}

func TestPredicates(t *testing.T) {
	t.Parallel()
	be.True(t, Integer.IsNumeric())
	be.True(t, Generic("T", "Numeric").IsNumeric())
	be.True(t, !Generic("T", "").IsNumeric())
	be.True(t, String.IsReference())
	be.True(t, Class("A").IsReference())
	be.True(t, !Boolean.IsReference())
}
