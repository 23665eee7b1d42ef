package diag

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func TestListOrdering(t *testing.T) {
	t.Parallel()
	var l List
	l.Errorf(TypeError, Span{Line: 3, Column: 2, Offset: 30}, "second")
	l.Errorf(SyntaxError, Span{Line: 1, Column: 5, Offset: 4}, "first")

	be.Equal(t, 2, l.Len())
	be.Equal(t, "second", l.Items()[0].Message)
	be.Equal(t, "first", l.Sorted()[0].Message)
	be.Equal(t, "1:5: syntax error: first\n3:2: type error: second", l.String())
}

func TestWarningsDoNotBlock(t *testing.T) {
	t.Parallel()
	var l List
	l.Warnf(TypeError, Span{Line: 1, Column: 1}, "unused")
	be.True(t, !l.HasErrors())
	be.Err(t, l.Err(), nil)

	l.Errorf(ScopeError, Span{Line: 2, Column: 1}, "undefined 'x'")
	be.True(t, l.HasErrors())
	be.Equal(t, 1, l.Count(ScopeError))

	var le *ListError
	be.True(t, errors.As(l.Err(), &le))
	be.Equal(t, 2, le.List.Len())
}

func TestKindString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind Kind
		want string
	}{
		{SyntaxError, "syntax error"},
		{ScopeError, "scope error"},
		{TypeError, "type error"},
		{InheritanceError, "inheritance error"},
		{CodegenInternalError, "internal error"},
		{ConfigError, "config error"},
		{Kind(99), "error"},
	}
	for _, test := range tests {
		be.Equal(t, test.want, test.kind.String())
	}
}

func TestInternalError(t *testing.T) {
	t.Parallel()
	err := Internalf(Span{Line: 4, Column: 7}, "no type for %s", "x")
	be.Equal(t, "4:7: internal error: no type for x", err.Error())
	be.Equal(t, CodegenInternalError, err.Diagnostic().Kind)
	be.Equal(t, "internal error: bare", Internalf(Span{}, "bare").Error())
}
