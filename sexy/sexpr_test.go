package sexy

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestParseAtoms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		typ   NodeType
		text  string
		out   string
	}{
		{"hello", NodeSymbol, "hello", "hello"},
		{"test_var", NodeSymbol, "test_var", "test_var"},
		{"raise", NodeSymbol, "raise", "raise"},
		{"+", NodeSymbol, "+", "+"},
		{`"hello world"`, NodeString, "hello world", `"hello world"`},
		{`""`, NodeString, "", `""`},
		{`"a\"b"`, NodeString, `a"b`, `"a\"b"`},
		{`"tab\there"`, NodeString, "tab\there", `"tab\there"`},
		{"42", NodeNumber, "42", "42"},
		{"-123", NodeNumber, "-123", "-123"},
		{"2.5", NodeNumber, "2.5", "2.5"},
		{"1e+21", NodeNumber, "1e+21", "1e+21"},
		{"_", NodeWildcard, "", "_"},
		{"...", NodeEllipsis, "", "..."},
	}
	for _, test := range tests {
		n, err := Parse(test.input)
		be.Err(t, err, nil)
		be.Equal(t, test.typ, n.Type)
		be.Equal(t, test.text, n.Text)
		be.Equal(t, test.out, n.String())
	}
}

func TestParseList(t *testing.T) {
	t.Parallel()
	n, err := Parse(`(binary "+" (integer 1) ; comment
	  (integer 2))`)
	be.Err(t, err, nil)
	be.Equal(t, NodeList, n.Type)
	be.Equal(t, 4, len(n.Items))
	be.Equal(t, "binary", n.Items[0].Text)
	be.Equal(t, "+", n.Items[1].Text)
	be.Equal(t, NodeList, n.Items[3].Type)
	be.Equal(t, `(binary "+" (integer 1) (integer 2))`, n.String())

	n, err = Parse("()")
	be.Err(t, err, nil)
	be.Equal(t, 0, len(n.Items))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  string
	}{
		{"", "unexpected end of input"},
		{"(a b", "unterminated list"},
		{")", "unexpected ')'"},
		{"a b", "unexpected symbol after datum"},
		{`"open`, "unterminated string"},
		{"(a . b)", "unexpected character '.'"},
		{"(a ... b)", "... must be the last item"},
		{"#", "unexpected character"},
	}
	for _, test := range tests {
		_, err := Parse(test.input)
		be.True(t, err != nil)
		be.True(t, strings.Contains(err.Error(), test.want))
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := []string{
		`(program (fn "main" (params) (block (pass))))`,
		`(let "x" (type "Array" (type "Integer")) (array (integer 1) (float 2.5)))`,
		`(catch raise (call (member "toInt" (ident "s"))))`,
		`(a _ ...)`,
	}
	for _, input := range inputs {
		n, err := Parse(input)
		be.Err(t, err, nil)
		be.Equal(t, input, n.String())
		again, err := Parse(n.String())
		be.Err(t, err, nil)
		be.Equal(t, n.String(), again.String())
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()
	actual, err := Parse(`(fn "main" (params) (block (let "x" (integer 1)) (expr (call (ident "print") (ident "x")))))`)
	be.Err(t, err, nil)

	tests := []struct {
		pattern string
		want    string
	}{
		{`(fn "main" (params) (block (let "x" (integer 1)) (expr (call (ident "print") (ident "x")))))`, ""},
		{`(fn "main" _ _)`, ""},
		{`(fn "main" ...)`, ""},
		{`(fn "main" (params) (block (let "x" _) ...))`, ""},
		{`(fn "main" (params) (block (let "x" (integer 1.0)) ...))`, ""},
		{`(fn "other" ...)`, `at root[1]: expected "other", got "main"`},
		{`(fn "main" (params) (block (let "y" _) ...))`, `at root[3][1][1]: expected "y", got "x"`},
		{`(fn "main" (params))`, "at root: expected 3 items, got 4"},
		{`(fn "main" (params) (block _ _ _ _ ...))`, "at root[3]: expected 4 items, got 3"},
		{`(fn main ...)`, "at root[1]: expected symbol main, got string"},
	}
	for _, test := range tests {
		pattern, err := Parse(test.pattern)
		be.Err(t, err, nil)
		err = Match(pattern, actual)
		if test.want == "" {
			be.Err(t, err, nil)
			continue
		}
		be.True(t, err != nil)
		be.True(t, strings.Contains(err.Error(), test.want))
	}
}
