package syntax

import (
	"strings"
	"testing"

	"github.com/kestrel-lang/kestrel/diag"
	"github.com/nalgeon/be"
)

func parseExpr(t *testing.T, src string) string {
	t.Helper()
	p := NewParser([]byte(src+"\n"), ParseOptions{})
	expr := p.ParseExpression()
	be.True(t, !p.Errors.HasErrors())
	return ToSExpr(expr)
}

func TestParseExpressions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", `(binary "+" (integer 1) (binary "*" (integer 2) (integer 3)))`},
		{"(1 + 2) * 3", `(binary "*" (binary "+" (integer 1) (integer 2)) (integer 3))`},
		{"a - b - c", `(binary "-" (binary "-" (ident "a") (ident "b")) (ident "c"))`},
		{"not a == b and c", `(binary "and" (unary "not" (binary "==" (ident "a") (ident "b"))) (ident "c"))`},
		{"a or b and c", `(binary "or" (ident "a") (binary "and" (ident "b") (ident "c")))`},
		{"-x.len()", `(unary "-" (call (member "len" (ident "x"))))`},
		{"p.distanceTo(Point(3, 4))", `(call (member "distanceTo" (ident "p")) (call (ident "Point") (integer 3) (integer 4)))`},
		{"m[i, j]", `(idx (ident "m") (ident "i") (ident "j"))`},
		{"xs[0]", `(idx (ident "xs") (integer 0))`},
		{"[1, 2.5, \"s\", true]", `(array (integer 1) (float 2.5) (string "s") (bool true))`},
		{"read(p) catch \"none\"", `(catch (call (ident "read") (ident "p")) (string "none"))`},
		{"read(p) catch raise", `(catch raise (call (ident "read") (ident "p")))`},
		{"await fetch(1)", `(await (call (ident "fetch") (integer 1)))`},
		{"self.x", `(member "x" (self))`},
		{"super(1)", `(call (super) (integer 1))`},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			be.Equal(t, test.expected, parseExpr(t, test.input))
		})
	}
}

func TestParseClass(t *testing.T) {
	t.Parallel()
	src := lines(
		"class Point3 is Point",
		"\tz: Number",
		"\tinit(x: Number)",
		"\t\tsuper(x, 0)",
		"\t\tself.z = x",
		"\toverride fn norm() -> Number",
		"\t\treturn self.z",
	)
	prog, diags := Parse([]byte(src), ParseOptions{})
	be.Equal(t, 0, diags.Len())
	be.Equal(t, `(program (class "Point3" (is "Point") `+
		`(field "z" (type "Number")) `+
		`(init (params (param "x" (type "Number"))) (block `+
		`(expr (call (super) (ident "x") (integer 0))) `+
		`(assign "=" (member "z" (self)) (ident "x")))) `+
		`(fn "norm" override (params) (returns (type "Number")) (block (return (member "z" (self)))))))`,
		ToSExpr(prog))
}

func TestParseFunctions(t *testing.T) {
	t.Parallel()
	src := lines(
		"async fn load(path: String) -> Array<String>",
		"\tlet xs: Array<String> = []",
		"\tawait yield()",
		"\treturn xs",
		"fn first<T>(xs: Array<T>) -> T",
		"\treturn xs[0]",
		"fn sum<T: Numeric>(xs: Array<T>) -> T",
		"\tpass",
	)
	prog, diags := Parse([]byte(src), ParseOptions{})
	be.Equal(t, 0, diags.Len())
	be.Equal(t, 3, len(prog.Children))
	be.Equal(t, `(fn "load" async (params (param "path" (type "String"))) (returns (type "Array" (type "String"))) `+
		`(block (let "xs" (type "Array" (type "String")) (array)) (expr (await (call (ident "yield")))) (return (ident "xs"))))`,
		ToSExpr(prog.Children[0]))
	be.Equal(t, "T", prog.Children[1].TypeParam.Name)
	be.Equal(t, "Numeric", prog.Children[2].TypeParam.Bound)
}

func TestParseStatements(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn main()",
		"\tlet i = 0",
		"\twhile i < 10",
		"\t\ti += 1",
		"\t\tif i == 5",
		"\t\t\tbreak",
		"\t\telif i == 3",
		"\t\t\tcontinue",
		"\t\telse",
		"\t\t\tpass",
		"\tfor x in range(0, 3)",
		"\t\tprint(x)",
		"\treturn",
	)
	prog, diags := Parse([]byte(src), ParseOptions{})
	be.Equal(t, 0, diags.Len())
	be.Equal(t, `(program (fn "main" (params) (block `+
		`(let "i" (integer 0)) `+
		`(while (binary "<" (ident "i") (integer 10)) (block `+
		`(assign "+=" (ident "i") (integer 1)) `+
		`(if (binary "==" (ident "i") (integer 5)) (block (break)) `+
		`(binary "==" (ident "i") (integer 3)) (block (continue)) (block (pass))))) `+
		`(for "x" (call (ident "range") (integer 0) (integer 3)) (block (expr (call (ident "print") (ident "x"))))) `+
		`(return))))`,
		ToSExpr(prog))
}

func TestParseEmptyProgram(t *testing.T) {
	t.Parallel()
	for _, src := range []string{"", "\n\n", lines("# only a comment", "", "# another")} {
		prog, diags := Parse([]byte(src), ParseOptions{})
		be.Equal(t, 0, diags.Len())
		be.Equal(t, "(program)", ToSExpr(prog))
	}
}

func TestParseIsIdempotent(t *testing.T) {
	t.Parallel()
	src := lines(
		"class A",
		"\tn: Integer",
		"\tfn get() -> Integer",
		"\t\treturn self.n * 2 + 1",
		"fn main()",
		"\tprint(A().get())",
	)
	first, d1 := Parse([]byte(src), ParseOptions{})
	second, d2 := Parse([]byte(src), ParseOptions{})
	be.Equal(t, 0, d1.Len())
	be.Equal(t, 0, d2.Len())
	be.Equal(t, ToSExpr(first), ToSExpr(second))
}

func TestParseRecoversFromTwoErrors(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn a()",
		"\tlet x =",
		"\tlet y = 2",
		"fn b()",
		"\tlet z = )",
		"\tprint(z)",
	)
	prog, diags := Parse([]byte(src), ParseOptions{Recover: true})
	be.Equal(t, 2, diags.Len())
	be.Equal(t, 2, diags.Count(diag.SyntaxError))
	be.Equal(t, 2, diags.Items()[0].Span.Line)
	be.Equal(t, 5, diags.Items()[1].Span.Line)
	be.True(t, prog != nil)
	be.Equal(t, `(program (fn "a" (params) (block (let "y" (integer 2)))) `+
		`(fn "b" (params) (block (expr (call (ident "print") (ident "z"))))))`,
		ToSExpr(prog))
}

func TestParseWithoutRecoveryStops(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn a()",
		"\tlet x =",
		"fn b()",
		"\tlet z = )",
	)
	prog, diags := Parse([]byte(src), ParseOptions{})
	be.True(t, prog == nil)
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "expected expression, found end of line", diags.Items()[0].Message)
}

func TestParseRecoverySkipsBrokenHeaderBlock(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn broken(x Integer)",
		"\tprint(x)",
		"\tif x",
		"\t\tpass",
		"fn ok()",
		"\tpass",
	)
	prog, diags := Parse([]byte(src), ParseOptions{Recover: true})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "expected ':' after parameter name, found identifier 'Integer'", diags.Items()[0].Message)
	be.Equal(t, 1, len(prog.Children))
	be.Equal(t, "ok", prog.Children[0].String)
}

func TestParseLexerErrorCountsOnce(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn main()",
		"\tlet x = $",
		"\tprint(1)",
	)
	prog, diags := Parse([]byte(src), ParseOptions{Recover: true})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, `(program (fn "main" (params) (block (expr (call (ident "print") (integer 1))))))`, ToSExpr(prog))
}

func TestParseSpaceIndentationCountsOnce(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn main()",
		"\tlet x = 1",
		"  print(x)",
	)
	prog, diags := Parse([]byte(src), ParseOptions{Recover: true})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "indentation must use tabs", diags.Items()[0].Message)
	be.Equal(t, `(program (fn "main" (params) (block (let "x" (integer 1)))))`, ToSExpr(prog))

	_, diags = Parse([]byte(src), ParseOptions{})
	be.Equal(t, 1, diags.Len())
}

func TestParseRecoversAfterUnclosedParen(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn main()",
		"\tif true",
		"\t\tlet x = (1 +",
		"\t\tprint(2)",
		"\tlet y = 2 2",
		"\tprint(y)",
	)
	prog, diags := Parse([]byte(src), ParseOptions{Recover: true})
	got := diags.Sorted()
	be.Equal(t, 2, len(got))
	be.Equal(t, "3:11: syntax error: unclosed '('", got[0].String())
	be.Equal(t, "5:12: syntax error: expected end of line, found number 2", got[1].String())

	sexpr := ToSExpr(prog)
	be.True(t, strings.Contains(sexpr, `(call (ident "print") (integer 2))`))
	be.True(t, strings.Contains(sexpr, `(call (ident "print") (ident "y"))`))
}

func TestParseInvalidAssignmentTarget(t *testing.T) {
	t.Parallel()
	src := lines("fn main()", "\tf() = 1")
	_, diags := Parse([]byte(src), ParseOptions{Recover: true})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "invalid assignment target", diags.Items()[0].Message)
}
