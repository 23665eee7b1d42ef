package sema

import (
	"strings"
	"testing"

	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/nalgeon/be"
)

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func check(t *testing.T, src string, opts Options) (*Program, diag.List) {
	t.Helper()
	ast, diags := syntax.Parse([]byte(src), syntax.ParseOptions{})
	be.Equal(t, "", diags.String())
	return Check(ast, opts)
}

func mustCheck(t *testing.T, src string) *Program {
	t.Helper()
	prog, diags := check(t, src, Options{})
	be.Equal(t, "", diags.String())
	be.True(t, prog != nil)
	return prog
}

// nodes returns the nodes below root matching kind, in source order.
func nodes(root *syntax.Node, kind syntax.NodeKind) []*syntax.Node {
	var out []*syntax.Node
	syntax.Walk(root, func(n *syntax.Node) bool {
		if n.Kind == kind {
			out = append(out, n)
		}
		return true
	})
	return out
}

func funcByName(prog *Program, name string) *FuncInfo {
	for _, f := range prog.Funcs {
		if f.Qualified == name {
			return f
		}
	}
	return nil
}

func TestShadowing(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"fn main()",
		"\tlet x = 1",
		"\tif true",
		"\t\tlet x = \"inner\"",
		"\t\tprint(x)",
		"\tprint(x)",
	))
	body := prog.Main.Decl.Body()
	outer := body.Children[0]
	inner := body.Children[1].Children[1].Children[0]

	innerUse := body.Children[1].Children[1].Children[1].Children[0].Children[1]
	outerUse := body.Children[2].Children[0].Children[1]
	be.True(t, prog.Info.Uses[innerUse] == prog.Info.Defs[inner])
	be.True(t, prog.Info.Uses[outerUse] == prog.Info.Defs[outer])
	be.True(t, types.Equal(prog.Info.Types[innerUse], types.String))
	be.True(t, types.Equal(prog.Info.Types[outerUse], types.Integer))
}

func TestDuplicateInSameScope(t *testing.T) {
	t.Parallel()
	prog, diags := check(t, lines(
		"fn main()",
		"\tlet x = 1",
		"\tlet x = 2",
	), Options{})
	be.True(t, prog == nil)
	be.Equal(t, 1, diags.Len())
	be.Equal(t, 1, diags.Count(diag.ScopeError))
	be.Equal(t, "3:2: scope error: 'x' is already defined in this scope at 2:2", diags.Items()[0].String())
}

func TestDuplicateDeclarations(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"class P",
		"\tx: Integer",
		"\tx: Number",
		"fn f(a: Integer, a: Integer)",
		"\tpass",
		"fn f()",
		"\tpass",
		"fn main()",
		"\tpass",
	), Options{})
	be.Equal(t, 3, diags.Count(diag.ScopeError))
}

func TestUndefinedIdentifier(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"fn main()",
		"\tprint(y)",
	), Options{})
	be.Equal(t, 1, diags.Len())
	d := diags.Items()[0]
	be.Equal(t, diag.ScopeError, d.Kind)
	be.Equal(t, "undefined identifier 'y'", d.Message)
	be.Equal(t, 2, d.Span.Line)
	be.Equal(t, 8, d.Span.Column)
}

func TestIndependentErrorsAccumulate(t *testing.T) {
	t.Parallel()
	prog, diags := check(t, lines(
		"fn main()",
		"\tlet a: Integer = \"s\"",
		"\tlet b = missing",
		"\tprint(1)",
	), Options{})
	be.True(t, prog == nil)
	be.Equal(t, 2, diags.Len())
	be.Equal(t, 1, diags.Count(diag.TypeError))
	be.Equal(t, 1, diags.Count(diag.ScopeError))
}

func TestLiteralNarrowing(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"fn main()",
		"\tlet n: Number = 1 + 2",
		"\tlet i = 3",
		"\tlet m = 1.5 * 2",
		"\tlet xs: Array<Number> = [1, 2]",
		"\tlet ys = [1, 2.5]",
	))
	ints := nodes(prog.AST, syntax.NodeInteger)
	want := []types.Type{types.Number, types.Number, types.Integer, types.Number, types.Number, types.Number, types.Number}
	be.Equal(t, len(want), len(ints))
	for i, n := range ints {
		be.True(t, types.Equal(prog.Info.Types[n], want[i]))
	}
	lets := nodes(prog.AST, syntax.NodeLet)
	be.True(t, types.Equal(prog.Info.Defs[lets[2]].Type, types.Number))
	be.True(t, types.Equal(prog.Info.Defs[lets[4]].Type, types.ArrayOf(types.Number)))
	for _, typ := range prog.Info.Types {
		be.True(t, !hasLiteral(typ))
	}
}

func TestNumericMismatch(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"fn main()",
		"\tlet i = 1",
		"\tlet f = 2.5",
		"\tprint(i + f)",
		"\tprint(f % 2.0)",
	), Options{})
	be.Equal(t, 2, diags.Count(diag.TypeError))
	be.Equal(t, "mismatched types Integer and Number for operator '+'", diags.Items()[0].Message)
	be.Equal(t, "operator '%' is not defined for Number", diags.Items()[1].Message)
}

func TestContainers(t *testing.T) {
	t.Parallel()
	mustCheck(t, lines(
		"fn main()",
		"\tlet xs: Array<String> = []",
		"\txs.push(\"a\")",
		"\tlet m = matrix(2, 3, 0.0)",
		"\tm[1, 2] = 4",
		"\tprint(m[1, 2] * 2)",
		"\tprint(xs.len() + m.rows())",
	))
	_, diags := check(t, lines(
		"fn main()",
		"\tlet xs = [1, 2]",
		"\txs.push(\"a\")",
		"\tlet m = matrix(2, 2, 1)",
		"\tprint(m[0])",
		"\tlet e = []",
	), Options{})
	be.Equal(t, 3, diags.Count(diag.TypeError))
}

func TestGenericInstances(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"fn first<T>(xs: Array<T>) -> T",
		"\treturn xs[0]",
		"fn sum<T: Numeric>(xs: Array<T>) -> T",
		"\tlet total: T = 0",
		"\tfor x in xs",
		"\t\ttotal += x",
		"\treturn total",
		"fn main()",
		"\tprint(first([1, 2]))",
		"\tprint(first([\"a\", \"b\"]))",
		"\tprint(sum([1.5, 2]))",
		"\tprint(first([3]))",
	))
	first := funcByName(prog, "first")
	sum := funcByName(prog, "sum")
	be.Equal(t, 2, len(prog.Info.Instances[first]))
	be.Equal(t, "first<Integer>", prog.Info.Instances[first][0].Name())
	be.Equal(t, "first<String>", prog.Info.Instances[first][1].Name())
	be.Equal(t, 1, len(prog.Info.Instances[sum]))
	be.True(t, types.Equal(prog.Info.Instances[sum][0].Arg, types.Number))
}

func TestGenericBound(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"fn sum<T: Numeric>(xs: Array<T>) -> T",
		"\treturn xs[0]",
		"fn main()",
		"\tprint(sum([\"a\"]))",
	), Options{})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "String does not satisfy Numeric in call to 'sum'", diags.Items()[0].Message)
}

func TestOverrideSignatures(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"class Shape",
		"\tfn area() -> Number",
		"\t\treturn 0.0",
		"class Square is Shape",
		"\tside: Number",
		"\toverride fn area() -> Number",
		"\t\treturn self.side * self.side",
		"fn main()",
		"\tlet s: Shape = Square(2.0)",
		"\tprint(s.area())",
	))
	square := prog.Classes[1]
	be.Equal(t, "Shape", square.Parent.Name)
	be.True(t, square.Init.ImplicitSuper == prog.Classes[0].Init)

	_, diags := check(t, lines(
		"class Shape",
		"\tfn area() -> Number",
		"\t\treturn 0.0",
		"class Square is Shape",
		"\toverride fn area(scale: Number) -> Number",
		"\t\treturn scale",
		"fn main()",
		"\tpass",
	), Options{})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, diag.InheritanceError, diags.Items()[0].Kind)
	be.True(t, strings.Contains(diags.Items()[0].Message, "different signature"))
}

func TestOverrideMarkers(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"class A",
		"\tfn f()",
		"\t\tpass",
		"\toverride fn g()",
		"\t\tpass",
		"class B is A",
		"\tfn f()",
		"\t\tpass",
		"fn main()",
		"\tpass",
	), Options{})
	be.Equal(t, 2, diags.Count(diag.InheritanceError))
	be.Equal(t, "method 'A.g' is marked override but 'A' has no parent class", diags.Items()[0].Message)
	be.Equal(t, "method 'B.f' hides 'A.f'; mark it override", diags.Items()[1].Message)
}

func TestParentChain(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"class A is A",
		"\tpass",
		"class B is Missing",
		"\tpass",
		"class C is D",
		"\tpass",
		"class D is C",
		"\tpass",
		"class E is Request",
		"\tpass",
		"fn main()",
		"\tpass",
	), Options{})
	be.Equal(t, 4, diags.Count(diag.InheritanceError))
}

func TestConstructorDelegation(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"class A",
		"\tn: Integer",
		"\tinit()",
		"\t\tself.n = 7",
		"class B is A",
		"\tm: Integer",
		"\tinit(m: Integer)",
		"\t\tself.m = m",
		"class C is A",
		"\tinit(k: Integer)",
		"\t\tsuper()",
		"fn main()",
		"\tprint(B(1).n)",
	))
	a, b, c := prog.Classes[0], prog.Classes[1], prog.Classes[2]
	be.True(t, b.Init.ImplicitSuper == a.Init)
	be.True(t, c.Init.ImplicitSuper == nil)
	be.True(t, c.Init.SuperCall != nil)

	_, diags := check(t, lines(
		"class A",
		"\tinit(n: Integer)",
		"\t\tpass",
		"class B is A",
		"\tinit()",
		"\t\tpass",
		"class C is A",
		"\tx: Integer",
		"fn main()",
		"\tpass",
	), Options{})
	be.Equal(t, 2, diags.Count(diag.InheritanceError))
	be.Equal(t, "constructor of 'B' must call super(...): constructor of 'A' takes 1 arguments", diags.Sorted()[0].Message)
}

func TestMemberwiseConstructor(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"class Point",
		"\tx: Number",
		"\ty: Number",
		"class Point3 is Point",
		"\tz: Number",
		"fn main()",
		"\tlet p = Point3(1, 2, 3)",
		"\tprint(p.x + p.z)",
	))
	p3 := prog.Classes[1]
	be.True(t, p3.Init.Memberwise)
	be.Equal(t, 3, len(p3.Init.Params))
	be.Equal(t, 2, p3.Init.ForwardArgs)
	be.Equal(t, 1, len(p3.Init.InitFields))
	be.Equal(t, "z", p3.Init.InitFields[0].Name)
}

func TestEndToEndProgramChecks(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"class Point",
		"\tx: Number",
		"\ty: Number",
		"\tfn distanceTo(other: Point) -> Number",
		"\t\tlet dx = other.x - self.x",
		"\t\tlet dy = other.y - self.y",
		"\t\treturn sqrt(dx * dx + dy * dy)",
		"fn main()",
		"\tprint(Point(0, 0).distanceTo(Point(3, 4)))",
	))
	calls := nodes(prog.Main.Decl, syntax.NodeCall)
	be.Equal(t, "_print_float", prog.Info.Calls[calls[0]].Import)
	be.Equal(t, CallMethod, prog.Info.Calls[calls[1]].Kind)
	be.Equal(t, CallConstructor, prog.Info.Calls[calls[2]].Kind)
}

func TestDefiniteReturn(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines(
		"fn sign(x: Integer) -> Integer",
		"\tif x > 0",
		"\t\treturn 1",
		"\telif x < 0",
		"\t\treturn -1",
		"fn main()",
		"\tpass",
	), Options{})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "function 'sign' may end without returning Integer", diags.Items()[0].Message)

	mustCheck(t, lines(
		"fn sign(x: Integer) -> Integer",
		"\tif x > 0",
		"\t\treturn 1",
		"\telse",
		"\t\treturn 0",
		"fn main()",
		"\tprint(sign(2))",
	))
}

func TestCatchClauses(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"fn load(path: String) -> String",
		"\tlet text = readFile(path) catch raise",
		"\treturn text",
		"fn main()",
		"\tlet a = load(\"x\") catch \"fallback\"",
		"\tlet b = readFile(\"y\") catch \"\"",
		"\twriteFile(\"z\", a + b) catch print(\"write failed\")",
	))
	be.True(t, prog.Info.Fallible[funcByName(prog, "load")])
	be.True(t, !prog.Info.Fallible[prog.Main])
	be.Equal(t, 3, len(nodes(prog.Main.Decl, syntax.NodeCatch)))

	_, diags := check(t, lines(
		"fn load(path: String) -> String",
		"\treturn readFile(path) catch raise",
		"fn main()",
		"\tlet a = load(\"x\")",
		"\tlet b = readFile(\"y\")",
		"\tlet c = readFile(\"z\") catch 1",
	), Options{})
	be.Equal(t, 3, diags.Count(diag.TypeError))
	be.Equal(t, "call to 'load' can fail and needs a catch clause", diags.Items()[0].Message)
	be.Equal(t, "call to 'readFile' can fail and needs a catch clause", diags.Items()[1].Message)
	be.Equal(t, "catch fallback has type Integer, expected String", diags.Items()[2].Message)
}

func TestCatchOnInfallibleCallWarns(t *testing.T) {
	t.Parallel()
	prog, diags := check(t, lines(
		"fn main()",
		"\tlet n = \"abc\".len() catch 0",
		"\tprint(n)",
	), Options{})
	be.True(t, prog != nil)
	be.Equal(t, 1, diags.Len())
	be.True(t, !diags.HasErrors())
	be.Equal(t, diag.Warning, diags.Items()[0].Severity)
}

func TestAsyncStateMachine(t *testing.T) {
	t.Parallel()
	prog := mustCheck(t, lines(
		"async fn tick() -> Integer",
		"\tawait yield()",
		"\treturn 1",
		"async fn run() -> Integer",
		"\tlet a = await tick()",
		"\tlet b = a + 1",
		"\tawait yield()",
		"\treturn b",
		"fn main()",
		"\tprint(run())",
	))
	run := funcByName(prog, "run")
	sm := prog.Info.StateMachines[run]
	be.Equal(t, 2, len(sm.Awaits))
	be.Equal(t, 3, len(sm.Segments))
	be.Equal(t, 0, len(sm.Segments[0]))
	be.Equal(t, 1, len(sm.Segments[1]))
	be.Equal(t, 1, len(sm.Segments[2]))
	be.Equal(t, 2, len(sm.Saved))
	be.Equal(t, 40, int(sm.FrameSize()))
	be.Equal(t, FrameSlots+SlotSize, sm.SlotOffset(sm.Saved[1]))

	calls := nodes(prog.Main.Decl, syntax.NodeCall)
	runCall := prog.Info.Calls[calls[1]]
	be.True(t, runCall.Async)
	be.True(t, !runCall.Awaited)
}

func TestAwaitPlacement(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{
			"nested in block",
			lines("async fn f() -> Integer", "\tif true", "\t\tawait yield()", "\treturn 1", "fn main()", "\tprint(f())"),
			"await must be a whole statement at the top level of an async function body",
		},
		{
			"inside expression",
			lines("async fn g() -> Integer", "\treturn 1", "async fn f() -> Integer", "\treturn 1 + await g()", "fn main()", "\tprint(f())"),
			"await must be a whole statement at the top level of an async function body",
		},
		{
			"sync function",
			lines("fn f()", "\tawait yield()", "fn main()", "\tf()"),
			"await outside of an async function",
		},
		{
			"sync callee",
			lines("fn g() -> Integer", "\treturn 1", "async fn f() -> Integer", "\treturn await g()", "fn main()", "\tprint(f())"),
			"await requires a call to an async function",
		},
		{
			"bare yield",
			lines("async fn f()", "\tyield()", "fn main()", "\tf()"),
			"yield() must be awaited",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, diags := check(t, test.src, Options{})
			be.Equal(t, 1, diags.Len())
			be.Equal(t, test.message, diags.Items()[0].Message)
		})
	}
}

func TestServerTarget(t *testing.T) {
	t.Parallel()
	src := lines(
		"fn about(req: Request)",
		"\treq.send(\"about\")",
		"fn home(req: Request)",
		"\treq.status(200)",
		"\treq.send(\"home\")",
		"fn main()",
		"\troute(\"GET\", \"/\", home)",
		"\troute(\"GET\", \"/about\", about)",
		"\tlisten(8080) catch print(\"listen failed\")",
	)
	prog, diags := check(t, src, Options{Server: true})
	be.Equal(t, "", diags.String())
	be.Equal(t, 2, len(prog.Info.TableOrder))
	be.Equal(t, "about", prog.Info.TableOrder[0].Name)
	be.Equal(t, "home", prog.Info.TableOrder[1].Name)
	be.Equal(t, 1, prog.Info.TableIndex(funcByName(prog, "home")))

	_, diags = check(t, src, Options{})
	be.True(t, diags.Count(diag.TypeError) > 0)
	for _, d := range diags.Items() {
		be.True(t, strings.Contains(d.Message, "only available when compiling for the server target"))
	}
}

func TestEntryPoint(t *testing.T) {
	t.Parallel()
	_, diags := check(t, lines("fn helper()", "\tpass"), Options{})
	be.Equal(t, 1, diags.Len())
	be.Equal(t, "missing entry function 'main'", diags.Items()[0].Message)

	_, diags = check(t, lines("async fn main()", "\tpass"), Options{})
	be.Equal(t, "main cannot be async", diags.Items()[0].Message)

	_, diags = check(t, lines("fn main(x: Integer)", "\tpass"), Options{})
	be.Equal(t, "main must not take parameters", diags.Items()[0].Message)
}

func TestScopeChain(t *testing.T) {
	t.Parallel()
	outer := NewScope(nil)
	inner := NewScope(outer)
	x := &Symbol{Name: "x", Kind: SymVar, Type: types.Integer}
	_, ok := outer.Define(x)
	be.True(t, ok)
	be.True(t, inner.Lookup("x") == x)
	be.True(t, inner.LookupLocal("x") == nil)

	shadow := &Symbol{Name: "x", Kind: SymVar, Type: types.String}
	_, ok = inner.Define(shadow)
	be.True(t, ok)
	be.True(t, inner.Lookup("x") == shadow)

	prev, ok := inner.Define(&Symbol{Name: "x"})
	be.True(t, !ok)
	be.True(t, prev == shadow)
	be.True(t, inner.Parent() == outer)
}
