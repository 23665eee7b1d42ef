package codegen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/kestrel-lang/kestrel/wasm"
	"github.com/nalgeon/be"
)

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func checked(t *testing.T, target Target, src string) *sema.Program {
	t.Helper()
	ast, diags := syntax.Parse([]byte(src), syntax.ParseOptions{})
	be.Equal(t, "", diags.String())
	prog, diags := sema.Check(ast, sema.Options{Server: target.Server()})
	be.Equal(t, "", diags.String())
	return prog
}

func build(t *testing.T, target Target, src string) *wasm.Module {
	t.Helper()
	mod, err := Build(checked(t, target, src), target)
	be.Err(t, err, nil)
	return mod
}

func funcNames(mod *wasm.Module) []string {
	var out []string
	for _, f := range mod.Funcs {
		out = append(out, f.Name)
	}
	return out
}

func body(t *testing.T, mod *wasm.Module, name string) []byte {
	t.Helper()
	for _, f := range mod.Funcs {
		if f.Name == name {
			return f.Body
		}
	}
	t.Fatalf("no function %s in %v", name, funcNames(mod))
	return nil
}

func exportNames(mod *wasm.Module) []string {
	var out []string
	for _, e := range mod.Exports {
		out = append(out, e.Name)
	}
	return out
}

// sectionIDs lists the section ids of an encoded module.
func sectionIDs(t *testing.T, bin []byte) []byte {
	t.Helper()
	be.Equal(t, []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}, bin[:8])
	var ids []byte
	rest := bin[8:]
	for len(rest) > 0 {
		size, n := binary.Uvarint(rest[1:])
		be.True(t, n > 0)
		ids = append(ids, rest[0])
		rest = rest[1+n+int(size):]
	}
	return ids
}

func receiverType(name string) types.Type {
	if name == "String" {
		return types.String
	}
	return types.Class(name)
}

func TestBuiltinSignaturesMatchHostABI(t *testing.T) {
	t.Parallel()
	for _, b := range sema.Builtins() {
		if b.Import == "" {
			continue
		}
		imp, ok := abi.Lookup(b.Import)
		be.True(t, ok)
		var params []types.Type
		if b.Receiver != "" {
			params = append(params, receiverType(b.Receiver))
		}
		params = append(params, b.Params...)
		if !slices.Equal(lower(params...), imp.Params) {
			t.Errorf("%s: params %v, host %s takes %v", b.Name, lower(params...), imp.Name, imp.Params)
		}
		if !slices.Equal(results(b.Result), imp.Results) {
			t.Errorf("%s: result %v, host %s returns %v", b.Name, results(b.Result), imp.Name, imp.Results)
		}
		be.Equal(t, imp.Fallible, b.Fallible)
		be.Equal(t, imp.ServerOnly, b.ServerOnly)
	}
}

func TestOverloadSignaturesMatchHostABI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		imp    string
		arg    types.Type
		result types.Type
	}{
		{"_print_str", types.String, types.Void},
		{"_print_int", types.Integer, types.Void},
		{"_print_float", types.Number, types.Void},
		{"_print_bool", types.Boolean, types.Void},
		{"_int_to_str", types.Integer, types.String},
		{"_float_to_str", types.Number, types.String},
	}
	for _, test := range tests {
		imp, ok := abi.Lookup(test.imp)
		be.True(t, ok)
		be.True(t, slices.Equal(lower(test.arg), imp.Params))
		be.True(t, slices.Equal(results(test.result), imp.Results))
	}
}

const tableProgram = "" +
	"fn double(x: Integer) -> Integer\n" +
	"\treturn x * 2\n" +
	"fn unused() -> Integer\n" +
	"\treturn 1\n" +
	"fn main()\n" +
	"\tlet f = double\n" +
	"\tprint(f(21))\n" +
	"\tprint(\"done\")\n"

func TestSectionOrder(t *testing.T) {
	t.Parallel()
	target := DefaultTarget()
	target.Debug = true
	bin, err := Generate(checked(t, target, tableProgram), target)
	be.Err(t, err, nil)
	want := []byte{
		wasm.SectionType, wasm.SectionImport, wasm.SectionFunction, wasm.SectionTable,
		wasm.SectionMemory, wasm.SectionExport, wasm.SectionElement, wasm.SectionCode,
		wasm.SectionData, wasm.SectionCustom,
	}
	be.Equal(t, want, sectionIDs(t, bin))
}

func TestFunctionTableIsStable(t *testing.T) {
	t.Parallel()
	target := DefaultTarget()
	first, err := Generate(checked(t, target, tableProgram), target)
	be.Err(t, err, nil)
	second, err := Generate(checked(t, target, tableProgram), target)
	be.Err(t, err, nil)
	be.True(t, bytes.Equal(first, second))

	mod := build(t, target, tableProgram)
	be.Equal(t, 1, len(mod.Table))
	be.Equal(t, "double", mod.FuncName(mod.Table[0]))
	be.True(t, slices.Contains(exportNames(mod), ExportTable))
}

func TestExports(t *testing.T) {
	t.Parallel()
	src := lines("fn main()", "\tprint(1)")
	mod := build(t, DefaultTarget(), src)
	be.Equal(t, []string{ExportMemory, "main", ExportAlloc, ExportHeapReset}, exportNames(mod))

	target := DefaultTarget()
	target.Entry = "_start"
	mod = build(t, target, src)
	be.Equal(t, "_start", mod.Exports[1].Name)
	be.Equal(t, "main", mod.FuncName(mod.Exports[1].Index))
	be.True(t, slices.Contains(funcNames(mod), helperAlloc))
	be.True(t, slices.Contains(funcNames(mod), helperHeapReset))
}

func TestStringPool(t *testing.T) {
	t.Parallel()
	mod := build(t, DefaultTarget(), lines(
		"fn main()",
		"\tprint(\"hello\")",
		"\tprint(\"world\")",
		"\tprint(\"hello\")",
	))
	be.Equal(t, 1, len(mod.Data))
	data := mod.Data[0]
	be.Equal(t, uint32(abi.HeapPointerAddr), data.Offset)

	// hello at 8, world at 20 after 4-byte alignment.
	be.Equal(t, abi.EncodeString("hello"), data.Bytes[8:17])
	be.Equal(t, abi.EncodeString("world"), data.Bytes[20:29])
	be.Equal(t, 29, len(data.Bytes))
	be.Equal(t, uint32(32), binary.LittleEndian.Uint32(data.Bytes))
	be.Equal(t, uint32(1), mod.MemoryMin)
}

func TestHostRuntime(t *testing.T) {
	t.Parallel()
	target := DefaultTarget()
	target.Runtime = RuntimeHost
	mod := build(t, target, lines(
		"fn main()",
		"\tlet xs = [1, 2]",
		"\tprint(xs[1])",
	))
	var mem []string
	for _, imp := range mod.Imports {
		if imp.Module == abi.ModuleMemoryRuntime {
			mem = append(mem, imp.Name)
		}
	}
	be.Equal(t, []string{"_alloc", "_heap_reset"}, mem)
	be.True(t, !slices.Contains(funcNames(mod), helperAlloc))
	be.True(t, slices.Contains(funcNames(mod), helperArrayNew))
}

func TestImportsFollowTableOrder(t *testing.T) {
	t.Parallel()
	mod := build(t, DefaultTarget(), lines(
		"fn main()",
		"\tprint(sqrt(2.0))",
		"\tprint(\"x\")",
		"\tprint(true)",
	))
	var names []string
	for _, imp := range mod.Imports {
		names = append(names, imp.Name)
	}
	be.Equal(t, []string{"_print_str", "_print_float", "_print_bool", "_math_sqrt"}, names)
}

func TestConstantFolding(t *testing.T) {
	t.Parallel()
	src := lines("fn main()", "\tprint(2 + 3)")

	folded := build(t, Target{Name: TargetDefault, Entry: "main", Runtime: RuntimeInline, Optimization: 1}, src)
	be.True(t, bytes.Contains(body(t, folded, "main"), []byte{wasm.I64_CONST, 5, wasm.CALL}))

	plain := build(t, DefaultTarget(), src)
	be.True(t, bytes.Contains(body(t, plain, "main"), []byte{wasm.I64_CONST, 2, wasm.I64_CONST, 3, wasm.I64_ADD}))
}

func TestFoldingKeepsTraps(t *testing.T) {
	t.Parallel()
	target := DefaultTarget()
	target.Optimization = 1
	mod := build(t, target, lines("fn main()", "\tprint(7 / 0)"))
	be.True(t, bytes.Contains(body(t, mod, "main"), []byte{wasm.I64_DIV_S}))
}

func TestFoldBinary(t *testing.T) {
	t.Parallel()
	i := func(v int64) constValue { return constValue{kind: types.KindInteger, i: v} }
	tests := []struct {
		op   string
		l, r constValue
		want constValue
		ok   bool
	}{
		{"+", i(2), i(3), i(5), true},
		{"%", i(7), i(3), i(1), true},
		{"/", i(-7), i(2), i(-3), true},
		{"/", i(1), i(0), constValue{}, false},
		{"/", i(-9223372036854775808), i(-1), constValue{}, false},
		{"<", i(1), i(2), constValue{kind: types.KindBoolean, b: true}, true},
		{"+", constValue{kind: types.KindString, s: "a"}, constValue{kind: types.KindString, s: "b"},
			constValue{kind: types.KindString, s: "ab"}, true},
		{"/", constValue{kind: types.KindNumber, f: 1}, constValue{kind: types.KindNumber, f: 4},
			constValue{kind: types.KindNumber, f: 0.25}, true},
	}
	for _, test := range tests {
		got, ok := foldBinary(test.op, test.l, test.r)
		be.Equal(t, test.ok, ok)
		be.Equal(t, test.want, got)
	}
}

func TestDeadFunctions(t *testing.T) {
	t.Parallel()
	all := build(t, DefaultTarget(), tableProgram)
	be.True(t, slices.Contains(funcNames(all), "unused"))

	target := DefaultTarget()
	target.Optimization = 2
	live := build(t, target, tableProgram)
	be.True(t, !slices.Contains(funcNames(live), "unused"))
	be.True(t, slices.Contains(funcNames(live), "double"))
}

func TestGenericInstances(t *testing.T) {
	t.Parallel()
	mod := build(t, DefaultTarget(), lines(
		"fn first<T>(xs: Array<T>) -> T",
		"\treturn xs[0]",
		"fn main()",
		"\tprint(first([1, 2]))",
		"\tprint(first([\"a\"]))",
	))
	names := funcNames(mod)
	be.True(t, slices.Contains(names, "first<Integer>"))
	be.True(t, slices.Contains(names, "first<String>"))
	be.True(t, !slices.Contains(names, "first"))
}

func TestConstructors(t *testing.T) {
	t.Parallel()
	mod := build(t, DefaultTarget(), lines(
		"class Point",
		"\tx: Integer",
		"\ty: Integer",
		"class Point3 is Point",
		"\tz: Integer",
		"fn main()",
		"\tlet p = Point3(1, 2, 3)",
		"\tprint(p.x + p.z)",
	))
	names := funcNames(mod)
	for _, name := range []string{"Point.init", "Point$new", "Point3.init", "Point3$new"} {
		be.True(t, slices.Contains(names, name))
	}
	// Point3.init delegates to Point.init before storing z.
	init := body(t, mod, "Point3.init")
	be.True(t, bytes.HasPrefix(init, []byte{wasm.LOCAL_GET, 0, wasm.LOCAL_GET, 1, wasm.LOCAL_GET, 2, wasm.CALL}))
}

func TestAsyncLowering(t *testing.T) {
	t.Parallel()
	mod := build(t, DefaultTarget(), lines(
		"async fn tick() -> Integer",
		"\tawait yield()",
		"\treturn 7",
		"fn main()",
		"\tprint(tick())",
	))
	names := funcNames(mod)
	be.True(t, slices.Contains(names, "tick"))
	be.True(t, slices.Contains(names, "tick$resume"))

	resume := body(t, mod, "tick$resume")
	// Two resume points: two blocks, then the dispatch on the state.
	be.True(t, bytes.HasPrefix(resume, []byte{
		wasm.BLOCK, wasm.BlockVoid, wasm.BLOCK, wasm.BlockVoid,
		wasm.LOCAL_GET, 0, wasm.I32_LOAD, 2, frameState,
		wasm.BR_TABLE, 2, 0, 1, 1,
	}))
	// main drives the frame with a polling loop.
	be.True(t, bytes.Contains(body(t, mod, "main"), []byte{wasm.LOOP, wasm.BlockVoid}))
}

func TestFallibleCalls(t *testing.T) {
	t.Parallel()
	mod := build(t, DefaultTarget(), lines(
		"fn parse(s: String) -> Integer",
		"\treturn s.toInt() catch raise",
		"fn main()",
		"\tprint(parse(\"4\") catch -1)",
	))
	be.Equal(t, 1, len(mod.Globals))
	be.True(t, mod.Globals[0].Mutable)
	var names []string
	for _, imp := range mod.Imports {
		names = append(names, imp.Name)
	}
	be.True(t, slices.Contains(names, "_last_error"))
	be.True(t, bytes.Contains(body(t, mod, "main"), []byte{wasm.GLOBAL_GET, 0}))
}

func TestClassLayout(t *testing.T) {
	t.Parallel()
	prog := checked(t, DefaultTarget(), lines(
		"class Shape",
		"\tvisible: Boolean",
		"\tarea: Number",
		"class Circle is Shape",
		"\tr: Integer",
		"\tfilled: Boolean",
		"fn main()",
		"\tpass",
	))
	g := newGenerator(prog, DefaultTarget())
	shape, circle := prog.Classes[0], prog.Classes[1]

	l := g.layout(shape)
	be.Equal(t, uint32(16), l.size)
	be.Equal(t, uint32(0), g.fieldOffset(shape.Field("visible")))
	be.Equal(t, uint32(8), g.fieldOffset(shape.Field("area")))

	l = g.layout(circle)
	be.Equal(t, uint32(32), l.size)
	be.Equal(t, uint32(16), l.offsets[circle.Field("r")])
	be.Equal(t, uint32(24), l.offsets[circle.Field("filled")])
	be.Equal(t, uint32(8), l.offsets[circle.Field("area")])
}

func TestInternalErrors(t *testing.T) {
	t.Parallel()
	_, err := Generate(nil, DefaultTarget())
	var ie *diag.InternalError
	be.True(t, errors.As(err, &ie))

	prog := checked(t, DefaultTarget(), lines("fn main()", "\tpass"))
	_, err = Generate(prog, Target{Name: TargetDefault, Entry: "main", Runtime: RuntimeInline, Optimization: 3})
	be.True(t, errors.As(err, &ie))
	be.True(t, strings.Contains(err.Error(), "optimization level 3"))
}

func TestTargetValidate(t *testing.T) {
	t.Parallel()
	be.Err(t, DefaultTarget().Validate(), nil)
	bad := []Target{
		{Name: "browser", Entry: "main", Runtime: RuntimeInline},
		{Name: TargetServer, Entry: "start", Runtime: RuntimeInline},
		{Name: TargetServer, Entry: "main", Runtime: "shared"},
	}
	for _, target := range bad {
		be.True(t, target.Validate() != nil)
	}
}
