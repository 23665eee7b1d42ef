// Package codegen lowers checked Kestrel programs to WebAssembly modules.
//
// Every function reachable from the entry point becomes one or two wasm
// functions: constructors get an allocating C$new wrapper, async functions a
// f$resume state machine. Generic functions are emitted once per concrete
// type argument.
package codegen

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/kestrel-lang/kestrel/types"
	"github.com/kestrel-lang/kestrel/wasm"
)

// Runtime selects where the bump allocator lives.
type Runtime string

const (
	// RuntimeInline modules define _alloc and _heap_reset themselves.
	RuntimeInline Runtime = "inline"
	// RuntimeHost modules import them from memory_runtime.
	RuntimeHost Runtime = "host"
)

// Target names.
const (
	TargetDefault = "default"
	TargetServer  = "server"
)

// Target is the profile a module is built for.
type Target struct {
	// Name is TargetDefault or TargetServer. Only server modules may use
	// the server host functions.
	Name string
	// Entry is the export name of main: "main" or "_start".
	Entry   string
	Runtime Runtime
	// Optimization 1 folds constant expressions, 2 also drops functions
	// unreachable from the entry point and the function table.
	Optimization int
	// Debug emits the custom name section.
	Debug bool
}

// DefaultTarget returns the target used when no flags are given.
func DefaultTarget() Target {
	return Target{Name: TargetDefault, Entry: "main", Runtime: RuntimeInline}
}

// Server reports whether t is the server target.
func (t Target) Server() bool { return t.Name == TargetServer }

// Validate checks the target fields.
func (t Target) Validate() error {
	switch t.Name {
	case TargetDefault, TargetServer:
	default:
		return fmt.Errorf("unknown target %q (want %s or %s)", t.Name, TargetDefault, TargetServer)
	}
	switch t.Entry {
	case "main", "_start":
	default:
		return fmt.Errorf("unknown entry point %q (want main or _start)", t.Entry)
	}
	switch t.Runtime {
	case RuntimeInline, RuntimeHost:
	default:
		return fmt.Errorf("unknown runtime %q (want %s or %s)", t.Runtime, RuntimeInline, RuntimeHost)
	}
	if t.Optimization < 0 || t.Optimization > 2 {
		return fmt.Errorf("optimization level %d out of range 0..2", t.Optimization)
	}
	return nil
}

// Export names every module carries.
const (
	ExportMemory    = "memory"
	ExportAlloc     = "_alloc"
	ExportHeapReset = "_heap_reset"
	ExportTable     = "__indirect_function_table"
)

// Generate lowers prog to module bytes. The only errors are
// *diag.InternalError values, which mean prog was not a valid checked
// program.
func Generate(prog *sema.Program, target Target) ([]byte, error) {
	mod, err := Build(prog, target)
	if err != nil {
		return nil, err
	}
	return mod.Encode(), nil
}

// Build is Generate without the final encoding step.
func Build(prog *sema.Program, target Target) (mod *wasm.Module, err error) {
	if prog == nil || prog.Main == nil {
		return nil, diag.Internalf(zeroSpan, "no checked program to generate")
	}
	if err := target.Validate(); err != nil {
		return nil, diag.Internalf(zeroSpan, "%v", err)
	}
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*diag.InternalError)
			if !ok {
				panic(r)
			}
			mod, err = nil, ie
		}
	}()

	g := newGenerator(prog, target)
	g.collect()
	g.declare()
	for _, u := range g.units {
		g.emitUnit(u)
	}
	g.finish()
	return &g.mod, nil
}

// unit is one function of the program, or one instance of a generic
// function, scheduled for emission.
type unit struct {
	key   string
	fn    *sema.FuncInfo
	subst map[string]types.Type
	// index is the function itself: the init of constructors and the
	// frame-allocating entry of async functions.
	index uint32
	// aux is C$new for constructors and f$resume for async functions.
	aux uint32
}

type generator struct {
	prog   *sema.Program
	info   *sema.Info
	target Target

	mod     wasm.Module
	pool    *stringPool
	layouts map[*sema.ClassInfo]*classLayout

	units  []*unit
	byKey  map[string]*unit
	needed map[string]bool

	imports map[string]uint32
	helpers map[string]uint32
	// pendingHelpers are declared helpers whose bodies are built by finish.
	pendingHelpers []string

	needErr   bool
	errGlobal uint32
	heapBase  uint32
}

func newGenerator(prog *sema.Program, target Target) *generator {
	return &generator{
		prog:    prog,
		info:    prog.Info,
		target:  target,
		pool:    newStringPool(),
		layouts: map[*sema.ClassInfo]*classLayout{},
		byKey:   map[string]*unit{},
		needed:  map[string]bool{},
		imports: map[string]uint32{},
		helpers: map[string]uint32{},
	}
}

var zeroSpan diag.Span

// fail aborts generation with an internal error.
func fail(span diag.Span, format string, args ...any) {
	panic(diag.Internalf(span, format, args...))
}

// collect finds the functions to emit and the host functions they call.
// Below optimization level 2 every non-generic function is kept.
func (g *generator) collect() {
	if g.target.Runtime == RuntimeHost {
		g.needed["_alloc"] = true
		g.needed["_heap_reset"] = true
	}
	if g.target.Optimization >= 2 {
		g.use(g.prog.Main, nil)
		for _, f := range g.info.TableOrder {
			g.use(f, nil)
		}
	} else {
		for _, f := range g.prog.Funcs {
			if !f.IsGeneric() {
				g.use(f, nil)
			}
		}
	}
	for i := 0; i < len(g.units); i++ {
		g.scan(g.units[i])
	}
}

func unitKey(f *sema.FuncInfo, subst map[string]types.Type) string {
	if f.TypeParam == nil {
		return f.Qualified
	}
	inst := &sema.Instance{Func: f, Arg: subst[f.TypeParam.Name]}
	return inst.Name()
}

// use returns the unit of f under subst, scheduling it on first use.
func (g *generator) use(f *sema.FuncInfo, subst map[string]types.Type) *unit {
	if f.IsGeneric() && subst == nil {
		fail(f.Span, "generic function '%s' used without a type argument", f.Qualified)
	}
	key := unitKey(f, subst)
	if u, ok := g.byKey[key]; ok {
		return u
	}
	u := &unit{key: key, fn: f, subst: subst}
	g.byKey[key] = u
	g.units = append(g.units, u)
	return u
}

// lookup returns the already scheduled unit of f.
func (g *generator) lookup(f *sema.FuncInfo, subst map[string]types.Type) *unit {
	u, ok := g.byKey[unitKey(f, subst)]
	if !ok {
		fail(f.Span, "function '%s' was not scheduled", unitKey(f, subst))
	}
	return u
}

// instanceSubst resolves the type argument of a generic call made from u.
func instanceSubst(inst *sema.Instance, u *unit) map[string]types.Type {
	return map[string]types.Type{inst.Func.TypeParam.Name: types.Subst(inst.Arg, u.subst)}
}

func (g *generator) scan(u *unit) {
	f := u.fn
	if f.ImplicitSuper != nil {
		g.use(f.ImplicitSuper, nil)
	}
	if f.Fallible {
		g.needErr = true
	}
	if f.Decl == nil {
		return
	}
	syntax.Walk(f.Decl.Body(), func(n *syntax.Node) bool {
		switch n.Kind {
		case syntax.NodeCall:
			call := g.info.Calls[n]
			if call == nil {
				fail(n.Span, "call without resolution")
			}
			switch call.Kind {
			case sema.CallFunc, sema.CallMethod:
				if call.Instance != nil {
					g.use(call.Instance.Func, instanceSubst(call.Instance, u))
				} else {
					g.use(call.Func, nil)
				}
			case sema.CallConstructor, sema.CallSuper:
				g.use(call.Func, nil)
			case sema.CallBuiltin:
				if call.Import != "" {
					g.needed[call.Import] = true
				}
				if call.Fallible {
					g.needed["_last_error"] = true
				}
			}
		case syntax.NodeIdent:
			// Callee names of generic calls are handled with their call.
			if sym := g.info.Uses[n]; sym != nil && sym.Kind == sema.SymFunc && !sym.Func.IsGeneric() {
				g.use(sym.Func, nil)
			}
		}
		return true
	})
}

// declare lays out the function index space: imports in ABI table order,
// then the program's functions. Helpers are appended as they are needed.
func (g *generator) declare() {
	for _, imp := range abi.Imports {
		if !g.needed[imp.Name] {
			continue
		}
		if imp.ServerOnly && !g.target.Server() {
			fail(zeroSpan, "server function %s used by a %s module", imp.Name, g.target.Name)
		}
		g.imports[imp.Name] = uint32(len(g.mod.Imports))
		g.mod.Imports = append(g.mod.Imports, wasm.Import{
			Module: imp.Module,
			Name:   imp.Name,
			Type:   g.mod.AddType(imp.Type()),
		})
	}
	if g.needErr {
		g.errGlobal = uint32(len(g.mod.Globals))
		g.mod.Globals = append(g.mod.Globals, wasm.Global{Type: wasm.I32, Mutable: true})
	}

	for _, u := range g.units {
		f := u.fn
		params := g.paramTypes(u)
		switch {
		case f.IsInit:
			u.index = g.addFunc(u.key, wasm.FuncType{Params: params})
			u.aux = g.addFunc(f.Class.Name+"$new", wasm.FuncType{Params: params[1:], Results: []wasm.ValType{wasm.I32}})
		case f.Async:
			u.index = g.addFunc(u.key, wasm.FuncType{Params: params, Results: []wasm.ValType{wasm.I32}})
			u.aux = g.addFunc(u.key+"$resume", wasm.FuncType{Params: []wasm.ValType{wasm.I32}, Results: []wasm.ValType{wasm.I32}})
		default:
			u.index = g.addFunc(u.key, wasm.FuncType{Params: params, Results: results(g.resultType(u))})
		}
	}
}

// paramTypes lowers the receiver and parameters of u.
func (g *generator) paramTypes(u *unit) []wasm.ValType {
	var out []wasm.ValType
	if u.fn.Self != nil {
		out = append(out, wasm.I32)
	}
	for _, p := range u.fn.Params {
		if vt, ok := valType(types.Subst(p.Type, u.subst)); ok {
			out = append(out, vt)
		}
	}
	return out
}

func (g *generator) resultType(u *unit) types.Type {
	return types.Subst(u.fn.Result, u.subst)
}

func results(t types.Type) []wasm.ValType {
	if vt, ok := valType(t); ok {
		return []wasm.ValType{vt}
	}
	return nil
}

// addFunc declares a defined function and returns its index.
func (g *generator) addFunc(name string, ft wasm.FuncType) uint32 {
	g.mod.Funcs = append(g.mod.Funcs, wasm.Function{Name: name, Type: g.mod.AddType(ft)})
	return uint32(len(g.mod.Imports) + len(g.mod.Funcs) - 1)
}

// setBody installs the code of a declared function.
func (g *generator) setBody(idx uint32, locals []wasm.ValType, code *wasm.Code) {
	f := &g.mod.Funcs[idx-uint32(len(g.mod.Imports))]
	f.Locals = locals
	f.Body = append([]byte(nil), code.Bytes()...)
}

// importIndex returns the function index of a host import.
func (g *generator) importIndex(name string) uint32 {
	idx, ok := g.imports[name]
	if !ok {
		fail(zeroSpan, "host function %s was not imported", name)
	}
	return idx
}

// allocIndex returns the function implementing _alloc(size, align).
func (g *generator) allocIndex() uint32 {
	if g.target.Runtime == RuntimeHost {
		return g.importIndex("_alloc")
	}
	return g.helper(helperAlloc)
}

func (g *generator) heapResetIndex() uint32 {
	if g.target.Runtime == RuntimeHost {
		return g.importIndex("_heap_reset")
	}
	return g.helper(helperHeapReset)
}

// finish lays out static memory, builds the helpers and writes the table,
// the exports and the data segment.
func (g *generator) finish() {
	main := g.lookup(g.prog.Main, nil)
	alloc, reset := g.allocIndex(), g.heapResetIndex()

	for _, f := range g.info.TableOrder {
		g.mod.Table = append(g.mod.Table, g.lookup(f, nil).index)
	}

	g.heapBase = abi.Align(g.pool.end(), abi.WideAlign)
	for len(g.pendingHelpers) > 0 {
		name := g.pendingHelpers[0]
		g.pendingHelpers = g.pendingHelpers[1:]
		g.buildHelper(name)
	}

	g.mod.HasMemory = true
	g.mod.MemoryMin = max(1, (g.heapBase+abi.PageSize-1)/abi.PageSize)
	g.mod.Exports = append(g.mod.Exports,
		wasm.Export{Name: ExportMemory, Kind: wasm.ExportMemory, Index: 0},
		wasm.Export{Name: g.target.Entry, Kind: wasm.ExportFunc, Index: main.index},
		wasm.Export{Name: ExportAlloc, Kind: wasm.ExportFunc, Index: alloc},
		wasm.Export{Name: ExportHeapReset, Kind: wasm.ExportFunc, Index: reset},
	)
	if len(g.mod.Table) > 0 {
		g.mod.Exports = append(g.mod.Exports, wasm.Export{Name: ExportTable, Kind: wasm.ExportTable, Index: 0})
	}

	// Address 0 holds the heap pointer, the pool starts at StaticBase.
	image := make([]byte, abi.StaticBase, g.heapBase)
	binary.LittleEndian.PutUint32(image, g.heapBase)
	image = append(image, g.pool.bytes()...)
	g.mod.Data = append(g.mod.Data, wasm.DataSegment{Offset: abi.HeapPointerAddr, Bytes: image})
	g.mod.Names = g.target.Debug
}
