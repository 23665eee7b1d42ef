// Package host runs compiled Kestrel modules on wazero.
//
// It implements the console, math, string, memory, error, crypto and file
// parts of the host ABI. Database and HTTP client calls fail through
// _last_error unless configured; the server functions are not provided,
// and modules importing them are rejected before instantiation.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/wasm"
)

// Config configures a Host. The zero value writes to nothing, reads an
// empty stdin and denies file and network access.
type Config struct {
	Stdout io.Writer
	Stdin  io.Reader
	// Trace receives one line per failed host call. Nil disables it.
	Trace io.Writer
	// Dir is the root of file access. Empty denies it.
	Dir string
	// HTTPClient serves httpGet and httpPost. Nil denies them.
	HTTPClient *http.Client
	// Seed seeds random().
	Seed uint64
	// Entry is the export to call. Empty tries main, then _start.
	Entry string
}

// Host holds the state host functions share during one run: the pending
// error flag, the heap and stdin.
type Host struct {
	cfg     Config
	stdin   *bufio.Reader
	rand    *rand.Rand
	lastErr bool
	heap    *abi.Heap
}

// New returns a host for cfg.
func New(cfg Config) *Host {
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	stdin := cfg.Stdin
	if stdin == nil {
		stdin = eofReader{}
	}
	return &Host{
		cfg:   cfg,
		stdin: bufio.NewReader(stdin),
		rand:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Run executes module with stdout as its console.
func Run(ctx context.Context, module []byte, stdout io.Writer) error {
	return New(Config{Stdout: stdout}).Run(ctx, module)
}

// Run instantiates module, calls its entry point and releases it.
func (h *Host) Run(ctx context.Context, module []byte) error {
	inst, err := h.Instantiate(ctx, module)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)
	return inst.Main(ctx)
}

// Instance is an instantiated module.
type Instance struct {
	host    *Host
	runtime wazero.Runtime
	mod     api.Module
}

var ErrUnsupported = errors.New("host function not supported")

var _ abi.MemoryView = api.Memory(nil)

// Instantiate compiles module and links it against the host functions.
func (h *Host) Instantiate(ctx context.Context, module []byte) (*Instance, error) {
	r := wazero.NewRuntime(ctx)
	inst, err := h.instantiate(ctx, r, module)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	return inst, nil
}

func (h *Host) instantiate(ctx context.Context, r wazero.Runtime, module []byte) (*Instance, error) {
	compiled, err := r.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}
	funcs := h.functions()
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		imp, ok := abi.Lookup(name)
		if !ok || imp.Module != mod {
			return nil, fmt.Errorf("import %s.%s: not in the host ABI", mod, name)
		}
		if _, ok := funcs[name]; !ok {
			return nil, fmt.Errorf("import %s.%s: %w", mod, name, ErrUnsupported)
		}
	}

	builders := map[string]wazero.HostModuleBuilder{
		abi.ModuleEnv:           r.NewHostModuleBuilder(abi.ModuleEnv),
		abi.ModuleMemoryRuntime: r.NewHostModuleBuilder(abi.ModuleMemoryRuntime),
	}
	for _, imp := range abi.Imports {
		fn, ok := funcs[imp.Name]
		if !ok {
			continue
		}
		builders[imp.Module] = builders[imp.Module].NewFunctionBuilder().
			WithGoModuleFunction(fn, valueTypes(imp.Params), valueTypes(imp.Results)).
			Export(imp.Name)
	}
	for _, name := range []string{abi.ModuleEnv, abi.ModuleMemoryRuntime} {
		if _, err := builders[name].Instantiate(ctx); err != nil {
			return nil, fmt.Errorf("instantiate %s: %w", name, err)
		}
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithStartFunctions())
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.New("module has no memory")
	}
	h.heap, err = abi.AttachHeap(mem)
	if err != nil {
		return nil, err
	}
	h.lastErr = false
	return &Instance{host: h, runtime: r, mod: mod}, nil
}

func valueTypes(vts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(vts))
	for i, v := range vts {
		out[i] = api.ValueType(v)
	}
	return out
}

// Main calls the entry point.
func (in *Instance) Main(ctx context.Context) error {
	entry := in.host.cfg.Entry
	if entry == "" {
		entry = "main"
		if in.mod.ExportedFunction(entry) == nil {
			entry = "_start"
		}
	}
	_, err := in.Call(ctx, entry)
	return err
}

// Call calls the exported function name.
func (in *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := in.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("no exported function %s", name)
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// HeapPointer returns the current value of the heap-pointer cell.
func (in *Instance) HeapPointer() uint32 {
	return in.host.heap.Pointer()
}

// HeapBase returns the heap pointer the module started with.
func (in *Instance) HeapBase() uint32 {
	return in.host.heap.Base()
}

// Memory returns a copy of linear memory.
func (in *Instance) Memory() []byte {
	mem := in.mod.Memory()
	b, _ := mem.Read(0, mem.Size())
	return append([]byte(nil), b...)
}

// Close releases the runtime.
func (in *Instance) Close(ctx context.Context) error {
	return in.runtime.Close(ctx)
}

// fail records a failed fallible call.
func (h *Host) fail(name string, err error) {
	h.lastErr = true
	if h.cfg.Trace != nil {
		fmt.Fprintf(h.cfg.Trace, "%s: %v\n", name, err)
	}
}
