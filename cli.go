package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrel-lang/kestrel/codegen"
	"github.com/kestrel-lang/kestrel/compiler"
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/host"
	"github.com/kestrel-lang/kestrel/syntax"
)

// errReported means the diagnostics were already printed.
var errReported = errors.New("compilation failed")

func compilerVersion() string { return compiler.Version }

// buildFlags are the target flags shared by every compiling command.
type buildFlags struct {
	target       string
	runtime      string
	entry        string
	optimization int
	debug        bool
	verbose      bool
}

func (c *cli) newFlagSet(name, synopsis, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: kestrel %s %s\n", name, synopsis)
		fmt.Fprintf(c.stderr, "%s\n\n", summary)
		fmt.Fprintf(c.stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	return fs
}

func addBuildFlags(fs *flag.FlagSet) *buildFlags {
	f := &buildFlags{}
	def := codegen.DefaultTarget()
	fs.StringVar(&f.target, "target", def.Name, "Target profile: default or server")
	fs.StringVar(&f.runtime, "runtime", string(def.Runtime), "Allocator runtime: inline or host")
	fs.StringVar(&f.entry, "entry", def.Entry, "Export name of main: main or _start")
	fs.IntVar(&f.optimization, "optimization", def.Optimization, "Optimization level 0-2")
	fs.BoolVar(&f.debug, "debug", false, "Emit the name section")
	fs.BoolVar(&f.verbose, "verbose", false, "Show compilation stages and timings")
	fs.BoolVar(&f.verbose, "v", false, "Shorthand for -verbose")
	return f
}

// apply overrides base with the flags given on the command line.
func (f *buildFlags) apply(fs *flag.FlagSet, base compiler.Target) (compiler.Target, error) {
	t := base
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "target":
			t.Name = f.target
		case "runtime":
			t.Runtime = codegen.Runtime(f.runtime)
		case "entry":
			t.Entry = f.entry
		case "optimization":
			t.Optimization = f.optimization
		case "debug":
			t.Debug = f.debug
		}
	})
	if err := t.Validate(); err != nil {
		return compiler.Target{}, err
	}
	return t, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (done bool, err error) {
	err = fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		return true, nil
	}
	return false, err
}

// report prints diagnostics as file:line:col lines.
func (c *cli) report(name string, diags diag.List) {
	for _, d := range diags.Sorted() {
		if d.Severity == diag.Warning {
			fmt.Fprintf(c.stderr, "%s:%s: warning: %s: %s\n", name, d.Span, d.Kind, d.Message)
			continue
		}
		fmt.Fprintf(c.stderr, "%s:%s\n", name, d)
	}
}

func (c *cli) compile(name string, src []byte, target compiler.Target, f *buildFlags) ([]byte, error) {
	opts := compiler.Options{Recover: true}
	if f.verbose {
		fmt.Fprintf(c.stderr, "Compiling %s...\n", name)
		opts.Log = c.stderr
	}
	res := compiler.Compile(src, target, opts)
	c.report(name, res.Diagnostics)
	if !res.OK() {
		return nil, errReported
	}
	return res.Module, nil
}

func (c *cli) execute(module []byte, dir string, target compiler.Target, f *buildFlags, allowNet bool) error {
	cfg := host.Config{
		Stdout: c.stdout,
		Stdin:  c.stdin,
		Dir:    dir,
		Entry:  target.Entry,
	}
	if f.verbose {
		cfg.Trace = c.stderr
		fmt.Fprintf(c.stderr, "Generated %d bytes of WASM\nExecuting...\n", len(module))
	}
	if allowNet {
		cfg.HTTPClient = http.DefaultClient
	}
	if err := host.New(cfg).Run(context.Background(), module); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	return nil
}

func (c *cli) runCommand(args []string) error {
	fs := c.newFlagSet("run", "[flags] <file>", "Compile and execute a .kes file")
	f := addBuildFlags(fs)
	allowNet := fs.Bool("allow-net", false, "Let httpGet and httpPost reach the network")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one file argument")
	}
	filename := fs.Arg(0)
	target, err := f.apply(fs, codegen.DefaultTarget())
	if err != nil {
		return err
	}

	src, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	module, err := c.compile(filename, src, target, f)
	if err != nil {
		return err
	}
	return c.execute(module, filepath.Dir(filename), target, f, *allowNet)
}

func (c *cli) buildCommand(args []string) error {
	fs := c.newFlagSet("build", "[-o output] [flags] [files]",
		"Compile .kes files to WebAssembly. Without files, build the package\n"+
			"described by the nearest "+compiler.ManifestName+".")
	f := addBuildFlags(fs)
	output := fs.String("o", "", "Output file path (default: <file>.wasm); only with one file")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}

	if fs.NArg() == 0 {
		return c.buildPackage(fs, f, *output)
	}
	if *output != "" && fs.NArg() > 1 {
		return errors.New("-o needs exactly one file")
	}
	target, err := f.apply(fs, codegen.DefaultTarget())
	if err != nil {
		return err
	}

	units := make([]compiler.Unit, fs.NArg())
	for i, name := range fs.Args() {
		src, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		units[i] = compiler.Unit{Name: name, Source: src}
	}
	if len(units) == 1 {
		return c.buildOne(units[0], outputPath(units[0].Name, *output), target, f)
	}

	if f.verbose {
		fmt.Fprintf(c.stderr, "Compiling %d files...\n", len(units))
	}
	results, err := compiler.CompileAll(context.Background(), units, target, compiler.Options{Recover: true})
	if err != nil {
		return err
	}
	failed := false
	for i, res := range results {
		c.report(units[i].Name, res.Diagnostics)
		if !res.OK() {
			failed = true
			continue
		}
		if err := c.writeModule(outputPath(units[i].Name, ""), res.Module); err != nil {
			return err
		}
	}
	if failed {
		return errReported
	}
	return nil
}

func (c *cli) buildPackage(fs *flag.FlagSet, f *buildFlags, output string) error {
	path, err := compiler.FindManifest(".")
	if err != nil {
		fs.Usage()
		return err
	}
	m, err := compiler.LoadManifest(path)
	if err != nil {
		return err
	}
	base, err := m.Target(codegen.DefaultTarget())
	if err != nil {
		return err
	}
	target, err := f.apply(fs, base)
	if err != nil {
		return err
	}
	if output == "" {
		output = m.OutputPath()
	}
	if f.verbose {
		fmt.Fprintf(c.stderr, "Package %s from %s\n", m.Package.Name, path)
	}
	src, err := os.ReadFile(m.MainPath())
	if err != nil {
		return err
	}
	return c.buildOne(compiler.Unit{Name: m.MainPath(), Source: src}, output, target, f)
}

func (c *cli) buildOne(u compiler.Unit, output string, target compiler.Target, f *buildFlags) error {
	module, err := c.compile(u.Name, u.Source, target, f)
	if err != nil {
		return err
	}
	return c.writeModule(output, module)
}

func (c *cli) writeModule(path string, module []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, module, 0o644); err != nil {
		return fmt.Errorf("writing WASM file %s: %w", path, err)
	}
	fmt.Fprintf(c.stdout, "Generated %s (%d bytes)\n", path, len(module))
	return nil
}

func outputPath(source, output string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(source, ".kes") + ".wasm"
}

func (c *cli) evalCommand(args []string) error {
	fs := c.newFlagSet("eval", "[flags] <code>", "Evaluate inline Kestrel code. Code without declarations runs as the body of main.")
	f := addBuildFlags(fs)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one code argument")
	}
	target, err := f.apply(fs, codegen.DefaultTarget())
	if err != nil {
		return err
	}
	code := evalSource(fs.Arg(0))
	if f.verbose {
		fmt.Fprintf(c.stderr, "Evaluating:\n%s", code)
	}
	module, err := c.compile("<eval>", []byte(code), target, f)
	if err != nil {
		return err
	}
	return c.execute(module, "", target, f, false)
}

// evalSource wraps statements in main unless the code declares its own
// functions or classes.
func evalSource(code string) string {
	code = strings.TrimRight(code, "\n")
	for _, line := range strings.Split(code, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || line[0] == '\t' {
			continue
		}
		switch fields[0] {
		case "fn", "async", "class":
			return code + "\n"
		}
	}
	var sb strings.Builder
	sb.WriteString("fn main()\n")
	for _, line := range strings.Split(code, "\n") {
		sb.WriteString("\t" + line + "\n")
	}
	return sb.String()
}

func (c *cli) checkCommand(args []string) error {
	fs := c.newFlagSet("check", "[flags] <files>", "Parse and type-check .kes files")
	f := addBuildFlags(fs)
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("expected at least one file argument")
	}
	target, err := f.apply(fs, codegen.DefaultTarget())
	if err != nil {
		return err
	}

	failed := false
	for _, filename := range fs.Args() {
		if f.verbose {
			fmt.Fprintf(c.stderr, "Checking %s...\n", filename)
		}
		src, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		prog, diags := compiler.Check(src, target, compiler.Options{Recover: true})
		c.report(filename, diags)
		if prog == nil || diags.HasErrors() {
			failed = true
			continue
		}
		fmt.Fprintf(c.stdout, "%s: no errors found\n", filename)
		if f.verbose {
			fmt.Fprintf(c.stderr, "AST: %s\n", syntax.ToSExpr(prog.AST))
		}
	}
	if failed {
		return errReported
	}
	return nil
}
