// Package compiler runs the Kestrel pipeline: parse, check, generate.
//
// Compile is a pure function of the source text and the target profile.
// Each call builds its own scopes and module, so calls may run in parallel.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kestrel-lang/kestrel/codegen"
	"github.com/kestrel-lang/kestrel/diag"
	"github.com/kestrel-lang/kestrel/sema"
	"github.com/kestrel-lang/kestrel/syntax"
)

// Target is the profile a module is built for.
type Target = codegen.Target

// Options tunes a single compilation.
type Options struct {
	// Recover keeps parsing past syntax errors so that one pass reports
	// every independent mistake. The pipeline still stops after parsing.
	Recover bool
	// Log receives one line per stage with its duration. Nil disables it.
	Log io.Writer
}

// Result is the outcome of one compilation.
//
// Module is nil exactly when Diagnostics holds an error. Warnings may
// accompany a module.
type Result struct {
	Module      []byte
	Diagnostics diag.List
}

// OK reports whether a module was produced.
func (r Result) OK() bool {
	return r.Module != nil
}

// Err returns the error diagnostics as an error, or nil.
func (r Result) Err() error {
	return r.Diagnostics.Err()
}

// Compile turns source text into module bytes for target.
func Compile(src []byte, target Target, opts Options) Result {
	var res Result
	if err := target.Validate(); err != nil {
		res.Diagnostics.Errorf(diag.ConfigError, diag.Span{}, "%v", err)
		return res
	}
	log := stageLog{w: opts.Log}

	var ast *syntax.Node
	log.stage("parse", func() {
		var errs diag.List
		ast, errs = syntax.Parse(src, syntax.ParseOptions{Recover: opts.Recover})
		res.Diagnostics.Append(errs)
	})
	if ast == nil || res.Diagnostics.HasErrors() {
		return res
	}

	var prog *sema.Program
	log.stage("check", func() {
		var errs diag.List
		prog, errs = sema.Check(ast, sema.Options{Server: target.Server()})
		res.Diagnostics.Append(errs)
	})
	if prog == nil || res.Diagnostics.HasErrors() {
		return res
	}

	var module []byte
	log.stage("generate", func() {
		var err error
		module, err = codegen.Generate(prog, target)
		if err == nil {
			return
		}
		var ie *diag.InternalError
		if !errors.As(err, &ie) {
			ie = diag.Internalf(diag.Span{}, "%v", err)
		}
		res.Diagnostics.Add(ie.Diagnostic())
	})
	if res.Diagnostics.HasErrors() {
		return res
	}
	res.Module = module
	log.printf("module: %d bytes\n", len(module))
	return res
}

// Check parses and analyzes src without generating code.
func Check(src []byte, target Target, opts Options) (*sema.Program, diag.List) {
	if err := target.Validate(); err != nil {
		var errs diag.List
		errs.Errorf(diag.ConfigError, diag.Span{}, "%v", err)
		return nil, errs
	}
	ast, errs := syntax.Parse(src, syntax.ParseOptions{Recover: opts.Recover})
	if ast == nil || errs.HasErrors() {
		return nil, errs
	}
	prog, more := sema.Check(ast, sema.Options{Server: target.Server()})
	errs.Append(more)
	return prog, errs
}

type stageLog struct {
	w io.Writer
}

func (l stageLog) stage(name string, f func()) {
	start := time.Now()
	f()
	l.printf("%s: %s\n", name, time.Since(start).Round(time.Microsecond))
}

func (l stageLog) printf(format string, args ...any) {
	if l.w == nil {
		return
	}
	fmt.Fprintf(l.w, format, args...)
}
