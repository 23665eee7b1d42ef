package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kestrel-lang/kestrel/codegen"
	"github.com/kestrel-lang/kestrel/compiler"
)

// settle is how long a burst of writes must be quiet before a rebuild.
const settle = 50 * time.Millisecond

func (c *cli) watchCommand(args []string) error {
	fs := c.newFlagSet("watch", "[-o output] [flags] <file>", "Rebuild a .kes file whenever it changes. Stop with Ctrl-C.")
	f := addBuildFlags(fs)
	output := fs.String("o", "", "Output file path (default: <file>.wasm)")
	if done, err := parseFlags(fs, args); done || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one file argument")
	}
	target, err := f.apply(fs, codegen.DefaultTarget())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	filename := fs.Arg(0)
	return c.watch(ctx, filename, outputPath(filename, *output), target, f)
}

// watch builds filename once, then again after every change until ctx is
// done. Failed builds are reported and watching continues.
func (c *cli) watch(ctx context.Context, filename, output string, target compiler.Target, f *buildFlags) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// Editors replace files by renaming, which drops a watch on the file
	// itself; the directory watch survives.
	if err := w.Add(filepath.Dir(filename)); err != nil {
		return err
	}

	rebuild := func() {
		src, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return
		}
		err = c.buildOne(compiler.Unit{Name: filename, Source: src}, output, target, f)
		if err != nil && err != errReported {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
		}
	}
	rebuild()
	fmt.Fprintf(c.stderr, "Watching %s\n", filename)

	want := filepath.Clean(filename)
	timer := time.NewTimer(settle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != want || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(c.stderr, "Error: watching %s: %v\n", filename, err)
		case <-timer.C:
			if f.verbose {
				fmt.Fprintf(c.stderr, "%s changed\n", filename)
			}
			rebuild()
		}
	}
}
