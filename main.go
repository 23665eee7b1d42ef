package main

import (
	"fmt"
	"io"
	"os"
)

const usage = `Kestrel - a class-based language that compiles to WebAssembly

Usage:
    kestrel <command> [arguments]

Commands:
    run <file>          Compile and execute a .kes file
    build [files]       Compile .kes files to WebAssembly (default: the package manifest)
    eval <code>         Evaluate inline Kestrel code
    check <files>       Parse and type-check .kes files
    watch <file>        Rebuild a .kes file whenever it changes
    version             Print the compiler version
    help                Show this help message

Examples:
    kestrel run examples/point.kes
    kestrel build -o program.wasm hello.kes
    kestrel build --target server --optimization 2
    kestrel eval 'print(42)'
    kestrel check src/*.kes

Use "kestrel <command> -h" for more information about a command.
`

// cli holds the process streams so that commands can be tested.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(c.main(os.Args[1:]))
}

// main runs one command and returns the exit code.
func (c *cli) main(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(c.stderr, usage)
		return 1
	}

	command, args := args[0], args[1:]
	var err error
	switch command {
	case "run":
		err = c.runCommand(args)
	case "build":
		err = c.buildCommand(args)
	case "eval":
		err = c.evalCommand(args)
	case "check":
		err = c.checkCommand(args)
	case "watch":
		err = c.watchCommand(args)
	case "version":
		fmt.Fprintf(c.stdout, "kestrel %s\n", compilerVersion())
	case "help", "-h", "--help":
		fmt.Fprint(c.stdout, usage)
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(c.stderr, usage)
		return 1
	}
	if err != nil {
		if err != errReported {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
