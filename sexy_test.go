package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrel-lang/kestrel/codegen"
	"github.com/kestrel-lang/kestrel/compiler"
	"github.com/kestrel-lang/kestrel/host"
	"github.com/kestrel-lang/kestrel/sexy"
	"github.com/kestrel-lang/kestrel/syntax"
	"github.com/nalgeon/be"
	"github.com/tetratelabs/wazero"
)

func TestSexyAllTests(t *testing.T) {
	t.Parallel()
	testFiles, err := filepath.Glob("testdata/*_test.md")
	be.Err(t, err, nil)
	be.True(t, len(testFiles) > 0)

	for _, testFile := range testFiles {
		testName := strings.TrimSuffix(filepath.Base(testFile), ".md")
		t.Run(testName, func(t *testing.T) {
			t.Parallel()
			content, err := os.ReadFile(testFile)
			be.Err(t, err, nil)
			testCases, err := sexy.ExtractTestCases(string(content))
			be.Err(t, err, nil)

			for _, tc := range testCases {
				t.Run(tc.Name, func(t *testing.T) {
					t.Parallel()
					runTestCase(t, testFile, tc)
				})
			}
		})
	}
}

func runTestCase(t *testing.T, file string, tc sexy.TestCase) {
	src := []byte(tc.Source())
	var compiled *compiler.Result
	compile := func() compiler.Result {
		if compiled == nil {
			res := compiler.Compile(src, codegen.DefaultTarget(), compiler.Options{Recover: true})
			compiled = &res
		}
		return *compiled
	}

	for _, a := range tc.Assertions {
		switch a.Type {
		case sexy.AssertionTypeAST:
			ast, errs := syntax.Parse(src, syntax.ParseOptions{})
			be.Equal(t, "", errs.String())
			actual, err := sexy.Parse(syntax.ToSExpr(ast))
			be.Err(t, err, nil)
			if err := sexy.Match(a.Pattern, actual); err != nil {
				t.Errorf("%s:%d: %v", file, a.Line, err)
			}

		case sexy.AssertionTypeExecute:
			res := compile()
			if !res.OK() {
				t.Fatalf("%s:%d: compile failed:\n%s", file, a.Line, res.Diagnostics.String())
			}
			var out bytes.Buffer
			h := host.New(host.Config{Stdout: &out, Stdin: strings.NewReader(tc.Stdin)})
			err := h.Run(context.Background(), res.Module)
			be.Err(t, err, nil)
			if out.String() != a.Content {
				t.Errorf("%s:%d: output mismatch\nwant:\n%s\ngot:\n%s", file, a.Line, a.Content, out.String())
			}

		case sexy.AssertionTypeCompileError:
			res := compile()
			be.True(t, !res.OK())
			got := res.Diagnostics.Sorted()
			want := nonEmptyLines(a.Content)
			if len(got) != len(want) {
				t.Fatalf("%s:%d: expected %d diagnostics, got:\n%s", file, a.Line, len(want), res.Diagnostics.String())
			}
			for i, w := range want {
				if !strings.Contains(got[i].String(), w) {
					t.Errorf("%s:%d: diagnostic %d: %q does not contain %q", file, a.Line, i+1, got[i].String(), w)
				}
			}

		case sexy.AssertionTypeImports:
			res := compile()
			if !res.OK() {
				t.Fatalf("%s:%d: compile failed:\n%s", file, a.Line, res.Diagnostics.String())
			}
			be.Equal(t, nonEmptyLines(a.Content), importNames(t, res.Module))
		}
	}
}

// importNames lists the names of the functions module imports.
func importNames(t *testing.T, module []byte) []string {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)
	cm, err := r.CompileModule(ctx, module)
	be.Err(t, err, nil)

	names := []string{}
	for _, f := range cm.ImportedFunctions() {
		_, name, _ := f.Import()
		names = append(names, name)
	}
	return names
}

func nonEmptyLines(s string) []string {
	lines := []string{}
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
