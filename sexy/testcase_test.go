package sexy

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

const fence = "```"

func TestExtractTestCases(t *testing.T) {
	t.Parallel()
	markdown := `# Arithmetic

Some prose that is ignored.

` + fence + `
not a test either
` + fence + `

## Test: addition
` + fence + `kes-main
print(1 + 2)
` + fence + `
` + fence + `ast
(program (fn "main" (params) (block (expr (call (ident "print") (binary "+" (integer 1) (integer 2)))))))
` + fence + `
` + fence + `execute
3
` + fence + `

## Test: echo
` + fence + `kes
fn main()
	print(readLine())
` + fence + `
` + fence + `input
hello
` + fence + `
` + fence + `execute
hello
` + fence + `
` + fence + `imports
_read_line
_print_str
` + fence + `
`
	cases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, 2, len(cases))

	add := cases[0]
	be.Equal(t, "addition", add.Name)
	be.Equal(t, InputTypeMain, add.InputType)
	be.Equal(t, "print(1 + 2)", add.Input)
	be.Equal(t, "fn main()\n\tprint(1 + 2)\n", add.Source())
	be.Equal(t, 2, len(add.Assertions))
	be.Equal(t, AssertionTypeAST, add.Assertions[0].Type)
	be.Equal(t, NodeList, add.Assertions[0].Pattern.Type)
	be.Equal(t, AssertionTypeExecute, add.Assertions[1].Type)
	be.Equal(t, "3\n", add.Assertions[1].Content)

	echo := cases[1]
	be.Equal(t, InputTypeProgram, echo.InputType)
	be.Equal(t, "fn main()\n\tprint(readLine())\n", echo.Source())
	be.Equal(t, "hello\n", echo.Stdin)
	be.Equal(t, 2, len(echo.Assertions))
	be.Equal(t, AssertionTypeImports, echo.Assertions[1].Type)
}

func TestExtractTestCasesErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			"fence outside test",
			fence + "kes\nfn main()\n" + fence + "\n",
			"kes fence outside of a test case",
		},
		{
			"no input",
			"## Test: empty\n" + fence + "execute\n1\n" + fence + "\n",
			"test 'empty' has no input fence",
		},
		{
			"no assertion",
			"## Test: lonely\n" + fence + "kes-main\npass\n" + fence + "\n",
			"test 'lonely' has no assertion fences",
		},
		{
			"two inputs",
			"## Test: twice\n" + fence + "kes-main\npass\n" + fence + "\n" + fence + "kes\nfn main()\n" + fence + "\n",
			"multiple input fences",
		},
		{
			"unknown language",
			"## Test: odd\n" + fence + "kes-main\npass\n" + fence + "\n" + fence + "wat\n(module)\n" + fence + "\n",
			"unknown fence language 'wat'",
		},
		{
			"bad pattern",
			"## Test: broken\n" + fence + "kes-main\npass\n" + fence + "\n" + fence + "ast\n(program\n" + fence + "\n",
			"ast pattern: ",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := ExtractTestCases(test.markdown)
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), test.want))
		})
	}
}

func TestExtractTestCasesLines(t *testing.T) {
	t.Parallel()
	markdown := "# Title\n\n## Test: one\n\n" + fence + "kes-main\npass\n" + fence + "\n" + fence + "execute\nok\n" + fence + "\n"
	cases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, 1, len(cases))
	be.Equal(t, 3, cases[0].Line)
	be.Equal(t, 9, cases[0].Assertions[0].Line)
}
