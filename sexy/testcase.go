package sexy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// InputType is the language of the input fence of a test case.
type InputType string

const (
	// InputTypeProgram is a whole program.
	InputTypeProgram InputType = "kes"
	// InputTypeMain is the body of main; Source wraps it.
	InputTypeMain InputType = "kes-main"
)

// AssertionType is the language of an assertion fence.
type AssertionType string

const (
	// AssertionTypeAST matches the printed AST against a pattern.
	AssertionTypeAST AssertionType = "ast"
	// AssertionTypeExecute compares the program's output.
	AssertionTypeExecute AssertionType = "execute"
	// AssertionTypeCompileError expects one diagnostic per line, each
	// given as a substring of the rendered diagnostic.
	AssertionTypeCompileError AssertionType = "compile-error"
	// AssertionTypeImports lists the imported host functions.
	AssertionTypeImports AssertionType = "imports"
	// AssertionTypeInput is stdin for execute; it asserts nothing.
	AssertionTypeInput AssertionType = "input"
)

// Assertion is one assertion fence.
type Assertion struct {
	Type    AssertionType
	Content string
	// Pattern is the parsed content of ast assertions.
	Pattern *Node
	Line    int
}

// TestCase is one "Test: name" section of a Markdown file.
type TestCase struct {
	Name       string
	Input      string
	InputType  InputType
	Stdin      string
	Assertions []Assertion
	Line       int
}

// Source returns the program the test compiles.
func (tc *TestCase) Source() string {
	if tc.InputType != InputTypeMain {
		return tc.Input + "\n"
	}
	var sb strings.Builder
	sb.WriteString("fn main()\n")
	for _, line := range strings.Split(tc.Input, "\n") {
		sb.WriteString("\t" + line + "\n")
	}
	return sb.String()
}

// ExtractTestCases parses a Markdown document and returns its test cases.
// A heading "Test: name" starts a case; the fenced code blocks up to the
// next such heading belong to it.
func ExtractTestCases(markdown string) ([]TestCase, error) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []TestCase
	var current *TestCase
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			title := nodeText(n, source)
			name, ok := strings.CutPrefix(title, "Test: ")
			if !ok {
				return ast.WalkSkipChildren, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &TestCase{Name: name, Line: lineOf(n, source)}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			line := lineOf(n, source)
			content := blockContent(n, source)
			if current == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test case", line, lang)
				}
				return ast.WalkContinue, nil
			}
			if err := current.add(lang, content, line); err != nil {
				return ast.WalkStop, fmt.Errorf("line %d: test '%s': %w", line, current.Name, err)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func (tc *TestCase) add(lang, content string, line int) error {
	switch lang {
	case string(InputTypeProgram), string(InputTypeMain):
		if tc.InputType != "" {
			return fmt.Errorf("multiple input fences")
		}
		tc.Input = strings.TrimRight(content, "\n")
		tc.InputType = InputType(lang)
	case string(AssertionTypeInput):
		tc.Stdin = content
	case string(AssertionTypeAST):
		pattern, err := Parse(content)
		if err != nil {
			return fmt.Errorf("ast pattern: %w", err)
		}
		tc.Assertions = append(tc.Assertions, Assertion{Type: AssertionTypeAST, Content: strings.TrimSpace(content), Pattern: pattern, Line: line})
	case string(AssertionTypeExecute), string(AssertionTypeCompileError), string(AssertionTypeImports):
		tc.Assertions = append(tc.Assertions, Assertion{Type: AssertionType(lang), Content: content, Line: line})
	default:
		return fmt.Errorf("unknown fence language '%s'", lang)
	}
	return nil
}

func validate(tc *TestCase) error {
	if tc.InputType == "" {
		return fmt.Errorf("line %d: test '%s' has no input fence", tc.Line, tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("line %d: test '%s' has no assertion fences", tc.Line, tc.Name)
	}
	return nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func blockContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:start], []byte("\n")) + 1
}
