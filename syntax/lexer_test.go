package syntax

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func tokenTypes(src string) ([]TokenType, *Lexer) {
	l := NewLexer([]byte(src))
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == EOF {
			return types, l
		}
	}
}

func TestLexIndentation(t *testing.T) {
	t.Parallel()
	types, l := tokenTypes(lines("fn main()", "\tprint(1)"))
	be.Equal(t, []TokenType{
		FN, IDENT, LPAREN, RPAREN, NEWLINE,
		INDENT, IDENT, LPAREN, INT, RPAREN, NEWLINE,
		DEDENT, EOF,
	}, types)
	be.True(t, !l.Errors.HasErrors())
}

func TestLexBlankLinesAndComments(t *testing.T) {
	t.Parallel()
	types, l := tokenTypes(lines("# header", "", "fn f()", "", "\t# inside", "\tpass"))
	be.Equal(t, []TokenType{FN, IDENT, LPAREN, RPAREN, NEWLINE, INDENT, PASS, NEWLINE, DEDENT, EOF}, types)
	be.True(t, !l.Errors.HasErrors())
}

func TestLexNestedDedents(t *testing.T) {
	t.Parallel()
	types, _ := tokenTypes(lines("fn f()", "\tif x", "\t\tpass", "fn g()", "\tpass"))
	be.Equal(t, []TokenType{
		FN, IDENT, LPAREN, RPAREN, NEWLINE,
		INDENT, IF, IDENT, NEWLINE,
		INDENT, PASS, NEWLINE,
		DEDENT, DEDENT, FN, IDENT, LPAREN, RPAREN, NEWLINE,
		INDENT, PASS, NEWLINE, DEDENT, EOF,
	}, types)
}

func TestLexSpacesAreRejected(t *testing.T) {
	t.Parallel()
	_, l := tokenTypes(lines("fn f()", "    pass"))
	be.Equal(t, 1, l.Errors.Len())
	be.Equal(t, "indentation must use tabs", l.Errors.Items()[0].Message)
	be.Equal(t, 2, l.Errors.Items()[0].Span.Line)
}

func TestLexOverIndentation(t *testing.T) {
	t.Parallel()
	_, l := tokenTypes(lines("fn f()", "\t\tpass"))
	be.Equal(t, 1, l.Errors.Len())
	be.Equal(t, "unexpected indentation", l.Errors.Items()[0].Message)
}

func TestLexNewlinesInsideBrackets(t *testing.T) {
	t.Parallel()
	types, _ := tokenTypes("f(1,\n\t\t2)\n")
	be.Equal(t, []TokenType{IDENT, LPAREN, INT, COMMA, INT, RPAREN, NEWLINE, EOF}, types)
}

func TestLexUnclosedBracket(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		src    string
		types  []TokenType
		errors int
	}{
		{
			"closing bracket at opener indentation",
			"f(1,\n)\n",
			[]TokenType{IDENT, LPAREN, INT, COMMA, RPAREN, NEWLINE, EOF},
			0,
		},
		{
			"blank and comment lines are skipped",
			"[1,\n\n# two\n\t2]\n",
			[]TokenType{LBRACKET, INT, COMMA, INT, RBRACKET, NEWLINE, EOF},
			0,
		},
		{
			"line at opener indentation",
			"f(1,\n2)\n",
			[]TokenType{IDENT, LPAREN, INT, COMMA, NEWLINE, INT, RPAREN, NEWLINE, EOF},
			1,
		},
		{
			"dedented line inside a block",
			"fn f()\n\tg((1\nfn h()\n",
			[]TokenType{
				FN, IDENT, LPAREN, RPAREN, NEWLINE,
				INDENT, IDENT, LPAREN, LPAREN, INT, NEWLINE,
				DEDENT, FN, IDENT, LPAREN, RPAREN, NEWLINE, EOF,
			},
			1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			types, l := tokenTypes(test.src)
			be.Equal(t, test.types, types)
			be.Equal(t, test.errors, l.Errors.Len())
		})
	}
}

func TestLexUnclosedBracketSpan(t *testing.T) {
	t.Parallel()
	_, l := tokenTypes(lines("fn main()", "\tlet xs = [(1,", "\tprint(2)"))
	be.Equal(t, 1, l.Errors.Len())
	be.Equal(t, "unclosed '['", l.Errors.Items()[0].Message)
	be.Equal(t, 2, l.Errors.Items()[0].Span.Line)
	be.Equal(t, 11, l.Errors.Items()[0].Span.Column)
}

func TestLexLiterals(t *testing.T) {
	t.Parallel()
	l := NewLexer([]byte(`"a\tb\"c" 1.5 42 -> += >=`))
	tok := l.NextToken()
	be.Equal(t, STRING, tok.Type)
	be.Equal(t, "a\tb\"c", tok.Literal)

	tok = l.NextToken()
	be.Equal(t, FLOAT, tok.Type)
	be.Equal(t, 1.5, tok.Float)

	tok = l.NextToken()
	be.Equal(t, INT, tok.Type)
	be.Equal(t, int64(42), tok.Int)

	be.Equal(t, ARROW, l.NextToken().Type)
	be.Equal(t, PLUS_ASSIGN, l.NextToken().Type)
	be.Equal(t, GE, l.NextToken().Type)
}

func TestLexKeywordsAndSpans(t *testing.T) {
	t.Parallel()
	l := NewLexer([]byte("class Dog is Animal"))
	tok := l.NextToken()
	be.Equal(t, CLASS, tok.Type)
	tok = l.NextToken()
	be.Equal(t, IDENT, tok.Type)
	be.Equal(t, "Dog", tok.Literal)
	be.Equal(t, 7, tok.Span.Column)
	be.Equal(t, IS, l.NextToken().Type)
}

func TestLexUnterminatedString(t *testing.T) {
	t.Parallel()
	_, l := tokenTypes("let s = \"abc\n")
	be.Equal(t, 1, l.Errors.Len())
	be.Equal(t, "unterminated string literal", l.Errors.Items()[0].Message)
}
