package syntax

import (
	"strconv"
	"strings"

	"github.com/kestrel-lang/kestrel/diag"
)

// Lexer turns source text into tokens. Indentation is reported as INDENT and
// DEDENT tokens; the indentation unit is a single tab. Blank lines, comment
// lines and newlines inside brackets never reach the parser.
//
// A line inside brackets must be indented deeper than the line that opened
// the outermost bracket, or start with a closing bracket. Any other line
// reports the bracket as unclosed and lexing resumes at that line.
type Lexer struct {
	src         []byte
	pos         int
	line        int
	lineStart   int
	parenDepth  int
	opener      Token // outermost open bracket
	openIndent  int   // indentation of the line opener is on
	indents     int
	atLineStart bool
	lastType    TokenType
	pending     []Token

	Errors diag.List
}

// NewLexer creates a lexer over src.
func NewLexer(src []byte) *Lexer {
	return &Lexer{src: src, line: 1, atLineStart: true}
}

func (l *Lexer) span(start int) diag.Span {
	return diag.Span{Line: l.line, Column: start - l.lineStart + 1, Offset: start, End: l.pos}
}

func (l *Lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) emit(tok Token) Token {
	l.lastType = tok.Type
	return tok
}

func (l *Lexer) needsNewline() bool {
	switch l.lastType {
	case "", NEWLINE, INDENT, DEDENT:
		return false
	}
	return true
}

// NextToken scans the next token.
func (l *Lexer) NextToken() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return l.emit(tok)
	}

	for {
		if l.atLineStart && l.parenDepth == 0 {
			if tok, ok := l.scanIndentation(); ok {
				return l.emit(tok)
			}
			if len(l.pending) > 0 {
				return l.NextToken()
			}
		}

		for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\r') {
			l.pos++
		}

		if l.pos >= len(l.src) {
			start := l.pos
			if l.needsNewline() {
				return l.emit(Token{Type: NEWLINE, Span: l.span(start)})
			}
			if l.indents > 0 {
				l.indents--
				return l.emit(Token{Type: DEDENT, Span: l.span(start)})
			}
			return l.emit(Token{Type: EOF, Span: l.span(start)})
		}

		c := l.src[l.pos]
		if c == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		if c == '\n' {
			start := l.pos
			l.pos++
			sp := l.span(start)
			l.line++
			l.lineStart = l.pos
			if l.parenDepth > 0 {
				if l.continuesBracket() {
					continue
				}
				l.Errors.Errorf(diag.SyntaxError, l.opener.Span, "unclosed '%s'", l.opener.Literal)
				l.parenDepth = 0
			}
			l.atLineStart = true
			if l.needsNewline() {
				return l.emit(Token{Type: NEWLINE, Span: sp})
			}
			continue
		}

		if tok, ok := l.scanToken(); ok {
			return l.emit(tok)
		}
	}
}

// continuesBracket reports whether the next non-blank line continues the
// open bracket. Running into end of file counts as continuing; the parser
// reports the missing bracket there.
func (l *Lexer) continuesBracket() bool {
	pos := l.pos
	for {
		tabs := 0
		for pos < len(l.src) && (l.src[pos] == '\t' || l.src[pos] == ' ' || l.src[pos] == '\r') {
			if l.src[pos] == '\t' {
				tabs++
			}
			pos++
		}
		if pos >= len(l.src) {
			return true
		}
		switch c := l.src[pos]; c {
		case '\n', '#':
			for pos < len(l.src) && l.src[pos] != '\n' {
				pos++
			}
			if pos < len(l.src) {
				pos++
			}
			continue
		case ')', ']':
			return true
		}
		return tabs > l.openIndent
	}
}

// open tracks a bracket; the outermost one is remembered for diagnostics.
func (l *Lexer) open(tok Token) (Token, bool) {
	if l.parenDepth == 0 {
		l.opener = tok
		l.openIndent = l.indents
	}
	l.parenDepth++
	return tok, true
}

// scanIndentation measures the leading whitespace of a line. It returns an
// INDENT token directly and queues DEDENT tokens in l.pending.
func (l *Lexer) scanIndentation() (Token, bool) {
	for {
		start := l.pos
		tabs := 0
		hasSpace := false
		for l.pos < len(l.src) && (l.src[l.pos] == '\t' || l.src[l.pos] == ' ') {
			if l.src[l.pos] == ' ' {
				hasSpace = true
			} else {
				tabs++
			}
			l.pos++
		}
		if l.pos < len(l.src) && l.src[l.pos] == '\r' {
			l.pos++
		}
		if l.pos >= len(l.src) {
			l.atLineStart = false
			return Token{}, false
		}
		c := l.src[l.pos]
		if c == '\n' || c == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			if l.pos < len(l.src) {
				l.pos++
				l.line++
				l.lineStart = l.pos
			}
			continue
		}

		l.atLineStart = false
		if hasSpace {
			l.Errors.Errorf(diag.SyntaxError, l.span(start), "indentation must use tabs")
		}
		level := tabs
		if level > l.indents+1 {
			l.Errors.Errorf(diag.SyntaxError, l.span(start), "unexpected indentation")
			level = l.indents + 1
		}
		if level == l.indents+1 {
			l.indents++
			return Token{Type: INDENT, Span: l.span(start)}, true
		}
		for level < l.indents {
			l.indents--
			l.pending = append(l.pending, Token{Type: DEDENT, Span: l.span(start)})
		}
		return Token{}, false
	}
}

func (l *Lexer) scanToken() (Token, bool) {
	start := l.pos
	c := l.src[l.pos]

	two := func(t TokenType) (Token, bool) {
		l.pos += 2
		return Token{Type: t, Literal: string(t), Span: l.span(start)}, true
	}
	one := func(t TokenType) (Token, bool) {
		l.pos++
		return Token{Type: t, Literal: string(t), Span: l.span(start)}, true
	}

	switch c {
	case '=':
		if l.peekByte(1) == '=' {
			return two(EQ)
		}
		return one(ASSIGN)
	case '!':
		if l.peekByte(1) == '=' {
			return two(NOT_EQ)
		}
	case '<':
		if l.peekByte(1) == '=' {
			return two(LE)
		}
		return one(LT)
	case '>':
		if l.peekByte(1) == '=' {
			return two(GE)
		}
		return one(GT)
	case '+':
		if l.peekByte(1) == '=' {
			return two(PLUS_ASSIGN)
		}
		return one(PLUS)
	case '-':
		if l.peekByte(1) == '>' {
			return two(ARROW)
		}
		if l.peekByte(1) == '=' {
			return two(MINUS_ASSIGN)
		}
		return one(MINUS)
	case '*':
		return one(ASTERISK)
	case '/':
		return one(SLASH)
	case '%':
		return one(PERCENT)
	case ',':
		return one(COMMA)
	case ':':
		return one(COLON)
	case '.':
		return one(DOT)
	case '(':
		tok, _ := one(LPAREN)
		return l.open(tok)
	case ')':
		if l.parenDepth > 0 {
			l.parenDepth--
		}
		return one(RPAREN)
	case '[':
		tok, _ := one(LBRACKET)
		return l.open(tok)
	case ']':
		if l.parenDepth > 0 {
			l.parenDepth--
		}
		return one(RBRACKET)
	case '"':
		return l.readString(), true
	}

	if isLetter(c) {
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		lit := string(l.src[start:l.pos])
		if kw, ok := keywords[lit]; ok {
			return Token{Type: kw, Literal: lit, Span: l.span(start)}, true
		}
		return Token{Type: IDENT, Literal: lit, Span: l.span(start)}, true
	}
	if isDigit(c) {
		return l.readNumber(), true
	}

	l.pos++
	l.Errors.Errorf(diag.SyntaxError, l.span(start), "unexpected character %q", rune(c))
	return Token{}, false
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	isFloat := false
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		isFloat = true
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	lit := string(l.src[start:l.pos])
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			l.Errors.Errorf(diag.SyntaxError, l.span(start), "invalid number literal %s", lit)
		}
		return Token{Type: FLOAT, Literal: lit, Float: f, Span: l.span(start)}
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		l.Errors.Errorf(diag.SyntaxError, l.span(start), "integer literal %s out of range", lit)
	}
	return Token{Type: INT, Literal: lit, Int: n, Span: l.span(start)}
}

func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++ // skip opening "
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			l.Errors.Errorf(diag.SyntaxError, l.span(start), "unterminated string literal")
			break
		}
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			break
		}
		if c == '\\' {
			l.pos++
			switch l.peekByte(0) {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			default:
				l.Errors.Errorf(diag.SyntaxError, l.span(l.pos-1), "invalid escape sequence")
			}
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	return Token{Type: STRING, Literal: sb.String(), Span: l.span(start)}
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_' || c >= 0x80
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
