package sexy

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota
	NodeString
	NodeNumber
	NodeWildcard
	NodeEllipsis
	NodeList
)

func (t NodeType) String() string {
	switch t {
	case NodeSymbol:
		return "symbol"
	case NodeString:
		return "string"
	case NodeNumber:
		return "number"
	case NodeWildcard:
		return "wildcard"
	case NodeEllipsis:
		return "ellipsis"
	case NodeList:
		return "list"
	default:
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
}

// Node is one datum of an S-expression.
//
// In patterns, _ matches any single datum and ... as the last item of a
// list matches any remaining items.
type Node struct {
	Type NodeType
	// Text is the symbol name, the unquoted string or the number as written.
	Text  string
	Items []*Node
}

func (n *Node) String() string {
	switch n.Type {
	case NodeString:
		return strconv.Quote(n.Text)
	case NodeWildcard:
		return "_"
	case NodeEllipsis:
		return "..."
	case NodeList:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = item.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return n.Text
	}
}

// Parse parses exactly one datum. Comments start with ';'.
func Parse(input string) (*Node, error) {
	p := &parser{lex: lexer{input: input}}
	p.next()
	n, err := p.datum()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, p.errorf("unexpected %s after datum", p.tok.kind)
	}
	return n, nil
}

type parser struct {
	lex lexer
	tok token
}

func (p *parser) next() {
	p.tok = p.lex.next()
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.tok.pos, fmt.Sprintf(format, args...))
}

func (p *parser) datum() (*Node, error) {
	tok := p.tok
	switch tok.kind {
	case tokenError:
		return nil, p.errorf("%s", tok.text)
	case tokenSymbol:
		p.next()
		if tok.text == "_" {
			return &Node{Type: NodeWildcard}, nil
		}
		return &Node{Type: NodeSymbol, Text: tok.text}, nil
	case tokenString:
		p.next()
		return &Node{Type: NodeString, Text: tok.text}, nil
	case tokenNumber:
		p.next()
		return &Node{Type: NodeNumber, Text: tok.text}, nil
	case tokenEllipsis:
		p.next()
		return &Node{Type: NodeEllipsis}, nil
	case tokenLParen:
		p.next()
		list := &Node{Type: NodeList}
		for p.tok.kind != tokenRParen {
			if p.tok.kind == tokenEOF {
				return nil, p.errorf("unterminated list")
			}
			item, err := p.datum()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
		p.next()
		for i, item := range list.Items {
			if item.Type == NodeEllipsis && i != len(list.Items)-1 {
				return nil, p.errorf("... must be the last item of a list")
			}
		}
		return list, nil
	default:
		return nil, p.errorf("unexpected %s", tok.kind)
	}
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenError
	tokenSymbol
	tokenString
	tokenNumber
	tokenEllipsis
	tokenLParen
	tokenRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenError:
		return "error"
	case tokenSymbol:
		return "symbol"
	case tokenString:
		return "string"
	case tokenNumber:
		return "number"
	case tokenEllipsis:
		return "'...'"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	default:
		return fmt.Sprintf("token %d", int(k))
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) peek(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *lexer) next() token {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == ';' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		if !unicode.IsSpace(rune(c)) {
			break
		}
		l.pos++
	}
	start := l.pos
	c := l.peek(0)
	switch {
	case l.pos >= len(l.input):
		return token{kind: tokenEOF, pos: start}
	case c == '(':
		l.pos++
		return token{kind: tokenLParen, pos: start}
	case c == ')':
		l.pos++
		return token{kind: tokenRParen, pos: start}
	case c == '"':
		return l.readString()
	case c == '.':
		if l.peek(1) == '.' && l.peek(2) == '.' {
			l.pos += 3
			return token{kind: tokenEllipsis, pos: start}
		}
		l.pos++
		return token{kind: tokenError, text: "unexpected character '.'", pos: start}
	case isDigit(c) || ((c == '-' || c == '+') && isDigit(l.peek(1))):
		l.pos++
		for isNumberChar(l.peek(0)) {
			l.pos++
		}
		return token{kind: tokenNumber, text: l.input[start:l.pos], pos: start}
	case isSymbolChar(c):
		for isSymbolChar(l.peek(0)) {
			l.pos++
		}
		return token{kind: tokenSymbol, text: l.input[start:l.pos], pos: start}
	default:
		l.pos++
		return token{kind: tokenError, text: fmt.Sprintf("unexpected character %q", c), pos: start}
	}
}

// readString reads a Go-quoted string, the form ToSExpr prints.
func (l *lexer) readString() token {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		if l.input[l.pos] == '\\' {
			l.pos++
		}
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenError, text: "unterminated string", pos: start}
	}
	l.pos++
	s, err := strconv.Unquote(l.input[start:l.pos])
	if err != nil {
		return token{kind: tokenError, text: fmt.Sprintf("bad string %s: %v", l.input[start:l.pos], err), pos: start}
	}
	return token{kind: tokenString, text: s, pos: start}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumberChar(c byte) bool {
	return isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func isSymbolChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', isDigit(c):
		return true
	}
	return strings.IndexByte("_-+*/%<>=!?$&", c) >= 0
}

// Match reports the first difference between pattern and actual, or nil
// when actual matches. Errors name the path to the mismatch, e.g.
// "root[2][1]".
func Match(pattern, actual *Node) error {
	return match(pattern, actual, "root")
}

func match(pattern, actual *Node, path string) error {
	if pattern.Type == NodeWildcard {
		return nil
	}
	if pattern.Type != actual.Type {
		return fmt.Errorf("at %s: expected %s %s, got %s %s", path, pattern.Type, pattern, actual.Type, actual)
	}
	if pattern.Type != NodeList {
		if pattern.Text != actual.Text && !sameNumber(pattern, actual) {
			return fmt.Errorf("at %s: expected %s, got %s", path, pattern, actual)
		}
		return nil
	}

	items := pattern.Items
	open := len(items) > 0 && items[len(items)-1].Type == NodeEllipsis
	if open {
		items = items[:len(items)-1]
	}
	if len(actual.Items) < len(items) || (!open && len(actual.Items) != len(items)) {
		return fmt.Errorf("at %s: expected %d items, got %d in %s", path, len(items), len(actual.Items), actual)
	}
	for i, item := range items {
		if err := match(item, actual.Items[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func sameNumber(a, b *Node) bool {
	if a.Type != NodeNumber {
		return false
	}
	x, err1 := strconv.ParseFloat(a.Text, 64)
	y, err2 := strconv.ParseFloat(b.Text, 64)
	return err1 == nil && err2 == nil && x == y
}
