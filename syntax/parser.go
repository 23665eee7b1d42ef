package syntax

import (
	"fmt"

	"github.com/kestrel-lang/kestrel/diag"
)

// ParseOptions controls parsing.
type ParseOptions struct {
	// Recover keeps parsing after a syntax error by discarding tokens up to
	// the next statement or declaration boundary.
	Recover bool
}

// bailout unwinds the parser to the nearest statement boundary.
type bailout struct{}

// Parser is a recursive-descent parser over the token stream of one file.
type Parser struct {
	lex  *Lexer
	tok  Token
	peek Token
	opts ParseOptions

	Errors diag.List
}

// NewParser creates a parser over src.
func NewParser(src []byte, opts ParseOptions) *Parser {
	p := &Parser{lex: NewLexer(src), opts: opts}
	p.next()
	p.next()
	return p
}

// Parse parses a whole compilation unit. Without recovery the first syntax
// error stops parsing and the returned program is nil. With recovery the
// program holds every construct that parsed cleanly and the list holds one
// diagnostic per malformed construct.
func Parse(src []byte, opts ParseOptions) (*Node, diag.List) {
	p := NewParser(src, opts)
	prog := p.ParseProgram()

	var all diag.List
	all.Append(p.lex.Errors)
	all.Append(p.Errors)
	if all.HasErrors() && !opts.Recover {
		return nil, all
	}
	return prog, all
}

// ParseProgram parses declarations until end of file. It returns nil when
// parsing stopped early because recovery is disabled.
func (p *Parser) ParseProgram() (prog *Node) {
	prog = &Node{Kind: NodeProgram, Span: p.tok.Span}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			prog = nil
		}
	}()

	for {
		for p.tok.Type == NEWLINE || p.tok.Type == DEDENT {
			p.next()
		}
		if p.tok.Type == EOF {
			break
		}
		if decl := p.guard(p.parseDeclaration); decl != nil {
			prog.Children = append(prog.Children, decl)
		}
	}
	return prog
}

func (p *Parser) next() {
	p.tok = p.peek
	p.peek = p.lex.NextToken()
}

// guard runs one statement-sized production. On a syntax error it either
// resynchronizes (recovery mode) or keeps unwinding to ParseProgram.
func (p *Parser) guard(parse func() *Node) (n *Node) {
	start := p.lex.Errors.Len()
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok || !p.opts.Recover {
				panic(r)
			}
			p.synchronize()
			n = nil
		}
	}()
	n = parse()
	if !p.opts.Recover && p.lex.Errors.Len() > start {
		panic(bailout{})
	}
	return n
}

// synchronize discards tokens until a statement boundary: a newline at the
// current indentation, the end of the enclosing block, or end of file. An
// indented block that follows the broken line belongs to it and is skipped.
func (p *Parser) synchronize() {
	depth := 0
	for p.tok.Type != EOF {
		switch p.tok.Type {
		case INDENT:
			depth++
		case DEDENT:
			if depth == 0 {
				return
			}
			depth--
			if depth == 0 {
				p.next()
				return
			}
		case NEWLINE:
			if depth == 0 {
				p.next()
				if p.tok.Type == INDENT {
					p.skipBlock()
				}
				return
			}
		}
		p.next()
	}
}

func (p *Parser) skipBlock() {
	depth := 0
	for p.tok.Type != EOF {
		switch p.tok.Type {
		case INDENT:
			depth++
		case DEDENT:
			depth--
			if depth == 0 {
				p.next()
				return
			}
		}
		p.next()
	}
}

// errorf records a syntax error at span and unwinds to the statement
// boundary. An error is not recorded when the lexer already reported a
// problem on the same line, so one mistake yields one diagnostic. The lexer
// runs a token ahead of the parser, so its errors for a line may predate the
// statement being parsed.
func (p *Parser) errorf(span diag.Span, format string, args ...any) {
	if !p.lexReported(span.Line) {
		p.Errors.Errorf(diag.SyntaxError, span, format, args...)
	}
	panic(bailout{})
}

func (p *Parser) lexReported(line int) bool {
	items := p.lex.Errors.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Span.Line == line {
			return true
		}
	}
	return false
}

func describe(tok Token) string {
	switch tok.Type {
	case NEWLINE:
		return "end of line"
	case EOF:
		return "end of file"
	case INDENT:
		return "indentation"
	case DEDENT:
		return "end of block"
	case IDENT:
		return fmt.Sprintf("identifier '%s'", tok.Literal)
	case INT, FLOAT:
		return fmt.Sprintf("number %s", tok.Literal)
	case STRING:
		return "string literal"
	default:
		return fmt.Sprintf("'%s'", tok.Type)
	}
}

func (p *Parser) expect(t TokenType, what string) Token {
	if p.tok.Type != t {
		p.errorf(p.tok.Span, "expected %s, found %s", what, describe(p.tok))
	}
	tok := p.tok
	p.next()
	return tok
}

func (p *Parser) accept(t TokenType) bool {
	if p.tok.Type == t {
		p.next()
		return true
	}
	return false
}

func (p *Parser) parseDeclaration() *Node {
	switch p.tok.Type {
	case CLASS:
		return p.parseClass()
	case FN, ASYNC:
		return p.parseFunc(false)
	default:
		p.errorf(p.tok.Span, "expected class or function declaration, found %s", describe(p.tok))
		return nil
	}
}

func (p *Parser) parseClass() *Node {
	start := p.expect(CLASS, "'class'")
	name := p.expect(IDENT, "class name")
	node := &Node{Kind: NodeClass, String: name.Literal, Span: start.Span}
	if p.accept(IS) {
		parent := p.expect(IDENT, "parent class name")
		node.Parent = parent.Literal
		node.ParentSpan = parent.Span
	}
	p.expect(NEWLINE, "end of line")
	p.expect(INDENT, "indented class body")
	for p.tok.Type != DEDENT && p.tok.Type != EOF {
		if member := p.guard(p.parseMember); member != nil {
			node.Children = append(node.Children, member)
		}
	}
	p.expect(DEDENT, "end of class body")
	return node
}

func (p *Parser) parseMember() *Node {
	switch p.tok.Type {
	case IDENT:
		name := p.tok
		p.next()
		p.expect(COLON, "':' after field name")
		typ := p.parseType()
		p.expect(NEWLINE, "end of line")
		return &Node{Kind: NodeField, String: name.Literal, Type: typ, Span: name.Span}
	case INIT:
		start := p.tok
		p.next()
		params := p.parseParams()
		body := p.parseBlock()
		return &Node{Kind: NodeInit, String: "init", Params: params, Children: []*Node{body}, Span: start.Span}
	case OVERRIDE:
		p.next()
		return p.parseFunc(true)
	case FN, ASYNC:
		return p.parseFunc(false)
	case PASS:
		p.next()
		p.expect(NEWLINE, "end of line")
		return nil
	default:
		p.errorf(p.tok.Span, "expected field, constructor or method, found %s", describe(p.tok))
		return nil
	}
}

func (p *Parser) parseFunc(override bool) *Node {
	start := p.tok
	async := p.accept(ASYNC)
	p.expect(FN, "'fn'")
	name := p.expect(IDENT, "function name")
	node := &Node{Kind: NodeFunc, String: name.Literal, Async: async, Override: override, Span: start.Span}
	if p.tok.Type == LT {
		p.next()
		tp := p.expect(IDENT, "type parameter name")
		node.TypeParam = &TypeParam{Name: tp.Literal, Span: tp.Span}
		if p.accept(COLON) {
			bound := p.expect(IDENT, "type parameter bound")
			node.TypeParam.Bound = bound.Literal
		}
		p.expect(GT, "'>'")
	}
	node.Params = p.parseParams()
	if p.accept(ARROW) {
		node.Type = p.parseType()
	}
	node.Children = []*Node{p.parseBlock()}
	return node
}

func (p *Parser) parseParams() []*Param {
	p.expect(LPAREN, "'('")
	var params []*Param
	for p.tok.Type != RPAREN {
		name := p.expect(IDENT, "parameter name")
		p.expect(COLON, "':' after parameter name")
		params = append(params, &Param{Name: name.Literal, Type: p.parseType(), Span: name.Span})
		if !p.accept(COMMA) {
			break
		}
	}
	p.expect(RPAREN, "')'")
	return params
}

func (p *Parser) parseType() *TypeExpr {
	name := p.expect(IDENT, "type name")
	t := &TypeExpr{Name: name.Literal, Span: name.Span}
	if p.accept(LT) {
		t.Arg = p.parseType()
		p.expect(GT, "'>'")
	}
	return t
}

// parseBlock parses NEWLINE INDENT statements DEDENT.
func (p *Parser) parseBlock() *Node {
	p.expect(NEWLINE, "end of line")
	start := p.expect(INDENT, "indented block")
	block := &Node{Kind: NodeBlock, Span: start.Span}
	for p.tok.Type != DEDENT && p.tok.Type != EOF {
		if stmt := p.guard(p.parseStatement); stmt != nil {
			block.Children = append(block.Children, stmt)
		}
	}
	p.expect(DEDENT, "end of block")
	return block
}

func (p *Parser) endStatement() {
	if p.tok.Type != NEWLINE {
		p.errorf(p.tok.Span, "expected end of line, found %s", describe(p.tok))
	}
	p.next()
}

func (p *Parser) parseStatement() *Node {
	start := p.tok
	switch p.tok.Type {
	case LET:
		p.next()
		name := p.expect(IDENT, "variable name")
		node := &Node{Kind: NodeLet, String: name.Literal, Span: start.Span}
		if p.accept(COLON) {
			node.Type = p.parseType()
		}
		p.expect(ASSIGN, "'='")
		node.Children = []*Node{p.ParseExpression()}
		p.endStatement()
		return node

	case RETURN:
		p.next()
		node := &Node{Kind: NodeReturn, Span: start.Span}
		if p.tok.Type != NEWLINE {
			node.Children = []*Node{p.ParseExpression()}
		}
		p.endStatement()
		return node

	case IF:
		p.next()
		node := &Node{Kind: NodeIf, Span: start.Span}
		node.Children = append(node.Children, p.ParseExpression(), p.parseBlock())
		for p.tok.Type == ELIF {
			p.next()
			node.Children = append(node.Children, p.ParseExpression(), p.parseBlock())
		}
		if p.tok.Type == ELSE {
			p.next()
			node.Children = append(node.Children, p.parseBlock())
		}
		return node

	case WHILE:
		p.next()
		cond := p.ParseExpression()
		return &Node{Kind: NodeWhile, Children: []*Node{cond, p.parseBlock()}, Span: start.Span}

	case FOR:
		p.next()
		name := p.expect(IDENT, "loop variable")
		p.expect(IN, "'in'")
		iter := p.ParseExpression()
		return &Node{Kind: NodeFor, String: name.Literal, Children: []*Node{iter, p.parseBlock()}, Span: start.Span}

	case BREAK, CONTINUE, PASS:
		p.next()
		p.endStatement()
		kind := map[TokenType]NodeKind{BREAK: NodeBreak, CONTINUE: NodeContinue, PASS: NodePass}[start.Type]
		return &Node{Kind: kind, Span: start.Span}

	default:
		expr := p.ParseExpression()
		switch p.tok.Type {
		case ASSIGN, PLUS_ASSIGN, MINUS_ASSIGN:
			op := p.tok
			switch expr.Kind {
			case NodeIdent, NodeMember, NodeIndex:
			default:
				p.errorf(expr.Span, "invalid assignment target")
			}
			p.next()
			value := p.ParseExpression()
			p.endStatement()
			return &Node{Kind: NodeAssign, Op: string(op.Type), Children: []*Node{expr, value}, Span: start.Span}
		}
		p.endStatement()
		return &Node{Kind: NodeExprStmt, Children: []*Node{expr}, Span: start.Span}
	}
}

// precedence returns the binding power of a binary operator token, or 0.
func precedence(t TokenType) int {
	switch t {
	case OR:
		return 1
	case AND:
		return 2
	case EQ, NOT_EQ, LT, GT, LE, GE:
		return 4
	case PLUS, MINUS:
		return 5
	case ASTERISK, SLASH, PERCENT:
		return 6
	default:
		return 0
	}
}

// ParseExpression parses an expression and returns an AST node
func (p *Parser) ParseExpression() *Node {
	return p.parseBinary(1)
}

// parseBinary implements precedence climbing over left-associative operators.
func (p *Parser) parseBinary(minPrec int) *Node {
	left := p.parseUnary()
	for {
		prec := precedence(p.tok.Type)
		if prec == 0 || prec < minPrec {
			return left
		}
		op := p.tok
		p.next()
		right := p.parseBinary(prec + 1)
		span := left.Span
		span.End = right.Span.End
		left = &Node{Kind: NodeBinary, Op: string(op.Type), Children: []*Node{left, right}, Span: span}
	}
}

func (p *Parser) parseUnary() *Node {
	start := p.tok
	switch p.tok.Type {
	case NOT:
		p.next()
		operand := p.parseBinary(4)
		return &Node{Kind: NodeUnary, Op: "not", Children: []*Node{operand}, Span: start.Span}
	case MINUS:
		p.next()
		operand := p.parseUnary()
		return &Node{Kind: NodeUnary, Op: "-", Children: []*Node{operand}, Span: start.Span}
	case AWAIT:
		p.next()
		operand := p.parsePostfix()
		return &Node{Kind: NodeAwait, Children: []*Node{operand}, Span: start.Span}
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() *Node {
	left := p.parsePrimary()
	for {
		switch p.tok.Type {
		case LPAREN:
			p.next()
			call := &Node{Kind: NodeCall, Children: []*Node{left}, Span: left.Span}
			for p.tok.Type != RPAREN {
				call.Children = append(call.Children, p.ParseExpression())
				if !p.accept(COMMA) {
					break
				}
			}
			end := p.expect(RPAREN, "')'")
			call.Span.End = end.Span.End
			left = call
		case DOT:
			p.next()
			name := p.expect(IDENT, "member name")
			span := left.Span
			span.End = name.Span.End
			left = &Node{Kind: NodeMember, String: name.Literal, Children: []*Node{left}, Span: span}
		case LBRACKET:
			p.next()
			index := &Node{Kind: NodeIndex, Children: []*Node{left, p.ParseExpression()}, Span: left.Span}
			if p.accept(COMMA) {
				index.Children = append(index.Children, p.ParseExpression())
			}
			end := p.expect(RBRACKET, "']'")
			index.Span.End = end.Span.End
			left = index
		default:
			if p.tok.Type == CATCH {
				return p.parseCatch(left)
			}
			return left
		}
	}
}

// parseCatch parses the error-propagation clause attached to a call.
func (p *Parser) parseCatch(call *Node) *Node {
	if call.Kind != NodeCall {
		p.errorf(p.tok.Span, "catch clause must follow a call")
	}
	clause := p.tok
	p.next()
	node := &Node{Kind: NodeCatch, Children: []*Node{call}, Span: call.Span}
	if p.accept(RAISE) {
		node.Op = "raise"
		return node
	}
	if p.tok.Type == NEWLINE {
		p.errorf(clause.Span, "catch clause needs a fallback value or 'raise'")
	}
	node.Op = "fallback"
	node.Children = append(node.Children, p.parseUnary())
	return node
}

func (p *Parser) parsePrimary() *Node {
	tok := p.tok
	switch tok.Type {
	case INT:
		p.next()
		return &Node{Kind: NodeInteger, Integer: tok.Int, Span: tok.Span}
	case FLOAT:
		p.next()
		return &Node{Kind: NodeFloat, Float: tok.Float, Span: tok.Span}
	case STRING:
		p.next()
		return &Node{Kind: NodeString, String: tok.Literal, Span: tok.Span}
	case TRUE, FALSE:
		p.next()
		return &Node{Kind: NodeBool, Bool: tok.Type == TRUE, Span: tok.Span}
	case IDENT:
		p.next()
		return &Node{Kind: NodeIdent, String: tok.Literal, Span: tok.Span}
	case SELF:
		p.next()
		return &Node{Kind: NodeSelf, String: "self", Span: tok.Span}
	case SUPER:
		p.next()
		return &Node{Kind: NodeSuper, String: "super", Span: tok.Span}
	case LPAREN:
		p.next()
		expr := p.ParseExpression()
		p.expect(RPAREN, "')'")
		return expr
	case LBRACKET:
		p.next()
		arr := &Node{Kind: NodeArray, Span: tok.Span}
		for p.tok.Type != RBRACKET {
			arr.Children = append(arr.Children, p.ParseExpression())
			if !p.accept(COMMA) {
				break
			}
		}
		end := p.expect(RBRACKET, "']'")
		arr.Span.End = end.Span.End
		return arr
	default:
		p.errorf(tok.Span, "expected expression, found %s", describe(tok))
		return nil
	}
}
