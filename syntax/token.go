package syntax

import "github.com/kestrel-lang/kestrel/diag"

// TokenType is the type of token (identifier, operator, literal, etc.).
type TokenType string

const (
	EOF     TokenType = "EOF"
	NEWLINE TokenType = "NEWLINE"
	INDENT  TokenType = "INDENT"
	DEDENT  TokenType = "DEDENT"

	IDENT  TokenType = "IDENT"
	INT    TokenType = "INT"
	FLOAT  TokenType = "FLOAT"
	STRING TokenType = "STRING"

	ASSIGN       TokenType = "="
	PLUS_ASSIGN  TokenType = "+="
	MINUS_ASSIGN TokenType = "-="
	PLUS         TokenType = "+"
	MINUS        TokenType = "-"
	ASTERISK     TokenType = "*"
	SLASH        TokenType = "/"
	PERCENT      TokenType = "%"
	EQ           TokenType = "=="
	NOT_EQ       TokenType = "!="
	LT           TokenType = "<"
	GT           TokenType = ">"
	LE           TokenType = "<="
	GE           TokenType = ">="
	ARROW        TokenType = "->"

	COMMA    TokenType = ","
	COLON    TokenType = ":"
	DOT      TokenType = "."
	LPAREN   TokenType = "("
	RPAREN   TokenType = ")"
	LBRACKET TokenType = "["
	RBRACKET TokenType = "]"

	CLASS    TokenType = "class"
	IS       TokenType = "is"
	FN       TokenType = "fn"
	ASYNC    TokenType = "async"
	AWAIT    TokenType = "await"
	INIT     TokenType = "init"
	SUPER    TokenType = "super"
	SELF     TokenType = "self"
	OVERRIDE TokenType = "override"
	LET      TokenType = "let"
	RETURN   TokenType = "return"
	IF       TokenType = "if"
	ELIF     TokenType = "elif"
	ELSE     TokenType = "else"
	WHILE    TokenType = "while"
	FOR      TokenType = "for"
	IN       TokenType = "in"
	BREAK    TokenType = "break"
	CONTINUE TokenType = "continue"
	PASS     TokenType = "pass"
	TRUE     TokenType = "true"
	FALSE    TokenType = "false"
	AND      TokenType = "and"
	OR       TokenType = "or"
	NOT      TokenType = "not"
	CATCH    TokenType = "catch"
	RAISE    TokenType = "raise"
)

var keywords = map[string]TokenType{
	"class":    CLASS,
	"is":       IS,
	"fn":       FN,
	"async":    ASYNC,
	"await":    AWAIT,
	"init":     INIT,
	"super":    SUPER,
	"self":     SELF,
	"override": OVERRIDE,
	"let":      LET,
	"return":   RETURN,
	"if":       IF,
	"elif":     ELIF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"in":       IN,
	"break":    BREAK,
	"continue": CONTINUE,
	"pass":     PASS,
	"true":     TRUE,
	"false":    FALSE,
	"and":      AND,
	"or":       OR,
	"not":      NOT,
	"catch":    CATCH,
	"raise":    RAISE,
}

// Token is a lexical unit. It is discarded once the parser has consumed it.
type Token struct {
	Type    TokenType
	Literal string
	Int     int64   // only meaningful when Type == INT
	Float   float64 // only meaningful when Type == FLOAT
	Span    diag.Span
}
