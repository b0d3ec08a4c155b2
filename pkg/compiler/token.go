package compiler

import "fmt"

type TokenType int

const (
	EOF TokenType = iota
	IDENTIFIER
	INTEGER

	// Keywords
	INT
	IF
	ELSE
	WHILE
	FOR
	RETURN
	BREAK
	CONTINUE

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	ASSIGN
	EQ
	NEQ
	LT
	LTE
	GT
	GTE
	NOT

	// Punctuation
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	SEMICOLON
	COMMA
)

var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	INTEGER:    "INTEGER",
	INT:        "int",
	IF:         "if",
	ELSE:       "else",
	WHILE:      "while",
	FOR:        "for",
	RETURN:     "return",
	BREAK:      "break",
	CONTINUE:   "continue",
	PLUS:       "+",
	MINUS:      "-",
	STAR:       "*",
	SLASH:      "/",
	ASSIGN:     "=",
	EQ:         "==",
	NEQ:        "!=",
	LT:         "<",
	LTE:        "<=",
	GT:         ">",
	GTE:        ">=",
	NOT:        "!",
	LPAREN:     "(",
	RPAREN:     ")",
	LBRACE:     "{",
	RBRACE:     "}",
	SEMICOLON:  ";",
	COMMA:      ",",
}

func (tt TokenType) String() string {
	if int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexeme with its source line for error reporting.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Lexeme, t.Line)
}
