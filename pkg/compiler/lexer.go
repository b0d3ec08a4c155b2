package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"int":      INT,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1}
}

// Lex converts source text into a flat token slice ending in EOF.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for l.pos < len(l.src) {
		switch {
		case unicode.IsSpace(l.peek()):
			l.advance()
		case l.peek() == '/' && l.peek2() == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case l.peek() == '/' && l.peek2() == '*':
			startLine := l.line
			l.advance()
			l.advance()
			for {
				if l.pos >= len(l.src) {
					return fmt.Errorf("unterminated block comment (opened on line %d)", startLine)
				}
				if l.peek() == '*' && l.peek2() == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

// next scans and returns the next token.
func (l *Lexer) next() (Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Line: l.line}, nil
	}

	line := l.line
	r := l.peek()

	if unicode.IsLetter(r) || r == '_' {
		return l.scanIdent(), nil
	}
	if unicode.IsDigit(r) {
		return l.scanInt(), nil
	}

	l.advance()
	switch r {
	case '+':
		return Token{Type: PLUS, Lexeme: "+", Line: line}, nil
	case '-':
		return Token{Type: MINUS, Lexeme: "-", Line: line}, nil
	case '*':
		return Token{Type: STAR, Lexeme: "*", Line: line}, nil
	case '/':
		return Token{Type: SLASH, Lexeme: "/", Line: line}, nil
	case '=':
		if l.peek() == '=' {
			l.advance()
			return Token{Type: EQ, Lexeme: "==", Line: line}, nil
		}
		return Token{Type: ASSIGN, Lexeme: "=", Line: line}, nil
	case '!':
		if l.peek() == '=' {
			l.advance()
			return Token{Type: NEQ, Lexeme: "!=", Line: line}, nil
		}
		return Token{Type: NOT, Lexeme: "!", Line: line}, nil
	case '<':
		if l.peek() == '=' {
			l.advance()
			return Token{Type: LTE, Lexeme: "<=", Line: line}, nil
		}
		return Token{Type: LT, Lexeme: "<", Line: line}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return Token{Type: GTE, Lexeme: ">=", Line: line}, nil
		}
		return Token{Type: GT, Lexeme: ">", Line: line}, nil
	case '(':
		return Token{Type: LPAREN, Lexeme: "(", Line: line}, nil
	case ')':
		return Token{Type: RPAREN, Lexeme: ")", Line: line}, nil
	case '{':
		return Token{Type: LBRACE, Lexeme: "{", Line: line}, nil
	case '}':
		return Token{Type: RBRACE, Lexeme: "}", Line: line}, nil
	case ';':
		return Token{Type: SEMICOLON, Lexeme: ";", Line: line}, nil
	case ',':
		return Token{Type: COMMA, Lexeme: ",", Line: line}, nil
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", r, line)
}

// scanIdent collects a full identifier or keyword token.
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

// scanInt collects a decimal integer literal.
func (l *Lexer) scanInt() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
		l.advance()
	}
	return Token{Type: INTEGER, Lexeme: string(l.src[start:l.pos]), Line: line}
}
