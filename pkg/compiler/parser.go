package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program    = functionDecl* EOF
//	functionDecl = "int" IDENTIFIER "(" params ")" block
//	statement  = varDecl | assignment | returnStmt | block | if | while | for
//	           | "break" ";" | "continue" ";" | exprStmt
//	varDecl    = "int" IDENTIFIER ("=" expression)? ";"
//	assignment = IDENTIFIER "=" expression ";"
//	returnStmt = "return" expression? ";"
//	expression = equality
//	equality   = relational (("=="|"!=") relational)*
//	relational = additive (("<"|"<="|">"|">=") additive)*
//	additive   = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/") unary)*
//	unary      = ("-" | "!") unary | primary
//	primary    = INTEGER | IDENTIFIER ("(" args ")")? | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// Parse is the convenience entry point: lex + parse in one call.
func Parse(src string) ([]Stmt, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens, src).Program()
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return fmt.Errorf("line %d: %s\n  |> %s", tok.Line, msg, snippet)
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

// Program parses a whole translation unit: a sequence of function declarations.
func (p *Parser) Program() ([]Stmt, error) {
	var stmts []Stmt
	for p.peek().Type != EOF {
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fn)
	}
	return stmts, nil
}

func (p *Parser) parseFunction() (Stmt, error) {
	if _, err := p.expect(INT); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var params []string
	for p.peek().Type != RPAREN {
		if len(params) > 0 {
			if _, err := p.expect(COMMA); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(INT); err != nil {
			return nil, err
		}
		pname, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		params = append(params, pname.Lexeme)
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDecl{Name: name.Lexeme, Params: params, Body: body}, nil
}

func (p *Parser) parseBlock() (*BlockStmt, error) {
	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	block := &BlockStmt{}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fmtError(p.peek(), "unexpected EOF inside block")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	p.advance() // consume }
	return block, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case INT:
		return p.parseVarDecl(true)
	case RETURN:
		p.advance()
		if p.peek().Type == SEMICOLON {
			p.advance()
			return &ReturnStmt{}, nil
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ReturnStmt{Expr: expr}, nil
	case LBRACE:
		return p.parseBlock()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case FOR:
		return p.parseFor()
	case BREAK:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BreakStmt{}, nil
	case CONTINUE:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ContinueStmt{}, nil
	default:
		return p.parseSimpleStatement(true)
	}
}

// parseVarDecl parses "int name (= expr)?". The trailing semicolon is
// consumed only when wantSemi is set (a for-initializer leaves it alone).
func (p *Parser) parseVarDecl(wantSemi bool) (Stmt, error) {
	if _, err := p.expect(INT); err != nil {
		return nil, err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	decl := &VariableDecl{Name: name.Lexeme}
	if p.peek().Type == ASSIGN {
		p.advance()
		decl.Init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if wantSemi {
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	return decl, nil
}

// parseSimpleStatement parses an assignment or a bare expression statement.
func (p *Parser) parseSimpleStatement(wantSemi bool) (Stmt, error) {
	// Lookahead for "IDENTIFIER =" which is an assignment; anything else is
	// an expression statement.
	if p.peek().Type == IDENTIFIER && p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Type == ASSIGN {
		name := p.advance()
		p.advance() // =
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if wantSemi {
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
		}
		return &Assignment{Name: name.Lexeme, Value: value}, nil
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if wantSemi {
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	return &ExprStmt{Expr: expr}, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	p.advance() // if
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Condition: cond, Body: body}
	if p.peek().Type == ELSE {
		p.advance()
		if p.peek().Type == IF {
			stmt.ElseBody, err = p.parseIf()
		} else {
			stmt.ElseBody, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	p.advance() // while
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	p.advance() // for
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	stmt := &ForStmt{}
	var err error

	if p.peek().Type != SEMICOLON {
		if p.peek().Type == INT {
			stmt.Init, err = p.parseVarDecl(false)
		} else {
			stmt.Init, err = p.parseSimpleStatement(false)
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	if p.peek().Type != SEMICOLON {
		stmt.Cond, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	if p.peek().Type != RPAREN {
		stmt.Post, err = p.parseSimpleStatement(false)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	stmt.Body, err = p.parseBlock()
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseEquality()
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Expr, error) {
	expr, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == EQ || p.peek().Type == NEQ {
		op := p.advance().Type
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseRelational handles < <= > >=
func (p *Parser) parseRelational() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != LT && tt != LTE && tt != GT && tt != GTE {
			return expr, nil
		}
		op := p.advance().Type
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		op := p.advance().Type
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

// parseMultiplicative handles * and /
func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == STAR || p.peek().Type == SLASH {
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == MINUS || p.peek().Type == NOT {
		op := p.advance().Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: op, Right: right}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.advance()
	switch tok.Type {
	case INTEGER:
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.fmtError(tok, "bad integer literal %q", tok.Lexeme)
		}
		return &NumberLiteral{Value: v}, nil

	case IDENTIFIER:
		if p.peek().Type != LPAREN {
			return &Identifier{Name: tok.Lexeme}, nil
		}
		p.advance() // (
		call := &CallExpr{Name: tok.Lexeme}
		for p.peek().Type != RPAREN {
			if len(call.Args) > 0 {
				if _, err := p.expect(COMMA); err != nil {
					return nil, err
				}
			}
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		p.advance() // )
		return call, nil

	case LPAREN:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.fmtError(tok, "unexpected token %s (%q) in expression", tok.Type, tok.Lexeme)
}
