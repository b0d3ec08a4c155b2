package compiler

import (
	"fmt"
	"strings"
)

//  Expression nodes

// Expr is implemented by every node that produces a value.
// Generated code always leaves the result in the accumulator.
type Expr interface {
	exprNode()
	String() string
}

// NumberLiteral is a compile-time integer constant.
//
//	int x = 10;
//	         ^^  NumberLiteral{Value: 10}
type NumberLiteral struct {
	Value int64
}

func (*NumberLiteral) exprNode()        {}
func (n *NumberLiteral) String() string { return fmt.Sprintf("%d", n.Value) }

// Identifier is a read of a named variable.
//
//	return x;
//	       ^  Identifier{Name: "x"}
type Identifier struct {
	Name string
}

func (*Identifier) exprNode()        {}
func (i *Identifier) String() string { return i.Name }

// BinaryExpr represents a binary operation: Left Op Right.
type BinaryExpr struct {
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// UnaryExpr represents Op Right (e.g. -x, !x).
type UnaryExpr struct {
	Op    TokenType
	Right Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Right) }

// CallExpr represents name(args).
type CallExpr struct {
	Name string
	Args []Expr
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	return fmt.Sprintf("Call(%s, args=%v)", c.Name, c.Args)
}

//  Statement nodes

// Stmt is implemented by every node that does not produce a value.
type Stmt interface {
	stmtNode()
	String() string
}

// VariableDecl represents  int name = expr;
type VariableDecl struct {
	Name string
	Init Expr // may be nil; the variable then starts at zero
}

func (*VariableDecl) stmtNode() {}
func (d *VariableDecl) String() string {
	if d.Init == nil {
		return fmt.Sprintf("VariableDecl(int %s)", d.Name)
	}
	return fmt.Sprintf("VariableDecl(int %s = %s)", d.Name, d.Init)
}

// Assignment represents  name = expr;
type Assignment struct {
	Name  string
	Value Expr
}

func (*Assignment) stmtNode() {}
func (a *Assignment) String() string {
	return fmt.Sprintf("Assignment(%s = %s)", a.Name, a.Value)
}

// ReturnStmt represents  return expr;
type ReturnStmt struct {
	Expr Expr // may be nil; the function then returns zero
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	return fmt.Sprintf("ReturnStmt(%s)", r.Expr)
}

// BlockStmt represents { statement; ... }
type BlockStmt struct {
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("BlockStmt(len=%d)", len(b.Stmts))
}

// IfStmt represents if (cond) body [else elseBody]
type IfStmt struct {
	Condition Expr
	Body      Stmt
	ElseBody  Stmt // may be nil
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.ElseBody != nil {
		return fmt.Sprintf("IfStmt(if %s then %s else %s)", i.Condition, i.Body, i.ElseBody)
	}
	return fmt.Sprintf("IfStmt(if %s then %s)", i.Condition, i.Body)
}

// WhileStmt represents while (cond) body
type WhileStmt struct {
	Condition Expr
	Body      Stmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("WhileStmt(while %s do %s)", w.Condition, w.Body)
}

// ForStmt represents for (init; cond; post) body
type ForStmt struct {
	Init Stmt // may be nil
	Cond Expr // may be nil; treated as always true
	Post Stmt // may be nil
	Body Stmt
}

func (*ForStmt) stmtNode() {}
func (f *ForStmt) String() string {
	return fmt.Sprintf("ForStmt(init=%s, cond=%s, post=%s, body=%s)", f.Init, f.Cond, f.Post, f.Body)
}

// FunctionDecl represents int name(params) { body }
type FunctionDecl struct {
	Name   string
	Params []string
	Body   *BlockStmt
}

func (*FunctionDecl) stmtNode() {}
func (f *FunctionDecl) String() string {
	return fmt.Sprintf("FunctionDecl(int %s(%s), body=%s)", f.Name, strings.Join(f.Params, ", "), f.Body)
}

// ExprStmt represents an expression evaluated for its side effects, or an
// expression hoisted into a basic block as a branch condition.
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	return fmt.Sprintf("ExprStmt(%s)", e.Expr)
}

// BreakStmt represents break;
type BreakStmt struct{}

func (*BreakStmt) stmtNode()        {}
func (s *BreakStmt) String() string { return "BreakStmt" }

// ContinueStmt represents continue;
type ContinueStmt struct{}

func (*ContinueStmt) stmtNode()        {}
func (s *ContinueStmt) String() string { return "ContinueStmt" }

//  Scope checkpoint markers
//
// The annotator wraps every block's statement list in a matched
// StartCheckpoint/EndCheckpoint pair. They are ordinary statements because
// their position inside the statement list is load-bearing: it must survive
// the lowering from AST to basic blocks.

// StartCheckpoint opens the lexical scope ScopeID declaring Vars.
type StartCheckpoint struct {
	ScopeID int
	Depth   int
	Vars    []string
}

func (*StartCheckpoint) stmtNode() {}
func (c *StartCheckpoint) String() string {
	return fmt.Sprintf("StartCheckpoint(id=%d, depth=%d, vars=%v)", c.ScopeID, c.Depth, c.Vars)
}

// EndCheckpoint closes the scope opened by the StartCheckpoint with the
// same ScopeID.
type EndCheckpoint struct {
	ScopeID int
	Depth   int
	Vars    []string
}

func (*EndCheckpoint) stmtNode() {}
func (c *EndCheckpoint) String() string {
	return fmt.Sprintf("EndCheckpoint(id=%d, depth=%d, vars=%v)", c.ScopeID, c.Depth, c.Vars)
}
