package compiler

import (
	"fmt"
	"strings"

	"stackcc/pkg/diag"
)

// CodeGen walks one function graph depth-first and emits stack-machine
// assembly source text.
//
// Each edge is followed with a deep copy of the scope snapshot taken at the
// source block, so sibling paths (the two arms of a branch) generate code
// against identical views of the stack no matter which arm is emitted
// first. Blocks are emitted once; a revisit becomes a jmp to the existing
// label. The exit sentinel never gets a label: paths reach it either through
// a return sequence or by falling off the end, and both emit their own
// epilogue in place.
type CodeGen struct {
	graph   *CFG
	scopes  *ScopeManager
	out     strings.Builder
	diag    *diag.Reporter
	visited map[string]bool
	isMain  bool
}

// Generate emits the assembly for one function. Problems that have a usable
// fallback (undeclared reads, mismatched scope closes) are reported on r and
// compilation continues.
func Generate(g *CFG, r *diag.Reporter) string {
	if r == nil {
		r = diag.NewReporter(nil)
	}
	cg := &CodeGen{
		graph:   g,
		scopes:  NewScopeManager(),
		diag:    r,
		visited: make(map[string]bool),
		isMain:  g.FunctionName == "main",
	}
	cg.scopes.SetFunctionParameters(g.Params)
	cg.visit(g.EntryID, ScopeSnapshot{})
	return cg.out.String()
}

// GenerateProgram emits all functions, main first so execution starts at
// instruction zero. Function order is otherwise preserved.
func GenerateProgram(graphs []*CFG, r *diag.Reporter) string {
	var sb strings.Builder
	for _, g := range graphs {
		if g.FunctionName == "main" {
			sb.WriteString(Generate(g, r))
		}
	}
	for _, g := range graphs {
		if g.FunctionName != "main" {
			sb.WriteString(Generate(g, r))
		}
	}
	return sb.String()
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

// visit emits one block and recurses into its successors. snap is the scope
// state on the edge that led here; it is restored before any statement is
// emitted.
func (cg *CodeGen) visit(id string, snap ScopeSnapshot) {
	if cg.visited[id] {
		return
	}
	cg.visited[id] = true

	block := cg.graph.Block(id)
	cg.scopes.Restore(snap)

	cg.line("%s:", block.ID)
	if block.IsEntry && !cg.isMain {
		cg.line("    push ebp")
		cg.line("    mov ebp, esp")
	}

	// A two-successor block ends in its branch condition; peel it off so
	// the straight-line statements and the branch emit separately.
	stmts := block.Stmts
	var cond Expr
	if len(block.Succs) == 2 && len(stmts) > 0 {
		if es, ok := stmts[len(stmts)-1].(*ExprStmt); ok {
			cond = es.Expr
			stmts = stmts[:len(stmts)-1]
		}
	}

	returned := false
	for _, s := range stmts {
		switch n := s.(type) {
		case *StartCheckpoint:
			cg.scopes.EnterScope(n.ScopeID, n.Vars)
			if slots := cg.scopes.TopLocalSlotCount(); slots > 0 {
				cg.line("    sub esp, %d", slots)
			}

		case *EndCheckpoint:
			cg.closeScope(n)

		case *VariableDecl:
			if n.Init != nil {
				cg.genExpr(n.Init)
			} else {
				cg.line("    mov eax, 0")
			}
			cg.scopes.MarkInitialized(n.Name)
			if off, ok := cg.scopes.GetVariableOffset(n.Name); ok {
				cg.line("    si %d", off)
			} else {
				cg.diag.Warnf("%s: no stack slot for %q", cg.graph.FunctionName, n.Name)
			}

		case *Assignment:
			cg.genExpr(n.Value)
			if off, ok := cg.scopes.GetVariableOffset(n.Name); ok {
				cg.line("    si %d", off)
			} else {
				cg.diag.Warnf("%s: assignment to undeclared variable %q; value discarded", cg.graph.FunctionName, n.Name)
			}

		case *ReturnStmt:
			if n.Expr != nil {
				cg.genExpr(n.Expr)
			} else {
				cg.line("    mov eax, 0")
			}
			cg.epilogue()
			returned = true

		case *ExprStmt:
			cg.genExpr(n.Expr)

		default:
			cg.diag.Warnf("%s: unsupported statement %s; skipped", cg.graph.FunctionName, s)
		}
		if returned {
			break
		}
	}

	out := cg.scopes.Snapshot()
	block.Snapshot = &out

	if returned {
		return
	}

	if cond != nil {
		cg.genCondBranch(cond, block.Succs[0], block.Succs[1])
		cg.visit(block.Succs[0], out.Clone())
		cg.visit(block.Succs[1], out.Clone())
		return
	}

	switch len(block.Succs) {
	case 0:
		// Only the exit sentinel is successor-less, and it is never
		// visited directly.

	case 1:
		succ := block.Succs[0]
		if succ == cg.graph.ExitID {
			// Fell off the end of the function: return zero.
			cg.line("    mov eax, 0")
			cg.epilogue()
			return
		}
		cg.line("    jmp %s", succ)
		cg.visit(succ, out.Clone())

	default:
		cg.diag.Warnf("%s: block %s branches without a condition", cg.graph.FunctionName, block.ID)
		cg.line("    jmp %s", block.Succs[0])
		cg.visit(block.Succs[0], out.Clone())
	}
}

// epilogue unwinds every live local slot and returns. main has no frame
// pointer to restore; its final ret on an empty stack halts the machine.
func (cg *CodeGen) epilogue() {
	if total := cg.scopes.TotalLocalSlotCount(); total > 0 {
		cg.line("    add esp, %d", total)
	}
	if !cg.isMain {
		cg.line("    pop ebp")
	}
	cg.line("    ret")
}

// closeScope pops frames until the one matching the checkpoint is gone,
// releasing each frame's slots. Popping through intervening frames is
// normal on paths that left inner scopes via break or continue; a
// checkpoint with no live frame at all is a structural mismatch and is
// reported and ignored.
func (cg *CodeGen) closeScope(n *EndCheckpoint) {
	if !cg.scopes.HasScope(n.ScopeID) {
		cg.diag.Warnf("%s: closing scope %d which is not open", cg.graph.FunctionName, n.ScopeID)
		return
	}
	for {
		id, ok := cg.scopes.TopScopeID()
		if !ok {
			return
		}
		slots := cg.scopes.TopLocalSlotCount()
		cg.scopes.ExitScope()
		if slots > 0 {
			cg.line("    add esp, %d", slots)
		}
		if id == n.ScopeID {
			return
		}
	}
}

// Comparison operators map to a conditional jump when the result feeds a
// branch, and to a flag-materializing set instruction when the result is
// used as a value.
var (
	jumpByOp = map[TokenType]string{
		EQ:  "je",
		NEQ: "jne",
		LT:  "jl",
		LTE: "jle",
		GT:  "jg",
		GTE: "jge",
	}
	setByOp = map[TokenType]string{
		EQ:  "sete",
		NEQ: "setne",
		LT:  "setl",
		LTE: "setle",
		GT:  "setg",
		GTE: "setge",
	}
)

// genCondBranch emits the condition and a jump pair: conditional jump to the
// true target, unconditional jump to the false target. A top-level
// comparison branches on its flags directly instead of materializing 0/1.
func (cg *CodeGen) genCondBranch(e Expr, trueID, falseID string) {
	if bin, ok := e.(*BinaryExpr); ok {
		if jcc, ok := jumpByOp[bin.Op]; ok {
			cg.genComparison(bin)
			cg.line("    %s %s", jcc, trueID)
			cg.line("    jmp %s", falseID)
			return
		}
	}
	cg.genExpr(e)
	cg.line("    cmp eax, 0")
	cg.line("    jne %s", trueID)
	cg.line("    jmp %s", falseID)
}

// genComparison evaluates both operands and leaves the flags set by
// cmp eax, ebx with left in eax and right in ebx.
func (cg *CodeGen) genComparison(bin *BinaryExpr) {
	cg.genExpr(bin.Left)
	cg.line("    push eax")
	cg.genExpr(bin.Right)
	cg.line("    mov ebx, eax")
	cg.line("    pop eax")
	cg.line("    cmp eax, ebx")
}

// genExpr emits the instructions that evaluate e and leave the result in eax.
func (cg *CodeGen) genExpr(e Expr) {
	switch n := e.(type) {
	case *NumberLiteral:
		cg.line("    mov eax, %d", n.Value)

	case *Identifier:
		if off, ok := cg.scopes.GetVariableOffset(n.Name); ok {
			cg.line("    li %d", off)
		} else {
			cg.diag.Warnf("%s: undeclared variable %q; reading as 0", cg.graph.FunctionName, n.Name)
			cg.line("    mov eax, 0")
		}

	case *BinaryExpr:
		cg.genBinary(n)

	case *UnaryExpr:
		switch n.Op {
		case MINUS:
			cg.genExpr(n.Right)
			cg.line("    mov ebx, eax")
			cg.line("    mov eax, 0")
			cg.line("    sub eax, ebx")
		case NOT:
			cg.genExpr(n.Right)
			cg.line("    cmp eax, 0")
			cg.line("    sete eax")
			cg.line("    and eax, 1")
		default:
			cg.diag.Warnf("%s: unsupported unary operator %s; using 0", cg.graph.FunctionName, n.Op)
			cg.line("    mov eax, 0")
		}

	case *CallExpr:
		// Arguments are pushed right to left so the callee sees argument
		// i at ebp+2+i; the caller pops them after the call.
		for i := len(n.Args) - 1; i >= 0; i-- {
			cg.genExpr(n.Args[i])
			cg.line("    push eax")
		}
		cg.line("    call %s", n.Name)
		if len(n.Args) > 0 {
			cg.line("    add esp, %d", len(n.Args))
		}

	default:
		cg.diag.Warnf("%s: unsupported expression %s; using 0", cg.graph.FunctionName, e)
		cg.line("    mov eax, 0")
	}
}

func (cg *CodeGen) genBinary(n *BinaryExpr) {
	if set, ok := setByOp[n.Op]; ok {
		cg.genComparison(n)
		cg.line("    %s eax", set)
		cg.line("    and eax, 1")
		return
	}

	var op string
	switch n.Op {
	case PLUS:
		op = "add"
	case MINUS:
		op = "sub"
	case STAR:
		op = "imul"
	case SLASH:
		op = "idiv"
	default:
		cg.diag.Warnf("%s: unsupported binary operator %s; using 0", cg.graph.FunctionName, n.Op)
		cg.line("    mov eax, 0")
		return
	}

	cg.genExpr(n.Left)
	cg.line("    push eax")
	cg.genExpr(n.Right)
	cg.line("    mov ebx, eax")
	cg.line("    pop eax")
	cg.line("    %s eax, ebx", op)
}
