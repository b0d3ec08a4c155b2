package compiler

import (
	"testing"

	"github.com/nalgeon/be"
)

func annotateSource(t *testing.T, src string) []Stmt {
	t.Helper()
	stmts, err := Parse(src)
	be.Err(t, err, nil)
	return NewAnnotator().Annotate(stmts)
}

// collectCheckpoints walks the annotated tree and appends every checkpoint
// marker to out in statement order.
func collectCheckpoints(s Stmt, out *[]Stmt) {
	switch n := s.(type) {
	case *FunctionDecl:
		collectCheckpoints(n.Body, out)
	case *BlockStmt:
		for _, c := range n.Stmts {
			collectCheckpoints(c, out)
		}
	case *IfStmt:
		collectCheckpoints(n.Body, out)
		if n.ElseBody != nil {
			collectCheckpoints(n.ElseBody, out)
		}
	case *WhileStmt:
		collectCheckpoints(n.Body, out)
	case *ForStmt:
		collectCheckpoints(n.Body, out)
	case *StartCheckpoint, *EndCheckpoint:
		*out = append(*out, s)
	}
}

func TestAnnotateWrapsFunctionBody(t *testing.T) {
	stmts := annotateSource(t, `int main() { int x = 1; return x; }`)
	fn := stmts[0].(*FunctionDecl)
	body := fn.Body.Stmts

	start, ok := body[0].(*StartCheckpoint)
	be.True(t, ok)
	end, ok := body[len(body)-1].(*EndCheckpoint)
	be.True(t, ok)

	be.Equal(t, start.ScopeID, end.ScopeID)
	be.Equal(t, start.Depth, 0)
	be.Equal(t, start.Vars, []string{"x"})
	be.Equal(t, end.Vars, []string{"x"})
}

func TestAnnotateBalancedAndNested(t *testing.T) {
	stmts := annotateSource(t, `
int main() {
	int a = 1;
	{
		int b = 2;
		{ int c = 3; }
	}
	if (a == 1) { int d = 4; }
	while (a < 5) { a = a + 1; }
	return a;
}`)

	var marks []Stmt
	collectCheckpoints(stmts[0], &marks)

	// Every start must close, in properly nested (stack) order.
	var stack []*StartCheckpoint
	for _, m := range marks {
		switch c := m.(type) {
		case *StartCheckpoint:
			if len(stack) > 0 {
				be.Equal(t, c.Depth, stack[len(stack)-1].Depth+1)
			}
			stack = append(stack, c)
		case *EndCheckpoint:
			be.True(t, len(stack) > 0)
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			be.Equal(t, c.ScopeID, top.ScopeID)
			be.Equal(t, c.Depth, top.Depth)
		}
	}
	be.Equal(t, len(stack), 0)
}

func TestAnnotateScopeIDsUnique(t *testing.T) {
	stmts := annotateSource(t, `
int main() {
	{ int a = 1; }
	{ int b = 2; }
	for (int i = 0; i < 3; i = i + 1) { int c = i; }
}`)

	var marks []Stmt
	collectCheckpoints(stmts[0], &marks)

	seen := map[int]bool{}
	for _, m := range marks {
		if s, ok := m.(*StartCheckpoint); ok {
			be.True(t, !seen[s.ScopeID])
			seen[s.ScopeID] = true
		}
	}
}

func TestAnnotateForLoopVariableScope(t *testing.T) {
	stmts := annotateSource(t, `int main() { for (int i = 0; i < 3; i = i + 1) { int x = i; } }`)
	fn := stmts[0].(*FunctionDecl)

	// body[1] is the for statement, between the function-scope checkpoints.
	loop := fn.Body.Stmts[1].(*ForStmt)

	// The loop variable gets its own synthetic scope wrapping the body.
	wrapper, ok := loop.Body.(*BlockStmt)
	be.True(t, ok)
	be.Equal(t, len(wrapper.Stmts), 3)

	start, ok := wrapper.Stmts[0].(*StartCheckpoint)
	be.True(t, ok)
	be.Equal(t, start.Vars, []string{"i"})
	be.Equal(t, start.Depth, 1)

	end, ok := wrapper.Stmts[2].(*EndCheckpoint)
	be.True(t, ok)
	be.Equal(t, end.ScopeID, start.ScopeID)

	// The body block proper sits one level deeper and owns x.
	inner, ok := wrapper.Stmts[1].(*BlockStmt)
	be.True(t, ok)
	innerStart, ok := inner.Stmts[0].(*StartCheckpoint)
	be.True(t, ok)
	be.Equal(t, innerStart.Depth, 2)
	be.Equal(t, innerStart.Vars, []string{"x"})
}

func TestAnnotateForWithoutDeclGetsNoExtraScope(t *testing.T) {
	stmts := annotateSource(t, `int main() { int i; for (i = 0; i < 3; i = i + 1) { int x = 1; } }`)
	fn := stmts[0].(*FunctionDecl)
	loop := fn.Body.Stmts[2].(*ForStmt)

	body, ok := loop.Body.(*BlockStmt)
	be.True(t, ok)
	// Just the body's own scope: start, decl, end.
	start, ok := body.Stmts[0].(*StartCheckpoint)
	be.True(t, ok)
	be.Equal(t, start.Depth, 1)
	be.Equal(t, start.Vars, []string{"x"})
}

func TestAnnotateDuplicateDeclarationsFirstWins(t *testing.T) {
	stmts := annotateSource(t, `int main() { int x = 1; int x = 2; }`)
	fn := stmts[0].(*FunctionDecl)

	start := fn.Body.Stmts[0].(*StartCheckpoint)
	be.Equal(t, start.Vars, []string{"x"})
}

func TestAnnotateBareBodyNormalizedToBlock(t *testing.T) {
	// The grammar requires braces, so build the AST by hand: an if whose
	// body is a bare return.
	fn := &FunctionDecl{
		Name: "f",
		Body: &BlockStmt{Stmts: []Stmt{
			&IfStmt{
				Condition: &NumberLiteral{Value: 1},
				Body:      &ReturnStmt{Expr: &NumberLiteral{Value: 2}},
			},
		}},
	}
	out := NewAnnotator().Annotate([]Stmt{fn})
	annotated := out[0].(*FunctionDecl)
	cond := annotated.Body.Stmts[1].(*IfStmt)

	block, ok := cond.Body.(*BlockStmt)
	be.True(t, ok)
	_, ok = block.Stmts[0].(*StartCheckpoint)
	be.True(t, ok)
}

func TestAnnotateDeterministic(t *testing.T) {
	src := `int main() { { int a = 1; } for (int i = 0; i < 2; i = i + 1) { int b = i; } }`
	first := annotateSource(t, src)
	second := annotateSource(t, src)

	var a, b []Stmt
	collectCheckpoints(first[0], &a)
	collectCheckpoints(second[0], &b)

	be.Equal(t, len(a), len(b))
	for i := range a {
		be.Equal(t, a[i].String(), b[i].String())
	}
}
