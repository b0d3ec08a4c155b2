package compiler

// Annotator rewrites every lexical block so that its statement list is
// wrapped in a matched StartCheckpoint/EndCheckpoint pair carrying a fresh
// scope id, the nesting depth, and the names declared directly in that
// block. A for loop whose initializer declares a variable gets one extra
// synthetic scope around its body so the loop variable lives for the whole
// loop, distinct from the body's own scope.
//
// The transformation is pure: given a fresh Annotator it is deterministic,
// and it never fails (a block with a nil statement list is treated as empty).
type Annotator struct {
	nextScopeID int
}

func NewAnnotator() *Annotator {
	return &Annotator{}
}

// Annotate returns the annotated program. Function bodies are rewritten;
// anything that is not a function declaration passes through untouched.
func (a *Annotator) Annotate(stmts []Stmt) []Stmt {
	out := make([]Stmt, 0, len(stmts))
	for _, s := range stmts {
		if fn, ok := s.(*FunctionDecl); ok {
			out = append(out, &FunctionDecl{
				Name:   fn.Name,
				Params: fn.Params,
				Body:   a.annotateBlock(fn.Body, 0),
			})
			continue
		}
		out = append(out, s)
	}
	return out
}

func (a *Annotator) freshScopeID() int {
	id := a.nextScopeID
	a.nextScopeID++
	return id
}

// annotateBlock processes nested control statements first, then wraps the
// block's own statement list in a checkpoint pair declaring the variables
// that are direct children of this block.
func (a *Annotator) annotateBlock(b *BlockStmt, depth int) *BlockStmt {
	var stmts []Stmt
	if b != nil {
		stmts = b.Stmts
	}

	processed := make([]Stmt, 0, len(stmts)+2)
	for _, s := range stmts {
		processed = append(processed, a.annotateStmt(s, depth))
	}

	var names []string
	seen := make(map[string]bool)
	for _, s := range stmts {
		if decl, ok := s.(*VariableDecl); ok && !seen[decl.Name] {
			// First declaration wins on duplicates.
			seen[decl.Name] = true
			names = append(names, decl.Name)
		}
	}

	id := a.freshScopeID()
	wrapped := make([]Stmt, 0, len(processed)+2)
	wrapped = append(wrapped, &StartCheckpoint{ScopeID: id, Depth: depth, Vars: names})
	wrapped = append(wrapped, processed...)
	wrapped = append(wrapped, &EndCheckpoint{ScopeID: id, Depth: depth, Vars: names})
	return &BlockStmt{Stmts: wrapped}
}

// annotateStmt recurses into control statements. The dispatch itself does
// not change depth; only entering a block does.
func (a *Annotator) annotateStmt(s Stmt, depth int) Stmt {
	switch n := s.(type) {
	case *BlockStmt:
		return a.annotateBlock(n, depth+1)

	case *IfStmt:
		out := &IfStmt{Condition: n.Condition}
		out.Body = a.annotateBody(n.Body, depth)
		if n.ElseBody != nil {
			out.ElseBody = a.annotateBody(n.ElseBody, depth)
		}
		return out

	case *WhileStmt:
		return &WhileStmt{Condition: n.Condition, Body: a.annotateBody(n.Body, depth)}

	case *ForStmt:
		out := &ForStmt{Init: n.Init, Cond: n.Cond, Post: n.Post}
		decl, hasDecl := n.Init.(*VariableDecl)
		bodyDepth := depth
		if hasDecl {
			// The loop variable's synthetic scope sits between this block
			// and the loop body, pushing the body one level deeper.
			bodyDepth++
		}
		body := a.annotateBody(n.Body, bodyDepth)
		if hasDecl {
			id := a.freshScopeID()
			body = &BlockStmt{Stmts: []Stmt{
				&StartCheckpoint{ScopeID: id, Depth: depth + 1, Vars: []string{decl.Name}},
				body,
				&EndCheckpoint{ScopeID: id, Depth: depth + 1, Vars: []string{decl.Name}},
			}}
		}
		out.Body = body
		return out

	default:
		return s
	}
}

// annotateBody wraps a branch or loop body. Bodies are blocks in practice;
// a bare statement is normalized into a block of one so it still gets a
// scope of its own.
func (a *Annotator) annotateBody(s Stmt, depth int) Stmt {
	if b, ok := s.(*BlockStmt); ok {
		return a.annotateBlock(b, depth+1)
	}
	return a.annotateBlock(&BlockStmt{Stmts: []Stmt{s}}, depth+1)
}
