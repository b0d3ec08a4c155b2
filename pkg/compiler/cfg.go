package compiler

import (
	"fmt"
	"strings"
)

// BasicBlock is a straight-line statement sequence inside a CFG. Blocks are
// owned by the graph; edges are block ids, never pointers, so loop
// back-edges cannot create ownership cycles.
//
// Successor order is meaningful: for a block ending in a branch condition,
// Succs[0] is the target taken when the condition holds and Succs[1] the
// fall-through. The optimization pass preserves this order.
type BasicBlock struct {
	ID      string
	Stmts   []Stmt
	Preds   []string
	Succs   []string
	IsEntry bool
	IsExit  bool

	// Snapshot of the scope stack after this block's statements were
	// emitted; written by the assembly generator on first visit.
	Snapshot *ScopeSnapshot
}

// CFG is the control-flow graph of one function: an arena of blocks in
// creation order, with one entry block (labeled by the function name) and
// one exit sentinel.
type CFG struct {
	FunctionName string
	Params       []string
	EntryID      string
	ExitID       string

	blocks []*BasicBlock
	index  map[string]*BasicBlock

	nextID int
}

func newCFG(fn *FunctionDecl) *CFG {
	g := &CFG{
		FunctionName: fn.Name,
		Params:       fn.Params,
		index:        make(map[string]*BasicBlock),
	}
	entry := g.addBlock(fn.Name)
	entry.IsEntry = true
	g.EntryID = entry.ID

	exit := g.addBlock(fn.Name + "_exit")
	exit.IsExit = true
	g.ExitID = exit.ID
	return g
}

func (g *CFG) addBlock(id string) *BasicBlock {
	b := &BasicBlock{ID: id}
	g.blocks = append(g.blocks, b)
	g.index[id] = b
	return b
}

// newBlock creates an anonymous block named {function}_block_{n}.
func (g *CFG) newBlock() *BasicBlock {
	id := fmt.Sprintf("%s_block_%d", g.FunctionName, g.nextID)
	g.nextID++
	return g.addBlock(id)
}

// Block resolves an id to its block, or nil.
func (g *CFG) Block(id string) *BasicBlock {
	return g.index[id]
}

// Blocks returns all blocks in creation order.
func (g *CFG) Blocks() []*BasicBlock {
	return g.blocks
}

func (g *CFG) Entry() *BasicBlock { return g.index[g.EntryID] }
func (g *CFG) Exit() *BasicBlock  { return g.index[g.ExitID] }

// addEdge connects from -> to, appending to both edge lists.
func (g *CFG) addEdge(from, to *BasicBlock) {
	from.Succs = append(from.Succs, to.ID)
	to.Preds = append(to.Preds, from.ID)
}

// removeEdge deletes every from -> to edge.
func (g *CFG) removeEdge(from, to *BasicBlock) {
	from.Succs = removeID(from.Succs, to.ID)
	to.Preds = removeID(to.Preds, from.ID)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// String renders the graph deterministically: blocks in creation order with
// their statements and successor lists.
func (g *CFG) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cfg %s(%s)\n", g.FunctionName, strings.Join(g.Params, ", "))
	for _, b := range g.blocks {
		marker := ""
		if b.IsEntry {
			marker = " [entry]"
		}
		if b.IsExit {
			marker = " [exit]"
		}
		fmt.Fprintf(&sb, "  %s%s -> [%s]\n", b.ID, marker, strings.Join(b.Succs, ", "))
		for _, s := range b.Stmts {
			fmt.Fprintf(&sb, "    %s\n", s)
		}
	}
	return sb.String()
}

// BuildCFGs lowers an annotated program into one graph per function.
func BuildCFGs(stmts []Stmt) []*CFG {
	var graphs []*CFG
	for _, s := range stmts {
		if fn, ok := s.(*FunctionDecl); ok {
			graphs = append(graphs, buildFunctionCFG(fn))
		}
	}
	return graphs
}

// loopContext maps break and continue to their target blocks while a loop
// body is being lowered.
type loopContext struct {
	breakTarget    *BasicBlock
	continueTarget *BasicBlock
}

// termination describes how a lowered statement sequence ended: falling
// through, returning, or jumping out via break/continue.
type termination int

const (
	termNone termination = iota
	termReturn
	termJump
)

type cfgBuilder struct {
	graph *CFG
	cur   *BasicBlock
	loops []loopContext
}

func buildFunctionCFG(fn *FunctionDecl) *CFG {
	g := newCFG(fn)
	b := &cfgBuilder{graph: g, cur: g.Entry()}

	var body []Stmt
	if fn.Body != nil {
		body = fn.Body.Stmts
	}
	if b.lowerStmts(body) == termNone {
		// Implicit fall off the end of the function.
		g.addEdge(b.cur, g.Exit())
	}

	optimize(g)
	return g
}

// lowerStmts lowers one statement sequence into the graph, starting at the
// builder's current block. It reports how the sequence terminated;
// statements after a return, break or continue are unreachable and skipped
// entirely.
func (b *cfgBuilder) lowerStmts(stmts []Stmt) termination {
	for _, s := range stmts {
		switch n := s.(type) {
		case *BlockStmt:
			if t := b.lowerStmts(n.Stmts); t != termNone {
				return t
			}

		case *IfStmt:
			b.lowerIf(n)

		case *WhileStmt:
			b.lowerWhile(n)

		case *ForStmt:
			b.lowerFor(n)

		case *ReturnStmt:
			// A dedicated block holding the return, wired straight to the
			// exit sentinel.
			rb := b.graph.newBlock()
			b.graph.addEdge(b.cur, rb)
			rb.Stmts = append(rb.Stmts, n)
			b.graph.addEdge(rb, b.graph.Exit())
			b.cur = rb
			return termReturn

		case *BreakStmt:
			if len(b.loops) == 0 {
				continue // break outside a loop; nothing to connect
			}
			b.graph.addEdge(b.cur, b.loops[len(b.loops)-1].breakTarget)
			return termJump

		case *ContinueStmt:
			if len(b.loops) == 0 {
				continue
			}
			b.graph.addEdge(b.cur, b.loops[len(b.loops)-1].continueTarget)
			return termJump

		default:
			// Non-control statements (declarations, assignments, plain
			// expressions, checkpoints) accumulate into the current block.
			b.cur.Stmts = append(b.cur.Stmts, s)
		}
	}
	return termNone
}

// lowerIf closes the current block with the condition and wires the
// branches. A fresh current block is always open when it returns so that
// subsequent statements land in post-dominance position.
func (b *cfgBuilder) lowerIf(n *IfStmt) {
	g := b.graph

	cond := b.cur
	cond.Stmts = append(cond.Stmts, &ExprStmt{Expr: n.Condition})

	thenEntry := g.newBlock()
	g.addEdge(cond, thenEntry)

	b.cur = thenEntry
	thenTerm := b.lowerBody(n.Body)
	thenExit := b.cur

	if n.ElseBody == nil {
		merge := g.newBlock()
		g.addEdge(cond, merge) // false target, second successor
		if thenTerm == termNone {
			g.addEdge(thenExit, merge)
		}
		b.cur = merge
		return
	}

	elseEntry := g.newBlock()
	g.addEdge(cond, elseEntry)

	b.cur = elseEntry
	elseTerm := b.lowerBody(n.ElseBody)
	elseExit := b.cur

	switch {
	case thenTerm != termNone && elseTerm != termNone:
		// Neither branch falls through: no merge block. The construct's
		// exit is a dummy unreachable block; the optimizer prunes it.
		b.cur = g.newBlock()

	case thenTerm != termNone:
		// Speculative construction can leave a stale edge from a
		// returning branch into the merge position; force it to target
		// only the function exit. Break/continue edges stay as built.
		if thenTerm == termReturn {
			b.ensureOnlyExitConnection(thenExit)
		}
		after := g.newBlock()
		g.addEdge(elseExit, after)
		b.cur = after

	case elseTerm != termNone:
		if elseTerm == termReturn {
			b.ensureOnlyExitConnection(elseExit)
		}
		after := g.newBlock()
		g.addEdge(thenExit, after)
		b.cur = after

	default:
		merge := g.newBlock()
		g.addEdge(thenExit, merge)
		g.addEdge(elseExit, merge)
		b.cur = merge
	}
}

func (b *cfgBuilder) lowerWhile(n *WhileStmt) {
	g := b.graph

	header := g.newBlock()
	g.addEdge(b.cur, header)
	header.Stmts = append(header.Stmts, &ExprStmt{Expr: n.Condition})

	body := g.newBlock()
	exit := g.newBlock()
	g.addEdge(header, body)
	g.addEdge(header, exit)

	b.loops = append(b.loops, loopContext{breakTarget: exit, continueTarget: header})
	b.cur = body
	if b.lowerBody(n.Body) == termNone {
		g.addEdge(b.cur, header)
	}
	b.loops = b.loops[:len(b.loops)-1]

	b.cur = exit
}

func (b *cfgBuilder) lowerFor(n *ForStmt) {
	g := b.graph

	body := n.Body
	var loopStart *StartCheckpoint
	var loopEnd *EndCheckpoint
	// The annotator wraps the body of a declaring for loop in a synthetic
	// scope; unpack it so the loop scope opens with the initializer and
	// closes at the loop exit.
	if wrapper, ok := body.(*BlockStmt); ok && len(wrapper.Stmts) == 3 {
		if start, ok := wrapper.Stmts[0].(*StartCheckpoint); ok {
			if end, ok := wrapper.Stmts[2].(*EndCheckpoint); ok && end.ScopeID == start.ScopeID {
				loopStart = start
				loopEnd = end
				body = wrapper.Stmts[1]
			}
		}
	}

	init := g.newBlock()
	g.addEdge(b.cur, init)
	if loopStart != nil {
		init.Stmts = append(init.Stmts, loopStart)
	}
	if n.Init != nil {
		init.Stmts = append(init.Stmts, n.Init)
	}

	header := g.newBlock()
	g.addEdge(init, header)
	cond := n.Cond
	if cond == nil {
		cond = &NumberLiteral{Value: 1}
	}
	header.Stmts = append(header.Stmts, &ExprStmt{Expr: cond})

	bodyEntry := g.newBlock()
	exit := g.newBlock()
	update := g.newBlock()
	g.addEdge(header, bodyEntry)
	g.addEdge(header, exit)

	b.loops = append(b.loops, loopContext{breakTarget: exit, continueTarget: update})
	b.cur = bodyEntry
	if b.lowerBody(body) == termNone {
		g.addEdge(b.cur, update)
	}
	b.loops = b.loops[:len(b.loops)-1]

	if n.Post != nil {
		update.Stmts = append(update.Stmts, n.Post)
	}
	g.addEdge(update, header)

	if loopEnd != nil {
		exit.Stmts = append(exit.Stmts, loopEnd)
	}
	b.cur = exit
}

// lowerBody lowers a branch or loop body statement.
func (b *cfgBuilder) lowerBody(s Stmt) termination {
	if s == nil {
		return termNone
	}
	if block, ok := s.(*BlockStmt); ok {
		return b.lowerStmts(block.Stmts)
	}
	return b.lowerStmts([]Stmt{s})
}

// ensureOnlyExitConnection forces a block that terminates in a return to
// have the function exit as its only successor.
func (b *cfgBuilder) ensureOnlyExitConnection(block *BasicBlock) {
	g := b.graph
	exit := g.Exit()
	for _, id := range append([]string(nil), block.Succs...) {
		if id != exit.ID {
			g.removeEdge(block, g.Block(id))
		}
	}
	if !containsID(block.Succs, exit.ID) {
		g.addEdge(block, exit)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
