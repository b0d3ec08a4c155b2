package compiler

// optimize runs the post-build cleanup over a function graph:
// return-edge enforcement, unreachable-block pruning, empty-block elision
// and straight-line block merging. Running it on an already optimized graph
// changes nothing.
func optimize(g *CFG) {
	enforceReturnEdges(g)
	pruneUnreachable(g)
	for {
		changed := elideEmptyBlocks(g)
		changed = mergeBlocks(g) || changed
		if !changed {
			break
		}
	}
	dedupeEdges(g)
}

// enforceReturnEdges makes the function exit the only successor of every
// block whose last statement is a return. Speculative construction can
// leave stale edges into merge blocks behind a returning branch.
func enforceReturnEdges(g *CFG) {
	exit := g.Exit()
	for _, b := range g.Blocks() {
		if len(b.Stmts) == 0 {
			continue
		}
		if _, ok := b.Stmts[len(b.Stmts)-1].(*ReturnStmt); !ok {
			continue
		}
		for _, id := range append([]string(nil), b.Succs...) {
			if id != exit.ID {
				g.removeEdge(b, g.Block(id))
			}
		}
		if !containsID(b.Succs, exit.ID) {
			g.addEdge(b, exit)
		}
	}
}

// pruneUnreachable drops every block the entry cannot reach. The exit
// sentinel is always kept.
func pruneUnreachable(g *CFG) {
	reachable := map[string]bool{g.EntryID: true}
	worklist := []string{g.EntryID}
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		for _, succ := range g.Block(id).Succs {
			if !reachable[succ] {
				reachable[succ] = true
				worklist = append(worklist, succ)
			}
		}
	}

	kept := g.blocks[:0]
	for _, b := range g.blocks {
		if reachable[b.ID] || b.IsExit {
			kept = append(kept, b)
			continue
		}
		// Unlink the dead block from any surviving neighbor.
		for _, id := range b.Succs {
			if succ := g.Block(id); succ != nil {
				succ.Preds = removeID(succ.Preds, b.ID)
			}
		}
		delete(g.index, b.ID)
	}
	g.blocks = kept

	for _, b := range g.blocks {
		b.Preds = keepKnown(g, b.Preds)
		b.Succs = keepKnown(g, b.Succs)
	}
}

func keepKnown(g *CFG, ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if g.Block(id) != nil {
			out = append(out, id)
		}
	}
	return out
}

// elideEmptyBlocks splices statement-less blocks out of the graph. The
// spliced block's position in each predecessor's successor list is kept so
// a then-before-else ordering never flips.
func elideEmptyBlocks(g *CFG) bool {
	changed := false
	for {
		var victim *BasicBlock
		for _, b := range g.blocks {
			if b.IsEntry || b.IsExit || len(b.Stmts) > 0 {
				continue
			}
			if len(b.Succs) != 1 || b.Succs[0] == b.ID {
				continue
			}
			victim = b
			break
		}
		if victim == nil {
			return changed
		}

		succ := g.Block(victim.Succs[0])
		succ.Preds = removeID(succ.Preds, victim.ID)
		for _, predID := range victim.Preds {
			pred := g.Block(predID)
			for i, id := range pred.Succs {
				if id == victim.ID {
					pred.Succs[i] = succ.ID
				}
			}
			succ.Preds = append(succ.Preds, predID)
		}
		g.drop(victim)
		changed = true
	}
}

// mergeBlocks folds a block's sole successor into it when that successor
// has no other predecessor. Repeats to a fixed point.
func mergeBlocks(g *CFG) bool {
	changed := false
	for {
		merged := false
		for _, b := range g.blocks {
			succs := uniqueIDs(b.Succs)
			if len(succs) != 1 || succs[0] == b.ID {
				continue
			}
			s := g.Block(succs[0])
			if s.IsExit || s.IsEntry {
				continue
			}
			if len(uniqueIDs(s.Preds)) != 1 {
				continue
			}

			b.Stmts = append(b.Stmts, s.Stmts...)
			b.Succs = append([]string(nil), s.Succs...)
			for _, id := range s.Succs {
				t := g.Block(id)
				for i, p := range t.Preds {
					if p == s.ID {
						t.Preds[i] = b.ID
					}
				}
			}
			g.drop(s)
			merged = true
			changed = true
			break
		}
		if !merged {
			return changed
		}
	}
}

// drop removes a block from the arena.
func (g *CFG) drop(b *BasicBlock) {
	kept := g.blocks[:0]
	for _, x := range g.blocks {
		if x != b {
			kept = append(kept, x)
		}
	}
	g.blocks = kept
	delete(g.index, b.ID)
}

// dedupeEdges collapses duplicate entries in every edge list.
func dedupeEdges(g *CFG) {
	for _, b := range g.blocks {
		b.Succs = uniqueIDs(b.Succs)
		b.Preds = uniqueIDs(b.Preds)
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
