package compiler

// ScopeManager tracks the stack of lexical scopes alive at the current
// point of code generation and assigns every variable its frame offset.
//
// Offsets are in stack slots relative to the frame pointer. Parameters sit
// above the frame pointer at 2+index (the two-slot gap holds the saved
// frame pointer and the return address); locals grow downward from -1.
//
// A variable only resolves once its declaring statement has been processed.
// Lookups skip uninitialized same-named entries in inner scopes and fall
// through to an outer declaration, which reproduces shadowing by
// declaration order rather than by block nesting alone.
type ScopeManager struct {
	params []string
	frames []scopeFrame
}

type scopeFrame struct {
	ID   int
	Vars []varEntry
}

type varEntry struct {
	Name        string
	Offset      int
	Initialized bool
}

// ScopeSnapshot is a deep copy of the frame stack. The assembly generator
// clones one across every CFG edge it follows so sibling paths cannot
// observe each other's scope mutations.
type ScopeSnapshot struct {
	frames []scopeFrame
}

func NewScopeManager() *ScopeManager {
	return &ScopeManager{}
}

// SetFunctionParameters records parameter identity and position. Parameters
// are pre-initialized: they hold caller-supplied values from the first
// instruction on.
func (m *ScopeManager) SetFunctionParameters(names []string) {
	m.params = append([]string(nil), names...)
}

func (m *ScopeManager) paramOffset(name string) (int, bool) {
	for i, p := range m.params {
		if p == name {
			return 2 + i, true
		}
	}
	return 0, false
}

// EnterScope pushes a new frame and assigns offsets to names. Parameter
// names in the root scope's list are merged into that single frame with
// their caller-side offsets; everything else gets the next local slot.
func (m *ScopeManager) EnterScope(scopeID int, names []string) {
	frame := scopeFrame{ID: scopeID}
	base := m.TotalLocalSlotCount()
	locals := 0
	for _, name := range names {
		if len(m.frames) == 0 {
			if off, ok := m.paramOffset(name); ok {
				frame.Vars = append(frame.Vars, varEntry{Name: name, Offset: off, Initialized: true})
				continue
			}
		}
		locals++
		frame.Vars = append(frame.Vars, varEntry{Name: name, Offset: -(base + locals)})
	}
	m.frames = append(m.frames, frame)
}

// ExitScope pops the innermost frame. Reports false on an empty stack;
// callers guarantee balance via the checkpoint invariant and treat a false
// return as a recoverable structural problem.
func (m *ScopeManager) ExitScope() bool {
	if len(m.frames) == 0 {
		return false
	}
	m.frames = m.frames[:len(m.frames)-1]
	return true
}

// Depth returns the number of live frames.
func (m *ScopeManager) Depth() int {
	return len(m.frames)
}

// TopScopeID returns the id of the innermost frame.
func (m *ScopeManager) TopScopeID() (int, bool) {
	if len(m.frames) == 0 {
		return 0, false
	}
	return m.frames[len(m.frames)-1].ID, true
}

// HasScope reports whether a frame with the given id is live.
func (m *ScopeManager) HasScope(scopeID int) bool {
	for _, f := range m.frames {
		if f.ID == scopeID {
			return true
		}
	}
	return false
}

// TopLocalSlotCount returns how many local slots the innermost frame owns.
func (m *ScopeManager) TopLocalSlotCount() int {
	if len(m.frames) == 0 {
		return 0
	}
	return frameLocalCount(m.frames[len(m.frames)-1])
}

// MarkInitialized flips the innermost entry for name to initialized.
func (m *ScopeManager) MarkInitialized(name string) {
	for i := len(m.frames) - 1; i >= 0; i-- {
		vars := m.frames[i].Vars
		for j := range vars {
			if vars[j].Name == name {
				vars[j].Initialized = true
				return
			}
		}
	}
}

// GetVariableOffset resolves name to its frame offset. Parameters resolve
// first; otherwise the innermost initialized entry wins. An uninitialized
// shadowing declaration never hides an outer initialized variable.
func (m *ScopeManager) GetVariableOffset(name string) (int, bool) {
	if off, ok := m.paramOffset(name); ok {
		return off, true
	}
	for i := len(m.frames) - 1; i >= 0; i-- {
		for _, v := range m.frames[i].Vars {
			if v.Name == name && v.Initialized {
				return v.Offset, true
			}
		}
	}
	return 0, false
}

// TotalLocalSlotCount sums the local (negative-offset) slots across all
// live frames; return sequences use it to unwind the whole stack frame.
func (m *ScopeManager) TotalLocalSlotCount() int {
	total := 0
	for _, f := range m.frames {
		total += frameLocalCount(f)
	}
	return total
}

func frameLocalCount(f scopeFrame) int {
	n := 0
	for _, v := range f.Vars {
		if v.Offset < 0 {
			n++
		}
	}
	return n
}

// Snapshot deep-copies the frame stack.
func (m *ScopeManager) Snapshot() ScopeSnapshot {
	return ScopeSnapshot{frames: copyFrames(m.frames)}
}

// Restore replaces the frame stack with a deep copy of snap.
func (m *ScopeManager) Restore(snap ScopeSnapshot) {
	m.frames = copyFrames(snap.frames)
}

// Clone deep-copies a snapshot so it can be handed to a sibling traversal.
func (s ScopeSnapshot) Clone() ScopeSnapshot {
	return ScopeSnapshot{frames: copyFrames(s.frames)}
}

func copyFrames(frames []scopeFrame) []scopeFrame {
	out := make([]scopeFrame, len(frames))
	for i, f := range frames {
		out[i] = scopeFrame{ID: f.ID, Vars: append([]varEntry(nil), f.Vars...)}
	}
	return out
}
