// Package history keeps a bounded, linear undo/redo list of snapshots.
package history

import "github.com/dgallion1/inspectdoc/internal/doctree"

// DefaultDepth is the number of snapshots kept when none is configured.
const DefaultDepth = 100

// Stack is a linear history with a cursor. Pushing while the cursor is not
// at the head discards everything ahead of it. Stack is not safe for
// concurrent use; callers hold the document lock.
type Stack struct {
	entries []doctree.Snapshot
	pos     int
	depth   int
}

// New returns an empty stack retaining at most depth snapshots (the
// current one included). depth < 2 falls back to DefaultDepth.
func New(depth int) *Stack {
	if depth < 2 {
		depth = DefaultDepth
	}
	return &Stack{depth: depth, pos: -1}
}

// Push records snap as the current state.
func (s *Stack) Push(snap doctree.Snapshot) {
	snap.Tree = snap.Tree.Clone()
	s.entries = append(s.entries[:s.pos+1], snap)
	if over := len(s.entries) - s.depth; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	s.pos = len(s.entries) - 1
}

// Undo moves the cursor back one step and returns the snapshot there.
// At the oldest entry it does nothing and returns false.
func (s *Stack) Undo() (doctree.Snapshot, bool) {
	if s.pos <= 0 {
		return doctree.Snapshot{}, false
	}
	s.pos--
	return s.at(s.pos), true
}

// Redo moves the cursor forward one step. At the head it does nothing and
// returns false.
func (s *Stack) Redo() (doctree.Snapshot, bool) {
	if s.pos >= len(s.entries)-1 {
		return doctree.Snapshot{}, false
	}
	s.pos++
	return s.at(s.pos), true
}

// Current returns the snapshot under the cursor.
func (s *Stack) Current() (doctree.Snapshot, bool) {
	if s.pos < 0 {
		return doctree.Snapshot{}, false
	}
	return s.at(s.pos), true
}

// Retag updates the version recorded for the entry under the cursor, used
// when an undo or redo is persisted as a new version.
func (s *Stack) Retag(version int64) {
	if s.pos >= 0 {
		s.entries[s.pos].Version = version
	}
}

func (s *Stack) CanUndo() bool { return s.pos > 0 }
func (s *Stack) CanRedo() bool { return s.pos < len(s.entries)-1 }
func (s *Stack) Len() int      { return len(s.entries) }
func (s *Stack) Depth() int    { return s.depth }

// Status summarizes the stack for clients.
type Status struct {
	Entries int  `json:"entries"`
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}

func (s *Stack) Status() Status {
	return Status{Entries: len(s.entries), CanUndo: s.CanUndo(), CanRedo: s.CanRedo()}
}

func (s *Stack) at(i int) doctree.Snapshot {
	snap := s.entries[i]
	snap.Tree = snap.Tree.Clone()
	return snap
}
