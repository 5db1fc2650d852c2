package doctree

import (
	"github.com/dgallion1/inspectdoc/internal/domain"
)

// WalkFunc is called for each section in depth-first, child order. The
// ancestors slice is the chain from the root list down to the parent and
// must not be retained. Returning false skips the section's children.
type WalkFunc func(s *Section, ancestors []*Section) bool

// Walk visits every section of the tree.
func (t *Tree) Walk(fn WalkFunc) {
	if t == nil {
		return
	}
	walkSections(t.Sections, nil, fn)
}

func walkSections(sections []*Section, ancestors []*Section, fn WalkFunc) {
	for _, s := range sections {
		if !fn(s, ancestors) {
			continue
		}
		if len(s.Children) > 0 {
			walkSections(s.Children, append(ancestors, s), fn)
		}
	}
}

// Location describes where a section lives: the id of its parent (RootID
// for the root list) and its index among siblings.
type Location struct {
	Section  *Section
	ParentID string
	Index    int
	Depth    int
}

// Locate finds the section with the given id.
func (t *Tree) Locate(id string) (Location, bool) {
	var loc Location
	found := false
	if t == nil || id == "" {
		return loc, false
	}
	var search func(parentID string, sections []*Section, depth int) bool
	search = func(parentID string, sections []*Section, depth int) bool {
		for i, s := range sections {
			if s.ID == id {
				loc = Location{Section: s, ParentID: parentID, Index: i, Depth: depth}
				return true
			}
			if search(s.ID, s.Children, depth+1) {
				return true
			}
		}
		return false
	}
	found = search(RootID, t.Sections, 0)
	return loc, found
}

// Find returns the section with the given id, or nil.
func (t *Tree) Find(id string) *Section {
	loc, ok := t.Locate(id)
	if !ok {
		return nil
	}
	return loc.Section
}

// Children returns the child list addressed by parentID: the root list for
// RootID, otherwise the children of that section.
func (t *Tree) Children(parentID string) ([]*Section, bool) {
	if parentID == RootID {
		return t.Sections, true
	}
	s := t.Find(parentID)
	if s == nil {
		return nil, false
	}
	return s.Children, true
}

// SetChildren replaces the child list addressed by parentID.
func (t *Tree) SetChildren(parentID string, children []*Section) bool {
	if parentID == RootID {
		t.Sections = children
		return true
	}
	s := t.Find(parentID)
	if s == nil {
		return false
	}
	s.Children = children
	return true
}

// Ancestors returns the ids on the path from the root list to id's parent.
func (t *Tree) Ancestors(id string) ([]string, bool) {
	var path []string
	found := false
	t.Walk(func(s *Section, ancestors []*Section) bool {
		if found {
			return false
		}
		if s.ID == id {
			for _, a := range ancestors {
				path = append(path, a.ID)
			}
			found = true
			return false
		}
		return true
	})
	return path, found
}

// IsDescendant reports whether id lies in the subtree rooted at ancestorID
// (a section counts as its own descendant).
func (t *Tree) IsDescendant(id, ancestorID string) bool {
	if id == ancestorID {
		return true
	}
	path, ok := t.Ancestors(id)
	if !ok {
		return false
	}
	for _, a := range path {
		if a == ancestorID {
			return true
		}
	}
	return false
}

// Count returns the number of sections in the tree.
func (t *Tree) Count() int {
	n := 0
	t.Walk(func(*Section, []*Section) bool {
		n++
		return true
	})
	return n
}

// AssignIDs gives a fresh id to every section that has none.
func (t *Tree) AssignIDs() {
	t.Walk(func(s *Section, _ []*Section) bool {
		if s.ID == "" {
			s.ID = NewID()
		}
		return true
	})
}

// Validate checks the ownership invariants: every section has a unique,
// non-reserved id and no section value is reachable twice.
func (t *Tree) Validate() error {
	if t == nil {
		return nil
	}
	ids := make(map[string]bool)
	seen := make(map[*Section]bool)
	var check func(sections []*Section) error
	check = func(sections []*Section) error {
		for _, s := range sections {
			if s == nil {
				return domain.NewValidationError(domain.InvariantShape, "nil section")
			}
			if seen[s] {
				return domain.NewValidationError(domain.InvariantCycle, "section %s has more than one owner", s.ID)
			}
			seen[s] = true
			if s.ID == "" || s.ID == RootID {
				return domain.NewValidationError(domain.InvariantShape, "section %q has an invalid id", s.Title)
			}
			if ids[s.ID] {
				return domain.NewValidationError(domain.InvariantDuplicateID, "section id %s appears more than once", s.ID)
			}
			ids[s.ID] = true
			if err := check(s.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return check(t.Sections)
}

// Normalize strips typed "N. " prefixes from titles and recomputes image
// references from body anchors.
func (t *Tree) Normalize() {
	t.Walk(func(s *Section, _ []*Section) bool {
		s.Title = StripNumberPrefix(s.Title)
		s.Images = ExtractImages(s.Body)
		return true
	})
}

// RefreshImages recomputes image references from body anchors and leaves
// titles alone.
func (t *Tree) RefreshImages() {
	t.Walk(func(s *Section, _ []*Section) bool {
		s.Images = ExtractImages(s.Body)
		return true
	})
}
