package ops

import (
	"slices"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/templates"
)

// Engine applies batches against a template registry.
type Engine struct {
	templates *templates.Registry
}

// NewEngine returns an engine. A nil registry uses the built-in templates.
func NewEngine(reg *templates.Registry) *Engine {
	if reg == nil {
		reg = templates.Default()
	}
	return &Engine{templates: reg}
}

// Apply runs batch against a copy of tree. On success it returns the new
// tree and the batch that undoes it. On failure it returns a
// *domain.ValidationError naming the offending operation; tree is never
// modified either way.
func (e *Engine) Apply(tree *doctree.Tree, batch Batch) (*doctree.Tree, Batch, error) {
	if err := batch.Validate(); err != nil {
		return nil, nil, err
	}
	a := &applier{tree: tree.Clone(), templates: e.templates}
	inverse := make(Batch, 0, len(batch))
	for i, op := range batch {
		inv, err := op.apply(a)
		if err != nil {
			return nil, nil, withIndex(err, i)
		}
		inverse = append(inverse, inv)
	}
	if err := a.tree.Validate(); err != nil {
		return nil, nil, err
	}
	slices.Reverse(inverse)
	return a.tree, inverse, nil
}

type applier struct {
	tree      *doctree.Tree
	templates *templates.Registry
}

func (a *applier) editable(id string) (*doctree.Section, error) {
	s := a.tree.Find(id)
	if s == nil {
		return nil, domain.NewValidationError(domain.InvariantUnknownID, "section %s does not exist", id)
	}
	if s.IsTemplate() {
		return nil, domain.NewValidationError(domain.InvariantTemplate, "template section %s is read-only", id)
	}
	return s, nil
}

// children resolves a parent that may receive sections.
func (a *applier) children(parentID string) ([]*doctree.Section, error) {
	list, ok := a.tree.Children(parentID)
	if !ok {
		return nil, domain.NewValidationError(domain.InvariantUnknownID, "parent %s does not exist", parentID)
	}
	if parentID != doctree.RootID && a.tree.Find(parentID).IsTemplate() {
		return nil, domain.NewValidationError(domain.InvariantTemplate, "template section %s cannot have children", parentID)
	}
	return list, nil
}

// setChildren stores an empty list as nil.
func (a *applier) setChildren(parentID string, list []*doctree.Section) {
	if len(list) == 0 {
		list = nil
	}
	a.tree.SetChildren(parentID, list)
}

func checkIndex(index, n int) error {
	if index < 0 || index > n {
		return domain.NewValidationError(domain.InvariantInvalidIndex, "index %d out of range [0, %d]", index, n)
	}
	return nil
}

func (o SetTitle) apply(a *applier) (Operation, error) {
	s, err := a.editable(o.SectionID)
	if err != nil {
		return nil, err
	}
	inv := SetTitle{SectionID: s.ID, Value: s.Title}
	s.Title = doctree.StripNumberPrefix(o.Value)
	return inv, nil
}

func (o SetBody) apply(a *applier) (Operation, error) {
	s, err := a.editable(o.SectionID)
	if err != nil {
		return nil, err
	}
	inv := SetBody{SectionID: s.ID, Value: slices.Clone(s.Body)}
	s.Body = slices.Clone(o.Value)
	s.Images = doctree.ExtractImages(s.Body)
	return inv, nil
}

func (o InsertSection) apply(a *applier) (Operation, error) {
	list, err := a.children(o.ParentID)
	if err != nil {
		return nil, err
	}
	if err := checkIndex(o.Index, len(list)); err != nil {
		return nil, err
	}
	sec := o.Section.Clone()
	if err := a.prepareInsert(sec, o.ParentID); err != nil {
		return nil, err
	}
	a.setChildren(o.ParentID, slices.Insert(slices.Clone(list), o.Index, sec))
	return RemoveSection{SectionID: sec.ID}, nil
}

// prepareInsert assigns missing ids, rejects ids already in use and
// enforces the template placement rules.
func (a *applier) prepareInsert(sec *doctree.Section, parentID string) error {
	sub := &doctree.Tree{Sections: []*doctree.Section{sec}}
	sub.AssignIDs()
	if err := sub.Validate(); err != nil {
		return err
	}
	var err error
	sub.Walk(func(s *doctree.Section, ancestors []*doctree.Section) bool {
		if a.tree.Find(s.ID) != nil {
			err = domain.NewValidationError(domain.InvariantDuplicateID, "section id %s already exists", s.ID)
			return false
		}
		if s.IsTemplate() && (len(ancestors) > 0 || parentID != doctree.RootID) {
			err = domain.NewValidationError(domain.InvariantTemplate, "template section %s must be at the document root", s.Marker)
			return false
		}
		s.Title = doctree.StripNumberPrefix(s.Title)
		s.Images = doctree.ExtractImages(s.Body)
		return err == nil
	})
	if err != nil {
		return err
	}
	if !sec.IsTemplate() {
		return nil
	}
	if !a.templates.Known(sec.Marker) {
		return domain.NewValidationError(domain.InvariantTemplate, "unknown template marker %q", sec.Marker)
	}
	if len(sec.Children) > 0 {
		return domain.NewValidationError(domain.InvariantTemplate, "template section %s cannot have children", sec.Marker)
	}
	for _, s := range a.tree.Sections {
		if s.Marker == sec.Marker {
			return domain.NewValidationError(domain.InvariantTemplate, "template %s is already enabled", sec.Marker)
		}
	}
	// Template content always comes from the registry.
	fixed, _ := a.templates.Section(sec.Marker, sec.ID)
	*sec = *fixed
	return nil
}

func (o RemoveSection) apply(a *applier) (Operation, error) {
	loc, ok := a.tree.Locate(o.SectionID)
	if !ok {
		return nil, domain.NewValidationError(domain.InvariantUnknownID, "section %s does not exist", o.SectionID)
	}
	list, _ := a.tree.Children(loc.ParentID)
	a.setChildren(loc.ParentID, slices.Delete(slices.Clone(list), loc.Index, loc.Index+1))
	return InsertSection{ParentID: loc.ParentID, Index: loc.Index, Section: loc.Section}, nil
}

func (o MoveSection) apply(a *applier) (Operation, error) {
	loc, ok := a.tree.Locate(o.SectionID)
	if !ok {
		return nil, domain.NewValidationError(domain.InvariantUnknownID, "section %s does not exist", o.SectionID)
	}
	if o.NewParentID != doctree.RootID {
		if a.tree.Find(o.NewParentID) == nil {
			return nil, domain.NewValidationError(domain.InvariantUnknownID, "parent %s does not exist", o.NewParentID)
		}
		if a.tree.IsDescendant(o.NewParentID, o.SectionID) {
			return nil, domain.NewValidationError(domain.InvariantCycle, "cannot move %s under its own descendant %s", o.SectionID, o.NewParentID)
		}
		if loc.Section.IsTemplate() {
			return nil, domain.NewValidationError(domain.InvariantTemplate, "template section %s must stay at the document root", o.SectionID)
		}
	}
	if _, err := a.children(o.NewParentID); err != nil {
		return nil, err
	}

	old, _ := a.tree.Children(loc.ParentID)
	a.setChildren(loc.ParentID, slices.Delete(slices.Clone(old), loc.Index, loc.Index+1))

	dest, _ := a.tree.Children(o.NewParentID)
	if err := checkIndex(o.NewIndex, len(dest)); err != nil {
		return nil, err
	}
	a.setChildren(o.NewParentID, slices.Insert(slices.Clone(dest), o.NewIndex, loc.Section))
	return MoveSection{SectionID: o.SectionID, NewParentID: loc.ParentID, NewIndex: loc.Index}, nil
}
