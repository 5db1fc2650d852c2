package ops

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
)

func sampleTree() *doctree.Tree {
	t := &doctree.Tree{Sections: []*doctree.Section{
		{ID: "a", Title: "Site", Body: []string{"Intro [IMAGE:1:Roof]"}, Children: []*doctree.Section{
			{ID: "a1", Title: "Roof", Body: []string{"Slates slipped."}},
			{ID: "a2", Title: "Walls"},
		}},
		{ID: "b", Title: "Services"},
	}}
	t.Normalize()
	return t
}

func requireInvariant(t *testing.T, err error, invariant string, opIndex int) {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Equal(t, invariant, ve.Invariant)
	assert.Equal(t, opIndex, ve.OpIndex)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApply_InverseLaw(t *testing.T) {
	e := NewEngine(nil)
	orig := sampleTree()
	batch := Batch{
		SetTitle{SectionID: "a", Value: "Site Summary"},
		SetBody{SectionID: "a2", Value: []string{"Cracked render [IMAGE:2]"}},
		InsertSection{ParentID: "b", Index: 0, Section: &doctree.Section{ID: "boiler", Title: "Boiler"}},
		MoveSection{SectionID: "a1", NewParentID: doctree.RootID, NewIndex: 2},
		RemoveSection{SectionID: "a2"},
	}

	applied, inverse, err := e.Apply(orig, batch)
	require.NoError(t, err)
	require.Len(t, inverse, len(batch))

	assert.Equal(t, "Site Summary", applied.Sections[0].Title)
	assert.Empty(t, applied.Sections[0].Children)
	assert.Equal(t, "boiler", applied.Sections[1].Children[0].ID)
	assert.Equal(t, "a1", applied.Sections[2].ID)

	undone, redo, err := e.Apply(applied, inverse)
	require.NoError(t, err)
	assert.Equal(t, sampleTree(), undone)

	redone, _, err := e.Apply(undone, redo)
	require.NoError(t, err)
	assert.Equal(t, applied, redone)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	orig := sampleTree()
	_, _, err := NewEngine(nil).Apply(orig, Batch{
		SetTitle{SectionID: "a1", Value: "Roof coverings"},
		SetBody{SectionID: "a", Value: nil},
	})
	require.NoError(t, err)
	assert.Equal(t, sampleTree(), orig)
}

func TestApply_Atomic(t *testing.T) {
	orig := sampleTree()
	before, err := json.Marshal(orig)
	require.NoError(t, err)

	tree, inverse, err := NewEngine(nil).Apply(orig, Batch{
		SetTitle{SectionID: "a", Value: "Changed"},
		InsertSection{ParentID: doctree.RootID, Index: 0, Section: &doctree.Section{Title: "New"}},
		SetTitle{SectionID: "missing", Value: "Nope"},
		RemoveSection{SectionID: "b"},
	})
	requireInvariant(t, err, domain.InvariantUnknownID, 2)
	assert.Nil(t, tree)
	assert.Nil(t, inverse)

	after, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestApply_RejectsCycle(t *testing.T) {
	e := NewEngine(nil)
	orig := sampleTree()

	_, _, err := e.Apply(orig, Batch{MoveSection{SectionID: "a", NewParentID: "a1", NewIndex: 0}})
	requireInvariant(t, err, domain.InvariantCycle, 0)

	_, _, err = e.Apply(orig, Batch{MoveSection{SectionID: "a", NewParentID: "a", NewIndex: 0}})
	requireInvariant(t, err, domain.InvariantCycle, 0)

	assert.Equal(t, sampleTree(), orig)
}

func TestApply_Indexes(t *testing.T) {
	e := NewEngine(nil)
	orig := sampleTree()

	_, _, err := e.Apply(orig, Batch{InsertSection{ParentID: doctree.RootID, Index: 3, Section: &doctree.Section{Title: "x"}}})
	requireInvariant(t, err, domain.InvariantInvalidIndex, 0)

	// a has two children; once a1 is detached only index 0 and 1 remain.
	_, _, err = e.Apply(orig, Batch{MoveSection{SectionID: "a1", NewParentID: "a", NewIndex: 2}})
	requireInvariant(t, err, domain.InvariantInvalidIndex, 0)

	moved, _, err := e.Apply(orig, Batch{MoveSection{SectionID: "a1", NewParentID: "a", NewIndex: 1}})
	require.NoError(t, err)
	assert.Equal(t, "a2", moved.Sections[0].Children[0].ID)
	assert.Equal(t, "a1", moved.Sections[0].Children[1].ID)

	appended, _, err := e.Apply(orig, Batch{InsertSection{ParentID: doctree.RootID, Index: 2, Section: &doctree.Section{Title: "3. Appendix"}}})
	require.NoError(t, err)
	last := appended.Sections[2]
	assert.Equal(t, "Appendix", last.Title)
	assert.NotEmpty(t, last.ID)
}

func TestApply_UnknownAndDuplicateIDs(t *testing.T) {
	e := NewEngine(nil)
	orig := sampleTree()

	_, _, err := e.Apply(orig, Batch{InsertSection{ParentID: "nope", Index: 0, Section: &doctree.Section{Title: "x"}}})
	requireInvariant(t, err, domain.InvariantUnknownID, 0)

	_, _, err = e.Apply(orig, Batch{RemoveSection{SectionID: "nope"}})
	requireInvariant(t, err, domain.InvariantUnknownID, 0)

	_, _, err = e.Apply(orig, Batch{MoveSection{SectionID: "a1", NewParentID: "nope", NewIndex: 0}})
	requireInvariant(t, err, domain.InvariantUnknownID, 0)

	_, _, err = e.Apply(orig, Batch{InsertSection{ParentID: "b", Index: 0, Section: &doctree.Section{ID: "a2", Title: "Copy"}}})
	requireInvariant(t, err, domain.InvariantDuplicateID, 0)

	// Removed ids may be reused later in the same batch.
	_, _, err = e.Apply(orig, Batch{
		RemoveSection{SectionID: "b"},
		InsertSection{ParentID: doctree.RootID, Index: 0, Section: &doctree.Section{ID: "b", Title: "Services"}},
	})
	assert.NoError(t, err)
}

func TestApply_Templates(t *testing.T) {
	e := NewEngine(nil)
	orig := sampleTree()

	withPlan, _, err := e.Apply(orig, Batch{InsertSection{
		ParentID: doctree.RootID,
		Index:    0,
		Section:  &doctree.Section{ID: "plan", Marker: "LOCATION_PLAN", Title: "typed over"},
	}})
	require.NoError(t, err)
	plan := withPlan.Sections[0]
	assert.Equal(t, "plan", plan.ID)
	assert.Equal(t, "Location Plan", plan.Title)
	assert.NotEmpty(t, plan.Body)

	_, _, err = e.Apply(withPlan, Batch{SetBody{SectionID: "plan", Value: []string{"edited"}}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	_, _, err = e.Apply(withPlan, Batch{SetTitle{SectionID: "plan", Value: "edited"}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	_, _, err = e.Apply(withPlan, Batch{InsertSection{ParentID: doctree.RootID, Index: 0, Section: &doctree.Section{Marker: "LOCATION_PLAN"}}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	_, _, err = e.Apply(withPlan, Batch{InsertSection{ParentID: "plan", Index: 0, Section: &doctree.Section{Title: "x"}}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	_, _, err = e.Apply(withPlan, Batch{MoveSection{SectionID: "plan", NewParentID: "b", NewIndex: 0}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	_, _, err = e.Apply(orig, Batch{InsertSection{ParentID: "a", Index: 0, Section: &doctree.Section{Marker: "LIMITATIONS"}}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	_, _, err = e.Apply(orig, Batch{InsertSection{ParentID: doctree.RootID, Index: 0, Section: &doctree.Section{Marker: "NOT_REGISTERED"}}})
	requireInvariant(t, err, domain.InvariantTemplate, 0)

	removed, _, err := e.Apply(withPlan, Batch{RemoveSection{SectionID: "plan"}})
	require.NoError(t, err)
	assert.Equal(t, sampleTree(), removed)
}

func TestBatch_JSON(t *testing.T) {
	batch := Batch{
		SetTitle{SectionID: "a", Value: "Roof"},
		SetBody{SectionID: "a", Value: []string{"one", "two [IMAGE:3]"}},
		InsertSection{ParentID: doctree.RootID, Index: 1, Section: &doctree.Section{ID: "n", Title: "New"}},
		RemoveSection{SectionID: "b"},
		MoveSection{SectionID: "c", NewParentID: "a", NewIndex: 0},
	}
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"op":"set_title","section_id":"a","value":"Roof"}`)

	var decoded Batch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, batch, decoded)
}

func TestBatch_UnmarshalErrors(t *testing.T) {
	var b Batch
	err := json.Unmarshal([]byte(`[{"op":"set_title","section_id":"a","value":"x"},{"op":"rename"}]`), &b)
	requireInvariant(t, err, domain.InvariantShape, 1)

	err = json.Unmarshal([]byte(`[{"section_id":"a"}]`), &b)
	requireInvariant(t, err, domain.InvariantShape, 0)

	err = json.Unmarshal([]byte(`{"op":"set_title"}`), &b)
	requireInvariant(t, err, domain.InvariantShape, -1)
}

func TestBatch_Validate(t *testing.T) {
	requireInvariant(t, Batch{}.Validate(), domain.InvariantShape, -1)
	requireInvariant(t, Batch{SetTitle{Value: "x"}}.Validate(), domain.InvariantShape, 0)
	requireInvariant(t, Batch{
		RemoveSection{SectionID: "a"},
		SetTitle{SectionID: "a", Value: "two\nlines"},
	}.Validate(), domain.InvariantShape, 1)
	requireInvariant(t, Batch{InsertSection{ParentID: doctree.RootID, Index: -1, Section: &doctree.Section{}}}.Validate(), domain.InvariantShape, 0)
	requireInvariant(t, Batch{InsertSection{ParentID: doctree.RootID}}.Validate(), domain.InvariantShape, 0)
	requireInvariant(t, Batch{MoveSection{SectionID: "a", NewIndex: 0}}.Validate(), domain.InvariantShape, 0)
	assert.NoError(t, Batch{SetBody{SectionID: "a"}}.Validate())
}

func TestApply_TitleNumberPrefix(t *testing.T) {
	e := NewEngine(nil)
	next, _, err := e.Apply(sampleTree(), Batch{
		SetTitle{SectionID: "a1", Value: "2.5 Storey Dwelling"},
		SetTitle{SectionID: "a2", Value: "4. Walls"},
		InsertSection{ParentID: doctree.RootID, Index: 2, Section: &doctree.Section{Title: "1.5 Storey Extension"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "2.5 Storey Dwelling", next.Find("a1").Title)
	assert.Equal(t, "Walls", next.Find("a2").Title)
	assert.Equal(t, "1.5 Storey Extension", next.Sections[2].Title)
}
