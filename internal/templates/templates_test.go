package templates

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

func TestParse(t *testing.T) {
	src := `
templates:
  - marker: COVER
    title: Cover Page
    body: ["Prepared for the client."]
  - marker: LOCATION_PLAN
    title: Location Plan
    body: ["See plan [IMAGE:0:Plan]"]
`
	r, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(r.Markers(), []string{"COVER", "LOCATION_PLAN"}) {
		t.Errorf("unexpected markers %v", r.Markers())
	}
	s, ok := r.Section("LOCATION_PLAN", "")
	if !ok {
		t.Fatal("expected LOCATION_PLAN section")
	}
	if s.ID == "" || s.Marker != "LOCATION_PLAN" || len(s.Images) != 1 {
		t.Errorf("unexpected template section %+v", s)
	}
}

func TestNew_Rejects(t *testing.T) {
	cases := map[string][]Template{
		"lowercase": {{Marker: "plan", Title: "Plan"}},
		"duplicate": {{Marker: "A", Title: "A"}, {Marker: "A", Title: "B"}},
		"no title":  {{Marker: "A"}},
	}
	for name, tpls := range cases {
		if _, err := New(tpls); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	r := Default()
	tree := &doctree.Tree{Sections: []*doctree.Section{
		{ID: "x", Title: "Findings"},
		{ID: "lim", Marker: "LIMITATIONS", Title: "Limitations"},
		{ID: "y", Title: "Recommendations"},
		{ID: "plan", Marker: "LOCATION_PLAN", Title: "Location Plan"},
	}}
	r.Canonicalize(tree)
	var got []string
	for _, s := range tree.Sections {
		got = append(got, s.ID)
	}
	want := []string{"plan", "lim", "x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestApply_EnableDisable(t *testing.T) {
	r := Default()
	tree := &doctree.Tree{Sections: []*doctree.Section{
		{ID: "lim", Marker: "LIMITATIONS", Title: "Limitations"},
		{ID: "x", Title: "Findings"},
	}}
	if err := r.Apply(tree, []string{"LIMITATIONS", "LOCATION_PLAN"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(tree.Sections))
	}
	if tree.Sections[0].Marker != "LOCATION_PLAN" || tree.Sections[1].ID != "lim" || tree.Sections[2].ID != "x" {
		t.Errorf("unexpected order: %s %s %s", tree.Sections[0].Marker, tree.Sections[1].ID, tree.Sections[2].ID)
	}
	if !reflect.DeepEqual(r.Enabled(tree), []string{"LOCATION_PLAN", "LIMITATIONS"}) {
		t.Errorf("unexpected enabled %v", r.Enabled(tree))
	}

	if err := r.Apply(tree, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Sections) != 1 || tree.Sections[0].ID != "x" {
		t.Errorf("expected only ordinary content, got %d sections", len(tree.Sections))
	}
}

func TestApply_UnknownMarker(t *testing.T) {
	err := Default().Apply(&doctree.Tree{}, []string{"NOPE"})
	if err == nil || !strings.Contains(err.Error(), "NOPE") {
		t.Errorf("expected unknown marker error, got %v", err)
	}
}

func TestMarkerPattern(t *testing.T) {
	if !MarkerPattern.MatchString(MarkerLine("LOCATION_PLAN")) {
		t.Error("expected marker line to match")
	}
	if MarkerPattern.MatchString("<<location>>") {
		t.Error("lowercase markers are not reserved tokens")
	}
}
