// Package templates holds the fixed, non-narrative sections of a report
// (location plan, scope, limitations) identified by reserved markers.
package templates

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"gopkg.in/yaml.v3"
)

// MarkerPattern matches a marker line such as "<<LOCATION_PLAN>>".
var MarkerPattern = regexp.MustCompile(`^<<([A-Z][A-Z0-9_]*)>>$`)

var markerName = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Template is a fixed section rendered from a marker.
type Template struct {
	Marker string   `yaml:"marker"`
	Title  string   `yaml:"title"`
	Body   []string `yaml:"body"`
}

// Registry is an ordered set of templates. Registry order is the canonical
// order of template sections in a document.
type Registry struct {
	templates []Template
	index     map[string]int
}

// Default returns the built-in inspection report templates.
func Default() *Registry {
	r, _ := New([]Template{
		{
			Marker: "LOCATION_PLAN",
			Title:  "Location Plan",
			Body:   []string{"The location of the inspected property is shown on the plan below."},
		},
		{
			Marker: "SCOPE_OF_INSPECTION",
			Title:  "Scope of Inspection",
			Body: []string{
				"This report records the condition of the property as observed at the time of inspection.",
				"Only areas that were safely accessible were inspected.",
			},
		},
		{
			Marker: "LIMITATIONS",
			Title:  "Limitations",
			Body:   []string{"No intrusive or destructive testing was carried out."},
		},
	})
	return r
}

// New builds a registry, rejecting invalid or duplicate markers.
func New(tpls []Template) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(tpls))}
	for _, t := range tpls {
		t.Marker = strings.TrimSpace(t.Marker)
		if !markerName.MatchString(t.Marker) {
			return nil, fmt.Errorf("invalid template marker %q", t.Marker)
		}
		if _, dup := r.index[t.Marker]; dup {
			return nil, fmt.Errorf("duplicate template marker %q", t.Marker)
		}
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("template %s: title is required", t.Marker)
		}
		r.index[t.Marker] = len(r.templates)
		r.templates = append(r.templates, t)
	}
	return r, nil
}

type fileFormat struct {
	Templates []Template `yaml:"templates"`
}

// Load reads a registry from a YAML file of the form
//
//	templates:
//	  - marker: LOCATION_PLAN
//	    title: Location Plan
//	    body: ["..."]
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return New(f.Templates)
}

// Markers lists markers in canonical order.
func (r *Registry) Markers() []string {
	out := make([]string, len(r.templates))
	for i, t := range r.templates {
		out[i] = t.Marker
	}
	return out
}

// Lookup returns the template for marker.
func (r *Registry) Lookup(marker string) (Template, bool) {
	i, ok := r.index[marker]
	if !ok {
		return Template{}, false
	}
	return r.templates[i], true
}

// Known reports whether marker is registered.
func (r *Registry) Known(marker string) bool {
	_, ok := r.index[marker]
	return ok
}

// MarkerLine renders the marker token for marker.
func MarkerLine(marker string) string {
	return "<<" + marker + ">>"
}

// Section builds the template section for marker with the given id (a
// fresh id when empty).
func (r *Registry) Section(marker, id string) (*doctree.Section, bool) {
	t, ok := r.Lookup(marker)
	if !ok {
		return nil, false
	}
	if id == "" {
		id = doctree.NewID()
	}
	body := append([]string(nil), t.Body...)
	return &doctree.Section{
		ID:     id,
		Title:  t.Title,
		Marker: t.Marker,
		Body:   body,
		Images: doctree.ExtractImages(body),
	}, true
}

// Enabled lists the markers present at the root of tree, in canonical order.
func (r *Registry) Enabled(tree *doctree.Tree) []string {
	present := make(map[string]bool)
	for _, s := range tree.Sections {
		if s.IsTemplate() {
			present[s.Marker] = true
		}
	}
	var out []string
	for _, t := range r.templates {
		if present[t.Marker] {
			out = append(out, t.Marker)
		}
	}
	return out
}

// Canonicalize moves root-level template sections ahead of ordinary
// content, in registry order, keeping ordinary sections in their relative
// order. Unknown markers sort after known ones in their existing order.
func (r *Registry) Canonicalize(tree *doctree.Tree) {
	var tpls, ordinary []*doctree.Section
	for _, s := range tree.Sections {
		if s.IsTemplate() {
			tpls = append(tpls, s)
		} else {
			ordinary = append(ordinary, s)
		}
	}
	slices.SortStableFunc(tpls, func(a, b *doctree.Section) int {
		return r.rank(a.Marker) - r.rank(b.Marker)
	})
	tree.Sections = append(tpls, ordinary...)
}

func (r *Registry) rank(marker string) int {
	if i, ok := r.index[marker]; ok {
		return i
	}
	return len(r.templates)
}

// Apply rebuilds the template sections of tree from the enabled markers.
// Template sections already present keep their ids; disabled ones are
// removed; the result is in canonical order ahead of ordinary content.
func (r *Registry) Apply(tree *doctree.Tree, enabled []string) error {
	want := make(map[string]bool, len(enabled))
	for _, m := range enabled {
		if !r.Known(m) {
			return fmt.Errorf("unknown template marker %q", m)
		}
		want[m] = true
	}
	existing := make(map[string]string)
	var ordinary []*doctree.Section
	for _, s := range tree.Sections {
		if s.IsTemplate() {
			existing[s.Marker] = s.ID
			continue
		}
		ordinary = append(ordinary, s)
	}
	var tpls []*doctree.Section
	for _, t := range r.templates {
		if !want[t.Marker] {
			continue
		}
		s, _ := r.Section(t.Marker, existing[t.Marker])
		tpls = append(tpls, s)
	}
	tree.Sections = append(tpls, ordinary...)
	return nil
}
