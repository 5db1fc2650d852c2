package textcodec

import (
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/templates"
)

// Decoded is the result of parsing flat text.
type Decoded struct {
	Tree *doctree.Tree
	// Enabled lists the template markers found, in canonical order.
	Enabled []string
	// Ambiguities lists lines that were kept as plain text because they
	// could not be classified as intended.
	Ambiguities []*domain.ParseAmbiguityError
}

type decoder struct {
	codec   *Codec
	tree    *doctree.Tree
	top     *doctree.Section
	sub     *doctree.Section
	para    []string
	enabled map[string]bool
	amb     []*domain.ParseAmbiguityError
}

// Decode parses flat text into a tree, merged against existing so that
// sections recognizable by title or position keep their ids. existing may
// be nil. Decoding never fails and never drops content: lines that cannot
// be classified as intended are kept as text and reported.
func (c *Codec) Decode(text string, existing *doctree.Tree) *Decoded {
	d := &decoder{
		codec:   c,
		tree:    &doctree.Tree{},
		enabled: make(map[string]bool),
	}
	for i, raw := range strings.Split(normalizeNewlines(text), "\n") {
		d.line(i+1, strings.TrimSpace(raw))
	}
	d.flush()

	if existing != nil {
		d.tree.Title = existing.Title
		mergeIDs(d.tree.Sections, nonTemplates(existing.Sections))
	}
	d.tree.AssignIDs()

	var enabled []string
	for _, m := range c.templates.Markers() {
		if d.enabled[m] {
			enabled = append(enabled, m)
		}
	}
	if existing != nil {
		// Give Apply the existing template sections so their ids survive.
		d.tree.Sections = append(templatesOf(existing.Sections), d.tree.Sections...)
	}
	// Markers are known to the registry, so Apply cannot fail here.
	_ = c.templates.Apply(d.tree, enabled)
	// headerTitle already removed the header number.
	d.tree.RefreshImages()

	return &Decoded{Tree: d.tree, Enabled: enabled, Ambiguities: d.amb}
}

func (d *decoder) line(n int, line string) {
	kind := Classify(line)
	switch kind {
	case KindBlank:
		d.flush()
	case KindMarker:
		d.flush()
		m := templates.MarkerPattern.FindStringSubmatch(line)[1]
		if !d.codec.templates.Known(m) {
			d.ambiguous(n, line, "unknown template marker")
			d.para = append(d.para, line)
			d.flush()
			return
		}
		d.enabled[m] = true
	case KindHeader:
		d.flush()
		d.top = &doctree.Section{Title: headerTitle(line, kind)}
		d.sub = nil
		d.tree.Sections = append(d.tree.Sections, d.top)
	case KindSubHeader:
		if d.top == nil {
			d.ambiguous(n, line, "sub-section before any section")
			d.text(n, line)
			return
		}
		d.flush()
		d.sub = &doctree.Section{Title: headerTitle(line, kind)}
		d.top.Children = append(d.top.Children, d.sub)
	case KindEscaped:
		d.text(n, line[1:])
	default:
		d.text(n, line)
	}
}

func (d *decoder) text(n int, line string) {
	for _, bad := range doctree.MalformedAnchors(line) {
		d.ambiguous(n, bad, "malformed image anchor")
	}
	d.para = append(d.para, line)
}

func (d *decoder) ambiguous(n int, line, reason string) {
	d.amb = append(d.amb, &domain.ParseAmbiguityError{Line: n, Text: line, Reason: reason})
}

// flush closes the current paragraph into the innermost open section, or
// into the preamble before the first header.
func (d *decoder) flush() {
	if len(d.para) == 0 {
		return
	}
	p := strings.Join(d.para, "\n")
	d.para = d.para[:0]
	switch {
	case d.sub != nil:
		d.sub.Body = append(d.sub.Body, p)
	case d.top != nil:
		d.top.Body = append(d.top.Body, p)
	default:
		d.tree.Preamble = append(d.tree.Preamble, p)
	}
}

// mergeIDs copies ids from existing onto decoded sections. A decoded
// section matches the first unused existing sibling with the same title;
// sections left over on both sides are then paired in order, which keeps
// the id of a retitled section.
func mergeIDs(decoded, existing []*doctree.Section) {
	used := make([]bool, len(existing))
	match := make([]*doctree.Section, len(decoded))
	for i, s := range decoded {
		for j, e := range existing {
			if !used[j] && e.Title == s.Title {
				used[j] = true
				match[i] = e
				break
			}
		}
	}
	j := 0
	for i := range decoded {
		if match[i] != nil {
			continue
		}
		for j < len(existing) && used[j] {
			j++
		}
		if j == len(existing) {
			break
		}
		used[j] = true
		match[i] = existing[j]
	}
	for i, s := range decoded {
		if match[i] == nil {
			mergeIDs(s.Children, nil)
			continue
		}
		s.ID = match[i].ID
		mergeIDs(s.Children, match[i].Children)
	}
}

func nonTemplates(sections []*doctree.Section) []*doctree.Section {
	var out []*doctree.Section
	for _, s := range sections {
		if !s.IsTemplate() {
			out = append(out, s)
		}
	}
	return out
}

func templatesOf(sections []*doctree.Section) []*doctree.Section {
	var out []*doctree.Section
	for _, s := range sections {
		if s.IsTemplate() {
			out = append(out, s.Clone())
		}
	}
	return out
}
