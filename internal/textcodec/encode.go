// Package textcodec converts between the section tree and the flat
// annotated-text form used for AI prompting and legacy rendering.
package textcodec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/templates"
)

// Codec encodes and decodes flat text against a template registry.
type Codec struct {
	templates *templates.Registry
}

// New returns a codec. A nil registry uses the built-in templates.
func New(reg *templates.Registry) *Codec {
	if reg == nil {
		reg = templates.Default()
	}
	return &Codec{templates: reg}
}

// Templates returns the codec's registry.
func (c *Codec) Templates() *templates.Registry {
	return c.templates
}

// EncodeOptions tune Encode.
type EncodeOptions struct {
	// ExpandTemplates renders template sections as their fixed title and
	// body instead of marker tokens. Expanded text is for display and
	// prompting; it does not decode back to template sections.
	ExpandTemplates bool
}

// Encode renders tree as flat text: template markers first, then the
// preamble, then numbered sections. Blocks are separated by blank lines.
// Header numbers are always dot-decimal so the output stays decodable
// regardless of the display numbering strategy.
func (c *Codec) Encode(tree *doctree.Tree, opts EncodeOptions) string {
	if tree == nil {
		return ""
	}
	t := tree.Clone()
	c.templates.Canonicalize(t)

	var blocks []string
	var ordinary []*doctree.Section
	for _, s := range t.Sections {
		if !s.IsTemplate() {
			ordinary = append(ordinary, s)
			continue
		}
		if !opts.ExpandTemplates {
			blocks = append(blocks, templates.MarkerLine(s.Marker))
			continue
		}
		blocks = append(blocks, singleLine(s.Title))
		blocks = appendParagraphs(blocks, s.Body)
	}

	blocks = appendParagraphs(blocks, t.Preamble)

	var walk func(sections []*doctree.Section, prefix []int)
	walk = func(sections []*doctree.Section, prefix []int) {
		for i, s := range sections {
			path := append(prefix[:len(prefix):len(prefix)], i+1)
			blocks = append(blocks, headerLine(path, s.Title))
			blocks = appendParagraphs(blocks, s.Body)
			walk(s.Children, path)
		}
	}
	walk(ordinary, nil)

	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// headerLine renders "1. Title" at depth 0 and "1.2 Title" below it.
func headerLine(path []int, title string) string {
	title = singleLine(title)
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	num := strings.Join(parts, ".")
	if len(path) == 1 {
		return strings.TrimRight(fmt.Sprintf("%s. %s", num, title), " ")
	}
	return strings.TrimRight(fmt.Sprintf("%s %s", num, title), " ")
}

func appendParagraphs(blocks []string, paragraphs []string) []string {
	for _, p := range paragraphs {
		if enc := encodeParagraph(p); enc != "" {
			blocks = append(blocks, enc)
		}
	}
	return blocks
}

// encodeParagraph trims each line, drops blank lines inside the paragraph
// (they would split it) and escapes lines that would read as structure.
func encodeParagraph(p string) string {
	var lines []string
	for _, raw := range strings.Split(normalizeNewlines(p), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if needsEscape(line) {
			line = `\` + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
