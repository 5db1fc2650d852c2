// Package numbering derives hierarchical section numbers from tree shape.
package numbering

import (
	"strconv"
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

// Strategy controls how Section.Number is derived. It is a display
// setting: the text codec writes its own positional headers.
type Strategy struct {
	// Separator joins the per-level counters, e.g. "." gives "2.1.3".
	Separator string
	// Restart resets child counters under each new parent. When false,
	// counters at each depth keep counting across parents.
	Restart bool
	// SkipTemplates leaves template sections unnumbered; they do not
	// consume a counter value.
	SkipTemplates bool
}

// Default is dot-decimal, restarting under each parent, templates skipped.
func Default() Strategy {
	return Strategy{Separator: ".", Restart: true, SkipTemplates: true}
}

// Renumber returns a copy of tree with every Number recomputed in
// depth-first, child-order traversal. The input is not modified.
func Renumber(tree *doctree.Tree, s Strategy) *doctree.Tree {
	out := tree.Clone()
	Apply(out, s)
	return out
}

// Apply renumbers tree in place. Ids and all other fields are untouched.
func Apply(tree *doctree.Tree, s Strategy) {
	if tree == nil {
		return
	}
	if s.Separator == "" {
		s.Separator = "."
	}
	// counters[d] is the last value used at depth d; only consulted when
	// Restart is off.
	var counters []int
	var number func(sections []*doctree.Section, prefix []string, depth int)
	number = func(sections []*doctree.Section, prefix []string, depth int) {
		for len(counters) <= depth {
			counters = append(counters, 0)
		}
		n := 0
		if !s.Restart {
			n = counters[depth]
		}
		for _, sec := range sections {
			if s.SkipTemplates && sec.IsTemplate() {
				sec.Number = ""
				clearNumbers(sec.Children)
				continue
			}
			n++
			parts := append(prefix[:len(prefix):len(prefix)], strconv.Itoa(n))
			sec.Number = strings.Join(parts, s.Separator)
			if !s.Restart {
				counters[depth] = n
			}
			number(sec.Children, parts, depth+1)
		}
	}
	number(tree.Sections, nil, 0)
}

func clearNumbers(sections []*doctree.Section) {
	for _, s := range sections {
		s.Number = ""
		clearNumbers(s.Children)
	}
}

// Depth returns the nesting depth encoded in a derived number (1 for "3",
// 2 for "3.1"), or 0 for an empty number.
func Depth(number, separator string) int {
	if number == "" {
		return 0
	}
	if separator == "" {
		separator = "."
	}
	return strings.Count(number, separator) + 1
}
