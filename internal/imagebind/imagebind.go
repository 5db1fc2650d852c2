// Package imagebind resolves inline image anchors against a document's
// image assets.
package imagebind

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
)

// MatchTier records which rule resolved an anchor.
type MatchTier int

const (
	MatchNone MatchTier = iota
	MatchExact
	MatchNumberOnly
	MatchCaseInsensitive
	MatchNormalized
	MatchSubstring
)

func (m MatchTier) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchNumberOnly:
		return "number_only"
	case MatchCaseInsensitive:
		return "case_insensitive"
	case MatchNormalized:
		return "normalized"
	case MatchSubstring:
		return "substring"
	default:
		return "none"
	}
}

func (m MatchTier) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// fuzzy tiers, tried in order once exact matching fails.
var fuzzy = []struct {
	tier  MatchTier
	match func(group, candidate string) bool
}{
	{MatchCaseInsensitive, func(g, c string) bool {
		return strings.EqualFold(strings.TrimSpace(g), strings.TrimSpace(c))
	}},
	{MatchNormalized, func(g, c string) bool {
		ng, nc := normalize(g), normalize(c)
		return ng != "" && ng == nc
	}},
	{MatchSubstring, func(g, c string) bool {
		ng, nc := normalize(g), normalize(c)
		if ng == "" || nc == "" {
			return false
		}
		return strings.Contains(ng, nc) || strings.Contains(nc, ng)
	}},
}

// normalize lowercases s and drops everything but letters and digits.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Resolve finds the asset for anchor. Candidates are the assets carrying
// the anchor's number, in input order; within a tier the first candidate
// wins. An anchor without a group matches on number alone. With a group,
// an exact group match is tried first, then the fuzzy tiers.
func Resolve(anchor doctree.ImageRef, assets []doctree.ImageAsset) (doctree.ImageAsset, MatchTier, error) {
	var candidates []doctree.ImageAsset
	for _, a := range assets {
		if a.Number == anchor.Number {
			candidates = append(candidates, a)
		}
	}
	notFound := &domain.UnresolvedImageError{Number: anchor.Number, Group: anchor.Group}
	if len(candidates) == 0 {
		return doctree.ImageAsset{}, MatchNone, notFound
	}
	if anchor.Group == "" {
		return candidates[0], MatchNumberOnly, nil
	}
	for _, a := range candidates {
		for _, g := range a.Groups {
			if g == anchor.Group {
				return a, MatchExact, nil
			}
		}
	}
	for _, f := range fuzzy {
		for _, a := range candidates {
			for _, g := range a.Groups {
				if f.match(anchor.Group, g) {
					return a, f.tier, nil
				}
			}
		}
	}
	return doctree.ImageAsset{}, MatchNone, notFound
}

// Placeholder is the visible text rendered in place of an unresolved anchor.
func Placeholder(ref doctree.ImageRef) string {
	if ref.Group != "" {
		return "[IMAGE NOT FOUND:" + strconv.Itoa(ref.Number) + ":" + ref.Group + "]"
	}
	return "[IMAGE NOT FOUND:" + strconv.Itoa(ref.Number) + "]"
}

// Binding is the resolution of one anchor occurrence.
type Binding struct {
	SectionID   string              `json:"section_id,omitempty"`
	Anchor      doctree.ImageRef    `json:"anchor"`
	Asset       *doctree.ImageAsset `json:"asset,omitempty"`
	Match       MatchTier           `json:"match"`
	Placeholder string              `json:"placeholder,omitempty"`
}

// Resolved reports whether an asset was found.
func (b Binding) Resolved() bool { return b.Asset != nil }

// Binder resolves anchors and logs the ones it cannot find.
type Binder struct {
	logger *slog.Logger
}

func NewBinder(logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{logger: logger}
}

func (b *Binder) bind(sectionID string, ref doctree.ImageRef, assets []doctree.ImageAsset) Binding {
	asset, tier, err := Resolve(ref, assets)
	if err != nil {
		b.logger.Warn("image not found",
			"section_id", sectionID,
			"number", ref.Number,
			"group", ref.Group,
		)
		return Binding{SectionID: sectionID, Anchor: ref, Match: MatchNone, Placeholder: Placeholder(ref)}
	}
	return Binding{SectionID: sectionID, Anchor: ref, Asset: &asset, Match: tier}
}

// BindText resolves every anchor in text. Resolved anchors are left as
// they are; unresolved ones are replaced with a placeholder so the gap is
// visible to the reader.
func (b *Binder) BindText(text string, assets []doctree.ImageAsset) (string, []Binding) {
	matches := doctree.FindAnchors(text)
	if len(matches) == 0 {
		return text, nil
	}
	var out strings.Builder
	bindings := make([]Binding, 0, len(matches))
	last := 0
	for _, m := range matches {
		bd := b.bind("", m.Ref, assets)
		bindings = append(bindings, bd)
		out.WriteString(text[last:m.Start])
		if bd.Resolved() {
			out.WriteString(text[m.Start:m.End])
		} else {
			out.WriteString(bd.Placeholder)
		}
		last = m.End
	}
	out.WriteString(text[last:])
	return out.String(), bindings
}

// BindTree resolves the image references of every section, depth first.
func (b *Binder) BindTree(tree *doctree.Tree, assets []doctree.ImageAsset) []Binding {
	var out []Binding
	tree.Walk(func(s *doctree.Section, _ []*doctree.Section) bool {
		for _, ref := range s.Images {
			out = append(out, b.bind(s.ID, ref, assets))
		}
		return true
	})
	return out
}

// Unresolved filters bindings down to the ones without an asset.
func Unresolved(bindings []Binding) []Binding {
	var out []Binding
	for _, bd := range bindings {
		if !bd.Resolved() {
			out = append(out, bd)
		}
	}
	return out
}
