package doctree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AnchorPattern matches [IMAGE:<n>] and [IMAGE:<n>:<group>].
var AnchorPattern = regexp.MustCompile(`\[IMAGE:(\d+)(?::([^\]\n]*))?\]`)

// malformedAnchor catches anchor-looking text that AnchorPattern rejects.
var malformedAnchor = regexp.MustCompile(`\[IMAGE:[^\]\n]*\]`)

var (
	numberPrefix  = regexp.MustCompile(`^\s*\d+\.\s+`)
	headingNumber = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)\.?\s+`)
)

// StripNumberPrefix removes a typed top-level number such as "1. " from
// the start of a title. Decimal prefixes like "1.5 " are title text and
// are kept.
func StripNumberPrefix(title string) string {
	return strings.TrimSpace(numberPrefix.ReplaceAllString(title, ""))
}

// StripHeadingNumber removes a heading number from an imported title when
// it has exactly one segment per level of depth, so "2.1 Roof" loses its
// number at depth 2 but "1.5 Storey Extension" keeps it at depth 1. A
// single segment must be written "N." to count.
func StripHeadingNumber(title string, depth int) string {
	title = strings.TrimSpace(title)
	m := headingNumber.FindStringSubmatch(title)
	if m == nil {
		return title
	}
	segments := strings.Count(m[1], ".") + 1
	if segments != depth {
		return title
	}
	if segments == 1 && !strings.HasPrefix(strings.TrimSpace(m[0][len(m[1]):]), ".") {
		return title
	}
	return strings.TrimSpace(title[len(m[0]):])
}

// FormatAnchor renders ref as an inline anchor tag.
func FormatAnchor(ref ImageRef) string {
	if ref.Group != "" {
		return fmt.Sprintf("[IMAGE:%d:%s]", ref.Number, ref.Group)
	}
	return fmt.Sprintf("[IMAGE:%d]", ref.Number)
}

// AnchorMatch is an anchor located inside a paragraph.
type AnchorMatch struct {
	Ref   ImageRef
	Start int
	End   int
}

// FindAnchors returns every well-formed anchor in text, in order.
func FindAnchors(text string) []AnchorMatch {
	locs := AnchorPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]AnchorMatch, 0, len(locs))
	for _, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		ref := ImageRef{Number: n}
		if loc[4] >= 0 {
			ref.Group = strings.TrimSpace(text[loc[4]:loc[5]])
		}
		out = append(out, AnchorMatch{Ref: ref, Start: loc[0], End: loc[1]})
	}
	return out
}

// MalformedAnchors returns anchor-like tags in text that are not valid
// anchors, e.g. "[IMAGE:abc]".
func MalformedAnchors(text string) []string {
	var out []string
	for _, m := range malformedAnchor.FindAllString(text, -1) {
		if !AnchorPattern.MatchString(m) {
			out = append(out, m)
		}
	}
	return out
}

// ExtractImages collects the image references of a body in paragraph order.
func ExtractImages(body []string) []ImageRef {
	var refs []ImageRef
	for _, p := range body {
		for _, m := range FindAnchors(p) {
			refs = append(refs, m.Ref)
		}
	}
	return refs
}
