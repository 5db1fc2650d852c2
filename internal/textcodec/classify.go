package textcodec

import (
	"regexp"

	"github.com/dgallion1/inspectdoc/internal/templates"
)

// LineKind is the classification of one line of flat text.
type LineKind int

const (
	KindBlank LineKind = iota
	KindEscaped
	KindMarker
	KindDeepNumbered
	KindSubHeader
	KindHeader
	KindBullet
	KindText
)

func (k LineKind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindEscaped:
		return "escaped"
	case KindMarker:
		return "marker"
	case KindDeepNumbered:
		return "deep_numbered"
	case KindSubHeader:
		return "sub_header"
	case KindHeader:
		return "header"
	case KindBullet:
		return "bullet"
	default:
		return "text"
	}
}

// Rule maps a pattern to a classification. Rules are tried in order and
// the first match wins; lines matching nothing are KindText.
type Rule struct {
	Kind    LineKind
	Pattern *regexp.Regexp
}

// Rules is the classifier table. Order matters: deeper numeric patterns
// must be tried before the header patterns they would otherwise shadow.
var Rules = []Rule{
	{KindBlank, regexp.MustCompile(`^\s*$`)},
	{KindEscaped, regexp.MustCompile(`^\\`)},
	{KindMarker, templates.MarkerPattern},
	{KindDeepNumbered, regexp.MustCompile(`^\d+(\.\d+){2,}`)},
	{KindSubHeader, regexp.MustCompile(`^\d+\.\d+(\s|$)`)},
	{KindHeader, regexp.MustCompile(`^\d+\.(\s|$)`)},
	{KindBullet, regexp.MustCompile(`^-`)},
}

// Classify returns the kind of a single, already trimmed line.
func Classify(line string) LineKind {
	for _, r := range Rules {
		if r.Pattern.MatchString(line) {
			return r.Kind
		}
	}
	return KindText
}

var (
	headerPrefix    = regexp.MustCompile(`^\d+\.\s*`)
	subHeaderPrefix = regexp.MustCompile(`^\d+\.\d+\s*`)
)

// headerTitle strips the numeric prefix from a header line of the given kind.
func headerTitle(line string, kind LineKind) string {
	switch kind {
	case KindHeader:
		return headerPrefix.ReplaceAllString(line, "")
	case KindSubHeader:
		return subHeaderPrefix.ReplaceAllString(line, "")
	}
	return line
}

// needsEscape reports whether a body line would be misread as structure.
func needsEscape(line string) bool {
	switch Classify(line) {
	case KindEscaped, KindMarker, KindHeader, KindSubHeader:
		return true
	}
	return false
}
