// Package parser imports existing report files into a section tree.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/domain"
	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

// Result is an imported document. Ambiguities are only reported by the
// flat-text importers; their lines are kept as body text.
type Result struct {
	Tree        *doctree.Tree
	Enabled     []string
	Ambiguities []*domain.ParseAmbiguityError
}

// Parser converts raw document bytes into a section tree.
type Parser interface {
	Parse(r io.Reader, filename string) (*Result, error)
}

// Options configure the parsers returned by ForFile.
type Options struct {
	// Codec decodes flat text; nil uses the built-in templates.
	Codec                *textcodec.Codec
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	if opts.Codec == nil {
		opts.Codec = textcodec.New(nil)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{Codec: opts.Codec}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{Codec: opts.Codec, FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, domain.NewValidationError(domain.InvariantShape, "unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ParseFile is ForFile followed by Parse.
func ParseFile(r io.Reader, filename string, opts Options) (*Result, error) {
	p, err := ForFile(filename, opts)
	if err != nil {
		return nil, err
	}
	res, err := p.Parse(r, filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return res, nil
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outline builds a tree from a stream of headings and paragraphs. Heading
// levels may skip; a heading nests under the nearest shallower one.
// Paragraphs before the first heading go to the preamble.
type outline struct {
	tree  *doctree.Tree
	stack []frame
}

type frame struct {
	sec   *doctree.Section
	level int
}

func newOutline(title string) *outline {
	return &outline{tree: &doctree.Tree{Title: title}}
}

func (o *outline) heading(level int, title string) {
	for len(o.stack) > 0 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	sec := doctree.NewSection(doctree.StripHeadingNumber(title, len(o.stack)+1))
	if len(o.stack) == 0 {
		o.tree.Sections = append(o.tree.Sections, sec)
	} else {
		parent := o.stack[len(o.stack)-1].sec
		parent.Children = append(parent.Children, sec)
	}
	o.stack = append(o.stack, frame{sec: sec, level: level})
}

func (o *outline) paragraph(p string) {
	p = strings.TrimSpace(p)
	if p == "" {
		return
	}
	if len(o.stack) == 0 {
		o.tree.Preamble = append(o.tree.Preamble, p)
		return
	}
	top := o.stack[len(o.stack)-1].sec
	top.Body = append(top.Body, p)
}

func (o *outline) result() *Result {
	o.tree.Normalize()
	return &Result{Tree: o.tree}
}

// observations renders rows of two-column observation tables: a text cell
// and an image cell holding a picture, an explicit image number, or a note.
// Pictures are numbered in document order starting at 1.
type observations struct {
	next int
}

func (o *observations) row(text, imageCell string, hasPicture bool) string {
	text = strings.TrimSpace(text)
	imageCell = strings.TrimSpace(imageCell)
	if text == "" {
		return imageCell
	}
	if n, err := strconv.Atoi(imageCell); err == nil && n >= 0 {
		return text + " " + doctree.FormatAnchor(doctree.ImageRef{Number: n})
	}
	if hasPicture {
		o.next++
		text += " " + doctree.FormatAnchor(doctree.ImageRef{Number: o.next})
	}
	if imageCell != "" {
		text += " " + imageCell
	}
	return text
}
