package doctree

import (
	"time"

	"github.com/google/uuid"
)

// RootID is the sentinel parent id addressing the document root list.
const RootID = "root"

// Tree is the root of a report document.
type Tree struct {
	Title    string     `json:"title,omitempty"`
	Preamble []string   `json:"preamble,omitempty"` // Paragraphs before the first numbered section
	Sections []*Section `json:"sections"`
}

// Section is a node in the report. Children are owned exclusively by their
// parent; there are no back-pointers.
type Section struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Number   string     `json:"number,omitempty"` // Derived by numbering, never authoritative
	Marker   string     `json:"marker,omitempty"` // Non-empty for template sections
	Body     []string   `json:"body,omitempty"`
	Images   []ImageRef `json:"images,omitempty"` // Derived from anchors in Body
	Children []*Section `json:"children,omitempty"`
}

// ImageRef is a lookup key into the document's image assets, never an
// ownership link.
type ImageRef struct {
	Number int    `json:"number"`
	Group  string `json:"group,omitempty"`
}

// ImageAsset is an externally owned image. The core only reads it.
type ImageAsset struct {
	Number      int      `json:"number"`
	Groups      []string `json:"group,omitempty"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Rotation    int      `json:"rotation,omitempty"`
}

// Snapshot is an immutable, versioned copy of a tree.
type Snapshot struct {
	DocumentID string    `json:"document_id"`
	Version    int64     `json:"version"`
	Tree       *Tree     `json:"tree"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewID returns a fresh section id.
func NewID() string {
	return uuid.NewString()
}

// NewSection builds a section with a fresh id and a normalized title.
func NewSection(title string, body ...string) *Section {
	s := &Section{
		ID:    NewID(),
		Title: StripNumberPrefix(title),
		Body:  append([]string(nil), body...),
	}
	s.Images = ExtractImages(s.Body)
	return s
}

// IsTemplate reports whether s is a fixed template section.
func (s *Section) IsTemplate() bool {
	return s.Marker != ""
}

// Clone returns a deep copy of the tree. A nil tree clones to an empty tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return &Tree{}
	}
	out := &Tree{
		Title:    t.Title,
		Preamble: cloneStrings(t.Preamble),
		Sections: cloneSections(t.Sections),
	}
	return out
}

// Clone returns a deep copy of the section and its subtree.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	out := &Section{
		ID:       s.ID,
		Title:    s.Title,
		Number:   s.Number,
		Marker:   s.Marker,
		Body:     cloneStrings(s.Body),
		Children: cloneSections(s.Children),
	}
	if s.Images != nil {
		out.Images = make([]ImageRef, len(s.Images))
		copy(out.Images, s.Images)
	}
	return out
}

func cloneSections(in []*Section) []*Section {
	if in == nil {
		return nil
	}
	out := make([]*Section, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
