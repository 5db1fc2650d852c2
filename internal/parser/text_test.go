package parser

import (
	"strings"
	"testing"
)

func TestTextParser_PlainParagraphs(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	res, err := (&TextParser{}).Parse(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree := res.Tree
	if tree.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", tree.Title)
	}
	want := []string{
		"First paragraph line one.\nFirst paragraph line two.",
		"Second paragraph.",
		"Third paragraph.",
	}
	if len(tree.Preamble) != len(want) {
		t.Fatalf("expected %d preamble paragraphs, got %q", len(want), tree.Preamble)
	}
	for i, w := range want {
		if tree.Preamble[i] != w {
			t.Errorf("paragraph[%d]: expected %q, got %q", i, w, tree.Preamble[i])
		}
	}
}

func TestTextParser_AnnotatedText(t *testing.T) {
	input := "<<LIMITATIONS>>\n\n1. Site Status\n\nAll good.\n\n1.1 Roof\n\nRoof leak observed [IMAGE:1:Roof]\n\n<<BOGUS>>\n"
	res, err := (&TextParser{}).Parse(strings.NewReader(input), "report.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Enabled) != 1 || res.Enabled[0] != "LIMITATIONS" {
		t.Errorf("expected LIMITATIONS enabled, got %v", res.Enabled)
	}
	secs := res.Tree.Sections
	if len(secs) != 2 || secs[0].Marker != "LIMITATIONS" || secs[1].Title != "Site Status" {
		t.Fatalf("unexpected sections %+v", secs)
	}
	roof := secs[1].Children[0]
	if roof.Title != "Roof" || len(roof.Images) != 1 || roof.Images[0].Group != "Roof" {
		t.Errorf("unexpected roof section %+v", roof)
	}
	if len(res.Ambiguities) != 1 || res.Ambiguities[0].Text != "<<BOGUS>>" {
		t.Errorf("expected one ambiguity for the unknown marker, got %+v", res.Ambiguities)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	res, err := (&TextParser{}).Parse(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tree.Sections) != 0 || len(res.Tree.Preamble) != 0 {
		t.Errorf("expected empty tree, got %+v", res.Tree)
	}
}
