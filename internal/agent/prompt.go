package agent

import (
	"fmt"
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

// Request is one instruction against a document's committed state.
type Request struct {
	DocumentID  string
	Version     int64
	Instruction string
	Tree        *doctree.Tree
	// Text is the document's flat text with templates expanded.
	Text string
}

const EditSystemPrompt = `You edit structured inspection reports. A report is a tree of numbered sections; each section has an id, a title, body paragraphs and child sections. Numbers are derived from position and must never be written into titles.

Respond with ONLY a JSON object of the form {"operations": [...]}. Each operation is one of:

- {"op":"set_title","section_id":ID,"value":TITLE}
- {"op":"set_body","section_id":ID,"value":[PARAGRAPH,...]}
- {"op":"insert_section","parent_id":ID or "root","index":N,"section":{"title":TITLE,"body":[...],"children":[...]}}
- {"op":"remove_section","section_id":ID}
- {"op":"move_section","section_id":ID,"new_parent_id":ID or "root","new_index":N}

Rules:
- Address sections only by the ids in the outline
- Operations apply in order; indexes refer to the tree as it is after the previous operations
- Keep image anchors such as [IMAGE:3] or [IMAGE:3:Roof] in the paragraph they belong to
- Template sections are read-only; never edit, move or remove them
- Omit ids on inserted sections; they are assigned on commit
- Return {"operations": []} if no change is needed`

// MaxPromptTokens bounds the estimated size of an edit prompt.
const MaxPromptTokens = 150_000

// EstimateTokens gives a rough token count, about 1.33 tokens per word.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(int(float64(words)*1.33), 1)
}

// BuildEditPrompt renders the outline, flat text and instruction.
func BuildEditPrompt(req Request) string {
	var sb strings.Builder
	if req.DocumentID != "" {
		sb.WriteString(fmt.Sprintf("Document: %q (version %d)\n", req.DocumentID, req.Version))
	}
	sb.WriteString("\n---\nOutline (id | number | title):\n")
	sb.WriteString(Outline(req.Tree))
	sb.WriteString("---\nText:\n")
	sb.WriteString(req.Text)
	if !strings.HasSuffix(req.Text, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("---\nInstruction:\n")
	sb.WriteString(strings.TrimSpace(req.Instruction))
	sb.WriteString("\n")
	return sb.String()
}

// Outline lists every section as "id | number | title", indented by depth.
func Outline(tree *doctree.Tree) string {
	var sb strings.Builder
	tree.Walk(func(s *doctree.Section, ancestors []*doctree.Section) bool {
		sb.WriteString(strings.Repeat("  ", len(ancestors)))
		title := s.Title
		if s.IsTemplate() {
			title = fmt.Sprintf("<<%s>> (template, read-only)", s.Marker)
		}
		number := s.Number
		if number == "" {
			number = "-"
		}
		fmt.Fprintf(&sb, "%s | %s | %s\n", s.ID, number, title)
		return true
	})
	if sb.Len() == 0 {
		return "(empty)\n"
	}
	return sb.String()
}
