package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Headings become
// sections by level; lists contribute one paragraph per item.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Result, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	out := newOutline(baseTitle(filename))

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			out.heading(node.Level, extractText(node, src))
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				out.paragraph("- " + extractText(item, src))
			}
		case *ast.ThematicBreak:
		default:
			out.paragraph(extractText(n, src))
		}
	}
	return out.result(), nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.Image:
			// Alt text only; the asset provider owns images.
			buf.WriteString(extractText(t, src))
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
