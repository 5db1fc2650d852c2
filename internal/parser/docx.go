package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx reports. Heading styles open sections; tables
// with two or more columns are read as observation rows.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*Result, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "inspectdoc-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	out := newOutline(baseTitle(filename))
	obs := &observations{}
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text, _ := docxParagraphText(it)
			if level := docxHeadingLevel(it); level > 0 && text != "" {
				out.heading(level, text)
				continue
			}
			out.paragraph(text)
		case *docx.Table:
			for _, row := range it.TableRows {
				out.paragraph(docxRow(row, obs))
			}
		}
	}
	return out.result(), nil
}

func docxRow(row *docx.WTableRow, obs *observations) string {
	var cells []string
	var pictures []bool
	for _, cell := range row.TableCells {
		var parts []string
		pic := false
		for _, para := range cell.Paragraphs {
			text, hasPic := docxParagraphText(para)
			if text != "" {
				parts = append(parts, text)
			}
			pic = pic || hasPic
		}
		cells = append(cells, strings.Join(parts, "\n"))
		pictures = append(pictures, pic)
	}
	switch len(cells) {
	case 0:
		return ""
	case 1:
		return cells[0]
	}
	return obs.row(cells[0], cells[1], pictures[1])
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	switch strings.TrimPrefix(style, "heading") {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

// docxParagraphText returns the paragraph's text and whether it embeds a
// drawing.
func docxParagraphText(para *docx.Paragraph) (string, bool) {
	var buf strings.Builder
	pic := false
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			switch t := rc.(type) {
			case *docx.Text:
				buf.WriteString(t.Text)
			case *docx.Drawing:
				pic = true
			}
		}
	}
	return strings.TrimSpace(buf.String()), pic
}
