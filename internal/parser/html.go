package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser handles HTML reports. Headings open sections; two-cell table
// rows are read as observation rows.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := baseTitle(filename)
	if t := findTitle(doc); t != "" {
		title = t
	}
	out := newOutline(title)
	obs := &observations{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				out.heading(level, textContent(n))
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "tr":
				out.paragraph(htmlRow(n, obs))
				return
			case "li":
				if t := textContent(n); t != "" {
					out.paragraph("- " + t)
				}
				return
			case "p", "blockquote", "pre":
				out.paragraph(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(doc, "body"); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return out.result(), nil
}

func htmlRow(tr *html.Node, obs *observations) string {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, c)
		}
	}
	switch len(cells) {
	case 0:
		return ""
	case 1:
		return textContent(cells[0])
	}
	return obs.row(textContent(cells[0]), textContent(cells[1]), findElement(cells[1], "img") != nil)
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if t := findElement(n, "title"); t != nil {
		return textContent(t)
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
