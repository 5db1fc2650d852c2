package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/inspectdoc/internal/textcodec"
)

// PDFParser handles PDF reports. Page text is decoded like flat text, so
// numbered headers become sections. Pages come from the Go library first;
// pdftotext is tried when that yields nothing and the fallback is enabled.
type PDFParser struct {
	Codec             *textcodec.Codec
	FallbackPdftotext bool
}

// pageNumberLine matches running page numbers such as "3" or "Page 3 of 12".
var pageNumberLine = regexp.MustCompile(`(?i)^\s*(?:page\s+)?\d+(?:\s*(?:of|/)\s*\d+)?\s*$`)

func (p *PDFParser) Parse(r io.Reader, filename string) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages, err := pdfPages(data)
	if (err != nil || blank(pages)) && p.FallbackPdftotext {
		if alt, altErr := pdftotextPages(data); altErr == nil {
			pages, err = alt, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	cleaned := make([]string, 0, len(pages))
	for _, page := range pages {
		if c := cleanPage(page); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	// Page breaks end paragraphs.
	return decodeText(p.Codec, strings.Join(cleaned, "\n\n"), baseTitle(filename)), nil
}

func pdfPages(data []byte) ([]string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// pdftotextPages shells out to poppler. It needs a real file.
func pdftotextPages(data []byte) ([]string, error) {
	tmp, err := os.CreateTemp("", "inspectdoc-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return strings.Split(string(out), "\f"), nil
}

// cleanPage drops running page numbers and surrounding blank lines.
func cleanPage(page string) string {
	lines := strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if pageNumberLine.MatchString(line) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func blank(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}
