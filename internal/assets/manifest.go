package assets

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

// Manifest is a Provider loaded from a CSV file with a header row:
//
//	document_id,number,group,url,description,rotation
//	site-42,1,Roof;Exterior,https://.../1.jpg,North slope,90
//
// Only number and url are required. Groups are separated by ";". Rows with
// an empty document_id apply to every document.
type Manifest struct {
	static *Static
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest reads a manifest from r.
func ParseManifest(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m := &Manifest{static: NewStatic()}
	if len(records) == 0 {
		return m, nil
	}

	cols := make(map[string]int)
	for i, h := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"number", "url"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("parse manifest: missing %q column", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for n, row := range records[1:] {
		line := n + 2 // 1-indexed, skip header
		num, err := strconv.Atoi(cell(row, "number"))
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: invalid number %q", line, cell(row, "number"))
		}
		asset := doctree.ImageAsset{
			Number:      num,
			URL:         cell(row, "url"),
			Description: cell(row, "description"),
		}
		for _, g := range strings.Split(cell(row, "group"), ";") {
			if g = strings.TrimSpace(g); g != "" {
				asset.Groups = append(asset.Groups, g)
			}
		}
		if rot := cell(row, "rotation"); rot != "" {
			if asset.Rotation, err = strconv.Atoi(rot); err != nil {
				return nil, fmt.Errorf("manifest line %d: invalid rotation %q", line, rot)
			}
		}
		m.static.Add(cell(row, "document_id"), asset)
	}
	return m, nil
}

func (m *Manifest) ListImages(ctx context.Context, docID string) ([]doctree.ImageAsset, error) {
	return m.static.ListImages(ctx, docID)
}
