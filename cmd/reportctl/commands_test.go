package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

const sampleTree = `{
  "sections": [
    {"id": "roof", "title": "Roof", "body": ["Tiles slipped. [IMAGE:1:Roof]", "Gutter blocked. [IMAGE:7]"]},
    {"id": "walls", "title": "Walls"}
  ]
}`

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEncode(t *testing.T) {
	out, _, err := run(t, "", "encode", writeFile(t, "tree.json", sampleTree))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"1. Roof", "Tiles slipped. [IMAGE:1:Roof]", "2. Walls"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDecode_Stdin(t *testing.T) {
	out, _, err := run(t, "1. Roof\n\nTiles slipped.\n\n1.1 Chimney\n\nCracked.\n", "decode", "-")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tree doctree.Tree
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		t.Fatalf("output is not a tree: %v\n%s", err, out)
	}
	if len(tree.Sections) != 1 || tree.Sections[0].Title != "Roof" {
		t.Fatalf("unexpected sections %+v", tree.Sections)
	}
	if kids := tree.Sections[0].Children; len(kids) != 1 || kids[0].Title != "Chimney" {
		t.Errorf("expected Chimney child, got %+v", kids)
	}
}

func TestApply(t *testing.T) {
	treePath := writeFile(t, "tree.json", sampleTree)
	opsPath := writeFile(t, "ops.json", `[
		{"op": "set_title", "section_id": "walls", "value": "External Walls"},
		{"op": "remove_section", "section_id": "roof"}
	]`)
	inversePath := filepath.Join(t.TempDir(), "inverse.json")

	out, _, err := run(t, "", "apply", treePath, opsPath, "--inverse", inversePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tree doctree.Tree
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		t.Fatalf("output is not a tree: %v", err)
	}
	if len(tree.Sections) != 1 || tree.Sections[0].Title != "External Walls" || tree.Sections[0].Number != "1" {
		t.Errorf("unexpected result %+v", tree.Sections)
	}
	if _, err := os.Stat(inversePath); err != nil {
		t.Errorf("expected inverse batch to be written: %v", err)
	}
}

func TestApply_UnknownSection(t *testing.T) {
	treePath := writeFile(t, "tree.json", sampleTree)
	opsPath := writeFile(t, "ops.json", `[{"op": "remove_section", "section_id": "nope"}]`)
	if _, _, err := run(t, "", "apply", treePath, opsPath); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestResolve(t *testing.T) {
	manifest := writeFile(t, "assets.csv", "document_id,number,group,url\nsite-1,1,Roof,https://img/1.jpg\n")
	treePath := writeFile(t, "tree.json", sampleTree)

	out, errOut, err := run(t, "", "resolve", treePath, "--manifest", manifest, "--doc", "site-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "[IMAGE:1:Roof]") {
		t.Errorf("expected resolved anchor kept:\n%s", out)
	}
	if !strings.Contains(out, "[IMAGE NOT FOUND:7]") {
		t.Errorf("expected placeholder for missing image:\n%s", out)
	}
	if !strings.Contains(errOut, "unresolved: [IMAGE NOT FOUND:7]") {
		t.Errorf("expected unresolved report on stderr, got %q", errOut)
	}

	if _, _, err := run(t, "", "resolve", treePath, "--manifest", manifest, "--doc", "site-1", "--strict"); err == nil {
		t.Error("expected strict mode to fail")
	}
}

func TestImport_Markdown(t *testing.T) {
	path := writeFile(t, "report.md", "# Roof\n\nTiles slipped.\n\n# Walls\n\nSound.\n")
	out, _, err := run(t, "", "import", path, "--text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "1. Roof") || !strings.Contains(out, "2. Walls") {
		t.Errorf("unexpected text:\n%s", out)
	}
}
