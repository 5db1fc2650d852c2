package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgallion1/inspectdoc/internal/doctree"
)

func TestParseManifest(t *testing.T) {
	src := `document_id,number,group,url,description,rotation
site-42,1,Roof; Exterior,https://img/1.jpg,North slope,90
site-42,2,,https://img/2.jpg,,
,0,Plan,https://img/plan.png,Location plan,
other,1,Roof,https://img/o1.jpg,,
`
	m, err := ParseManifest(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := m.ListImages(context.Background(), "site-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 assets, got %d: %+v", len(got), got)
	}
	first := got[0]
	if first.Number != 1 || first.Rotation != 90 || first.Description != "North slope" {
		t.Errorf("unexpected first asset %+v", first)
	}
	if len(first.Groups) != 2 || first.Groups[0] != "Roof" || first.Groups[1] != "Exterior" {
		t.Errorf("expected groups [Roof Exterior], got %v", first.Groups)
	}
	if got[1].Groups != nil {
		t.Errorf("expected no groups, got %v", got[1].Groups)
	}
	if got[2].URL != "https://img/plan.png" {
		t.Errorf("expected shared asset last, got %+v", got[2])
	}
}

func TestParseManifest_Errors(t *testing.T) {
	cases := map[string]string{
		"missing url":  "number,group\n1,Roof\n",
		"bad number":   "number,url\none,https://x\n",
		"bad rotation": "number,url,rotation\n1,https://x,left\n",
	}
	for name, src := range cases {
		if _, err := ParseManifest(strings.NewReader(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestClient_ListImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/documents/site-42/images":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"images":[{"number":3,"group":["Roof"],"url":"https://img/3.jpg","rotation":180}]}`))
		case "/documents/broken/images":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	defer c.Close()
	ctx := context.Background()

	got, err := c.ListImages(ctx, "site-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := doctree.ImageAsset{Number: 3, Groups: []string{"Roof"}, URL: "https://img/3.jpg", Rotation: 180}
	if len(got) != 1 || got[0].URL != want.URL || got[0].Groups[0] != "Roof" || got[0].Rotation != 180 {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	got, err = c.ListImages(ctx, "unknown")
	if err != nil || got != nil {
		t.Errorf("expected no assets for unknown document, got %v, %v", got, err)
	}

	if _, err := c.ListImages(ctx, "broken"); err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	s.Set("a", []doctree.ImageAsset{{Number: 1, URL: "a1"}})
	s.Add("", doctree.ImageAsset{Number: 0, URL: "shared"})

	got, _ := s.ListImages(context.Background(), "a")
	if len(got) != 2 || got[0].URL != "a1" || got[1].URL != "shared" {
		t.Errorf("unexpected assets %+v", got)
	}
	got, _ = s.ListImages(context.Background(), "b")
	if len(got) != 1 || got[0].URL != "shared" {
		t.Errorf("unexpected assets %+v", got)
	}
}
