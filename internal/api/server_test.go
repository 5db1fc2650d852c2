package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/inspectdoc/internal/agent"
	"github.com/dgallion1/inspectdoc/internal/assets"
	"github.com/dgallion1/inspectdoc/internal/config"
	"github.com/dgallion1/inspectdoc/internal/doctree"
	"github.com/dgallion1/inspectdoc/internal/editor"
	"github.com/dgallion1/inspectdoc/internal/store"
)

const testKey = "test-key"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() config.Config {
	return config.Config{
		APIKey:         testKey,
		CORSOrigins:    []string{"http://localhost:3000"},
		MaxUploadBytes: 1 << 20,
	}
}

func newTestServer(t *testing.T, ai *agent.Client) *Server {
	t.Helper()
	ed := editor.New(editor.Config{}, store.NewMemory(), nil, discard())
	images := assets.NewStatic()
	images.Set("site-42", []doctree.ImageAsset{{Number: 1, Groups: []string{"Roof"}, URL: "https://img/1.jpg"}})
	return NewServer(ed, images, ai, nil, discard(), testConfig())
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seedText(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, http.MethodPut, "/api/documents/site-42/text", map[string]any{
		"text": "1. Site Status\n\nAll good.\n\nRoof leak observed [IMAGE:1:Roof] [IMAGE:4:Garden]\n",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid api key")
}

func TestTextRoundTripAndList(t *testing.T) {
	s := newTestServer(t, nil)
	seedText(t, s)

	rec := do(t, s, http.MethodGet, "/api/documents/site-42/text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, "1. Site Status\n\nAll good.\n\nRoof leak observed [IMAGE:1:Roof] [IMAGE:4:Garden]\n", body["text"])

	rec = do(t, s, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode(t, rec)["documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "site-42", docs[0].(map[string]any)["document_id"])
}

func TestApplyOperations(t *testing.T) {
	s := newTestServer(t, nil)
	seedText(t, s)

	st := decode(t, do(t, s, http.MethodGet, "/api/documents/site-42", nil))
	id := st["tree"].(map[string]any)["sections"].([]any)[0].(map[string]any)["id"].(string)

	rec := do(t, s, http.MethodPost, "/api/documents/site-42/operations", map[string]any{
		"base_version": 1,
		"operations": []map[string]any{
			{"op": "set_title", "section_id": id, "value": "Current Status"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)
	assert.Equal(t, float64(2), res["version"])
	assert.Len(t, res["inverse"], 1)

	// Stale base.
	rec = do(t, s, http.MethodPost, "/api/documents/site-42/operations", map[string]any{
		"base_version": 1,
		"operations":   []map[string]any{{"op": "remove_section", "section_id": id}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["current_version"])

	// Invalid operation reports the invariant and index.
	rec = do(t, s, http.MethodPost, "/api/documents/site-42/operations", map[string]any{
		"operations": []map[string]any{
			{"op": "set_title", "section_id": id, "value": "ok"},
			{"op": "remove_section", "section_id": "missing"},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unknown_id", body["invariant"])
	assert.Equal(t, float64(1), body["op_index"])

	// Malformed batch.
	rec = do(t, s, http.MethodPost, "/api/documents/site-42/operations", map[string]any{
		"operations": []map[string]any{{"op": "explode"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_shape", decode(t, rec)["invariant"])

	// Negative base version fails request validation.
	rec = do(t, s, http.MethodPost, "/api/documents/site-42/operations", map[string]any{
		"base_version": -1,
		"operations":   []map[string]any{{"op": "remove_section", "section_id": id}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUndoRedo(t *testing.T) {
	s := newTestServer(t, nil)
	seedText(t, s)
	rec := do(t, s, http.MethodPut, "/api/documents/site-42/templates", map[string]any{"enabled": []string{"LIMITATIONS"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/documents/site-42/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["moved"])
	state := body["state"].(map[string]any)
	assert.Equal(t, float64(3), state["version"])
	assert.Empty(t, state["templates"])

	rec = do(t, s, http.MethodPost, "/api/documents/site-42/redo", map[string]any{"base_version": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state = decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, []any{"LIMITATIONS"}, state["templates"])

	rec = do(t, s, http.MethodPost, "/api/documents/site-42/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["moved"])
}

func TestRenderLogsEachMissingImageOnce(t *testing.T) {
	var logs bytes.Buffer
	ed := editor.New(editor.Config{}, store.NewMemory(), nil, discard())
	s := NewServer(ed, assets.NewStatic(), nil, nil, slog.New(slog.NewTextHandler(&logs, nil)), testConfig())
	seedText(t, s)

	rec := do(t, s, http.MethodGet, "/api/documents/site-42/render", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decode(t, rec)["text"], "[IMAGE NOT FOUND:4:Garden]")
	assert.Equal(t, 2, strings.Count(logs.String(), "image not found"), logs.String())
}

func TestRenderResolvesImages(t *testing.T) {
	s := newTestServer(t, nil)
	seedText(t, s)

	rec := do(t, s, http.MethodGet, "/api/documents/site-42/render", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Contains(t, body["text"], "[IMAGE:1:Roof]")
	assert.Contains(t, body["text"], "[IMAGE NOT FOUND:4:Garden]")
	assert.Equal(t, float64(1), body["unresolved"])
	assert.Len(t, body["bindings"], 2)
}

func TestReplaceTreeValidation(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPut, "/api/documents/d/tree", map[string]any{"base_version": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/documents/d/tree", map[string]any{
		"tree": map[string]any{"sections": []map[string]any{{"id": "x", "title": "A"}, {"id": "x", "title": "B"}}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "duplicate_id", decode(t, rec)["invariant"])
}

func TestGetVersion(t *testing.T) {
	s := newTestServer(t, nil)
	seedText(t, s)

	rec := do(t, s, http.MethodGet, "/api/documents/site-42?version=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["version"])

	rec = do(t, s, http.MethodGet, "/api/documents/site-42?version=9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/documents/site-42?version=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImport(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "../../report.md")
	require.NoError(t, err)
	io.WriteString(fw, "# Site Status\n\nAll good.\n\n## Roof\n\nLeak [IMAGE:1:Roof]\n")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/imp/import", &buf)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	text := decode(t, do(t, s, http.MethodGet, "/api/documents/imp/text", nil))["text"]
	assert.Equal(t, "1. Site Status\n\nAll good.\n\n1.1 Roof\n\nLeak [IMAGE:1:Roof]\n", text)

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, _ = mw.CreateFormFile("file", "sheet.xlsx")
	io.WriteString(fw, "x")
	mw.Close()
	req = httptest.NewRequest(http.MethodPost, "/api/documents/imp/import", &buf)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentEndpoint(t *testing.T) {
	var reply string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(map[string]any{"content": []map[string]string{{"type": "text", "text": reply}}})
		w.Write(b)
	}))
	defer llm.Close()

	ai := agent.NewClient("k", "test-model", agent.Options{BaseURL: llm.URL, Logger: discard(), Backoff: func(int) time.Duration { return 0 }})
	s := newTestServer(t, ai)
	seedText(t, s)
	st := decode(t, do(t, s, http.MethodGet, "/api/documents/site-42", nil))
	id := st["tree"].(map[string]any)["sections"].([]any)[0].(map[string]any)["id"].(string)

	reply = `{"operations":[{"op":"set_title","section_id":"` + id + `","value":"Current Status"}]}`

	rec := do(t, s, http.MethodPost, "/api/documents/site-42/agent", map[string]any{"instruction": "rename", "dry_run": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["proposal"], 1)
	assert.Nil(t, body["result"])

	rec = do(t, s, http.MethodPost, "/api/documents/site-42/agent", map[string]any{"instruction": "rename", "base_version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, float64(2), result["version"])

	rec = do(t, s, http.MethodPost, "/api/documents/site-42/agent", map[string]any{"instruction": "rename", "base_version": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/documents/site-42/agent", map[string]any{"instruction": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reply = "not json at all"
	rec = do(t, s, http.MethodPost, "/api/documents/site-42/agent", map[string]any{"instruction": "rename"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/stats/llm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.Equal(t, "test-model", stats["model"])
	assert.Equal(t, float64(3), stats["stats"].(map[string]any)["count"])
}

func TestAgentDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/documents/d/agent", map[string]any{"instruction": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/stats/llm", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))
}
